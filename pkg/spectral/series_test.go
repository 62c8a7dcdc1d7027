package spectral

import (
	"errors"
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/lcqe/pkg/errdefs"
)

func TestNewGrid(t *testing.T) {
	tests := []struct {
		name    string
		nm      []float64
		wantErr bool
	}{
		{name: "valid", nm: []float64{400, 500, 600}},
		{name: "non-uniform", nm: []float64{300, 305, 400, 1000}},
		{name: "single point", nm: []float64{400}, wantErr: true},
		{name: "empty", nm: nil, wantErr: true},
		{name: "duplicate", nm: []float64{400, 500, 500}, wantErr: true},
		{name: "decreasing", nm: []float64{600, 500, 400}, wantErr: true},
		{name: "nan", nm: []float64{400, math.NaN(), 600}, wantErr: true},
		{name: "inf", nm: []float64{400, 500, math.Inf(1)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGrid(tt.nm)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errdefs.ErrValidation), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.nm, g.Values())
		})
	}
}

func TestNewGridCopiesInput(t *testing.T) {
	nm := []float64{400, 500, 600}
	g, err := NewGrid(nm)
	require.NoError(t, err)

	nm[0] = 100
	assert.Equal(t, 400.0, g.Min())
}

func TestSeriesAt(t *testing.T) {
	s, err := NewSeries(MustGrid(400, 500, 700), []float64{0.2, 0.6, 0.0})
	require.NoError(t, err)

	tests := []struct {
		x    float64
		want float64
	}{
		{400, 0.2},
		{500, 0.6},
		{700, 0.0},
		{450, 0.4},
		{600, 0.3},
	}
	for _, tt := range tests {
		got, err := s.At(tt.x)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-12, "At(%g)", tt.x)
	}

	for _, x := range []float64{399.999, 700.001, math.NaN()} {
		_, err := s.At(x)
		require.Error(t, err)
		assert.ErrorIs(t, err, errdefs.ErrGridMismatch)
	}
}

func TestResampleOntoOwnGridIsIdentity(t *testing.T) {
	values := []float64{0.1, 0.3333333333333333, 0.7, 1e-9, 0.95}
	g := MustGrid(350, 351.5, 420, 777.7, 1100)
	s, err := NewSeries(g, values)
	require.NoError(t, err)

	r, err := Resample(s, MustGrid(g.Values()...))
	require.NoError(t, err)
	assert.Equal(t, values, r.Values())

	for i, x := range g.Values() {
		v, err := s.At(x)
		require.NoError(t, err)
		assert.Equal(t, values[i], v)
	}
}

func TestResampleRefusesExtrapolation(t *testing.T) {
	s, err := NewSeries(MustGrid(400, 500, 600), []float64{1, 1, 1})
	require.NoError(t, err)

	_, err = Resample(s, MustGrid(300, 400, 500))
	assert.ErrorIs(t, err, errdefs.ErrGridMismatch)
}

func TestAlign(t *testing.T) {
	ref := MustGrid(300, 400, 500, 600, 700)

	t.Run("drops points outside the intersection", func(t *testing.T) {
		axis, err := Align(ref, 0, MustGrid(350, 650))
		require.NoError(t, err)
		assert.Equal(t, []float64{400, 500, 600}, axis.Values())
	})

	t.Run("identical grids", func(t *testing.T) {
		axis, err := Align(ref, 0, ref)
		require.NoError(t, err)
		assert.True(t, axis.Equal(ref))
	})

	t.Run("disjoint ranges", func(t *testing.T) {
		_, err := Align(ref, 0, MustGrid(800, 900))
		var gm *errdefs.GridMismatchError
		require.ErrorAs(t, err, &gm)
		assert.GreaterOrEqual(t, gm.Lo, gm.Hi)
	})

	t.Run("narrower than minimum span", func(t *testing.T) {
		_, err := Align(ref, 250, MustGrid(350, 550))
		assert.ErrorIs(t, err, errdefs.ErrGridMismatch)
	})

	t.Run("too few reference points inside", func(t *testing.T) {
		_, err := Align(ref, 0, MustGrid(410, 520))
		assert.ErrorIs(t, err, errdefs.ErrGridMismatch)
	})

	t.Run("minimum span applies to the kept points", func(t *testing.T) {
		dense := MustGrid(400, 410, 420, 600)
		_, err := Align(dense, 50, MustGrid(400, 500))
		var gm *errdefs.GridMismatchError
		require.ErrorAs(t, err, &gm)
		assert.Contains(t, gm.Reason, "span 20 nm")

		axis, err := Align(dense, 20, MustGrid(400, 500))
		require.NoError(t, err)
		assert.Equal(t, []float64{400, 410, 420}, axis.Values())
	})
}

func TestAlignWarnsAboutDroppedWavelengths(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	_, err := Align(MustGrid(300, 400, 500, 600, 700), 0, MustGrid(350, 650))
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, 2, entry.Data["dropped"])
	assert.Equal(t, 300.0, entry.Data["first"])
	assert.Equal(t, 700.0, entry.Data["last"])

	hook.Reset()
	_, err = Align(MustGrid(400, 500), 0, MustGrid(300, 700))
	require.NoError(t, err)
	assert.Empty(t, hook.AllEntries())
}
