package eqe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/lcqe/pkg/errdefs"
	"github.com/charlie0129/lcqe/pkg/spectral"
)

func TestFromTable(t *testing.T) {
	s, err := FromTable(
		[]float64{400, 500, 600},
		[]string{"GaInP", ""},
		[][]float64{{0.9, 0.85, 0.1}, {0.05, 0.3, 0.8}},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"GaInP", "J2"}, s.Names())
	assert.Equal(t, [][]float64{{0.9, 0.85, 0.1}, {0.05, 0.3, 0.8}}, s.Values())
}

func TestFromTableRejectsOutOfRangeEQE(t *testing.T) {
	tests := []struct {
		name   string
		values [][]float64
	}{
		{name: "negative", values: [][]float64{{0.5, -0.01, 0.5}}},
		{name: "above 1.2", values: [][]float64{{0.5, 1.21, 0.5}}},
		{name: "wrong length", values: [][]float64{{0.5, 0.5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromTable([]float64{400, 500, 600}, nil, tt.values)
			var ve *errdefs.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "eqe[0]", ve.Field)
		})
	}
}

func TestFromTableAcceptsNoiseAboveOne(t *testing.T) {
	_, err := FromTable([]float64{400, 500}, nil, [][]float64{{1.05, 1.2}})
	assert.NoError(t, err)
}

func TestNewSetAlignsDifferentGrids(t *testing.T) {
	top, err := spectral.NewSeries(spectral.MustGrid(300, 400, 500, 600), []float64{0.2, 0.4, 0.6, 0.8})
	require.NoError(t, err)
	bottom, err := spectral.NewSeries(spectral.MustGrid(350, 650), []float64{0.0, 0.6})
	require.NoError(t, err)

	s, err := NewSet([]Junction{{Name: "top", Curve: top}, {Name: "bottom", Curve: bottom}}, 0)
	require.NoError(t, err)

	assert.Equal(t, []float64{400, 500, 600}, s.Grid().Values())
	assert.Equal(t, []float64{0.4, 0.6, 0.8}, s.Junction(0).Curve.Values())
	assert.InDeltaSlice(t, []float64{0.1, 0.3, 0.5}, s.Junction(1).Curve.Values(), 1e-12)
}

func TestNewSetMinSpan(t *testing.T) {
	top, _ := spectral.NewSeries(spectral.MustGrid(400, 500, 600), []float64{0.5, 0.5, 0.5})
	bottom, _ := spectral.NewSeries(spectral.MustGrid(550, 900), []float64{0.5, 0.5})

	_, err := NewSet([]Junction{{Curve: top}, {Curve: bottom}}, 100)
	assert.ErrorIs(t, err, errdefs.ErrGridMismatch)
}
