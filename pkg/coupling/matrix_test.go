package coupling

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/lcqe/pkg/errdefs"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		values  [][]float64
		wantRow int
		wantCol int
		wantErr bool
	}{
		{name: "valid 3x3", values: [][]float64{{0, 0.1, 0.02}, {0, 0, 0.3}, {0, 0, 0}}},
		{name: "zero", values: [][]float64{{0, 0}, {0, 0}}},
		{name: "empty", values: nil, wantErr: true, wantRow: -1, wantCol: -1},
		{name: "not square", values: [][]float64{{0, 0.1}, {0}}, wantErr: true, wantRow: -1, wantCol: -1},
		{name: "above one", values: [][]float64{{0, 1.5}, {0, 0}}, wantErr: true, wantRow: 0, wantCol: 1},
		{name: "negative", values: [][]float64{{0, -0.1}, {0, 0}}, wantErr: true, wantRow: 0, wantCol: 1},
		{name: "self coupling", values: [][]float64{{0.1, 0}, {0, 0}}, wantErr: true, wantRow: 0, wantCol: 0},
		{name: "upward coupling", values: [][]float64{{0, 0}, {0.2, 0}}, wantErr: true, wantRow: 1, wantCol: 0},
		{name: "nan", values: [][]float64{{0, math.NaN()}, {0, 0}}, wantErr: true, wantRow: 0, wantCol: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.values)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, len(tt.values), m.Size())
				return
			}
			var ce *errdefs.InvalidCouplingError
			require.ErrorAs(t, err, &ce)
			assert.ErrorIs(t, err, errdefs.ErrInvalidCoupling)
			assert.Equal(t, tt.wantRow, ce.Row)
			assert.Equal(t, tt.wantCol, ce.Col)
		})
	}
}

func TestFromAndInto(t *testing.T) {
	m, err := New([][]float64{{0, 0.1, 0.02}, {0, 0, 0.3}, {0, 0, 0}})
	require.NoError(t, err)

	from0, err := m.From(0)
	require.NoError(t, err)
	assert.Equal(t, map[int]float64{1: 0.1, 2: 0.02}, from0)

	from2, err := m.From(2)
	require.NoError(t, err)
	assert.Empty(t, from2)

	into2, err := m.Into(2)
	require.NoError(t, err)
	assert.Equal(t, map[int]float64{0: 0.02, 1: 0.3}, into2)

	assert.Equal(t, []Source{{Junction: 0, Coefficient: 0.02}, {Junction: 1, Coefficient: 0.3}}, m.Sources(2))
	assert.Empty(t, m.Sources(0))

	_, err = m.From(3)
	assert.ErrorIs(t, err, errdefs.ErrInvalidCoupling)
	_, err = m.Into(-1)
	assert.ErrorIs(t, err, errdefs.ErrInvalidCoupling)
}

func TestPairAndZero(t *testing.T) {
	assert.True(t, Zero(3).IsZero())

	m, err := Pair(2, 0, 1, 0.1)
	require.NoError(t, err)
	assert.False(t, m.IsZero())
	assert.Equal(t, 0.1, m.At(0, 1))
	assert.Equal(t, 0.0, m.At(5, 5))

	_, err = Pair(2, 1, 0, 0.1)
	assert.ErrorIs(t, err, errdefs.ErrInvalidCoupling)
}

func TestRowsIsACopy(t *testing.T) {
	m, _ := Pair(2, 0, 1, 0.1)
	rows := m.Rows()
	rows[0][1] = 0.9
	assert.Equal(t, 0.1, m.At(0, 1))
}

func TestMatrixJSON(t *testing.T) {
	var m Matrix
	require.NoError(t, json.Unmarshal([]byte(`[[0,0.25],[0,0]]`), &m))
	assert.Equal(t, 0.25, m.At(0, 1))

	err := json.Unmarshal([]byte(`[[0,0],[0.25,0]]`), &m)
	assert.ErrorIs(t, err, errdefs.ErrInvalidCoupling)
}
