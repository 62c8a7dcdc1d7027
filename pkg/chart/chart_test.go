package chart

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/lcqe/pkg/result"
	"github.com/charlie0129/lcqe/pkg/spectral"
)

func TestRenderEQE(t *testing.T) {
	r := result.New(result.Snapshot{
		Grid:             spectral.MustGrid(400, 500, 600),
		Names:            []string{"top", "bottom"},
		Measured:         [][]float64{{0.9, 0.85, 0.1}, {0.05, 0.3, 0.8}},
		Corrected:        [][]float64{{0.9, 0.85, 0.1}, {0.04, 0.25, 0.79}},
		MeasuredCurrents: []float64{0.2, 0.1},
		Currents:         []float64{0.2, 0.09},
	})

	for _, name := range []string{"eqe.png", "eqe.svg"} {
		p := filepath.Join(t.TempDir(), name)
		require.NoError(t, RenderEQE(r, p))

		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestRenderEQEUnknownFormat(t *testing.T) {
	r := result.New(result.Snapshot{
		Grid:      spectral.MustGrid(400, 500),
		Names:     []string{"J1"},
		Measured:  [][]float64{{0.5, 0.5}},
		Corrected: [][]float64{{0.5, 0.5}},
		Currents:  []float64{0.1},
	})
	assert.Error(t, RenderEQE(r, filepath.Join(t.TempDir(), "eqe.bmp2")))
}
