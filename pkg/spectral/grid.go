// Package spectral holds the wavelength axis shared by every spectrum and EQE
// curve of one computation, and the linear interpolation policy used to put
// data measured on different grids onto that axis.
package spectral

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/charlie0129/lcqe/pkg/errdefs"
)

// Grid is a strictly increasing sequence of wavelengths in nm.
// The zero value is not a valid grid; use NewGrid.
type Grid struct {
	nm []float64
}

// NewGrid copies nm and validates it: at least two points, all finite,
// strictly increasing.
func NewGrid(nm []float64) (Grid, error) {
	if len(nm) < 2 {
		return Grid{}, errdefs.NewValidationError("grid", "need at least 2 wavelengths, got %d", len(nm))
	}
	for i, v := range nm {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Grid{}, errdefs.NewValidationError("grid", "wavelength at index %d is not finite", i)
		}
		if i > 0 && v <= nm[i-1] {
			return Grid{}, errdefs.NewValidationError("grid", "wavelengths must be strictly increasing: %g nm at index %d follows %g nm", v, i, nm[i-1])
		}
	}

	c := make([]float64, len(nm))
	copy(c, nm)
	return Grid{nm: c}, nil
}

// MustGrid is like NewGrid but panics on error. Intended for tests and
// package-level fixtures.
func MustGrid(nm ...float64) Grid {
	g, err := NewGrid(nm)
	if err != nil {
		panic(err)
	}
	return g
}

func (g Grid) Len() int { return len(g.nm) }

func (g Grid) At(i int) float64 { return g.nm[i] }

func (g Grid) Min() float64 { return g.nm[0] }

func (g Grid) Max() float64 { return g.nm[len(g.nm)-1] }

// Span is Max - Min.
func (g Grid) Span() float64 { return g.Max() - g.Min() }

// Values returns a copy of the wavelengths.
func (g Grid) Values() []float64 {
	c := make([]float64, len(g.nm))
	copy(c, g.nm)
	return c
}

// Contains reports whether x lies inside [Min, Max].
func (g Grid) Contains(x float64) bool {
	return len(g.nm) > 0 && x >= g.Min() && x <= g.Max()
}

// Equal reports whether both grids hold exactly the same wavelengths.
func (g Grid) Equal(o Grid) bool {
	return floats.Equal(g.nm, o.nm)
}
