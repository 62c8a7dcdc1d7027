package spectral

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/interp"

	"github.com/charlie0129/lcqe/pkg/errdefs"
)

// Series is a set of values sampled on a Grid.
type Series struct {
	grid   Grid
	values []float64
	fit    *interp.PiecewiseLinear
}

// NewSeries copies values. len(values) must equal grid.Len().
func NewSeries(grid Grid, values []float64) (Series, error) {
	if grid.Len() == 0 {
		return Series{}, errdefs.NewValidationError("grid", "empty grid")
	}
	if len(values) != grid.Len() {
		return Series{}, errdefs.NewValidationError("values", "got %d values for %d wavelengths", len(values), grid.Len())
	}

	c := make([]float64, len(values))
	copy(c, values)
	fit := &interp.PiecewiseLinear{}
	if err := fit.Fit(grid.nm, c); err != nil {
		return Series{}, errdefs.NewValidationError("values", "%v", err)
	}
	return Series{grid: grid, values: c, fit: fit}, nil
}

func (s Series) Grid() Grid { return s.grid }

func (s Series) Len() int { return len(s.values) }

// Value returns the i-th stored sample.
func (s Series) Value(i int) float64 { return s.values[i] }

// Values returns a copy of the samples.
func (s Series) Values() []float64 {
	c := make([]float64, len(s.values))
	copy(c, s.values)
	return c
}

// At evaluates the series at x by linear interpolation. Grid nodes return
// the stored value exactly. Extrapolation is refused.
func (s Series) At(x float64) (float64, error) {
	if math.IsNaN(x) || !s.grid.Contains(x) {
		return 0, &errdefs.GridMismatchError{
			Lo:     s.grid.Min(),
			Hi:     s.grid.Max(),
			Reason: fmt.Sprintf("%g nm is outside the measured range [%g, %g] nm", x, s.grid.Min(), s.grid.Max()),
		}
	}

	return s.fit.Predict(x), nil
}

// Resample interpolates s onto axis. Every axis point must lie inside the
// range of s.
func Resample(s Series, axis Grid) (Series, error) {
	if s.grid.Equal(axis) {
		return NewSeries(axis, s.values)
	}

	out := make([]float64, axis.Len())
	for i := range out {
		v, err := s.At(axis.nm[i])
		if err != nil {
			return Series{}, err
		}
		out[i] = v
	}
	return NewSeries(axis, out)
}

// Intersection returns the wavelength range covered by every grid.
func Intersection(grids ...Grid) (lo, hi float64) {
	lo, hi = math.Inf(-1), math.Inf(1)
	for _, g := range grids {
		lo = math.Max(lo, g.Min())
		hi = math.Min(hi, g.Max())
	}
	return lo, hi
}

// Align builds the common axis of one computation: the points of reference
// that fall inside the intersection of reference and others. Points outside
// are dropped and logged; they are never zero-filled.
//
// A GridMismatchError is returned when the intersection is empty, keeps fewer
// than two reference points, or the kept points span less than minSpan.
func Align(reference Grid, minSpan float64, others ...Grid) (Grid, error) {
	lo, hi := Intersection(append([]Grid{reference}, others...)...)
	if !(hi > lo) || hi-lo < minSpan {
		return Grid{}, &errdefs.GridMismatchError{Lo: lo, Hi: hi, MinSpan: minSpan}
	}

	kept := make([]float64, 0, reference.Len())
	var dropped []float64
	for _, x := range reference.nm {
		if x >= lo && x <= hi {
			kept = append(kept, x)
		} else {
			dropped = append(dropped, x)
		}
	}

	if len(kept) < 2 {
		return Grid{}, &errdefs.GridMismatchError{
			Lo:      lo,
			Hi:      hi,
			MinSpan: minSpan,
			Reason:  fmt.Sprintf("only %d reference wavelengths inside [%g, %g] nm", len(kept), lo, hi),
		}
	}

	axis := Grid{nm: kept}
	if axis.Span() < minSpan {
		return Grid{}, &errdefs.GridMismatchError{
			Lo:      lo,
			Hi:      hi,
			MinSpan: minSpan,
			Reason:  fmt.Sprintf("kept wavelengths only span %g nm of [%g, %g] nm", axis.Span(), lo, hi),
		}
	}

	if len(dropped) > 0 {
		logrus.WithFields(logrus.Fields{
			"dropped": len(dropped),
			"first":   dropped[0],
			"last":    dropped[len(dropped)-1],
			"lo":      lo,
			"hi":      hi,
		}).Warn("dropping wavelengths outside the common range")
	}

	return axis, nil
}
