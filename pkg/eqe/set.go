// Package eqe holds the measured external quantum efficiency of every junction
// of a series-connected stack.
package eqe

import (
	"fmt"
	"math"

	"github.com/charlie0129/lcqe/pkg/errdefs"
	"github.com/charlie0129/lcqe/pkg/spectral"
)

const (
	// MinEQE and MaxEQE bound an accepted EQE sample. A small excess above 1
	// is tolerated for measurement noise.
	MinEQE = 0.0
	MaxEQE = 1.2
)

// Junction is one measured curve. Junctions are ordered top (highest
// bandgap) to bottom.
type Junction struct {
	Name  string
	Curve spectral.Series
}

// Set is the measured EQE of a stack. All curves share one grid.
type Set struct {
	grid      spectral.Grid
	junctions []Junction
}

// NewSet validates curves and aligns them on a common grid. Curves measured
// on different grids are resampled onto the first curve's points inside the
// intersection of all ranges; minSpan is the minimum accepted width of that
// intersection in nm.
func NewSet(junctions []Junction, minSpan float64) (*Set, error) {
	if len(junctions) == 0 {
		return nil, errdefs.NewValidationError("eqe", "no junctions")
	}

	grids := make([]spectral.Grid, 0, len(junctions)-1)
	for i, j := range junctions {
		if j.Curve.Len() == 0 {
			return nil, errdefs.NewValidationError(field(i), "empty curve")
		}
		if err := checkValues(i, j.Curve); err != nil {
			return nil, err
		}
		if i > 0 {
			grids = append(grids, j.Curve.Grid())
		}
	}

	axis := junctions[0].Curve.Grid()
	if len(grids) > 0 {
		var err error
		axis, err = spectral.Align(axis, minSpan, grids...)
		if err != nil {
			return nil, err
		}
	}

	s := &Set{grid: axis, junctions: make([]Junction, len(junctions))}
	for i, j := range junctions {
		c, err := spectral.Resample(j.Curve, axis)
		if err != nil {
			return nil, err
		}
		name := j.Name
		if name == "" {
			name = fmt.Sprintf("J%d", i+1)
		}
		s.junctions[i] = Junction{Name: name, Curve: c}
	}
	return s, nil
}

// FromTable builds a set from a wavelength-indexed table: values[j][k] is the
// EQE of junction j at wavelength nm[k].
func FromTable(nm []float64, names []string, values [][]float64) (*Set, error) {
	g, err := spectral.NewGrid(nm)
	if err != nil {
		return nil, err
	}
	if len(names) != 0 && len(names) != len(values) {
		return nil, errdefs.NewValidationError("eqe", "got %d junction names for %d curves", len(names), len(values))
	}

	junctions := make([]Junction, len(values))
	for i, v := range values {
		s, err := spectral.NewSeries(g, v)
		if err != nil {
			return nil, errdefs.NewValidationError(field(i), "%v", err)
		}
		junctions[i].Curve = s
		if len(names) != 0 {
			junctions[i].Name = names[i]
		}
	}
	return NewSet(junctions, 0)
}

func (s *Set) Grid() spectral.Grid { return s.grid }

// Len is the number of junctions.
func (s *Set) Len() int { return len(s.junctions) }

// Junction returns the i-th junction, top first.
func (s *Set) Junction(i int) Junction { return s.junctions[i] }

// Names returns the junction names, top first.
func (s *Set) Names() []string {
	names := make([]string, len(s.junctions))
	for i, j := range s.junctions {
		names[i] = j.Name
	}
	return names
}

// Values returns a copy of every curve's samples on the set's grid.
func (s *Set) Values() [][]float64 {
	out := make([][]float64, len(s.junctions))
	for i, j := range s.junctions {
		out[i] = j.Curve.Values()
	}
	return out
}

// Restrict resamples the set onto axis, which must lie inside the set's
// grid range.
func (s *Set) Restrict(axis spectral.Grid) (*Set, error) {
	if s.grid.Equal(axis) {
		return s, nil
	}
	out := &Set{grid: axis, junctions: make([]Junction, len(s.junctions))}
	for i, j := range s.junctions {
		c, err := spectral.Resample(j.Curve, axis)
		if err != nil {
			return nil, err
		}
		out.junctions[i] = Junction{Name: j.Name, Curve: c}
	}
	return out, nil
}

func checkValues(i int, c spectral.Series) error {
	for k := 0; k < c.Len(); k++ {
		v := c.Value(k)
		if math.IsNaN(v) || v < MinEQE || v > MaxEQE {
			return errdefs.NewValidationError(field(i), "EQE at %g nm must be within [%g, %g], got %g", c.Grid().At(k), MinEQE, MaxEQE, v)
		}
	}
	return nil
}

func field(i int) string { return fmt.Sprintf("eqe[%d]", i) }
