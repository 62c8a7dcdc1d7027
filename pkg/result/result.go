// Package result holds the immutable outcome of one correction: corrected EQE,
// per-junction currents and the convergence record. Accessors return copies,
// so a Set can be handed to any number of readers.
package result

import (
	"encoding/json"

	"github.com/charlie0129/lcqe/pkg/errdefs"
	"github.com/charlie0129/lcqe/pkg/spectral"
)

// Convergence records how the fixed-point iteration ended.
type Convergence struct {
	Iterations int     `json:"iterations"`
	FinalDelta float64 `json:"finalDelta"` // mA/cm^2
	// LimitingJunction is the index of the junction with the lowest current,
	// the topmost one on ties.
	LimitingJunction int       `json:"limitingJunction"`
	Converged        bool      `json:"converged"`
	Deltas           []float64 `json:"deltas"` // max |dJ| of every iteration
}

// Set is a correction snapshot.
type Set struct {
	grid             spectral.Grid
	names            []string
	measured         [][]float64
	corrected        [][]float64
	measuredCurrents []float64
	currents         []float64
	convergence      Convergence
}

// Snapshot describes the content of a new Set. Slices are copied by New.
type Snapshot struct {
	Grid             spectral.Grid
	Names            []string
	Measured         [][]float64
	Corrected        [][]float64
	MeasuredCurrents []float64
	Currents         []float64
	Convergence      Convergence
}

// New copies snap into a Set.
func New(snap Snapshot) *Set {
	c := snap.Convergence
	c.Deltas = clone(snap.Convergence.Deltas)
	return &Set{
		grid:             snap.Grid,
		names:            append([]string(nil), snap.Names...),
		measured:         clone2(snap.Measured),
		corrected:        clone2(snap.Corrected),
		measuredCurrents: clone(snap.MeasuredCurrents),
		currents:         clone(snap.Currents),
		convergence:      c,
	}
}

func (s *Set) Grid() spectral.Grid { return s.grid }

func (s *Set) Len() int { return len(s.names) }

func (s *Set) Names() []string { return append([]string(nil), s.names...) }

// Measured returns the raw EQE samples, junction-major.
func (s *Set) Measured() [][]float64 { return clone2(s.measured) }

// Corrected returns the LC-corrected EQE samples, junction-major.
func (s *Set) Corrected() [][]float64 { return clone2(s.corrected) }

// CorrectedCurve returns junction i's corrected EQE as a Series.
func (s *Set) CorrectedCurve(i int) spectral.Series {
	c, _ := spectral.NewSeries(s.grid, s.corrected[i])
	return c
}

// MeasuredCurve returns junction i's raw EQE as a Series.
func (s *Set) MeasuredCurve(i int) spectral.Series {
	c, _ := spectral.NewSeries(s.grid, s.measured[i])
	return c
}

// Currents returns the final per-junction current densities in mA/cm^2.
func (s *Set) Currents() []float64 { return clone(s.currents) }

// MeasuredCurrents returns the current densities of the uncorrected curves.
func (s *Set) MeasuredCurrents() []float64 { return clone(s.measuredCurrents) }

func (s *Set) Convergence() Convergence {
	c := s.convergence
	c.Deltas = clone(s.convergence.Deltas)
	return c
}

// LimitingJunction is a shortcut for Convergence().LimitingJunction.
func (s *Set) LimitingJunction() int { return s.convergence.LimitingJunction }

// OperatingCurrent is the current of the limiting junction.
func (s *Set) OperatingCurrent() float64 {
	if len(s.currents) == 0 {
		return 0
	}
	return s.currents[s.convergence.LimitingJunction]
}

// JunctionReport is one line of the mismatch report.
type JunctionReport struct {
	Index           int     `json:"index"`
	Name            string  `json:"name"`
	MeasuredCurrent float64 `json:"measuredCurrent"` // mA/cm^2
	Current         float64 `json:"current"`         // mA/cm^2, corrected
	// Ratio is Current over the operating current; 1 for the limiting junction.
	Ratio float64 `json:"ratio"`
	// Excess is the current the junction could deliver above the operating current.
	Excess   float64 `json:"excess"`
	Limiting bool    `json:"limiting"`
}

// Mismatch reports every junction's current relative to the limiting one.
func (s *Set) Mismatch() []JunctionReport {
	op := s.OperatingCurrent()
	out := make([]JunctionReport, len(s.names))
	for i := range s.names {
		r := JunctionReport{
			Index:           i,
			Name:            s.names[i],
			MeasuredCurrent: s.measuredCurrents[i],
			Current:         s.currents[i],
			Excess:          s.currents[i] - op,
			Limiting:        i == s.convergence.LimitingJunction,
		}
		if op > 0 {
			r.Ratio = s.currents[i] / op
		}
		out[i] = r
	}
	return out
}

// Table returns the corrected EQE as rows of [wavelength, junction 1, ...].
func (s *Set) Table() [][]float64 {
	rows := make([][]float64, s.grid.Len())
	for k := range rows {
		row := make([]float64, 1+len(s.corrected))
		row[0] = s.grid.At(k)
		for j := range s.corrected {
			row[1+j] = s.corrected[j][k]
		}
		rows[k] = row
	}
	return rows
}

// Document is the serialized form of a Set.
type Document struct {
	Wavelength       []float64        `json:"wavelength"`
	Names            []string         `json:"names"`
	Measured         [][]float64      `json:"measured"`
	Corrected        [][]float64      `json:"corrected"`
	MeasuredCurrents []float64        `json:"measuredCurrents"`
	Currents         []float64        `json:"currents"`
	Convergence      Convergence      `json:"convergence"`
	Mismatch         []JunctionReport `json:"mismatch"`
}

// Document exports the set for encoding.
func (s *Set) Document() Document {
	return Document{
		Wavelength:       s.grid.Values(),
		Names:            s.Names(),
		Measured:         s.Measured(),
		Corrected:        s.Corrected(),
		MeasuredCurrents: s.MeasuredCurrents(),
		Currents:         s.Currents(),
		Convergence:      s.Convergence(),
		Mismatch:         s.Mismatch(),
	}
}

func (s *Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Document())
}

// FromDocument rebuilds a Set, e.g. on the client side of the daemon API.
func FromDocument(d Document) (*Set, error) {
	g, err := spectral.NewGrid(d.Wavelength)
	if err != nil {
		return nil, err
	}
	if err := checkShape(d, g.Len()); err != nil {
		return nil, err
	}
	return New(Snapshot{
		Grid:             g,
		Names:            d.Names,
		Measured:         d.Measured,
		Corrected:        d.Corrected,
		MeasuredCurrents: d.MeasuredCurrents,
		Currents:         d.Currents,
		Convergence:      d.Convergence,
	}), nil
}

// checkShape makes sure every per-junction field of d describes the same
// junctions on a grid of points wavelengths.
func checkShape(d Document, points int) error {
	n := len(d.Names)
	if n == 0 {
		return errdefs.NewValidationError("names", "no junctions")
	}
	for field, curves := range map[string][][]float64{"measured": d.Measured, "corrected": d.Corrected} {
		if len(curves) != n {
			return errdefs.NewValidationError(field, "got %d curves for %d junctions", len(curves), n)
		}
		for i, c := range curves {
			if len(c) != points {
				return errdefs.NewValidationError(field, "curve %d has %d values for %d wavelengths", i, len(c), points)
			}
		}
	}
	for field, currents := range map[string][]float64{"measuredCurrents": d.MeasuredCurrents, "currents": d.Currents} {
		if len(currents) != n {
			return errdefs.NewValidationError(field, "got %d currents for %d junctions", len(currents), n)
		}
	}
	if lj := d.Convergence.LimitingJunction; lj < 0 || lj >= n {
		return errdefs.NewValidationError("convergence.limitingJunction", "%d is not a junction index", lj)
	}
	return nil
}

func clone(v []float64) []float64 {
	if v == nil {
		return nil
	}
	return append([]float64(nil), v...)
}

func clone2(v [][]float64) [][]float64 {
	if v == nil {
		return nil
	}
	out := make([][]float64, len(v))
	for i := range v {
		out[i] = clone(v[i])
	}
	return out
}
