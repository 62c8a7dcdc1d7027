// Package coupling stores the luminescent coupling coefficients between the
// junctions of a stack. Entry (i, j), i < j, is the fraction of junction i's
// radiative emission that is reabsorbed by junction j. Coupling only flows
// downwards, so every entry on or below the diagonal is zero.
package coupling

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/charlie0129/lcqe/pkg/errdefs"
)

// Matrix is an immutable, validated coupling matrix.
type Matrix struct {
	n int
	c [][]float64
}

// New copies and validates values.
func New(values [][]float64) (*Matrix, error) {
	n := len(values)
	if n == 0 {
		return nil, errdefs.NewInvalidCouplingError(-1, -1, "matrix is empty")
	}

	c := make([][]float64, n)
	for i, row := range values {
		if len(row) != n {
			return nil, errdefs.NewInvalidCouplingError(-1, -1, "row %d has %d entries, want %d", i, len(row), n)
		}
		c[i] = make([]float64, n)
		for j, v := range row {
			switch {
			case math.IsNaN(v) || math.IsInf(v, 0):
				return nil, errdefs.NewInvalidCouplingError(i, j, "coefficient is not finite")
			case v < 0 || v > 1:
				return nil, errdefs.NewInvalidCouplingError(i, j, "coefficient %g is outside [0, 1]", v)
			case j <= i && v != 0:
				return nil, errdefs.NewInvalidCouplingError(i, j, "coefficient %g is on or below the diagonal; coupling only flows from an upper junction to a lower one", v)
			}
			c[i][j] = v
		}
	}
	return &Matrix{n: n, c: c}, nil
}

// Zero is the coupling-free matrix for n junctions.
func Zero(n int) *Matrix {
	c := make([][]float64, n)
	for i := range c {
		c[i] = make([]float64, n)
	}
	return &Matrix{n: n, c: c}
}

// Pair builds an n-junction matrix with a single nonzero entry.
func Pair(n, from, to int, coefficient float64) (*Matrix, error) {
	if from < 0 || from >= n || to < 0 || to >= n {
		return nil, errdefs.NewInvalidCouplingError(from, to, "junction index out of range for %d junctions", n)
	}
	values := Zero(n).Rows()
	values[from][to] = coefficient
	return New(values)
}

// Size is the number of junctions the matrix describes.
func (m *Matrix) Size() int { return m.n }

// At returns entry (i, j); out-of-range indices read as zero.
func (m *Matrix) At(i, j int) float64 {
	if i < 0 || j < 0 || i >= m.n || j >= m.n {
		return 0
	}
	return m.c[i][j]
}

// IsZero reports whether no junction couples into another.
func (m *Matrix) IsZero() bool {
	for i := range m.c {
		for _, v := range m.c[i] {
			if v != 0 {
				return false
			}
		}
	}
	return true
}

// From returns the lower junctions reachable from upper junction i, keyed by
// junction index, with their nonzero coefficients.
func (m *Matrix) From(i int) (map[int]float64, error) {
	if i < 0 || i >= m.n {
		return nil, errdefs.NewInvalidCouplingError(i, -1, "junction index %d out of range for %d junctions", i, m.n)
	}
	out := make(map[int]float64)
	for j := i + 1; j < m.n; j++ {
		if v := m.c[i][j]; v != 0 {
			out[j] = v
		}
	}
	return out, nil
}

// Into returns the upper junctions that couple into junction j.
func (m *Matrix) Into(j int) (map[int]float64, error) {
	if j < 0 || j >= m.n {
		return nil, errdefs.NewInvalidCouplingError(-1, j, "junction index %d out of range for %d junctions", j, m.n)
	}
	out := make(map[int]float64)
	for i := 0; i < j; i++ {
		if v := m.c[i][j]; v != 0 {
			out[i] = v
		}
	}
	return out, nil
}

// Source is one upper junction contributing to a lower one.
type Source struct {
	Junction    int
	Coefficient float64
}

// Sources is Into as a slice ordered by junction index, for deterministic
// iteration.
func (m *Matrix) Sources(j int) []Source {
	into, err := m.Into(j)
	if err != nil {
		return nil
	}
	out := make([]Source, 0, len(into))
	for i, v := range into {
		out = append(out, Source{Junction: i, Coefficient: v})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Junction < out[b].Junction })
	return out
}

// Rows returns a copy of the matrix.
func (m *Matrix) Rows() [][]float64 {
	out := make([][]float64, m.n)
	for i := range m.c {
		out[i] = make([]float64, m.n)
		copy(out[i], m.c[i])
	}
	return out
}

func (m *Matrix) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.c)
}

func (m *Matrix) UnmarshalJSON(b []byte) error {
	var values [][]float64
	if err := json.Unmarshal(b, &values); err != nil {
		return err
	}
	parsed, err := New(values)
	if err != nil {
		return err
	}
	*m = *parsed
	return nil
}
