// Package flux wraps a reference illumination spectrum as photon flux density
// (photons s^-1 m^-2 nm^-1) versus wavelength.
package flux

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/charlie0129/lcqe/pkg/errdefs"
	"github.com/charlie0129/lcqe/pkg/spectral"
)

// Kind identifies where a spectrum came from.
type Kind int

const (
	// KindDirect is the standard terrestrial direct (+circumsolar) spectrum.
	KindDirect Kind = iota
	// KindGlobal is the standard terrestrial global tilt spectrum.
	KindGlobal
	// KindCustom is any user-supplied spectrum.
	KindCustom
)

var kindNames = map[Kind]string{
	KindDirect: "direct",
	KindGlobal: "global",
	KindCustom: "custom",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind accepts "direct", "global" or "custom", case-insensitively.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return k, nil
		}
	}
	return 0, errdefs.NewValidationError("spectrumKind", "unknown spectrum kind %q, must be one of direct, global, custom", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown spectrum kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

var _ json.Marshaler = Spectrum{}

// Spectrum is a tagged photon flux spectrum. It is immutable once built.
type Spectrum struct {
	kind   Kind
	name   string
	series spectral.Series
}

// New validates that every flux value is finite and non-negative.
func New(kind Kind, name string, series spectral.Series) (*Spectrum, error) {
	if _, ok := kindNames[kind]; !ok {
		return nil, errdefs.NewValidationError("spectrumKind", "unknown spectrum kind %d", int(kind))
	}
	if series.Len() == 0 {
		return nil, errdefs.NewValidationError("spectrum", "empty spectrum")
	}
	for i := 0; i < series.Len(); i++ {
		v := series.Value(i)
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, errdefs.NewValidationError("spectrum", "flux at %g nm must be finite and non-negative, got %g", series.Grid().At(i), v)
		}
	}
	if name == "" {
		name = kind.String()
	}
	return &Spectrum{kind: kind, name: name, series: series}, nil
}

// FromSamples builds the grid and series in one go.
func FromSamples(kind Kind, name string, nm, photons []float64) (*Spectrum, error) {
	g, err := spectral.NewGrid(nm)
	if err != nil {
		return nil, err
	}
	s, err := spectral.NewSeries(g, photons)
	if err != nil {
		return nil, err
	}
	return New(kind, name, s)
}

// Constant is a flat spectrum over grid.
func Constant(kind Kind, name string, grid spectral.Grid, value float64) (*Spectrum, error) {
	v := make([]float64, grid.Len())
	for i := range v {
		v[i] = value
	}
	s, err := spectral.NewSeries(grid, v)
	if err != nil {
		return nil, err
	}
	return New(kind, name, s)
}

func (s *Spectrum) Kind() Kind { return s.kind }

func (s *Spectrum) Name() string { return s.name }

func (s *Spectrum) Grid() spectral.Grid { return s.series.Grid() }

// At evaluates the flux density at nm with the interpolation policy of
// package spectral.
func (s *Spectrum) At(nm float64) (float64, error) {
	return s.series.At(nm)
}

// Sample evaluates the spectrum at every point of grid.
func (s *Spectrum) Sample(grid spectral.Grid) ([]float64, error) {
	r, err := spectral.Resample(s.series, grid)
	if err != nil {
		return nil, err
	}
	return r.Values(), nil
}

type spectrumJSON struct {
	Kind       Kind      `json:"kind"`
	Name       string    `json:"name"`
	Wavelength []float64 `json:"wavelength"`
	Flux       []float64 `json:"flux"`
}

func (s Spectrum) MarshalJSON() ([]byte, error) {
	return json.Marshal(spectrumJSON{
		Kind:       s.kind,
		Name:       s.name,
		Wavelength: s.series.Grid().Values(),
		Flux:       s.series.Values(),
	})
}

// UnmarshalSpectrum decodes the JSON form produced by MarshalJSON.
func UnmarshalSpectrum(b []byte) (*Spectrum, error) {
	var raw spectrumJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	return FromSamples(raw.Kind, raw.Name, raw.Wavelength, raw.Flux)
}

func (s *Spectrum) UnmarshalJSON(b []byte) error {
	parsed, err := UnmarshalSpectrum(b)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}
