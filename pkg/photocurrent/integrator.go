// Package photocurrent converts an EQE curve and a photon flux spectrum into a
// short-circuit current density.
package photocurrent

import (
	"gonum.org/v1/gonum/integrate"

	"github.com/charlie0129/lcqe/pkg/errdefs"
	"github.com/charlie0129/lcqe/pkg/flux"
	"github.com/charlie0129/lcqe/pkg/spectral"
)

const (
	// ElementaryCharge in coulombs.
	ElementaryCharge = 1.602176634e-19

	// amPerM2ToMAPerCm2 converts A/m^2 to mA/cm^2: 1e3 mA/A over 1e4 cm^2/m^2.
	amPerM2ToMAPerCm2 = 0.1
)

// Integrator evaluates J = q * integral(EQE * flux, dlambda) on a fixed grid.
// Flux is sampled once; Integrate can then be called repeatedly. An
// Integrator is not safe for concurrent use.
type Integrator struct {
	nm       []float64
	flux     []float64
	integral []float64 // scratch, len(nm)
}

// NewIntegrator pairs grid with flux sampled on it.
func NewIntegrator(grid spectral.Grid, fluxSamples []float64) (*Integrator, error) {
	if len(fluxSamples) != grid.Len() {
		return nil, errdefs.NewValidationError("spectrum", "got %d flux samples for %d wavelengths", len(fluxSamples), grid.Len())
	}
	f := make([]float64, len(fluxSamples))
	copy(f, fluxSamples)
	return &Integrator{
		nm:       grid.Values(),
		flux:     f,
		integral: make([]float64, grid.Len()),
	}, nil
}

// ForSpectrum samples spectrum on grid and builds an Integrator.
func ForSpectrum(grid spectral.Grid, spectrum *flux.Spectrum) (*Integrator, error) {
	samples, err := spectrum.Sample(grid)
	if err != nil {
		return nil, err
	}
	return NewIntegrator(grid, samples)
}

// Integrate returns the current density in mA/cm^2 for eqe sampled on the
// integrator's grid. The trapezoid rule uses the actual wavelength deltas, so
// non-uniform grids are handled.
func (in *Integrator) Integrate(eqe []float64) float64 {
	for i := range in.integral {
		in.integral[i] = eqe[i] * in.flux[i]
	}
	// photons s^-1 m^-2, then A/m^2, then mA/cm^2.
	photons := integrate.Trapezoidal(in.nm, in.integral)
	return ElementaryCharge * photons * amPerM2ToMAPerCm2
}

// Len is the number of grid points.
func (in *Integrator) Len() int { return len(in.nm) }

// CurrentDensity is the one-shot form: the current density in mA/cm^2 of
// curve under spectrum. The spectrum must cover the curve's grid.
func CurrentDensity(curve spectral.Series, spectrum *flux.Spectrum) (float64, error) {
	in, err := ForSpectrum(curve.Grid(), spectrum)
	if err != nil {
		return 0, err
	}
	return in.Integrate(curve.Values()), nil
}
