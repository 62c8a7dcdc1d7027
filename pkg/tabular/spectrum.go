package tabular

import (
	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/lcqe/pkg/flux"
)

const (
	planck       = 6.62607015e-34 // J s
	speedOfLight = 299792458.0    // m/s
)

// Column layout of an ASTM G173 style reference table.
const (
	colWavelength = 0
	colETR        = 1
	colGlobal     = 2
	colDirect     = 3
)

// PhotonFlux converts spectral irradiance in W m^-2 nm^-1 at nm to photon
// flux in photons s^-1 m^-2 nm^-1: E * lambda / (h c).
func PhotonFlux(nm, irradiance float64) float64 {
	return irradiance * nm * 1e-9 / (planck * speedOfLight)
}

// ReadSpectrum loads the spectrum of the given kind. Direct and global read
// a reference irradiance table, custom reads a photon flux table.
func ReadSpectrum(path string, kind flux.Kind) (*flux.Spectrum, error) {
	if kind == flux.KindCustom {
		return ReadCustomSpectrum(path)
	}
	return ReadReferenceSpectrum(path, kind)
}

// ReadReferenceSpectrum loads a reference irradiance table with columns
// wavelength (nm), extraterrestrial, global tilt and direct+circumsolar
// irradiance (W m^-2 nm^-1), picks the column of kind and converts it to
// photon flux.
func ReadReferenceSpectrum(path string, kind flux.Kind) (*flux.Spectrum, error) {
	var col int
	switch kind {
	case flux.KindGlobal:
		col = colGlobal
	case flux.KindDirect:
		col = colDirect
	default:
		return nil, pkgerrors.Errorf("no reference column for spectrum kind %s", kind)
	}

	t, err := Read(path)
	if err != nil {
		return nil, err
	}
	if t.Width() <= col {
		return nil, pkgerrors.Errorf("%s has %d columns, a reference spectrum needs 4", path, t.Width())
	}

	nm := t.Column(colWavelength)
	photons := make([]float64, len(nm))
	for i, e := range t.Column(col) {
		photons[i] = PhotonFlux(nm[i], e)
	}
	s, err := flux.FromSamples(kind, "", nm, photons)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "invalid spectrum in %s", path)
	}
	return s, nil
}

// ReadCustomSpectrum loads a two-column table of wavelength (nm) and photon
// flux (photons s^-1 m^-2 nm^-1).
func ReadCustomSpectrum(path string) (*flux.Spectrum, error) {
	t, err := Read(path)
	if err != nil {
		return nil, err
	}
	if t.Width() != 2 {
		return nil, pkgerrors.Errorf("%s has %d columns, a custom spectrum needs 2", path, t.Width())
	}
	s, err := flux.FromSamples(flux.KindCustom, "", t.Column(0), t.Column(1))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "invalid spectrum in %s", path)
	}
	return s, nil
}
