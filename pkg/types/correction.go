package types

import (
	"github.com/charlie0129/lcqe/pkg/flux"
	"github.com/charlie0129/lcqe/pkg/result"
)

// CorrectRequest is the body of POST /correct and POST /sessions/:id/correct.
// This struct is shared between the daemon and client packages.
type CorrectRequest struct {
	// Wavelength is the grid in nm shared by every EQE curve.
	Wavelength []float64 `json:"wavelength" binding:"required,min=2"`
	// Names optionally names the junctions, top first.
	Names []string `json:"names,omitempty"`
	// EQE holds one curve per junction, top first.
	EQE [][]float64 `json:"eqe" binding:"required,min=1"`
	// Coupling is the n x n coupling matrix. Omitted means no coupling.
	Coupling [][]float64 `json:"coupling,omitempty"`
	// Spectrum overrides the daemon's configured spectrum.
	Spectrum *flux.Spectrum `json:"spectrum,omitempty"`

	Tolerance     *float64 `json:"tolerance,omitempty" binding:"omitempty,gt=0"`
	MaxIterations *int     `json:"maxIterations,omitempty" binding:"omitempty,min=1,max=100000"`
	MinSpan       *float64 `json:"minSpan,omitempty" binding:"omitempty,gte=0"`
}

// ErrorResponse is returned with every non-2xx status. Kind is one of
// GridMismatchError, ValidationError, InvalidCouplingError, ConvergenceError,
// Superseded, NotFound or internal.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	// Partial is the last iterate of a correction that did not converge.
	Partial *result.Document `json:"partial,omitempty"`
}

// CorrectResponse wraps a correction result with the IDs it was run under.
type CorrectResponse struct {
	RequestID string          `json:"requestId"`
	SessionID string          `json:"sessionId,omitempty"`
	Result    result.Document `json:"result"`
}

// SpectrumKindUpdate is the body of PUT /spectrum-kind.
type SpectrumKindUpdate struct {
	Kind flux.Kind `json:"kind"`
	// File is the spectrum table to load for this kind. Empty keeps the
	// current file.
	File string `json:"file,omitempty"`
}
