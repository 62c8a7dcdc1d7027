package corrector

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/lcqe/pkg/errdefs"
)

const (
	// DefaultTolerance is the convergence threshold on the max per-iteration
	// current change, in mA/cm^2.
	DefaultTolerance = 1e-4
	// DefaultMaxIterations caps the fixed-point iteration.
	DefaultMaxIterations = 100
)

// Options controls one correction.
type Options struct {
	Tolerance     float64
	MaxIterations int
	// MinSpan is the minimum width in nm of the range shared by the EQE
	// grid and the spectrum.
	MinSpan float64
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Tolerance:     DefaultTolerance,
		MaxIterations: DefaultMaxIterations,
	}
}

// Validate rejects options that cannot terminate or compare.
func (o Options) Validate() error {
	if math.IsNaN(o.Tolerance) || o.Tolerance <= 0 {
		return errdefs.NewValidationError("tolerance", "must be positive, got %g", o.Tolerance)
	}
	if o.MaxIterations < 1 {
		return errdefs.NewValidationError("maxIterations", "must be at least 1, got %d", o.MaxIterations)
	}
	if math.IsNaN(o.MinSpan) || o.MinSpan < 0 {
		return errdefs.NewValidationError("minSpan", "must not be negative, got %g", o.MinSpan)
	}
	return nil
}

func (o Options) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"tolerance":     o.Tolerance,
		"maxIterations": o.MaxIterations,
		"minSpan":       o.MinSpan,
	}
}

// Progress is reported after every iteration.
type Progress struct {
	Iteration        int       `json:"iteration"`
	Delta            float64   `json:"delta"`
	Currents         []float64 `json:"currents"`
	LimitingJunction int       `json:"limitingJunction"`
}

// ProgressFunc receives per-iteration state. It runs on the correcting
// goroutine and must not block.
type ProgressFunc func(Progress)

type settings struct {
	progress ProgressFunc
	logger   logrus.FieldLogger
}

// Option customizes a Correct call.
type Option func(*settings)

// WithProgress registers fn to be called after every iteration.
func WithProgress(fn ProgressFunc) Option {
	return func(s *settings) { s.progress = fn }
}

// WithLogger replaces the standard logrus logger for iteration traces.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *settings) { s.logger = l }
}
