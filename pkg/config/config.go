package config

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/lcqe/pkg/corrector"
	"github.com/charlie0129/lcqe/pkg/flux"
)

type Config interface {
	Tolerance() float64
	MaxIterations() int
	SpectrumKind() flux.Kind
	SpectrumFile() string
	MinSpan() float64
	AllowNonRootAccess() bool
	SessionIdleTimeout() time.Duration
	PruneSchedule() string

	SetTolerance(float64) error
	SetMaxIterations(int) error
	SetSpectrumKind(flux.Kind)
	SetSpectrumFile(string)
	SetMinSpan(float64) error
	SetAllowNonRootAccess(bool)

	// CorrectorOptions assembles the options of one correction.
	CorrectorOptions() corrector.Options

	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
