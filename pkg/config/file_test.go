package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/lcqe/pkg/corrector"
	"github.com/charlie0129/lcqe/pkg/errdefs"
	"github.com/charlie0129/lcqe/pkg/flux"
)

func TestDefaults(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, corrector.DefaultOptions(), f.CorrectorOptions())
	assert.Equal(t, flux.KindGlobal, f.SpectrumKind())
	assert.Equal(t, "", f.SpectrumFile())
	assert.False(t, f.AllowNonRootAccess())
	assert.Equal(t, 30*time.Minute, f.SessionIdleTimeout())
	assert.Equal(t, "@every 10m", f.PruneSchedule())
}

func TestEmptyFileYieldsDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "lcqe.json")
	require.NoError(t, os.WriteFile(p, []byte("  \n"), 0644))

	f, err := NewFile(p)
	require.NoError(t, err)
	assert.Equal(t, corrector.DefaultMaxIterations, f.MaxIterations())
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "lcqe.json", content: `{"tolerance": 0.001, "maxIterations": 50, "spectrumKind": "direct"}`},
		{name: "lcqe.toml", content: "tolerance = 0.001\nmaxIterations = 50\nspectrumKind = \"direct\"\n"},
		{name: "lcqe.yaml", content: "tolerance: 0.001\nmaxIterations: 50\nspectrumKind: direct\n"},
		{name: "lcqe.yml", content: "tolerance: 0.001\nmaxIterations: 50\nspectrumKind: direct\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), tt.name)
			require.NoError(t, os.WriteFile(p, []byte(tt.content), 0644))

			f, err := NewFile(p)
			require.NoError(t, err)
			assert.Equal(t, 0.001, f.Tolerance())
			assert.Equal(t, 50, f.MaxIterations())
			assert.Equal(t, flux.KindDirect, f.SpectrumKind())
			// Unset keys keep their defaults.
			assert.Equal(t, 0.0, f.MinSpan())
		})
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		content string
		field   string
	}{
		{content: `{"tolerance": -1}`, field: "tolerance"},
		{content: `{"maxIterations": 0}`, field: "maxIterations"},
		{content: `{"spectrumKind": "am0"}`, field: "spectrumKind"},
		{content: `{"minSpan": -5}`, field: "minSpan"},
		{content: `{"pruneSchedule": "every ten minutes"}`, field: "pruneSchedule"},
		{content: `{"pruneSchedule": ""}`, field: "pruneSchedule"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "lcqe.json")
			require.NoError(t, os.WriteFile(p, []byte(tt.content), 0644))

			_, err := NewFile(p)
			var ve *errdefs.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, ext := range []string{".json", ".toml", ".yaml"} {
		t.Run(ext, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "lcqe"+ext)
			f, err := NewFile(p)
			require.NoError(t, err)

			require.NoError(t, f.SetTolerance(5e-5))
			require.NoError(t, f.SetMaxIterations(250))
			f.SetSpectrumKind(flux.KindCustom)
			f.SetSpectrumFile("/data/led.csv")
			require.NoError(t, f.Save())

			back, err := NewFile(p)
			require.NoError(t, err)
			assert.Equal(t, 5e-5, back.Tolerance())
			assert.Equal(t, 250, back.MaxIterations())
			assert.Equal(t, flux.KindCustom, back.SpectrumKind())
			assert.Equal(t, "/data/led.csv", back.SpectrumFile())
		})
	}
}

func TestSettersValidate(t *testing.T) {
	f := NewFileFromConfig(nil, "")

	assert.ErrorIs(t, f.SetTolerance(0), errdefs.ErrValidation)
	assert.ErrorIs(t, f.SetMaxIterations(-3), errdefs.ErrValidation)
	assert.ErrorIs(t, f.SetMinSpan(-1), errdefs.ErrValidation)
	assert.Equal(t, corrector.DefaultTolerance, f.Tolerance())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("LCQE_TOLERANCE", "0.01")
	t.Setenv("LCQE_SPECTRUM_KIND", "custom")

	p := filepath.Join(t.TempDir(), "lcqe.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"tolerance": 0.001, "maxIterations": 7}`), 0644))

	f, err := NewFile(p)
	require.NoError(t, err)
	assert.Equal(t, 0.01, f.Tolerance())
	assert.Equal(t, 7, f.MaxIterations())
	assert.Equal(t, flux.KindCustom, f.SpectrumKind())

	// An explicit set wins over the environment, and the environment never
	// leaks into the saved file.
	require.NoError(t, f.SetMaxIterations(9))
	require.NoError(t, f.Save())
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "spectrumKind")
	assert.Contains(t, string(b), `"tolerance": 0.001`)

	require.NoError(t, f.SetTolerance(0.5))
	assert.Equal(t, 0.5, f.Tolerance())
}

func TestEnvironmentValidated(t *testing.T) {
	t.Setenv("LCQE_MAX_ITERATIONS", "0")
	_, err := NewFile(filepath.Join(t.TempDir(), "lcqe.json"))
	assert.ErrorIs(t, err, errdefs.ErrValidation)
}

func TestRawFromConfig(t *testing.T) {
	f := NewFileFromConfig(&RawFileConfig{}, "")
	raw, err := NewRawFileConfigFromConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 30, *raw.SessionIdleMinutes)
	assert.Equal(t, "global", *raw.SpectrumKind)

	fields := f.LogrusFields()
	assert.Equal(t, 100, fields["maxIterations"])
}
