package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/charlie0129/lcqe/pkg/chart"
	"github.com/charlie0129/lcqe/pkg/client"
	"github.com/charlie0129/lcqe/pkg/config"
	"github.com/charlie0129/lcqe/pkg/corrector"
	"github.com/charlie0129/lcqe/pkg/coupling"
	"github.com/charlie0129/lcqe/pkg/eqe"
	"github.com/charlie0129/lcqe/pkg/errdefs"
	"github.com/charlie0129/lcqe/pkg/flux"
	"github.com/charlie0129/lcqe/pkg/result"
	"github.com/charlie0129/lcqe/pkg/tabular"
)

func parseIntArg(args []string, valueName string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("invalid number of arguments")
	}

	value, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", valueName, err)
	}

	return value, nil
}

func parseFloatArg(args []string, valueName string) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("invalid number of arguments")
	}

	value, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", valueName, err)
	}

	return value, nil
}

// inputFlags are the flags shared by every command that builds a correction.
type inputFlags struct {
	spectrum      string
	spectrumKind  string
	coupling      []string
	tolerance     float64
	maxIterations int
	minSpan       float64
	bestEffort    bool
}

func (f *inputFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.spectrum, "spectrum", "", "spectrum file (csv or xlsx); defaults to spectrumFile from the config")
	fs.StringVar(&f.spectrumKind, "spectrum-kind", "", "direct, global or custom; defaults to spectrumKind from the config")
	fs.StringArrayVarP(&f.coupling, "coupling", "c", nil,
		"coupling coefficient as FROM:TO=VALUE with 1-based junction numbers, top first (repeatable), or a matrix file")
	fs.Float64Var(&f.tolerance, "tolerance", corrector.DefaultTolerance, "convergence tolerance in mA/cm2")
	fs.IntVar(&f.maxIterations, "max-iterations", corrector.DefaultMaxIterations, "iteration cap")
	fs.Float64Var(&f.minSpan, "min-span", 0, "minimum wavelength overlap in nm between EQE curves and the spectrum")
	fs.BoolVar(&f.bestEffort, "best-effort", false, "accept the last iterate when the correction does not converge")
}

// options resolves correction options: flags set on the command line win
// over the config file, which wins over the defaults.
func (f *inputFlags) options(cmd *cobra.Command, conf config.Config) corrector.Options {
	opts := conf.CorrectorOptions()
	fs := cmd.Flags()
	if fs.Changed("tolerance") {
		opts.Tolerance = f.tolerance
	}
	if fs.Changed("max-iterations") {
		opts.MaxIterations = f.maxIterations
	}
	if fs.Changed("min-span") {
		opts.MinSpan = f.minSpan
	}
	return opts
}

// loadSpectrum reads the spectrum named by the flags or, failing that, by
// the config. required=false returns nil when neither names one.
func (f *inputFlags) loadSpectrum(conf config.Config, required bool) (*flux.Spectrum, error) {
	path := f.spectrum
	kind := conf.SpectrumKind()
	if f.spectrumKind != "" {
		k, err := flux.ParseKind(f.spectrumKind)
		if err != nil {
			return nil, err
		}
		kind = k
	}
	if path == "" && required {
		path = conf.SpectrumFile()
	}
	if path == "" {
		if required {
			return nil, errdefs.NewValidationError("spectrum", "no spectrum given; pass --spectrum or set spectrumFile in %s", configPath)
		}
		return nil, nil
	}

	s, err := tabular.ReadSpectrum(path, kind)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"file":   path,
		"kind":   kind.String(),
		"points": s.Grid().Len(),
	}).Debug("spectrum loaded")
	return s, nil
}

// loadCoupling builds the coupling matrix for n junctions. No flags means no
// coupling.
func (f *inputFlags) loadCoupling(n int) (*coupling.Matrix, error) {
	if len(f.coupling) == 0 {
		return nil, nil
	}
	var (
		m   *coupling.Matrix
		err error
	)
	if len(f.coupling) == 1 && !strings.Contains(f.coupling[0], "=") {
		m, err = tabular.ReadCoupling(f.coupling[0])
	} else {
		m, err = parseCoupling(f.coupling, n)
	}
	if err != nil {
		return nil, err
	}
	if m.IsZero() {
		logrus.WithField("coupling", f.coupling).Warn("all coupling coefficients are zero, the corrected EQE will equal the measured EQE")
	}
	return m, nil
}

// parseCoupling parses FROM:TO=VALUE entries with 1-based junction numbers.
func parseCoupling(specs []string, n int) (*coupling.Matrix, error) {
	rows := coupling.Zero(n).Rows()
	for _, spec := range specs {
		pair, value, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, errdefs.NewValidationError("coupling", "%q is not FROM:TO=VALUE", spec)
		}
		from, to, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, errdefs.NewValidationError("coupling", "%q is not FROM:TO=VALUE", spec)
		}
		i, err := strconv.Atoi(strings.TrimSpace(from))
		if err != nil {
			return nil, errdefs.NewValidationError("coupling", "bad junction %q in %q", from, spec)
		}
		j, err := strconv.Atoi(strings.TrimSpace(to))
		if err != nil {
			return nil, errdefs.NewValidationError("coupling", "bad junction %q in %q", to, spec)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, errdefs.NewValidationError("coupling", "bad coefficient %q in %q", value, spec)
		}
		if i < 1 || i > n || j < 1 || j > n {
			return nil, errdefs.NewInvalidCouplingError(i-1, j-1, "junction out of range 1..%d in %q", n, spec)
		}
		rows[i-1][j-1] = v
	}
	return coupling.New(rows)
}

// loadConfig reads the config file. A missing file yields the defaults.
func loadConfig() (*config.File, error) {
	return config.NewFile(configPath)
}

// writeOutputs writes the corrected table and the chart, when asked for.
func writeOutputs(r *result.Set, output, plot string) error {
	if output != "" {
		if err := tabular.WriteFile(output, r); err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}
		logrus.Infof("corrected EQE written to %s", output)
	}
	if plot != "" {
		if err := chart.RenderEQE(r, plot); err != nil {
			return fmt.Errorf("failed to render %s: %w", plot, err)
		}
		logrus.Infof("chart written to %s", plot)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printReport prints the per-junction currents and the convergence record.
func printReport(cmd *cobra.Command, r *result.Set) {
	conv := r.Convergence()
	reports := r.Mismatch()

	width := 0
	for _, j := range reports {
		width = max(width, len(j.Name))
	}

	cmd.Println(bold("Junction currents (mA/cm2):"))
	for _, j := range reports {
		line := fmt.Sprintf("  %-*s  measured %s  corrected %s", width, j.Name,
			bold("%7.3f", j.MeasuredCurrent), bold("%7.3f", j.Current))
		if d := j.Current - j.MeasuredCurrent; j.MeasuredCurrent > 0 && d != 0 {
			line += "  " + color.YellowString("%+.2f%%", d/j.MeasuredCurrent*100)
		}
		if j.Limiting {
			line += "  " + color.New(color.Bold, color.FgRed).Sprint("limiting")
		} else {
			line += fmt.Sprintf("  excess %s", bold("%.3f", j.Excess))
		}
		cmd.Println(line)
	}
	cmd.Println()

	cmd.Printf("Operating current: %s (limited by %s)\n",
		bold("%.3f mA/cm2", r.OperatingCurrent()), reports[conv.LimitingJunction].Name)
	cmd.Printf("Converged: %s after %d iterations, final delta %.3g mA/cm2\n",
		bool2Text(conv.Converged), conv.Iterations, conv.FinalDelta)
}

// acceptPartial turns a ConvergenceError into its partial result when
// bestEffort is set.
func acceptPartial(err error, bestEffort bool) (*result.Set, error) {
	partial := partialOf(err)
	if !bestEffort || partial == nil {
		return nil, err
	}
	logrus.WithError(err).Warn("using the last iterate")
	return partial, nil
}

// partialOf returns the last iterate carried by a local or remote
// ConvergenceError, or nil.
func partialOf(err error) *result.Set {
	var ce *corrector.ConvergenceError
	if errors.As(err, &ce) {
		return ce.Partial
	}
	var ae *client.APIError
	if errors.As(err, &ae) {
		return ae.Partial
	}
	return nil
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

// junctionCount is a helper for commands that print a short summary.
func junctionCount(set *eqe.Set) string {
	if set.Len() == 1 {
		return "1 junction"
	}
	return fmt.Sprintf("%d junctions", set.Len())
}
