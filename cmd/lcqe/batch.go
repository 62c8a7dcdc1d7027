package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/charlie0129/lcqe/pkg/corrector"
	"github.com/charlie0129/lcqe/pkg/errdefs"
	"github.com/charlie0129/lcqe/pkg/flux"
	"github.com/charlie0129/lcqe/pkg/result"
	"github.com/charlie0129/lcqe/pkg/tabular"
)

type batchOutcome struct {
	file   string
	result *result.Set
	err    error
}

func NewBatchCommand() *cobra.Command {
	var (
		in       inputFlags
		outDir   string
		format   string
		plot     bool
		jobs     int
		failFast bool
	)

	cmd := &cobra.Command{
		Use:     "batch EQE_FILE...",
		Short:   "Correct many EQE measurements with the same coupling and spectrum",
		GroupID: gCorrection,
		Long: `Correct many EQE measurements in parallel.

Every file gets the same coupling, spectrum and options. Results are written
to --out-dir as <name>.corrected.<format>, with an optional chart next to them.
By default a failing file is reported and the others still run.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "xlsx" {
				return fmt.Errorf("invalid format %q, must be csv or xlsx", format)
			}
			if jobs < 1 {
				return errdefs.NewValidationError("jobs", "must be at least 1, got %d", jobs)
			}
			if err := os.MkdirAll(outDir, 0755); err != nil {
				return err
			}

			conf, err := loadConfig()
			if err != nil {
				return err
			}
			spectrum, err := in.loadSpectrum(conf, true)
			if err != nil {
				return err
			}
			opts := in.options(cmd, conf)
			c, err := corrector.New(opts)
			if err != nil {
				return err
			}

			outcomes := make([]batchOutcome, len(args))

			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(jobs)
			for i, file := range args {
				g.Go(func() error {
					log := logrus.WithField("file", file)
					r, err := correctFile(ctx, c, &in, file, spectrum, log)
					if err == nil {
						base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
						var plotPath string
						if plot {
							plotPath = filepath.Join(outDir, base+".png")
						}
						err = writeOutputs(r, filepath.Join(outDir, base+".corrected."+format), plotPath)
					}
					if err != nil {
						log.WithError(err).Error("correction failed")
					}

					outcomes[i] = batchOutcome{file: file, result: r, err: err}

					if failFast {
						return err
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			return printBatchSummary(cmd, outcomes)
		},
	}

	f := cmd.Flags()
	in.register(f)
	f.StringVarP(&outDir, "out-dir", "o", ".", "directory for the corrected files")
	f.StringVar(&format, "format", "csv", "output format, csv or xlsx")
	f.BoolVar(&plot, "plot", false, "also render a png chart per file")
	f.IntVarP(&jobs, "jobs", "j", runtime.NumCPU(), "corrections to run at once")
	f.BoolVar(&failFast, "fail-fast", false, "stop at the first failing file")

	return cmd
}

func printBatchSummary(cmd *cobra.Command, outcomes []batchOutcome) error {
	failed := 0
	cmd.Println(bold("Summary:"))
	for _, o := range outcomes {
		if o.err != nil {
			failed++
			cmd.Printf("  %s %s: %s\n", bool2Text(false), o.file, color.RedString("%v", o.err))
			continue
		}
		conv := o.result.Convergence()
		cmd.Printf("  %s %s: %s, limited by %s, %d iterations\n",
			bool2Text(conv.Converged), o.file,
			bold("%.3f mA/cm2", o.result.OperatingCurrent()),
			o.result.Names()[conv.LimitingJunction], conv.Iterations)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(outcomes))
	}
	return nil
}

// correctFile reads and corrects one EQE table.
func correctFile(ctx context.Context, c *corrector.Corrector, in *inputFlags, file string, spectrum *flux.Spectrum, log logrus.FieldLogger) (*result.Set, error) {
	set, err := tabular.ReadEQE(file)
	if err != nil {
		return nil, err
	}
	m, err := in.loadCoupling(set.Len())
	if err != nil {
		return nil, err
	}

	r, err := c.Correct(ctx, corrector.Input{EQE: set, Coupling: m, Spectrum: spectrum}, corrector.WithLogger(log))
	if err != nil {
		return acceptPartial(err, in.bestEffort)
	}
	return r, nil
}
