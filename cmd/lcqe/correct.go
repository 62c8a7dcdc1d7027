package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/lcqe/pkg/corrector"
	"github.com/charlie0129/lcqe/pkg/tabular"
)

func NewCorrectCommand() *cobra.Command {
	var (
		in     inputFlags
		output string
		plot   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:     "correct EQE_FILE",
		Short:   "Correct one EQE measurement locally",
		GroupID: gCorrection,
		Long: `Correct one EQE measurement for luminescent coupling.

EQE_FILE is a csv or xlsx table: a wavelength column in nm followed by one EQE
column per junction, top junction first, values as fractions in [0, 1.2]. An
optional header row names the junctions.

Coupling is given per junction pair, e.g. '-c 1:2=0.12' when junction 2 absorbs
12% of the light junction 1 emits, or as a square matrix file.

Examples:
  lcqe correct eqe.csv --spectrum g173.csv -c 1:2=0.12
  lcqe correct eqe.xlsx --spectrum led.csv --spectrum-kind custom -c 1:2=0.1 -c 2:3=0.05 -o corrected.xlsx --plot eqe.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}

			set, err := tabular.ReadEQE(args[0])
			if err != nil {
				return fmt.Errorf("failed to read EQE: %w", err)
			}
			m, err := in.loadCoupling(set.Len())
			if err != nil {
				return err
			}
			spectrum, err := in.loadSpectrum(conf, true)
			if err != nil {
				return err
			}

			opts := in.options(cmd, conf)
			log := logrus.WithField("file", args[0])
			log.WithFields(opts.LogrusFields()).Debugf("correcting %s", junctionCount(set))

			r, err := corrector.Correct(cmd.Context(), corrector.Input{
				EQE:      set,
				Coupling: m,
				Spectrum: spectrum,
			}, opts, corrector.WithLogger(log))
			if err != nil {
				r, err = acceptPartial(err, in.bestEffort)
				if err != nil {
					return err
				}
			}

			if asJSON {
				if err := printJSON(cmd.OutOrStdout(), r.Document()); err != nil {
					return err
				}
			} else {
				printReport(cmd, r)
			}
			return writeOutputs(r, output, plot)
		},
	}

	f := cmd.Flags()
	in.register(f)
	f.StringVarP(&output, "output", "o", "", "write the corrected EQE to this csv or xlsx file")
	f.StringVar(&plot, "plot", "", "render measured and corrected EQE to this png, svg or pdf file")
	f.BoolVar(&asJSON, "json", false, "print the result as JSON instead of a report")

	return cmd
}
