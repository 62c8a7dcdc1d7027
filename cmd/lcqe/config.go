package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/lcqe/pkg/config"
	"github.com/charlie0129/lcqe/pkg/flux"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Show or change the daemon configuration",
		GroupID:     gDaemon,
		Annotations: map[string]string{annotationDaemon: "true"},
		Long: `Show or change the daemon configuration.

Changes are saved to the daemon's config file. Values set through LCQE_*
environment variables on the daemon are replaced until the next restart.`,
	}

	var asJSON bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := apiClient.GetConfig(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), raw)
			}

			conf := config.NewFileFromConfig(raw, "")
			cmd.Println(bold("Correction:"))
			cmd.Printf("  Tolerance: %s\n", bold("%g mA/cm2", conf.Tolerance()))
			cmd.Printf("  Max iterations: %s\n", bold("%d", conf.MaxIterations()))
			cmd.Printf("  Min wavelength overlap: %s\n", bold("%g nm", conf.MinSpan()))
			cmd.Println()
			cmd.Println(bold("Spectrum:"))
			cmd.Printf("  Kind: %s\n", bold("%s", conf.SpectrumKind()))
			if f := conf.SpectrumFile(); f != "" {
				cmd.Printf("  File: %s\n", bold("%s", f))
			} else {
				cmd.Printf("  File: %s (requests must carry a spectrum)\n", bool2Text(false))
			}
			cmd.Println()
			cmd.Println(bold("Daemon:"))
			cmd.Printf("  Session idle timeout: %s\n", bold("%s", conf.SessionIdleTimeout()))
			cmd.Printf("  Prune schedule: %s\n", bold("%s", conf.PruneSchedule()))
			cmd.Printf("  Allow non-root users to access the daemon: %s\n", bool2Text(conf.AllowNonRootAccess()))
			return nil
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "print as JSON")

	tolerance := &cobra.Command{
		Use:   "tolerance VALUE",
		Short: "Set the convergence tolerance in mA/cm2",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseFloatArg(args, "tolerance")
			if err != nil {
				return err
			}
			if err := apiClient.SetTolerance(cmd.Context(), v); err != nil {
				return fmt.Errorf("failed to set tolerance: %w", err)
			}
			logrus.Infof("successfully set tolerance to %g mA/cm2", v)
			return nil
		},
	}

	maxIterations := &cobra.Command{
		Use:   "max-iterations N",
		Short: "Set the iteration cap",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseIntArg(args, "max iterations")
			if err != nil {
				return err
			}
			if err := apiClient.SetMaxIterations(cmd.Context(), v); err != nil {
				return fmt.Errorf("failed to set max iterations: %w", err)
			}
			logrus.Infof("successfully set max iterations to %d", v)
			return nil
		},
	}

	var file string
	spectrumKind := &cobra.Command{
		Use:   "spectrum-kind KIND",
		Short: "Set the spectrum kind (direct, global or custom) and optionally its file",
		Long: `Set the spectrum kind and optionally its file.

The daemon loads the spectrum before saving, so a file it cannot read leaves
the configuration unchanged. The file path is resolved on the daemon side.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := flux.ParseKind(args[0])
			if err != nil {
				return err
			}
			if err := apiClient.SetSpectrumKind(cmd.Context(), kind, file); err != nil {
				return fmt.Errorf("failed to set spectrum kind: %w", err)
			}
			logrus.Infof("successfully set spectrum kind to %s", kind)
			return nil
		},
	}
	spectrumKind.Flags().StringVar(&file, "file", "", "spectrum file, csv or xlsx")

	cmd.AddCommand(show, tolerance, maxIterations, spectrumKind)
	return cmd
}
