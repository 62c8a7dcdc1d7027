package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/lcqe/pkg/client"
	"github.com/charlie0129/lcqe/pkg/errdefs"
	"github.com/charlie0129/lcqe/pkg/version"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/lcqe.sock"
	configPath     = "/etc/lcqe.json"
)

var (
	gCorrection   = "Correction:"
	gDaemon       = "Daemon:"
	commandGroups = []string{
		gCorrection,
		gDaemon,
	}
)

// annotationDaemon marks commands that talk to the daemon.
const annotationDaemon = "lcqe/daemon"

var apiClient *client.Client

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	switch {
	case errors.Is(err, client.ErrDaemonNotRunning):
		fmt.Fprintln(os.Stderr, "\nError: lcqe daemon is not running")
		fmt.Fprintln(os.Stderr, "Start it with 'lcqe daemon', or pass --daemon-socket if it listens elsewhere.")
	case errors.Is(err, client.ErrPermissionDenied):
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or restart the daemon with the '--always-allow-non-root-access' flag")
	case errors.Is(err, errdefs.ErrConvergence):
		fmt.Fprintln(os.Stderr, "\nThe correction did not converge. Raise --max-iterations or --tolerance,")
		fmt.Fprintln(os.Stderr, "or pass --best-effort to accept the last iterate.")
	case errors.Is(err, errdefs.ErrGridMismatch):
		fmt.Fprintln(os.Stderr, "\nThe EQE and spectrum wavelength ranges do not overlap enough.")
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lcqe",
		Short: "lcqe corrects multi-junction EQE measurements for luminescent coupling",
		Long: `lcqe corrects multi-junction solar cell EQE measurements for luminescent coupling.

In a stacked cell, an upper junction that is over-generating re-emits light that a
lower junction absorbs. The measured EQE of the lower junction is then too high.
lcqe removes that contribution with a fixed-point iteration over the per-junction
photocurrents under a reference spectrum.

Corrections run locally ('lcqe correct', 'lcqe batch') or through a long-running
daemon ('lcqe daemon', 'lcqe submit').`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			apiClient = client.NewClient(unixSocketPath)
			if !talksToDaemon(cmd) {
				return nil
			}

			if clientVersion, daemonVersion, err := getVersion(cmd.Context()); err == nil {
				if daemonVersion != clientVersion {
					logrus.WithFields(logrus.Fields{
						"clientVersion": clientVersion,
						"daemonVersion": daemonVersion,
					}).Warn("Version mismatch between client and daemon. Results may differ from a local 'lcqe correct'.")
				}
			} else if errors.Is(err, client.ErrNotFound) {
				logrus.Error("lcqe daemon is too old to report its version.")
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path (json, toml or yaml)")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "lcqe daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewVersionCommand(),
		NewCorrectCommand(),
		NewBatchCommand(),
		NewDaemonCommand(),
		NewSubmitCommand(),
		NewSessionCommand(),
		NewEventsCommand(),
		NewConfigCommand(),
	)

	return cmd
}

func talksToDaemon(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationDaemon] == "true" {
			return true
		}
	}
	return false
}

func getVersion(ctx context.Context) (clientVersion string, daemonVersion string, err error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	daemonVersion, err = apiClient.GetVersion(ctx)
	if err != nil {
		return version.Version, "", err
	}
	return version.Version, daemonVersion, nil
}
