package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/lcqe/pkg/client"
	"github.com/charlie0129/lcqe/pkg/events"
	"github.com/charlie0129/lcqe/pkg/result"
	"github.com/charlie0129/lcqe/pkg/tabular"
	"github.com/charlie0129/lcqe/pkg/utils/ptr"
)

func NewSubmitCommand() *cobra.Command {
	var (
		in        inputFlags
		sessionID string
		output    string
		plot      string
		asJSON    bool
		watch     bool
	)

	cmd := &cobra.Command{
		Use:         "submit EQE_FILE",
		Short:       "Correct one EQE measurement on the daemon",
		GroupID:     gDaemon,
		Annotations: map[string]string{annotationDaemon: "true"},
		Long: `Correct one EQE measurement on the daemon.

Flags are the same as for 'lcqe correct'. Without --spectrum the daemon uses its
configured spectrum. With --session the request becomes the latest request of
that session: an earlier request of the same session still running is
cancelled, and the daemon keeps the result for 'lcqe session get'.`,
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
			spectrum, err := in.loadSpectrum(conf, false)
			if err != nil {
				return err
			}

			req := client.Request(set, m, spectrum)
			fs := cmd.Flags()
			if fs.Changed("tolerance") {
				req.Tolerance = ptr.To(in.tolerance)
			}
			if fs.Changed("max-iterations") {
				req.MaxIterations = ptr.To(in.maxIterations)
			}
			if fs.Changed("min-span") {
				req.MinSpan = ptr.To(in.minSpan)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if watch {
				if err := watchProgress(ctx, sessionID); err != nil {
					return err
				}
			}

			var r *result.Set
			var requestID string
			if sessionID == "" {
				r, requestID, err = apiClient.Correct(ctx, req)
			} else {
				r, requestID, err = apiClient.CorrectSession(ctx, sessionID, req)
			}
			if err != nil {
				r, err = acceptPartial(err, in.bestEffort)
				if err != nil {
					return err
				}
			}
			logrus.WithFields(logrus.Fields{
				"request": requestID,
				"session": sessionID,
			}).Debug("correction finished")

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
	f.StringVarP(&sessionID, "session", "s", "", "run as the latest request of this session")
	f.StringVarP(&output, "output", "o", "", "write the corrected EQE to this csv or xlsx file")
	f.StringVar(&plot, "plot", "", "render measured and corrected EQE to this png, svg or pdf file")
	f.BoolVar(&asJSON, "json", false, "print the result as JSON instead of a report")
	f.BoolVarP(&watch, "watch", "w", false, "log iteration progress while waiting")

	return cmd
}

// watchProgress logs correction.progress events until ctx is done. Only
// events of sessionID are logged when it is set.
func watchProgress(ctx context.Context, sessionID string) error {
	ch, err := apiClient.Events(ctx)
	if err != nil {
		return err
	}
	go func() {
		for ev := range ch {
			if ev.Name != events.CorrectionProgress {
				continue
			}
			p, err := events.DecodeAs[events.CorrectionProgressEvent](ev)
			if err != nil || (sessionID != "" && p.SessionID != sessionID) {
				continue
			}
			logrus.WithFields(logrus.Fields{
				"request":  p.RequestID,
				"currents": p.Currents,
			}).Infof("iteration %d: delta %.3g mA/cm2", p.Iteration, p.Delta)
		}
	}()
	return nil
}
