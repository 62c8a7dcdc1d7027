package main

import (
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "session",
		Short:       "Inspect and delete daemon sessions",
		GroupID:     gDaemon,
		Annotations: map[string]string{annotationDaemon: "true"},
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessions, err := apiClient.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), sessions)
			}
			if len(sessions) == 0 {
				cmd.Println("No sessions.")
				return nil
			}
			for _, s := range sessions {
				state := "idle"
				if s.Running {
					state = color.GreenString("running")
				}
				cmd.Printf("%s  runs %d  %s  result %s  updated %s\n",
					bold("%s", s.ID), s.Runs, state, bool2Text(s.HasResult),
					s.Updated.Local().Format(time.DateTime))
				if s.LastError != "" {
					cmd.Printf("  last error: %s\n", color.RedString(s.LastError))
				}
			}
			return nil
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print as JSON")

	var (
		output    string
		plot      string
		getAsJSON bool
	)
	get := &cobra.Command{
		Use:   "get SESSION",
		Short: "Show the latest result of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := apiClient.SessionResult(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if getAsJSON {
				if err := printJSON(cmd.OutOrStdout(), r.Document()); err != nil {
					return err
				}
			} else {
				printReport(cmd, r)
			}
			return writeOutputs(r, output, plot)
		},
	}
	gf := get.Flags()
	gf.StringVarP(&output, "output", "o", "", "write the corrected EQE to this csv or xlsx file")
	gf.StringVar(&plot, "plot", "", "render measured and corrected EQE to this png, svg or pdf file")
	gf.BoolVar(&getAsJSON, "json", false, "print the result as JSON instead of a report")

	del := &cobra.Command{
		Use:   "delete SESSION",
		Short: "Delete a session, cancelling its running request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient.DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			logrus.Infof("successfully deleted session %s", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, get, del)
	return cmd
}
