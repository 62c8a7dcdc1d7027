package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func NewEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "events",
		Short:       "Stream daemon events",
		GroupID:     gDaemon,
		Annotations: map[string]string{annotationDaemon: "true"},
		Long: `Stream daemon events as JSON lines until interrupted.

Every line is {"event": NAME, "data": PAYLOAD}, where NAME is one of
correction.progress, correction.done or session.superseded.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ch, err := apiClient.Events(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for ev := range ch {
				line := struct {
					Event string          `json:"event"`
					Data  json.RawMessage `json:"data"`
				}{ev.Name, ev.Data}
				if err := enc.Encode(line); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
