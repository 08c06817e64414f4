package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mediaworker/internal/config"
	"mediaworker/internal/logging"
	"mediaworker/internal/queue"
	"mediaworker/internal/results"
	"mediaworker/internal/sink"
)

func newResultCommand(ctx *commandContext) *cobra.Command {
	resultCmd := &cobra.Command{
		Use:   "result",
		Short: "Inspect stored job results",
	}
	resultCmd.AddCommand(newResultShowCommand(ctx))
	return resultCmd
}

func newResultShowCommand(ctx *commandContext) *cobra.Command {
	var summary bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Print the stored result document for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var db *queue.Store
			if cfg.Sink.Store == config.StoreSQLite {
				db, err = queue.Open(cfg)
				if err != nil {
					return fmt.Errorf("open queue: %w", err)
				}
				defer db.Close()
			}
			store, err := sink.OpenStore(cmd.Context(), cfg, db, logging.NewNop())
			if err != nil {
				return fmt.Errorf("open result store: %w", err)
			}
			defer store.Close()

			jobID := strings.TrimSpace(args[0])
			doc, err := store.Load(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			if doc == nil {
				return fmt.Errorf("no result stored for job %s", jobID)
			}

			out := cmd.OutOrStdout()
			if !summary {
				var pretty bytes.Buffer
				if err := json.Indent(&pretty, doc, "", "  "); err != nil {
					return fmt.Errorf("format result: %w", err)
				}
				pretty.WriteByte('\n')
				_, err := out.Write(pretty.Bytes())
				return err
			}

			result, err := results.Decode(doc)
			if err != nil {
				return err
			}
			rows := [][]string{
				{"Job", result.JobID},
				{"Role", result.Role},
				{"Media", result.MediaRef},
				{"Status", string(result.Status)},
				{"Worker", result.WorkerID},
				{"Attempts", fmt.Sprintf("%d", result.Attempts)},
				{"Completed", result.CompletedAt.Format(time.RFC3339)},
			}
			if result.Error != nil {
				rows = append(rows, []string{"Error", fmt.Sprintf("%s: %s", result.Error.Kind, result.Error.Detail)})
			}
			fmt.Fprint(out, renderTable(out, []string{"Field", "Value"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&summary, "summary", false, "Print a short summary instead of the full document")
	return cmd
}
