package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mediaworker/internal/config"
	"mediaworker/internal/jobs"
	"mediaworker/internal/queue"
	"mediaworker/internal/redisqueue"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var (
		roleFlag string
		idFlag   string
		deadline time.Duration
	)

	cmd := &cobra.Command{
		Use:   "enqueue <media-ref>...",
		Short: "Add media references to the job source",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			roleValue := strings.TrimSpace(roleFlag)
			if roleValue == "" {
				roleValue = cfg.Worker.Role
			}
			role, err := jobs.ParseRole(roleValue)
			if err != nil {
				return err
			}
			if idFlag != "" && len(args) > 1 {
				return fmt.Errorf("--id can only be used with a single media reference")
			}
			var due *time.Time
			if deadline > 0 {
				value := time.Now().Add(deadline).UTC()
				due = &value
			}

			out := cmd.OutOrStdout()
			switch cfg.Source.Backend {
			case config.BackendRedis:
				q, err := redisqueue.Open(cmd.Context(), cfg)
				if err != nil {
					return fmt.Errorf("open redis job source: %w", err)
				}
				defer q.Close()
				if idFlag != "" {
					return fmt.Errorf("--id is not supported with the redis job source")
				}
				for _, ref := range args {
					var at time.Time
					if due != nil {
						at = *due
					}
					job, err := q.Enqueue(cmd.Context(), ref, role, at)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Enqueued %s job %s for %s\n", role, job.ID, ref)
				}
				return nil
			default:
				return ctx.withStore(func(store *queue.Store) error {
					for _, ref := range args {
						id := strings.TrimSpace(idFlag)
						if id == "" {
							id = uuid.NewString()
						}
						item, err := store.Enqueue(cmd.Context(), queue.EnqueueRequest{
							ID:       id,
							MediaRef: ref,
							Role:     role,
							Deadline: due,
						})
						if err != nil {
							return err
						}
						fmt.Fprintf(out, "Enqueued %s job %s for %s\n", role, item.ID, ref)
					}
					return nil
				})
			}
		},
	}

	cmd.Flags().StringVarP(&roleFlag, "role", "r", "", "Job role (defaults to worker.role)")
	cmd.Flags().StringVar(&idFlag, "id", "", "Explicit job id (single media reference only)")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "Relative job deadline, e.g. 10m")
	return cmd
}
