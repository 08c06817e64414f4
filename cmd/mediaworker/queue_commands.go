package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mediaworker/internal/config"
	"mediaworker/internal/jobs"
	"mediaworker/internal/queue"
	"mediaworker/internal/redisqueue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]queue.Status, 0, len(statusFlags))
			for _, value := range statusFlags {
				status, ok := queue.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				statuses = append(statuses, status)
			}
			return ctx.withStore(func(store *queue.Store) error {
				items, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if jsonOut {
					return emitJSON(cmd.OutOrStdout(), listView(items))
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						item.ID,
						string(item.Role),
						string(item.Status),
						strconv.Itoa(item.Attempts),
						humanize.Time(item.CreatedAt),
						item.MediaRef,
						truncate(item.LastError, 60),
					})
				}
				fmt.Fprint(out, renderTable(out,
					[]string{"ID", "Role", "Status", "Attempts", "Created", "Media", "Last Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

type itemView struct {
	ID        string     `json:"id"`
	MediaRef  string     `json:"media_ref"`
	Role      string     `json:"role"`
	Status    string     `json:"status"`
	Attempts  int        `json:"attempts"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	NotBefore *time.Time `json:"not_before,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func listView(items []*queue.Item) []itemView {
	views := make([]itemView, 0, len(items))
	for _, item := range items {
		views = append(views, itemView{
			ID:        item.ID,
			MediaRef:  item.MediaRef,
			Role:      string(item.Role),
			Status:    string(item.Status),
			Attempts:  item.Attempts,
			Deadline:  item.Deadline,
			NotBefore: item.NotBefore,
			LastError: item.LastError,
			CreatedAt: item.CreatedAt,
			UpdatedAt: item.UpdatedAt,
		})
	}
	return views
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cfg.Source.Backend == config.BackendRedis {
				q, err := redisqueue.Open(cmd.Context(), cfg)
				if err != nil {
					return fmt.Errorf("open redis job source: %w", err)
				}
				defer q.Close()
				rows := make([][]string, 0, 2)
				for _, role := range []jobs.Role{jobs.RoleVision, jobs.RoleTranscribe} {
					stats, err := q.Stats(cmd.Context(), role)
					if err != nil {
						return err
					}
					for _, name := range sortedKeys(stats) {
						rows = append(rows, []string{string(role), name, strconv.FormatInt(stats[name], 10)})
					}
				}
				fmt.Fprint(out, renderTable(out, []string{"Role", "Set", "Count"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight}))
				return nil
			}
			return ctx.withStore(func(store *queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				results, err := store.CountResults(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(queue.AllStatuses())+1)
				for _, status := range queue.AllStatuses() {
					rows = append(rows, []string{string(status), strconv.Itoa(stats[status])})
				}
				rows = append(rows, []string{"results", strconv.Itoa(results)})
				fmt.Fprint(out, renderTable(out, []string{"Status", "Count"}, rows,
					[]columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check queue database integrity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				health, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				rows := [][]string{
					{"Database path", health.DBPath},
					{"Database exists", yesNo(health.DatabaseExists)},
					{"Readable", yesNo(health.DatabaseReadable)},
					{"Schema version", strconv.Itoa(health.SchemaVersion)},
					{"Jobs table", yesNo(health.TableExists)},
					{"Columns present", strconv.Itoa(len(health.ColumnsPresent))},
					{"Integrity check", passFail(health.IntegrityCheck)},
					{"Total jobs", strconv.Itoa(health.TotalJobs)},
				}
				if len(health.MissingColumns) > 0 {
					rows = append(rows, []string{"Missing columns", strings.Join(health.MissingColumns, ", ")})
				}
				if health.Error != "" {
					rows = append(rows, []string{"Error", health.Error})
				}
				fmt.Fprint(out, renderTable(out, []string{"Check", "Value"}, rows, nil))
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Move dead jobs back to pending (all dead jobs when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				count, err := store.Retry(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d job(s)\n", count)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a job from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				removed, err := store.Remove(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("job %s not found", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed job %s\n", args[0])
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var terminalOnly bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove jobs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				var (
					count int64
					err   error
				)
				if terminalOnly {
					count, err = store.ClearTerminal(cmd.Context())
				} else {
					count, err = store.Clear(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d job(s)\n", count)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&terminalOnly, "terminal", false, "Only remove done and dead jobs")
	return cmd
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
