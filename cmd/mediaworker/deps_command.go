package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mediaworker/internal/deps"
	"mediaworker/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	var roleFlag string
	var full bool

	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check external binaries and endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			role := strings.TrimSpace(roleFlag)
			if role == "" {
				role = cfg.Worker.Role
			}

			out := cmd.OutOrStdout()
			statuses := deps.CheckBinaries(deps.RoleRequirements(cfg, role))
			rows := make([][]string, 0, len(statuses))
			for _, status := range statuses {
				state := "ok"
				switch {
				case !status.Available && status.Optional:
					state = "optional"
				case !status.Available:
					state = "missing"
				}
				detail := status.Detail
				if status.Available {
					detail = status.Path
				}
				rows = append(rows, []string{status.Name, state, status.Command, detail})
			}
			fmt.Fprint(out, renderTable(out, []string{"Dependency", "State", "Command", "Detail"}, rows, nil))

			if full {
				checks := preflight.RunAll(cmd.Context(), cfg, role)
				checkRows := make([][]string, 0, len(checks))
				for _, check := range checks {
					checkRows = append(checkRows, []string{check.Name, passFail(check.Passed), check.Detail})
				}
				fmt.Fprint(out, renderTable(out, []string{"Check", "Result", "Detail"}, checkRows, nil))
				return preflight.Err(checks)
			}

			if missing := deps.Missing(statuses); len(missing) > 0 {
				names := make([]string, 0, len(missing))
				for _, m := range missing {
					names = append(names, m.Name)
				}
				return fmt.Errorf("missing dependencies: %s", strings.Join(names, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&roleFlag, "role", "r", "", "Role to check (defaults to worker.role; empty checks both)")
	cmd.Flags().BoolVar(&full, "preflight", false, "Also run the worker preflight checks")
	return cmd
}
