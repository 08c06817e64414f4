package preflight

import (
	"context"
	"fmt"
	"strings"

	"mediaworker/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every check that applies to role under cfg. An empty role
// checks the binaries of both roles.
func RunAll(ctx context.Context, cfg *config.Config, role string) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckFreeSpace("Work directory space", cfg.Paths.WorkDir, cfg.Fetch.MinFreeBytes),
	}
	if cfg.Sink.Store == config.StoreFiles {
		results = append(results, CheckDirectoryAccess("Results directory", cfg.Paths.ResultsDir))
	}
	if cfg.Source.Backend == config.BackendRedis {
		results = append(results, CheckRedis(ctx, cfg.Source.RedisURL))
	}
	if cfg.Sink.Store == config.StorePostgres {
		results = append(results, CheckPostgres(ctx, cfg.Sink.PostgresDSN))
	}
	results = append(results, CheckBinaries(cfg, role))
	return results
}

// Err joins the failed checks into one error, or returns nil.
func Err(results []Result) error {
	var failures []string
	for _, r := range results {
		if !r.Passed {
			failures = append(failures, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return fmt.Errorf("preflight checks failed: %s", strings.Join(failures, "; "))
}
