package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sys/unix"

	"mediaworker/internal/config"
	"mediaworker/internal/deps"
	"mediaworker/internal/fileutil"
	"mediaworker/internal/redisqueue"
)

const backendCheckTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least min
// bytes available. A non-positive min always passes.
func CheckFreeSpace(name, path string, min int64) Result {
	free, err := fileutil.FreeBytes(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	detail := fmt.Sprintf("%s free", humanize.IBytes(free))
	if min > 0 && free < uint64(min) {
		return Result{Name: name, Detail: fmt.Sprintf("%s, need %s", detail, humanize.IBytes(uint64(min)))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckRedis verifies the Redis job source answers a ping.
func CheckRedis(ctx context.Context, redisURL string) Result {
	const name = "Redis"
	if strings.TrimSpace(redisURL) == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, backendCheckTimeout)
	defer cancel()
	client, err := redisqueue.Connect(checkCtx, redisURL)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	_ = client.Close()
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckPostgres verifies the result database accepts connections.
func CheckPostgres(ctx context.Context, dsn string) Result {
	const name = "PostgreSQL"
	if strings.TrimSpace(dsn) == "" {
		return Result{Name: name, Detail: "missing dsn"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, backendCheckTimeout)
	defer cancel()
	conn, err := pgx.Connect(checkCtx, dsn)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("connect failed (%v)", err)}
	}
	defer conn.Close(context.Background())
	if err := conn.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("ping failed (%v)", err)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckBinaries folds the role's external binary checks into one result.
func CheckBinaries(cfg *config.Config, role string) Result {
	const name = "Dependencies"
	statuses := deps.CheckBinaries(deps.RoleRequirements(cfg, role))
	missing := deps.Missing(statuses)
	if len(missing) == 0 {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d available", len(statuses))}
	}
	names := make([]string, 0, len(missing))
	for _, m := range missing {
		names = append(names, fmt.Sprintf("%s (%s)", m.Name, m.Detail))
	}
	return Result{Name: name, Detail: "missing " + strings.Join(names, ", ")}
}
