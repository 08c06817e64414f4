package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediaworker/internal/config"
	"mediaworker/internal/logging"
	"mediaworker/internal/services"
)

func tempLogPath(t *testing.T) (string, func() string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "test.log")
	return logPath, func() string {
		content, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		return string(content)
	}
}

func TestNewFromConfigWritesRunLog(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, logPath, err := logging.NewFromConfig(&cfg, "run-1")
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if want := filepath.Join(cfg.Paths.LogDir, "mediaworker-run-1.log"); logPath != want {
		t.Fatalf("unexpected log path: got %q want %q", logPath, want)
	}
	logger.Info("worker ready")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if !strings.Contains(string(content), "worker ready") {
		t.Fatalf("expected message in run log, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath, read := tempLogPath(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	if content := read(); strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath, read := tempLogPath(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	if content := read(); !strings.Contains(content, ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerRendersSubject(t *testing.T) {
	logPath, read := tempLogPath(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("frames decoded",
		logging.String(logging.FieldComponent, "worker"),
		logging.String(logging.FieldRole, "vision"),
		logging.String(logging.FieldJobID, "job-7"),
		logging.String(logging.FieldStage, "decode"),
		logging.Int("frames", 12),
	)

	content := read()
	if !strings.Contains(content, "[worker] Vision · Job job-7 (decode) - frames decoded") {
		t.Fatalf("unexpected header: %q", content)
	}
	if !strings.Contains(content, "    - frames: 12") {
		t.Fatalf("expected frames field, got %q", content)
	}
	if strings.Contains(content, "- job_id:") {
		t.Fatalf("expected job_id to be folded into header, got %q", content)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath, read := tempLogPath(t)
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("json message", logging.String("k", "v"))

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(read())), &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if entry["msg"] != "json message" || entry["level"] != "info" || entry["k"] != "v" {
		t.Fatalf("unexpected json entry: %#v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %#v", entry)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	logPath, read := tempLogPath(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "invalid", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("visible")

	content := read()
	if strings.Contains(content, "hidden") || !strings.Contains(content, "visible") {
		t.Fatalf("expected info level filtering, got %q", content)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	logPath, read := tempLogPath(t)
	base, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job-123")
	ctx = services.WithRole(ctx, "transcribe")
	ctx = services.WithStage(ctx, "inference")
	ctx = services.WithRequestID(ctx, "req-xyz")

	logging.WithContext(ctx, base).Info("contextual log")

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(read())), &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	want := map[string]string{
		logging.FieldJobID:         "job-123",
		logging.FieldRole:          "transcribe",
		logging.FieldStage:         "inference",
		logging.FieldCorrelationID: "req-xyz",
	}
	for key, value := range want {
		if entry[key] != value {
			t.Fatalf("field %s = %v, want %q", key, entry[key], value)
		}
	}
}

func TestFormatSubject(t *testing.T) {
	tests := []struct {
		role, job, stage string
		want             string
	}{
		{"vision", "", "", "Vision"},
		{"transcribe", "abc", "", "Transcribe · Job abc"},
		{"vision", "3f2a9c1e-0000-4000-8000-000000000000", "decode", "Vision · Job 3f2a9c1e (decode)"},
		{"", "", "fetch", "fetch"},
		{"", "", "", ""},
	}
	for _, tc := range tests {
		if got := logging.FormatSubject(tc.role, tc.job, tc.stage); got != tc.want {
			t.Fatalf("FormatSubject(%q,%q,%q) = %q, want %q", tc.role, tc.job, tc.stage, got, tc.want)
		}
	}
}

func TestBytesAttrIsHumanReadable(t *testing.T) {
	attr := logging.Bytes("size", 1536)
	if attr.Value.String() != "1.5 KiB" {
		t.Fatalf("unexpected bytes rendering: %q", attr.Value.String())
	}
}

func TestErrorKindAttr(t *testing.T) {
	err := services.Wrap(services.ErrQuality, "vision", "aggregate", "too many failed frames", nil)
	if got := logging.ErrorKind(err).Value.String(); got != "quality" {
		t.Fatalf("unexpected error kind: %q", got)
	}
}

func TestCleanupOldLogsKeepsExcludedAndRecent(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "mediaworker-old.log")
	current := filepath.Join(dir, "mediaworker-current.log")
	recent := filepath.Join(dir, "mediaworker-recent.log")
	other := filepath.Join(dir, "notes.txt")
	for _, path := range []string{old, current, recent, other} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	stale := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{old, current, other} {
		if err := os.Chtimes(path, stale, stale); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 3, logging.RetentionTarget{
		Dir:     dir,
		Pattern: "mediaworker-*.log",
		Exclude: []string{current},
	})
	if removed != 1 {
		t.Fatalf("expected one pruned log, got %d", removed)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log to be removed, stat err=%v", err)
	}
	for _, path := range []string{current, recent, other} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to remain: %v", path, err)
		}
	}
}

func TestCleanupOldLogsDisabledByZeroRetention(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "mediaworker-old.log")
	if err := os.WriteFile(old, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	stale := time.Now().AddDate(-1, 0, 0)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatal(err)
	}
	if removed := logging.CleanupOldLogs(logging.NewNop(), 0, logging.RetentionTarget{Dir: dir}); removed != 0 {
		t.Fatalf("expected nothing pruned, got %d", removed)
	}
	if _, err := os.Stat(old); err != nil {
		t.Fatalf("expected log to remain: %v", err)
	}
}
