package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	WorkDir    string `toml:"work_dir"`
	ResultsDir string `toml:"results_dir"`
	LogDir     string `toml:"log_dir"`
}

// Worker selects the role and identity of this process.
type Worker struct {
	Role string `toml:"role"`
	ID   string `toml:"id"`
}

// Workflow contains worker loop timing, lease, and retry configuration.
// Durations are expressed in seconds.
type Workflow struct {
	QueuePollInterval  int     `toml:"queue_poll_interval"`
	FetchWait          int     `toml:"fetch_wait"`
	ErrorRetryInterval int     `toml:"error_retry_interval"`
	HeartbeatInterval  int     `toml:"heartbeat_interval"`
	LeaseTimeout       int     `toml:"lease_timeout"`
	JobTimeout         int     `toml:"job_timeout"`
	ShutdownGrace      int     `toml:"shutdown_grace"`
	MaxAttempts        int     `toml:"max_attempts"`
	RetryBaseDelay     int     `toml:"retry_base_delay"`
	RetryMaxDelay      int     `toml:"retry_max_delay"`
	RetryMultiplier    float64 `toml:"retry_multiplier"`
}

// Source selects the job source backend.
type Source struct {
	Backend     string `toml:"backend"`
	RedisURL    string `toml:"redis_url"`
	RedisPrefix string `toml:"redis_prefix"`
}

// Fetch bounds media retrieval.
type Fetch struct {
	MaxBytes     int64  `toml:"max_bytes"`
	Timeout      int    `toml:"timeout"`
	MinFreeBytes int64  `toml:"min_free_bytes"`
	UserAgent    string `toml:"user_agent"`
}

// Decode names the external demux/decode tools.
type Decode struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
}

// Vision configures frame sampling and per-frame analysis.
type Vision struct {
	Analyzer          string  `toml:"analyzer"`
	SampleFPS         float64 `toml:"sample_fps"`
	MaxWidth          int     `toml:"max_width"`
	Concurrency       int     `toml:"concurrency"`
	MaxFailedFraction float64 `toml:"max_failed_fraction"`
	BlankLumaMax      float64 `toml:"blank_luma_max"`
	PythonCommand     string  `toml:"python_command"`
	PythonScript      string  `toml:"python_script"`
	ModelPath         string  `toml:"model_path"`
	RequestTimeout    int     `toml:"request_timeout"`
}

// Transcribe configures speech-to-text inference and chunking.
type Transcribe struct {
	Engine           string `toml:"engine"`
	Model            string `toml:"model"`
	Language         string `toml:"language"`
	ChunkSeconds     int    `toml:"chunk_seconds"`
	OverlapSeconds   int    `toml:"overlap_seconds"`
	CUDAEnabled      bool   `toml:"cuda_enabled"`
	WhisperCPPBinary string `toml:"whispercpp_binary"`
	WhisperCPPModel  string `toml:"whispercpp_model"`
}

// Kafka configures the optional Kafka result publisher.
type Kafka struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// MQTT configures the optional MQTT result publisher.
type MQTT struct {
	Broker      string `toml:"broker"`
	TopicPrefix string `toml:"topic_prefix"`
	ClientID    string `toml:"client_id"`
	QoS         int    `toml:"qos"`
}

// Sink configures result persistence and publication.
type Sink struct {
	Store       string `toml:"store"`
	PostgresDSN string `toml:"postgres_dsn"`
	Kafka       Kafka  `toml:"kafka"`
	MQTT        MQTT   `toml:"mqtt"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic         string `toml:"ntfy_topic"`
	RequestTimeout    int    `toml:"request_timeout"`
	PermanentFailures bool   `toml:"permanent_failures"`
	WorkerLifecycle   bool   `toml:"worker_lifecycle"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for mediaworker.
//
// Configuration sections by subsystem:
//   - Paths: state, scratch, result, and log directories
//   - Worker: role selection and worker identity
//   - Workflow: loop timing, leases, deadlines, and retry policy
//   - Source: job source backend (sqlite or redis)
//   - Fetch: media download budgets
//   - Decode: ffmpeg/ffprobe binaries
//   - Vision: frame sampling and analysis
//   - Transcribe: speech-to-text engine and chunking
//   - Sink: result store and publishers
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Worker        Worker        `toml:"worker"`
	Workflow      Workflow      `toml:"workflow"`
	Source        Source        `toml:"source"`
	Fetch         Fetch         `toml:"fetch"`
	Decode        Decode        `toml:"decode"`
	Vision        Vision        `toml:"vision"`
	Transcribe    Transcribe    `toml:"transcribe"`
	Sink          Sink          `toml:"sink"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mediaworker/config.toml")
}

// Load locates, parses, and validates a configuration file. Environment
// overrides are applied after the file is decoded, so container deployments
// can run without any file at all.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mediaworker.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for worker operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Sink.Store == StoreFiles {
		if err := os.MkdirAll(c.Paths.ResultsDir, 0o755); err != nil {
			return fmt.Errorf("create results directory %q: %w", c.Paths.ResultsDir, err)
		}
	}
	return nil
}

// QueueDBPath returns the location of the SQLite job queue database.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// JobTimeout returns the per-job wall-clock budget.
func (c *Config) JobTimeout() time.Duration {
	return seconds(c.Workflow.JobTimeout)
}

// ShutdownGrace returns how long an in-flight job may continue after a stop signal.
func (c *Config) ShutdownGrace() time.Duration {
	return seconds(c.Workflow.ShutdownGrace)
}

// LeaseTimeout returns the visibility timeout granted on each fetch and heartbeat.
func (c *Config) LeaseTimeout() time.Duration {
	return seconds(c.Workflow.LeaseTimeout)
}

// FetchTimeout returns the time budget for a single media download.
func (c *Config) FetchTimeout() time.Duration {
	return seconds(c.Fetch.Timeout)
}

// HeartbeatInterval returns how often an in-flight job's lease is extended.
func (c *Config) HeartbeatInterval() time.Duration {
	return seconds(c.Workflow.HeartbeatInterval)
}

// FetchWait returns how long a single FetchNext call may block on an empty queue.
func (c *Config) FetchWait() time.Duration {
	return seconds(c.Workflow.FetchWait)
}

// ErrorRetryInterval returns the pause after a job source failure.
func (c *Config) ErrorRetryInterval() time.Duration {
	return seconds(c.Workflow.ErrorRetryInterval)
}

// RetryBaseDelay returns the redelivery delay after the first failed attempt.
func (c *Config) RetryBaseDelay() time.Duration {
	return seconds(c.Workflow.RetryBaseDelay)
}

// RetryMaxDelay caps the redelivery delay.
func (c *Config) RetryMaxDelay() time.Duration {
	return seconds(c.Workflow.RetryMaxDelay)
}

// VisionRequestTimeout bounds one frame round trip to the model process.
func (c *Config) VisionRequestTimeout() time.Duration {
	return seconds(c.Vision.RequestTimeout)
}

// NotifyRequestTimeout bounds one notification delivery.
func (c *Config) NotifyRequestTimeout() time.Duration {
	return seconds(c.Notifications.RequestTimeout)
}

// FFprobeBinary returns the ffprobe executable used for media inspection.
func (c *Config) FFprobeBinary() string {
	if strings.TrimSpace(c.Decode.FFprobeBinary) == "" {
		return defaultFFprobeBinary
	}
	return c.Decode.FFprobeBinary
}

// FFmpegBinary returns the ffmpeg executable used for decoding.
func (c *Config) FFmpegBinary() string {
	if strings.TrimSpace(c.Decode.FFmpegBinary) == "" {
		return defaultFFmpegBinary
	}
	return c.Decode.FFmpegBinary
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
