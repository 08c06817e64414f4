package config

import (
	"errors"
	"fmt"
	"strings"

	"mediaworker/internal/language"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateVision(); err != nil {
		return err
	}
	if err := c.validateTranscribe(); err != nil {
		return err
	}
	if err := c.validateSink(); err != nil {
		return err
	}
	return c.validateLogging()
}

// ValidateRole reports whether role names one of the two worker pipelines.
func ValidateRole(role string) error {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleVision, RoleTranscribe:
		return nil
	case "":
		return fmt.Errorf("worker role is required (set worker.role, %s, or --role)", EnvRole)
	default:
		return fmt.Errorf("worker role %q is not supported (expected %q or %q)", role, RoleVision, RoleTranscribe)
	}
}

func (c *Config) validateWorker() error {
	if c.Worker.Role == "" {
		return nil
	}
	return ValidateRole(c.Worker.Role)
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.fetch_wait":           c.Workflow.FetchWait,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.heartbeat_interval":   c.Workflow.HeartbeatInterval,
		"workflow.lease_timeout":        c.Workflow.LeaseTimeout,
		"workflow.job_timeout":          c.Workflow.JobTimeout,
		"workflow.max_attempts":         c.Workflow.MaxAttempts,
		"workflow.retry_base_delay":     c.Workflow.RetryBaseDelay,
		"workflow.retry_max_delay":      c.Workflow.RetryMaxDelay,
	}); err != nil {
		return err
	}
	if c.Workflow.ShutdownGrace < 0 {
		return errors.New("workflow.shutdown_grace must not be negative")
	}
	if c.Workflow.LeaseTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.lease_timeout must be greater than workflow.heartbeat_interval")
	}
	if c.Workflow.RetryMaxDelay < c.Workflow.RetryBaseDelay {
		return errors.New("workflow.retry_max_delay must be at least workflow.retry_base_delay")
	}
	if c.Workflow.RetryMultiplier < 1 {
		return errors.New("workflow.retry_multiplier must be at least 1")
	}
	return nil
}

func (c *Config) validateSource() error {
	switch c.Source.Backend {
	case BackendSQLite:
		return nil
	case BackendRedis:
		if c.Source.RedisURL == "" {
			return fmt.Errorf("source.redis_url must be set when source.backend is redis (or export %s)", EnvRedisURL)
		}
		return nil
	default:
		return fmt.Errorf("source.backend %q is not supported", c.Source.Backend)
	}
}

func (c *Config) validateFetch() error {
	if c.Fetch.MaxBytes <= 0 {
		return errors.New("fetch.max_bytes must be positive")
	}
	if c.Fetch.Timeout <= 0 {
		return errors.New("fetch.timeout must be positive (seconds)")
	}
	if c.Fetch.MinFreeBytes < 0 {
		return errors.New("fetch.min_free_bytes must not be negative")
	}
	return nil
}

func (c *Config) validateVision() error {
	switch c.Vision.Analyzer {
	case AnalyzerLuma:
	case AnalyzerPython:
		if strings.TrimSpace(c.Vision.PythonScript) == "" {
			return errors.New("vision.python_script must be set when vision.analyzer is python")
		}
	default:
		return fmt.Errorf("vision.analyzer %q is not supported", c.Vision.Analyzer)
	}
	if c.Vision.SampleFPS <= 0 {
		return errors.New("vision.sample_fps must be positive")
	}
	if c.Vision.MaxWidth < 0 {
		return errors.New("vision.max_width must not be negative")
	}
	if c.Vision.Concurrency <= 0 {
		return errors.New("vision.concurrency must be positive")
	}
	if c.Vision.MaxFailedFraction < 0 || c.Vision.MaxFailedFraction > 1 {
		return errors.New("vision.max_failed_fraction must be between 0 and 1")
	}
	if c.Vision.RequestTimeout <= 0 {
		return errors.New("vision.request_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateTranscribe() error {
	switch c.Transcribe.Engine {
	case EngineWhisperX:
	case EngineWhisperCPP:
		if strings.TrimSpace(c.Transcribe.WhisperCPPModel) == "" {
			return errors.New("transcribe.whispercpp_model must be set when transcribe.engine is whispercpp")
		}
	default:
		return fmt.Errorf("transcribe.engine %q is not supported", c.Transcribe.Engine)
	}
	if c.Transcribe.ChunkSeconds <= 0 {
		return errors.New("transcribe.chunk_seconds must be positive")
	}
	if c.Transcribe.OverlapSeconds < 0 {
		return errors.New("transcribe.overlap_seconds must not be negative")
	}
	if c.Transcribe.OverlapSeconds >= c.Transcribe.ChunkSeconds {
		return errors.New("transcribe.overlap_seconds must be less than transcribe.chunk_seconds")
	}
	if _, err := language.Normalize(c.Transcribe.Language); err != nil {
		return fmt.Errorf("transcribe.language: %w", err)
	}
	return nil
}

func (c *Config) validateSink() error {
	switch c.Sink.Store {
	case StoreFiles, StoreSQLite:
	case StorePostgres:
		if c.Sink.PostgresDSN == "" {
			return fmt.Errorf("sink.postgres_dsn must be set when sink.store is postgres (or export %s)", EnvPostgresDSN)
		}
	default:
		return fmt.Errorf("sink.store %q is not supported", c.Sink.Store)
	}
	if c.Sink.MQTT.QoS < 0 || c.Sink.MQTT.QoS > 2 {
		return errors.New("sink.mqtt.qos must be 0, 1, or 2")
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (expected console or json)", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
