package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Environment variables recognised as overrides. Values set here take
// precedence over the configuration file.
const (
	EnvRole                  = "MEDIAWORKER_ROLE"
	EnvWorkerID              = "MEDIAWORKER_WORKER_ID"
	EnvJobTimeout            = "MEDIAWORKER_JOB_TIMEOUT"
	EnvMaxAttempts           = "MEDIAWORKER_MAX_ATTEMPTS"
	EnvChunkSeconds          = "MEDIAWORKER_CHUNK_SECONDS"
	EnvOverlapSeconds        = "MEDIAWORKER_OVERLAP_SECONDS"
	EnvFrameFailureThreshold = "MEDIAWORKER_FRAME_FAILURE_THRESHOLD"
	EnvFetchMaxBytes         = "MEDIAWORKER_FETCH_MAX_BYTES"
	EnvFetchTimeout          = "MEDIAWORKER_FETCH_TIMEOUT"
	EnvSourceBackend         = "MEDIAWORKER_SOURCE"
	EnvRedisURL              = "MEDIAWORKER_REDIS_URL"
	EnvResultStore           = "MEDIAWORKER_RESULT_STORE"
	EnvPostgresDSN           = "MEDIAWORKER_POSTGRES_DSN"
	EnvKafkaBrokers          = "MEDIAWORKER_KAFKA_BROKERS"
	EnvMQTTBroker            = "MEDIAWORKER_MQTT_BROKER"
	EnvNtfyTopic             = "MEDIAWORKER_NTFY_TOPIC"
	EnvLogLevel              = "MEDIAWORKER_LOG_LEVEL"
	EnvLogFormat             = "MEDIAWORKER_LOG_FORMAT"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.applyEnv(); err != nil {
		return err
	}
	c.normalizeWorker()
	c.normalizeSource()
	c.normalizeVision()
	c.normalizeTranscribe()
	c.normalizeSink()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ResultsDir) == "" {
		c.Paths.ResultsDir = defaultResultsDir
	}
	if c.Paths.ResultsDir, err = expandPath(c.Paths.ResultsDir); err != nil {
		return fmt.Errorf("paths.results_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	envString(EnvRole, &c.Worker.Role)
	envString(EnvWorkerID, &c.Worker.ID)
	envString(EnvSourceBackend, &c.Source.Backend)
	envString(EnvRedisURL, &c.Source.RedisURL)
	envString(EnvResultStore, &c.Sink.Store)
	envString(EnvPostgresDSN, &c.Sink.PostgresDSN)
	envString(EnvMQTTBroker, &c.Sink.MQTT.Broker)
	envString(EnvNtfyTopic, &c.Notifications.NtfyTopic)
	envString(EnvLogLevel, &c.Logging.Level)
	envString(EnvLogFormat, &c.Logging.Format)
	if value, ok := lookupEnv(EnvKafkaBrokers); ok {
		c.Sink.Kafka.Brokers = splitList(value)
	}

	if err := envInt(EnvJobTimeout, &c.Workflow.JobTimeout); err != nil {
		return err
	}
	if err := envInt(EnvMaxAttempts, &c.Workflow.MaxAttempts); err != nil {
		return err
	}
	if err := envInt(EnvChunkSeconds, &c.Transcribe.ChunkSeconds); err != nil {
		return err
	}
	if err := envInt(EnvOverlapSeconds, &c.Transcribe.OverlapSeconds); err != nil {
		return err
	}
	if err := envFloat(EnvFrameFailureThreshold, &c.Vision.MaxFailedFraction); err != nil {
		return err
	}
	if err := envInt64(EnvFetchMaxBytes, &c.Fetch.MaxBytes); err != nil {
		return err
	}
	if err := envInt(EnvFetchTimeout, &c.Fetch.Timeout); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalizeWorker() {
	c.Worker.Role = strings.ToLower(strings.TrimSpace(c.Worker.Role))
	c.Worker.ID = strings.TrimSpace(c.Worker.ID)
	if c.Worker.ID == "" {
		host, err := os.Hostname()
		if err != nil || strings.TrimSpace(host) == "" {
			host = "worker"
		}
		c.Worker.ID = fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
	}
}

func (c *Config) normalizeSource() {
	c.Source.Backend = strings.ToLower(strings.TrimSpace(c.Source.Backend))
	if c.Source.Backend == "" {
		c.Source.Backend = BackendSQLite
	}
	c.Source.RedisURL = strings.TrimSpace(c.Source.RedisURL)
	c.Source.RedisPrefix = strings.TrimSpace(c.Source.RedisPrefix)
	if c.Source.RedisPrefix == "" {
		c.Source.RedisPrefix = defaultRedisPrefix
	}
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = defaultFetchUserAgent
	}
}

func (c *Config) normalizeVision() {
	c.Vision.Analyzer = strings.ToLower(strings.TrimSpace(c.Vision.Analyzer))
	if c.Vision.Analyzer == "" {
		c.Vision.Analyzer = AnalyzerLuma
	}
	c.Vision.PythonCommand = strings.TrimSpace(c.Vision.PythonCommand)
	if c.Vision.PythonCommand == "" {
		c.Vision.PythonCommand = defaultPythonCommand
	}
	if c.Vision.PythonScript != "" {
		if expanded, err := expandPath(c.Vision.PythonScript); err == nil {
			c.Vision.PythonScript = expanded
		}
	}
	if c.Vision.ModelPath != "" {
		if expanded, err := expandPath(c.Vision.ModelPath); err == nil {
			c.Vision.ModelPath = expanded
		}
	}
}

func (c *Config) normalizeTranscribe() {
	c.Transcribe.Engine = strings.ToLower(strings.TrimSpace(c.Transcribe.Engine))
	if c.Transcribe.Engine == "" {
		c.Transcribe.Engine = EngineWhisperX
	}
	c.Transcribe.Model = strings.TrimSpace(c.Transcribe.Model)
	if c.Transcribe.Model == "" {
		c.Transcribe.Model = defaultTranscribeModel
	}
	c.Transcribe.Language = strings.ToLower(strings.TrimSpace(c.Transcribe.Language))
	if strings.TrimSpace(c.Transcribe.WhisperCPPBinary) == "" {
		c.Transcribe.WhisperCPPBinary = defaultWhisperCPPBinary
	}
	if c.Transcribe.WhisperCPPModel != "" {
		if expanded, err := expandPath(c.Transcribe.WhisperCPPModel); err == nil {
			c.Transcribe.WhisperCPPModel = expanded
		}
	}
}

func (c *Config) normalizeSink() {
	c.Sink.Store = strings.ToLower(strings.TrimSpace(c.Sink.Store))
	if c.Sink.Store == "" {
		c.Sink.Store = StoreFiles
	}
	c.Sink.PostgresDSN = strings.TrimSpace(c.Sink.PostgresDSN)
	brokers := make([]string, 0, len(c.Sink.Kafka.Brokers))
	for _, broker := range c.Sink.Kafka.Brokers {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	c.Sink.Kafka.Brokers = brokers
	if strings.TrimSpace(c.Sink.Kafka.Topic) == "" {
		c.Sink.Kafka.Topic = defaultKafkaTopic
	}
	c.Sink.MQTT.Broker = strings.TrimSpace(c.Sink.MQTT.Broker)
	c.Sink.MQTT.TopicPrefix = strings.Trim(strings.TrimSpace(c.Sink.MQTT.TopicPrefix), "/")
	if c.Sink.MQTT.TopicPrefix == "" {
		c.Sink.MQTT.TopicPrefix = defaultMQTTTopicPrefix
	}
	if strings.TrimSpace(c.Sink.MQTT.ClientID) == "" {
		c.Sink.MQTT.ClientID = defaultMQTTClientID + "-" + c.Worker.ID
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

func envString(key string, target *string) {
	if value, ok := lookupEnv(key); ok {
		*target = value
	}
}

func envInt(key string, target *int) error {
	value, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, value)
	}
	*target = parsed
	return nil
}

func envInt64(key string, target *int64) error {
	value, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, value)
	}
	*target = parsed
	return nil
}

func envFloat(key string, target *float64) error {
	value, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid number %q", key, value)
	}
	*target = parsed
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
