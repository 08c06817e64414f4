package config

// Role names accepted by worker.role.
const (
	RoleVision     = "vision"
	RoleTranscribe = "transcribe"
)

// Backend and store identifiers.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"

	StoreFiles    = "files"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	AnalyzerLuma   = "luma"
	AnalyzerPython = "python"

	EngineWhisperX   = "whisperx"
	EngineWhisperCPP = "whispercpp"
)

const (
	defaultStateDir                 = "~/.local/share/mediaworker"
	defaultWorkDir                  = "~/.local/share/mediaworker/work"
	defaultResultsDir               = "~/.local/share/mediaworker/results"
	defaultLogDir                   = "~/.local/share/mediaworker/logs"
	defaultLogRetentionDays         = 30
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultQueuePollInterval        = 2
	defaultFetchWait                = 5
	defaultErrorRetryInterval       = 10
	defaultHeartbeatInterval        = 15
	defaultLeaseTimeout             = 120
	defaultJobTimeout               = 900
	defaultShutdownGrace            = 30
	defaultMaxAttempts              = 3
	defaultRetryBaseDelay           = 30
	defaultRetryMaxDelay            = 900
	defaultRetryMultiplier          = 2.0
	defaultRedisPrefix              = "mediaworker"
	defaultFetchMaxBytes      int64 = 2 << 30
	defaultFetchTimeout             = 300
	defaultFetchMinFreeBytes  int64 = 512 << 20
	defaultFetchUserAgent           = "mediaworker/0.1"
	defaultFFmpegBinary             = "ffmpeg"
	defaultFFprobeBinary            = "ffprobe"
	defaultSampleFPS                = 1.0
	defaultVisionMaxWidth           = 640
	defaultVisionConcurrency        = 4
	defaultMaxFailedFraction        = 0.2
	defaultBlankLumaMax             = 16.0
	defaultPythonCommand            = "python3"
	defaultVisionRequestTimeout     = 10
	defaultTranscribeModel          = "tiny"
	defaultChunkSeconds             = 30
	defaultOverlapSeconds           = 5
	defaultWhisperCPPBinary         = "whisper-cli"
	defaultKafkaTopic               = "mediaworker.results"
	defaultMQTTTopicPrefix          = "mediaworker/results"
	defaultMQTTClientID             = "mediaworker"
	defaultNotifyRequestTimeout     = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			WorkDir:    defaultWorkDir,
			ResultsDir: defaultResultsDir,
			LogDir:     defaultLogDir,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			FetchWait:          defaultFetchWait,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			LeaseTimeout:       defaultLeaseTimeout,
			JobTimeout:         defaultJobTimeout,
			ShutdownGrace:      defaultShutdownGrace,
			MaxAttempts:        defaultMaxAttempts,
			RetryBaseDelay:     defaultRetryBaseDelay,
			RetryMaxDelay:      defaultRetryMaxDelay,
			RetryMultiplier:    defaultRetryMultiplier,
		},
		Source: Source{
			Backend:     BackendSQLite,
			RedisPrefix: defaultRedisPrefix,
		},
		Fetch: Fetch{
			MaxBytes:     defaultFetchMaxBytes,
			Timeout:      defaultFetchTimeout,
			MinFreeBytes: defaultFetchMinFreeBytes,
			UserAgent:    defaultFetchUserAgent,
		},
		Decode: Decode{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
		},
		Vision: Vision{
			Analyzer:          AnalyzerLuma,
			SampleFPS:         defaultSampleFPS,
			MaxWidth:          defaultVisionMaxWidth,
			Concurrency:       defaultVisionConcurrency,
			MaxFailedFraction: defaultMaxFailedFraction,
			BlankLumaMax:      defaultBlankLumaMax,
			PythonCommand:     defaultPythonCommand,
			RequestTimeout:    defaultVisionRequestTimeout,
		},
		Transcribe: Transcribe{
			Engine:           EngineWhisperX,
			Model:            defaultTranscribeModel,
			ChunkSeconds:     defaultChunkSeconds,
			OverlapSeconds:   defaultOverlapSeconds,
			WhisperCPPBinary: defaultWhisperCPPBinary,
		},
		Sink: Sink{
			Store: StoreFiles,
			Kafka: Kafka{Topic: defaultKafkaTopic},
			MQTT: MQTT{
				TopicPrefix: defaultMQTTTopicPrefix,
				QoS:         1,
			},
		},
		Notifications: Notifications{
			RequestTimeout:    defaultNotifyRequestTimeout,
			PermanentFailures: true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
