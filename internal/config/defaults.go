package config

const (
	defaultUploadDir            = "~/.local/share/audiolens/uploads"
	defaultTranscriptCacheDir   = "~/.local/share/audiolens/cache/transcripts"
	defaultWorkDir              = "~/.local/share/audiolens/work"
	defaultLogDir               = "~/.local/share/audiolens/logs"
	defaultAPIBind              = "127.0.0.1:8000"
	defaultTranscriberModel     = "tiny"
	defaultTranscriberLanguage  = "en"
	defaultChunkDurationSeconds = 1800
	defaultMaxPDFMiB            = 200
	defaultMaxAudioMiB          = 500
	defaultPollInterval         = 2
	defaultWorkers              = 2
	defaultErrorRetryInterval   = 10
	defaultStoreMaxGiB          = 50
	defaultStoreMinFreeGiB      = 5
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			UploadDir:          defaultUploadDir,
			TranscriptCacheDir: defaultTranscriptCacheDir,
			WorkDir:            defaultWorkDir,
			LogDir:             defaultLogDir,
			APIBind:            defaultAPIBind,
		},
		Transcriber: Transcriber{
			Model:                defaultTranscriberModel,
			Language:             defaultTranscriberLanguage,
			ChunkDurationSeconds: defaultChunkDurationSeconds,
		},
		Uploads: Uploads{
			MaxPDFMiB:        defaultMaxPDFMiB,
			MaxAudioMiB:      defaultMaxAudioMiB,
			PDFRepairEnabled: true,
		},
		Workflow: Workflow{
			PollInterval:       defaultPollInterval,
			Workers:            defaultWorkers,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Store: Store{
			MaxGiB:     defaultStoreMaxGiB,
			MinFreeGiB: defaultStoreMinFreeGiB,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completions:    true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
