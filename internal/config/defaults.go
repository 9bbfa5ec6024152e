package config

const (
	defaultConfigPath              = "~/.config/subguard/config.toml"
	defaultTransformDir            = "~/.local/share/subguard/transform"
	defaultValidateDir             = "~/.local/share/subguard/validate"
	defaultApprovedDir             = "~/.local/share/subguard/approved"
	defaultStateDir                = "~/.local/share/subguard/state"
	defaultLogDir                  = "~/.local/share/subguard/logs"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLogRetentionDays        = 30
	defaultIoUThreshold            = 0.3
	defaultMaxDistancePx           = 50
	defaultSampleFPS               = 2.0
	defaultTextSimilarityCutoff    = 0.70
	defaultPositionVarianceNorm    = 100
	defaultClassifierStrategy      = "weighted"
	defaultStaticMinPresence       = 0.8
	defaultStaticMaxChange         = 0.1
	defaultSubtitleMinChangeRate   = 0.3
	defaultScreencastMinDetections = 10
	defaultSubtitleScoreThreshold  = 0.75
	defaultEnsembleStrategy        = "weighted"
	defaultConflictThreshold       = 0.80
	defaultWorkers                 = 2
	defaultMaxConcurrentTranscodes = 3
	defaultTranscodeTimeout        = 1800
	defaultDetectTimeout           = 600
	defaultOrphanMaxAgeHours       = 24
	defaultCleanupInterval         = 60
	defaultTranscoder              = "ffmpeg"
	defaultTargetHeight            = 720
	defaultOCRMinConfidence        = 0.5
)

var (
	defaultVideoExtensions = []string{".mp4", ".mkv", ".mov", ".webm", ".avi"}
	defaultOCRLanguages    = []string{"eng"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			TransformDir: defaultTransformDir,
			ValidateDir:  defaultValidateDir,
			ApprovedDir:  defaultApprovedDir,
			StateDir:     defaultStateDir,
			LogDir:       defaultLogDir,
		},
		Tracker: Tracker{
			IoUThreshold:         defaultIoUThreshold,
			MaxDistancePx:        defaultMaxDistancePx,
			SampleFPS:            defaultSampleFPS,
			TextSimilarityCutoff: defaultTextSimilarityCutoff,
			PositionVarianceNorm: defaultPositionVarianceNorm,
		},
		Classifier: Classifier{
			Strategy:                defaultClassifierStrategy,
			StaticMinPresence:       defaultStaticMinPresence,
			StaticMaxChange:         defaultStaticMaxChange,
			SubtitleMinChangeRate:   defaultSubtitleMinChangeRate,
			ScreencastMinDetections: defaultScreencastMinDetections,
			IgnoreStatic:            true,
			IgnoreScreencast:        true,
			SubtitleScoreThreshold:  defaultSubtitleScoreThreshold,
		},
		Ensemble: Ensemble{
			Strategy:          defaultEnsembleStrategy,
			ConflictThreshold: defaultConflictThreshold,
		},
		Pipeline: Pipeline{
			Workers:                 defaultWorkers,
			MaxConcurrentTranscodes: defaultMaxConcurrentTranscodes,
			TranscodeTimeout:        defaultTranscodeTimeout,
			DetectTimeout:           defaultDetectTimeout,
			OrphanMaxAgeHours:       defaultOrphanMaxAgeHours,
			CleanupInterval:         defaultCleanupInterval,
			Transcoder:              defaultTranscoder,
			FFmpegBinary:            "ffmpeg",
			FFprobeBinary:           "ffprobe",
			TargetHeight:            defaultTargetHeight,
			VideoExtensions:         append([]string(nil), defaultVideoExtensions...),
		},
		OCR: OCR{
			Languages:     append([]string(nil), defaultOCRLanguages...),
			MinConfidence: defaultOCRMinConfidence,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
