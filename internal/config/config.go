package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	// Auth for the HTTP service. Empty disables it.
	APIKey string

	// Speech service
	LocalAPIURL string
	TTSAPIKey   string
	TTSTimeout  time.Duration
	Model       string
	Voice       string
	Speed       float64
	FileFormat  string

	// Chunking
	MaxCharacters int

	// Input and output
	InputDir         string
	OutputFolderName string

	// Resume, applied to the first document of a run
	NextChunkIndex int
	ContinueLine   int
	ContinueWord   int
	StartFromChunk int

	IsManual bool

	// Recovery
	RestartAPI        bool
	RestartCommand    string
	RestartSettle     time.Duration
	RecoveryThreshold int

	// Service limits
	MaxQueueSize   int
	MaxUploadBytes int64
	UploadRate     float64
	UploadBurst    int
	JobTTL         time.Duration

	// PDF
	PDFFallbackPdftotext bool

	LogLevel string
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8091"),

		APIKey: os.Getenv("DOCNARRATE_API_KEY"),

		LocalAPIURL: envOr("TTS_URL", "http://localhost:8880/v1/audio/speech"),
		TTSAPIKey:   os.Getenv("TTS_API_KEY"),
		TTSTimeout:  envDuration("TTS_TIMEOUT", 10*time.Minute),
		Model:       envOr("TTS_MODEL", "kokoro"),
		Voice:       envOr("TTS_VOICE", "af_bella"),
		Speed:       envFloat("TTS_SPEED", 1.0),
		FileFormat:  envOr("TTS_FORMAT", "mp3"),

		MaxCharacters: envInt("MAX_CHARACTERS", 500),

		InputDir:         envOr("INPUT_DIR", "."),
		OutputFolderName: envOr("OUTPUT_FOLDER", "Output"),

		IsManual: envBool("IS_MANUAL", false),

		RestartAPI:        envBool("RESTART_API", false),
		RestartCommand:    os.Getenv("RESTART_COMMAND"),
		RestartSettle:     envDuration("RESTART_SETTLE", 15*time.Second),
		RecoveryThreshold: envInt("RECOVERY_THRESHOLD", 1),

		MaxQueueSize:   envInt("MAX_QUEUE_SIZE", 100),
		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB
		UploadRate:     envFloat("UPLOAD_RATE", 1),
		UploadBurst:    envInt("UPLOAD_BURST", 5),
		JobTTL:         envDuration("JOB_TTL", 24*time.Hour),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		LogLevel: envOr("LOG_LEVEL", "info"),
	}

	if cfg.TTSTimeout <= 0 {
		cfg.TTSTimeout = 10 * time.Minute
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}
	if cfg.MaxCharacters <= 0 {
		cfg.MaxCharacters = 500
	}
	if cfg.RestartSettle <= 0 {
		cfg.RestartSettle = 15 * time.Second
	}
	if cfg.RecoveryThreshold <= 0 {
		cfg.RecoveryThreshold = 1
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.UploadRate <= 0 {
		cfg.UploadRate = 1
	}
	if cfg.UploadBurst <= 0 {
		cfg.UploadBurst = 5
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 24 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.LocalAPIURL == "" {
		return fmt.Errorf("LocalAPIURL is required")
	}
	if c.MaxCharacters <= 0 {
		return fmt.Errorf("MaxCharacters must be positive, got %d", c.MaxCharacters)
	}
	if c.Speed <= 0 {
		return fmt.Errorf("Speed must be positive, got %g", c.Speed)
	}
	if c.FileFormat == "" {
		return fmt.Errorf("FileFormat is required")
	}
	if c.OutputFolderName == "" {
		return fmt.Errorf("OutputFolderName is required")
	}
	if c.NextChunkIndex < 0 || c.StartFromChunk < 0 || c.ContinueLine < 0 || c.ContinueWord < 0 {
		return fmt.Errorf("resume positions must not be negative")
	}
	return nil
}

// ArgKeys lists the Key=Value options accepted by ApplyArgs, in the order
// they are shown to the user.
var ArgKeys = []struct {
	Key, Usage string
}{
	{"NextChunkIndex", "<int> first fragment index"},
	{"OutputFolderName", "<string> output folder"},
	{"MaxCharacters", "<int> maximum bytes per chunk"},
	{"Model", "<string> speech model"},
	{"Voice", "<string> voice"},
	{"Speed", "<float> speaking speed"},
	{"StartFromChunk", "<int> skip chunks below this index"},
	{"Continue", "<int,int> resume from line and word"},
	{"FileFormat", "<string> audio format, e.g. mp3"},
	{"LocalAPIURL", "<string> speech endpoint URL"},
	{"RestartAPI", "<bool> restart the speech service before starting"},
	{"RestartCommand", "<string> command that restarts the speech service"},
	{"IsManual", "<bool> prompt for options before starting"},
}

// ApplyArgs overlays Key=Value tokens on the config. Unknown keys and
// malformed values are errors.
func (c *Config) ApplyArgs(args []string) error {
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("argument %q: expected Key=Value", arg)
		}
		if err := c.set(key, value); err != nil {
			return fmt.Errorf("argument %s: %w", key, err)
		}
	}
	return nil
}

func (c *Config) set(key, value string) error {
	var err error
	switch key {
	case "NextChunkIndex":
		c.NextChunkIndex, err = strconv.Atoi(value)
	case "OutputFolderName":
		c.OutputFolderName = value
	case "MaxCharacters":
		c.MaxCharacters, err = strconv.Atoi(value)
	case "Model":
		c.Model = value
	case "Voice":
		c.Voice = value
	case "Speed":
		c.Speed, err = strconv.ParseFloat(value, 64)
	case "Continue":
		c.ContinueLine, c.ContinueWord, err = parsePair(value)
	case "IsManual":
		c.IsManual, err = strconv.ParseBool(value)
	case "StartFromChunk":
		c.StartFromChunk, err = strconv.Atoi(value)
	case "FileFormat":
		c.FileFormat = strings.TrimPrefix(value, ".")
	case "LocalAPIURL":
		c.LocalAPIURL = value
	case "RestartAPI":
		c.RestartAPI, err = strconv.ParseBool(value)
	case "RestartCommand":
		c.RestartCommand = value
	default:
		return fmt.Errorf("unknown option")
	}
	return err
}

func parsePair(v string) (int, int, error) {
	a, b, ok := strings.Cut(v, ",")
	if !ok {
		return 0, 0, fmt.Errorf("expected line,word")
	}
	line, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, err
	}
	word, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, err
	}
	return line, word, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
