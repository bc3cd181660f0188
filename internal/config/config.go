package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Synthesis backend connection
	SynthURL    string
	SynthAPIKey string

	// Auth
	APIKey string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Narration defaults
	DefaultVoice  string
	DefaultSpeed  float64
	DefaultLang   string
	DefaultFormat string

	// Chunking and extraction heuristics
	ChunkTargetSize int
	MinChapterChars int

	// On-disk layout
	DataDir string

	// Job state
	JobTTL time.Duration
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		SynthURL:    envOr("SYNTH_URL", "http://localhost:8880"),
		SynthAPIKey: os.Getenv("SYNTH_API_KEY"),

		APIKey: os.Getenv("BOOKVOICE_API_KEY"),

		WorkerCount:  envInt("WORKER_COUNT", 1),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 104857600), // 100MB

		DefaultVoice:  envOr("DEFAULT_VOICE", "af_sky"),
		DefaultSpeed:  envFloat("DEFAULT_SPEED", 1.0),
		DefaultLang:   envOr("DEFAULT_LANG", "en-us"),
		DefaultFormat: envOr("DEFAULT_FORMAT", "wav"),

		ChunkTargetSize: envInt("CHUNK_TARGET_SIZE", 1000),
		MinChapterChars: envInt("MIN_CHAPTER_CHARS", 50),

		DataDir: envOr("DATA_DIR", "data"),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 104857600
	}
	if cfg.DefaultSpeed <= 0 {
		cfg.DefaultSpeed = 1.0
	}
	if cfg.ChunkTargetSize <= 0 {
		cfg.ChunkTargetSize = 1000
	}
	if cfg.MinChapterChars <= 0 {
		cfg.MinChapterChars = 50
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.SynthURL == "" {
		return fmt.Errorf("SYNTH_URL is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("BOOKVOICE_API_KEY is required")
	}
	switch c.DefaultFormat {
	case "wav", "mp3":
	default:
		return fmt.Errorf("DEFAULT_FORMAT must be wav or mp3, got %q", c.DefaultFormat)
	}
	return nil
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

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
