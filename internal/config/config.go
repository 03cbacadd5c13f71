// Package config loads Hasta's configuration from the environment and an
// optional JSON tuning file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/hasta/internal/capture"
	"github.com/ayusman/hasta/internal/detector"
	"github.com/ayusman/hasta/internal/extract"
	"github.com/ayusman/hasta/internal/logging"
	"github.com/ayusman/hasta/internal/sequence"
	"github.com/ayusman/hasta/internal/signs"
)

// Config is the complete runtime configuration.
type Config struct {
	Server   ServerConfig
	Camera   CameraConfig
	Models   ModelsConfig
	Pipeline PipelineConfig
	Signs    SignsConfig
	Logging  logging.Config
	// TuningFile, when set, overrides Pipeline from a JSON file.
	TuningFile string
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr      string
	StaticDir string
	DBPath    string
}

// CameraConfig selects the capture device.
type CameraConfig struct {
	Enabled  bool
	DeviceID int
}

// ModelsConfig locates the model service and label vocabulary.
type ModelsConfig struct {
	Script      string
	Python      string
	IdleTimeout time.Duration
	Labels      string
}

// SignsConfig configures custom sign matching.
type SignsConfig struct {
	// K is the number of nearest samples that vote on a match.
	K int
}

// PipelineConfig holds the recognition constants.
type PipelineConfig struct {
	ScoreThreshold float64
	FrameSize      int
	OutputStride   int
	Length         int
	SkipFrames     int
	TrimFrames     int
	Workers        int
	Window         time.Duration
	Countdown      time.Duration
}

// Load reads the configuration from environment variables, applies the
// tuning file if HASTA_TUNING_FILE is set and validates the result.
func Load() (*Config, error) {
	ex := extract.DefaultConfig()
	seq := sequence.DefaultConfig()
	burst := capture.DefaultBurstConfig()

	cfg := &Config{
		Server: ServerConfig{
			Addr:      getEnv("HASTA_ADDR", ":8080"),
			StaticDir: getEnv("HASTA_STATIC_DIR", ""),
			DBPath:    getEnv("HASTA_DB", "hasta.db"),
		},
		Camera: CameraConfig{
			Enabled:  getEnvAsBool("HASTA_CAMERA", true),
			DeviceID: getEnvAsInt("HASTA_CAMERA_ID", 0),
		},
		Models: ModelsConfig{
			Script:      getEnv("HASTA_MODEL_SCRIPT", ""),
			Python:      getEnv("HASTA_PYTHON", ""),
			IdleTimeout: getEnvAsDuration("HASTA_MODEL_IDLE_TIMEOUT", detector.DefaultIdleTimeout),
			Labels:      getEnv("HASTA_LABELS", "configs/labels.txt"),
		},
		Pipeline: PipelineConfig{
			ScoreThreshold: getEnvAsFloat("HASTA_SCORE_THRESHOLD", ex.ScoreThreshold),
			FrameSize:      getEnvAsInt("HASTA_FRAME_SIZE", ex.FrameSize),
			OutputStride:   getEnvAsInt("HASTA_OUTPUT_STRIDE", ex.OutputStride),
			Length:         getEnvAsInt("HASTA_SEQUENCE_LENGTH", seq.Length),
			SkipFrames:     getEnvAsInt("HASTA_SKIP_FRAMES", seq.SkipFrames),
			TrimFrames:     getEnvAsInt("HASTA_TRIM_FRAMES", seq.TrimFrames),
			Workers:        getEnvAsInt("HASTA_WORKERS", seq.Workers),
			Window:         getEnvAsDuration("HASTA_CAPTURE_WINDOW", burst.Window),
			Countdown:      getEnvAsDuration("HASTA_COUNTDOWN", burst.Countdown),
		},
		Signs: SignsConfig{
			K: getEnvAsInt("HASTA_SIGNS_K", signs.DefaultK),
		},
		Logging: logging.Config{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "console"),
			File:       getEnv("LOG_FILE", ""),
			MaxSize:    getEnvAsInt("LOG_MAX_SIZE", 10),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
			MaxAge:     getEnvAsInt("LOG_MAX_AGE", 7),
		},
		TuningFile: getEnv("HASTA_TUNING_FILE", ""),
	}

	if cfg.TuningFile != "" {
		tuning, err := LoadTuningConfig(cfg.TuningFile)
		if err != nil {
			return nil, err
		}
		tuning.Apply(&cfg.Pipeline)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every violated constraint in one error.
func (c *Config) Validate() error {
	var errs []string

	p := c.Pipeline
	if p.ScoreThreshold < 0 || p.ScoreThreshold > 1 {
		errs = append(errs, "score threshold must be between 0 and 1")
	}
	if p.FrameSize <= 0 {
		errs = append(errs, "frame size must be positive")
	}
	if p.OutputStride <= 0 {
		errs = append(errs, "output stride must be positive")
	}
	if p.Length <= 0 {
		errs = append(errs, "sequence length must be positive")
	}
	if p.SkipFrames < 0 {
		errs = append(errs, "skip frames must be non-negative")
	}
	if p.TrimFrames < p.SkipFrames {
		errs = append(errs, "trim frames must not be less than skip frames")
	}
	if p.Workers < 1 {
		errs = append(errs, "workers must be at least 1")
	}
	if p.Window <= 0 {
		errs = append(errs, "capture window must be positive")
	}
	if p.Countdown < 0 {
		errs = append(errs, "countdown must be non-negative")
	}
	if c.Signs.K < 1 {
		errs = append(errs, "signs k must be at least 1")
	}
	if c.Server.DBPath == "" {
		errs = append(errs, "database path is required")
	}
	if c.Models.IdleTimeout <= 0 {
		errs = append(errs, "model idle timeout must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("unknown log format %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, ", "))
	}
	return nil
}

// Extract returns the frame extractor settings.
func (p PipelineConfig) Extract() extract.Config {
	return extract.Config{
		ScoreThreshold: p.ScoreThreshold,
		FrameSize:      p.FrameSize,
		OutputStride:   p.OutputStride,
	}
}

// Sequence returns the sampler and builder settings.
func (p PipelineConfig) Sequence() sequence.Config {
	return sequence.Config{
		Length:     p.Length,
		SkipFrames: p.SkipFrames,
		TrimFrames: p.TrimFrames,
		FrameSize:  p.FrameSize,
		Workers:    p.Workers,
	}
}

// Burst returns the capture settings.
func (p PipelineConfig) Burst() capture.BurstConfig {
	burst := capture.DefaultBurstConfig()
	burst.Window = p.Window
	burst.Countdown = p.Countdown
	burst.FrameSize = p.FrameSize
	return burst
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
