package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// maxTuningFileSize caps the tuning file at 1MB.
const maxTuningFileSize = 1 << 20

// TuningConfig overrides pipeline constants. Fields omitted from the JSON
// file keep the values from the environment or the defaults.
type TuningConfig struct {
	// Extraction params
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`
	FrameSize      *int     `json:"frame_size,omitempty"`
	OutputStride   *int     `json:"output_stride,omitempty"`

	// Sampling params
	SequenceLength *int `json:"sequence_length,omitempty"`
	SkipFrames     *int `json:"skip_frames,omitempty"`
	TrimFrames     *int `json:"trim_frames,omitempty"`
	Workers        *int `json:"workers,omitempty"`

	// Capture params
	CaptureWindow *string `json:"capture_window,omitempty"` // duration string like "3s"
	Countdown     *string `json:"countdown,omitempty"`
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and be at most 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tuning file: %w", err)
	}
	if fileInfo.Size() > maxTuningFileSize {
		return nil, fmt.Errorf("tuning file too large: %d bytes (max %d)", fileInfo.Size(), maxTuningFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}

	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse tuning JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning file: %w", err)
	}

	return cfg, nil
}

// Validate checks the fields that are set.
func (c *TuningConfig) Validate() error {
	if c.ScoreThreshold != nil {
		if *c.ScoreThreshold < 0 || *c.ScoreThreshold > 1 {
			return fmt.Errorf("score_threshold must be between 0 and 1, got %f", *c.ScoreThreshold)
		}
	}
	if c.CaptureWindow != nil {
		if _, err := time.ParseDuration(*c.CaptureWindow); err != nil {
			return fmt.Errorf("invalid capture_window '%s': %w", *c.CaptureWindow, err)
		}
	}
	if c.Countdown != nil {
		if _, err := time.ParseDuration(*c.Countdown); err != nil {
			return fmt.Errorf("invalid countdown '%s': %w", *c.Countdown, err)
		}
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	return nil
}

// Apply copies every set field onto p.
func (c *TuningConfig) Apply(p *PipelineConfig) {
	if c.ScoreThreshold != nil {
		p.ScoreThreshold = *c.ScoreThreshold
	}
	if c.FrameSize != nil {
		p.FrameSize = *c.FrameSize
	}
	if c.OutputStride != nil {
		p.OutputStride = *c.OutputStride
	}
	if c.SequenceLength != nil {
		p.Length = *c.SequenceLength
	}
	if c.SkipFrames != nil {
		p.SkipFrames = *c.SkipFrames
	}
	if c.TrimFrames != nil {
		p.TrimFrames = *c.TrimFrames
	}
	if c.Workers != nil {
		p.Workers = *c.Workers
	}
	// Durations were checked by Validate.
	if c.CaptureWindow != nil {
		p.Window, _ = time.ParseDuration(*c.CaptureWindow)
	}
	if c.Countdown != nil {
		p.Countdown, _ = time.ParseDuration(*c.Countdown)
	}
}
