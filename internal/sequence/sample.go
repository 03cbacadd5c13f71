// Package sequence samples a capture buffer, extracts landmarks per sampled
// frame and stacks them into normalized temporal tensors.
package sequence

import (
	"errors"
	"fmt"
	"math"

	"github.com/ayusman/hasta/internal/detector"
)

// ErrInsufficientFrames is returned when a capture buffer is too short to
// sample.
var ErrInsufficientFrames = errors.New("insufficient frames")

// Config holds sequence parameters.
type Config struct {
	// Length is the number of frames sampled from a capture.
	Length int
	// SkipFrames is the number of leading frames never sampled.
	SkipFrames int
	// TrimFrames is subtracted from the buffer length before spacing samples.
	TrimFrames int
	// FrameSize scales frame coordinates into unit range.
	FrameSize int
	// Workers bounds how many frames are extracted concurrently.
	Workers int
}

// DefaultConfig returns the parameters the classifier was trained with.
func DefaultConfig() Config {
	return Config{
		Length:     16,
		SkipFrames: 3,
		TrimFrames: 5,
		FrameSize:  detector.PoseInputSize,
		Workers:    1,
	}
}

// MinFrames returns the shortest capture buffer that can be sampled.
func (c Config) MinFrames() int {
	return c.Length + c.SkipFrames
}

// SampleIndices returns Length frame indices spread over a buffer of n
// frames: round(i*(n-TrimFrames)/Length) + SkipFrames, rounding half away
// from zero.
func SampleIndices(n int, cfg Config) ([]int, error) {
	if cfg.Length <= 0 {
		return nil, fmt.Errorf("sequence length must be positive, got %d", cfg.Length)
	}
	if n < cfg.MinFrames() {
		return nil, fmt.Errorf("%w: have %d, need at least %d", ErrInsufficientFrames, n, cfg.MinFrames())
	}

	step := float64(n-cfg.TrimFrames) / float64(cfg.Length)
	indices := make([]int, cfg.Length)
	for i := range indices {
		idx := int(math.Round(step*float64(i))) + cfg.SkipFrames
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("%w: sample %d maps to frame %d of %d", ErrInsufficientFrames, i, idx, n)
		}
		indices[i] = idx
	}
	return indices, nil
}
