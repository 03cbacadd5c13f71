package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Default burst settings.
const (
	DefaultWindow    = 3 * time.Second
	DefaultCountdown = 3 * time.Second
	DefaultFrameSize = 257
	DefaultMaxFrames = 300
)

// BurstConfig configures a Recorder.
type BurstConfig struct {
	// Window is how long frames are captured for.
	Window time.Duration
	// Countdown is waited before capture starts, ticking once per second.
	Countdown time.Duration
	// FrameSize is the side of the square frames stored in a Recording.
	FrameSize int
	// MaxFrames stops the capture early once reached.
	MaxFrames int
}

// DefaultBurstConfig returns the capture settings the sampler is tuned for.
func DefaultBurstConfig() BurstConfig {
	return BurstConfig{
		Window:    DefaultWindow,
		Countdown: DefaultCountdown,
		FrameSize: DefaultFrameSize,
		MaxFrames: DefaultMaxFrames,
	}
}

// Recording is a burst of square frames. Close releases the frames.
type Recording struct {
	Frames  []gocv.Mat
	Started time.Time
	Elapsed time.Duration
}

// Len returns the number of frames.
func (r *Recording) Len() int {
	return len(r.Frames)
}

// Close releases every frame.
func (r *Recording) Close() error {
	var errs []error
	for i := range r.Frames {
		if err := r.Frames[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.Frames = nil
	return errors.Join(errs...)
}

// Recorder captures fixed-length bursts from a camera.
type Recorder struct {
	camera      Camera
	config      BurstConfig
	logger      *zap.Logger
	onCountdown func(remaining int)
}

// NewRecorder creates a Recorder.
func NewRecorder(camera Camera, config BurstConfig, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.FrameSize <= 0 {
		config.FrameSize = DefaultFrameSize
	}
	return &Recorder{
		camera: camera,
		config: config,
		logger: logger,
	}
}

// OnCountdown registers fn to be called with the seconds remaining before
// capture starts.
func (r *Recorder) OnCountdown(fn func(remaining int)) {
	r.onCountdown = fn
}

// Record waits for the countdown, then reads frames until the window
// elapses, MaxFrames is reached, or a finite camera runs out. Each frame is
// centre-cropped to a square and resized to FrameSize. Cancelling ctx
// aborts the recording.
func (r *Recorder) Record(ctx context.Context) (*Recording, error) {
	if !r.camera.IsOpen() {
		if err := r.camera.Open(); err != nil {
			return nil, err
		}
	}

	if err := r.countdown(ctx); err != nil {
		return nil, err
	}

	rec := &Recording{Started: time.Now()}
	deadline := rec.Started.Add(r.config.Window)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			rec.Close()
			return nil, err
		}
		if r.config.MaxFrames > 0 && rec.Len() >= r.config.MaxFrames {
			break
		}

		frame, err := r.camera.ReadFrame()
		if errors.Is(err, ErrNoMoreFrames) {
			break
		}
		if err != nil {
			rec.Close()
			return nil, fmt.Errorf("record frame %d: %w", rec.Len(), err)
		}

		square, err := Square(*frame, r.config.FrameSize)
		frame.Close()
		if err != nil {
			rec.Close()
			return nil, err
		}
		rec.Frames = append(rec.Frames, square)
	}
	rec.Elapsed = time.Since(rec.Started)

	r.logger.Info("burst recorded",
		zap.Int("frames", rec.Len()),
		zap.Duration("elapsed", rec.Elapsed))

	return rec, nil
}

func (r *Recorder) countdown(ctx context.Context) error {
	remaining := int(r.config.Countdown / time.Second)
	if remaining <= 0 {
		return nil
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for ; remaining > 0; remaining-- {
		if r.onCountdown != nil {
			r.onCountdown(remaining)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Square centre-crops src to a square and resizes it to size x size. The
// caller owns the returned Mat.
func Square(src gocv.Mat, size int) (gocv.Mat, error) {
	if src.Empty() {
		return gocv.NewMat(), errors.New("square: empty frame")
	}

	w, h := src.Cols(), src.Rows()
	side := min(w, h)
	rect := image.Rect((w-side)/2, (h-side)/2, (w-side)/2+side, (h-side)/2+side)

	roi := src.Region(rect)
	defer roi.Close()

	out := gocv.NewMat()
	if err := gocv.Resize(roi, &out, image.Pt(size, size), 0, 0, gocv.InterpolationArea); err != nil {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("square: %w", err)
	}
	return out, nil
}
