package sequence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/hasta/internal/detector"
	"github.com/ayusman/hasta/internal/extract"
)

// FrameExtractor extracts landmarks from one frame.
type FrameExtractor interface {
	Extract(ctx context.Context, frame *gocv.Mat) (*extract.Result, error)
}

// FrameEvent reports one extracted frame of a sequence.
type FrameEvent struct {
	// Step is the position in the sequence.
	Step int
	// Source is the position in the capture buffer.
	Source int
	Result *extract.Result
}

// Builder turns capture buffers into normalized stacks.
type Builder struct {
	extractor FrameExtractor
	config    Config
	logger    *zap.Logger

	mu      sync.Mutex
	onFrame func(FrameEvent)
}

// NewBuilder creates a Builder.
func NewBuilder(extractor FrameExtractor, config Config, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	return &Builder{
		extractor: extractor,
		config:    config,
		logger:    logger,
	}
}

// Config returns the builder's configuration.
func (b *Builder) Config() Config {
	return b.config
}

// OnFrame registers fn to be called after each frame is extracted. Calls are
// serialized but, with more than one worker, not in sequence order.
func (b *Builder) OnFrame(fn func(FrameEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onFrame = fn
}

// Build samples frames, extracts each sampled frame and returns the scaled,
// normalized stack. It fails with ErrInsufficientFrames before any
// extraction if the buffer is too short.
func (b *Builder) Build(ctx context.Context, frames []gocv.Mat) (*Stack, error) {
	indices, err := SampleIndices(len(frames), b.config)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	landmarks := make([]detector.FrameLandmarks, len(indices))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.config.Workers)

	for step, src := range indices {
		g.Go(func() error {
			res, err := b.extractor.Extract(gctx, &frames[src])
			if err != nil {
				return fmt.Errorf("frame %d: %w", src, err)
			}
			landmarks[step] = res.Landmarks
			b.notify(FrameEvent{Step: step, Source: src, Result: res})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stack := Assemble(landmarks, float64(b.config.FrameSize))
	stack.Indices = indices
	stack.Normalize()

	b.logger.Info("sequence built",
		zap.Int("frames", len(frames)),
		zap.Ints("indices", indices),
		zap.Duration("elapsed", time.Since(start)))

	return stack, nil
}

func (b *Builder) notify(ev FrameEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.onFrame != nil {
		b.onFrame(ev)
	}
}
