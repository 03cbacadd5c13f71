// Package app runs sign recognitions end to end: capture, sampling,
// landmark extraction, classification, persistence and live publishing.
package app

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ayusman/hasta/internal/capture"
	"github.com/ayusman/hasta/internal/classify"
	"github.com/ayusman/hasta/internal/sequence"
	"github.com/ayusman/hasta/internal/signs"
	"github.com/ayusman/hasta/internal/store"
)

// DefaultTopN is the number of ranked scores kept with a recognition's
// summary.
const DefaultTopN = 5

var (
	// ErrBusy is returned when a recognition is already running.
	ErrBusy = errors.New("recognition already running")
	// ErrNoCamera is returned by Recognize when no recorder is configured.
	ErrNoCamera = errors.New("no camera configured")
	// ErrNoFeatures is returned when custom signs are used with a
	// classifier that reports no feature vector.
	ErrNoFeatures = errors.New("classifier reports no features")
)

// Publisher receives every extracted frame of a running recognition.
type Publisher interface {
	Publish(ev sequence.FrameEvent)
}

// Config holds the collaborators of an App. Builder and Dispatcher are
// required; Recorder, Store and Publisher are optional.
type Config struct {
	Recorder   *capture.Recorder
	Builder    *sequence.Builder
	Dispatcher *classify.Dispatcher
	Store      *store.Store
	Publisher  Publisher
	// Signs holds the custom sign samples. Nil means an empty matcher with
	// signs.DefaultK.
	Signs *signs.Matcher
	// TopN bounds Outcome.Top. Zero means DefaultTopN.
	TopN   int
	Logger *zap.Logger
}

// App orchestrates recognitions. Only one recognition runs at a time.
type App struct {
	config Config
	logger *zap.Logger

	mu      sync.Mutex
	running bool
}

// New creates an App and subscribes the publisher to the builder's frames.
func New(config Config) *App {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.TopN <= 0 {
		config.TopN = DefaultTopN
	}
	if config.Signs == nil {
		config.Signs = signs.NewMatcher(signs.DefaultK)
	}

	a := &App{
		config: config,
		logger: config.Logger,
	}

	if config.Publisher != nil && config.Builder != nil {
		config.Builder.OnFrame(config.Publisher.Publish)
	}

	return a
}

// HasCamera reports whether Recognize can capture from a camera.
func (a *App) HasCamera() bool {
	return a.config.Recorder != nil
}

// Store returns the configured store, or nil.
func (a *App) Store() *store.Store {
	return a.config.Store
}

// Running reports whether a recognition is in progress.
func (a *App) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *App) acquire() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return ErrBusy
	}
	a.running = true
	return nil
}

func (a *App) release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
}
