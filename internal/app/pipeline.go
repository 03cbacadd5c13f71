package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayusman/hasta/internal/capture"
	"github.com/ayusman/hasta/internal/classify"
	"github.com/ayusman/hasta/internal/sequence"
	"github.com/ayusman/hasta/internal/store"
)

// Outcome is the result of one recognition.
type Outcome struct {
	Recognition *store.Recognition
	Result      *classify.Result
	// Top holds the highest ranked scores, at most Config.TopN.
	Top   []classify.Score
	Stack *sequence.Stack
}

// Recognize records a burst from the camera and recognizes it.
func (a *App) Recognize(ctx context.Context) (*Outcome, error) {
	if a.config.Recorder == nil {
		return nil, ErrNoCamera
	}
	if err := a.acquire(); err != nil {
		return nil, err
	}
	defer a.release()

	rec, err := a.record(ctx)
	if err != nil {
		return nil, err
	}
	defer a.closeRecording(rec)

	return a.process(ctx, rec, store.SourceCamera)
}

// RecognizeRecording recognizes an already captured burst. The caller keeps
// ownership of rec.
func (a *App) RecognizeRecording(ctx context.Context, rec *capture.Recording, source store.Source) (*Outcome, error) {
	if err := a.acquire(); err != nil {
		return nil, err
	}
	defer a.release()

	return a.process(ctx, rec, source)
}

// process runs the pipeline on a recording:
// 1. sample and extract landmarks from the buffer
// 2. classify the normalized stack
// 3. persist the recognition when a store is configured
func (a *App) process(ctx context.Context, rec *capture.Recording, source store.Source) (*Outcome, error) {
	start := time.Now()

	stack, result, err := a.analyze(ctx, rec)
	if err != nil {
		return nil, err
	}

	ranked := result.Ranked()
	out := &Outcome{
		Recognition: &store.Recognition{
			ID:         uuid.New().String(),
			Label:      result.Label,
			Score:      result.Scores[result.Index].Score,
			Source:     source,
			FrameCount: rec.Len(),
			Indices:    stack.Indices,
		},
		Result: result,
		Top:    ranked[:min(a.config.TopN, len(ranked))],
		Stack:  stack,
	}

	if a.config.Store != nil {
		if err := a.config.Store.Recognitions().Create(out.Recognition, scoreEntries(ranked), frameRecords(stack)); err != nil {
			return nil, fmt.Errorf("save recognition: %w", err)
		}
	}

	a.logger.Info("sign recognized",
		zap.String("id", out.Recognition.ID),
		zap.String("label", result.Label),
		zap.Float64("score", out.Recognition.Score),
		zap.Int("frames", rec.Len()),
		zap.Duration("elapsed", time.Since(start)))

	return out, nil
}

// analyze builds the normalized stack of a recording and classifies it.
func (a *App) analyze(ctx context.Context, rec *capture.Recording) (*sequence.Stack, *classify.Result, error) {
	stack, err := a.config.Builder.Build(ctx, rec.Frames)
	if err != nil {
		return nil, nil, fmt.Errorf("build sequence: %w", err)
	}

	result, err := a.config.Dispatcher.Classify(ctx, stack)
	if err != nil {
		return nil, nil, fmt.Errorf("classify: %w", err)
	}
	return stack, result, nil
}

func (a *App) record(ctx context.Context) (*capture.Recording, error) {
	rec, err := a.config.Recorder.Record(ctx)
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}
	return rec, nil
}

func (a *App) closeRecording(rec *capture.Recording) {
	if err := rec.Close(); err != nil {
		a.logger.Warn("failed to release recording", zap.Error(err))
	}
}

func scoreEntries(ranked []classify.Score) []store.ScoreEntry {
	entries := make([]store.ScoreEntry, len(ranked))
	for i, s := range ranked {
		entries[i] = store.ScoreEntry{Rank: i + 1, Label: s.Label, Score: s.Score}
	}
	return entries
}

func frameRecords(stack *sequence.Stack) []store.FrameRecord {
	records := make([]store.FrameRecord, stack.Len())
	for i := range stack.Frames {
		f := &stack.Frames[i]
		records[i] = store.FrameRecord{
			Step:        i,
			SourceIndex: stack.Indices[i],
			Visibility:  f.Visibility(),
			Landmarks:   *f,
		}
	}
	return records
}
