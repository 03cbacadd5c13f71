package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayusman/hasta/internal/capture"
	"github.com/ayusman/hasta/internal/classify"
	"github.com/ayusman/hasta/internal/signs"
	"github.com/ayusman/hasta/internal/store"
)

// SignOutcome is the result of matching a capture against the custom signs.
type SignOutcome struct {
	Match *signs.Match
	// Result is the vocabulary classification of the same capture.
	Result *classify.Result
}

// Signs returns the custom sign matcher.
func (a *App) Signs() *signs.Matcher {
	return a.config.Signs
}

// SignLabels returns the custom sign labels with their sample counts.
func (a *App) SignLabels() []signs.LabelCount {
	return a.config.Signs.Labels()
}

// LoadSigns replaces the matcher's samples with those in the store. It is a
// no-op without a store.
func (a *App) LoadSigns() error {
	if a.config.Store == nil {
		return nil
	}

	stored, err := a.config.Store.Signs().List()
	if err != nil {
		return fmt.Errorf("load sign samples: %w", err)
	}
	samples := make([]*signs.Sample, len(stored))
	for i, s := range stored {
		samples[i] = &signs.Sample{ID: s.ID, Label: s.Label, Features: s.Features}
	}
	if err := a.config.Signs.Reset(samples); err != nil {
		return fmt.Errorf("load sign samples: %w", err)
	}

	a.logger.Info("custom signs loaded",
		zap.Int("samples", len(samples)),
		zap.Int("labels", len(a.config.Signs.Labels())))
	return nil
}

// RecordSign records a burst from the camera and keeps it as a sample of
// label.
func (a *App) RecordSign(ctx context.Context, label string) (*store.SignSample, error) {
	if err := signs.ValidateLabel(label); err != nil {
		return nil, err
	}
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

	return a.addSample(ctx, rec, label)
}

// RecordSignRecording keeps an already captured burst as a sample of label.
// The caller keeps ownership of rec.
func (a *App) RecordSignRecording(ctx context.Context, rec *capture.Recording, label string) (*store.SignSample, error) {
	if err := signs.ValidateLabel(label); err != nil {
		return nil, err
	}
	if err := a.acquire(); err != nil {
		return nil, err
	}
	defer a.release()

	return a.addSample(ctx, rec, label)
}

// MatchSign records a burst from the camera and labels it by the nearest
// custom sign samples.
func (a *App) MatchSign(ctx context.Context) (*SignOutcome, error) {
	if a.config.Recorder == nil {
		return nil, ErrNoCamera
	}
	if a.config.Signs.Len() == 0 {
		return nil, signs.ErrNoSamples
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

	return a.match(ctx, rec)
}

// MatchSignRecording labels an already captured burst by the nearest custom
// sign samples. The caller keeps ownership of rec.
func (a *App) MatchSignRecording(ctx context.Context, rec *capture.Recording) (*SignOutcome, error) {
	if a.config.Signs.Len() == 0 {
		return nil, signs.ErrNoSamples
	}
	if err := a.acquire(); err != nil {
		return nil, err
	}
	defer a.release()

	return a.match(ctx, rec)
}

// DeleteSign removes every sample of label from the store and the matcher
// and returns how many were removed.
func (a *App) DeleteSign(label string) (int, error) {
	if a.config.Store != nil {
		if _, err := a.config.Store.Signs().DeleteByLabel(label); err != nil {
			return 0, fmt.Errorf("delete sign samples: %w", err)
		}
	}
	n := a.config.Signs.RemoveLabel(label)
	if n > 0 {
		a.logger.Info("custom sign deleted", zap.String("label", label), zap.Int("samples", n))
	}
	return n, nil
}

func (a *App) addSample(ctx context.Context, rec *capture.Recording, label string) (*store.SignSample, error) {
	features, _, err := a.embed(ctx, rec)
	if err != nil {
		return nil, err
	}

	sample := &store.SignSample{ID: uuid.New().String(), Label: label, Features: features}
	if err := a.config.Signs.Add(&signs.Sample{ID: sample.ID, Label: label, Features: features}); err != nil {
		return nil, fmt.Errorf("add sign sample: %w", err)
	}

	if a.config.Store != nil {
		if err := a.config.Store.Signs().Create(sample); err != nil {
			a.config.Signs.RemoveID(sample.ID)
			return nil, fmt.Errorf("save sign sample: %w", err)
		}
	} else {
		sample.CreatedAt = time.Now()
	}

	a.logger.Info("custom sign sample recorded",
		zap.String("id", sample.ID),
		zap.String("label", label),
		zap.Int("features", len(features)),
		zap.Int("frames", rec.Len()))

	return sample, nil
}

func (a *App) match(ctx context.Context, rec *capture.Recording) (*SignOutcome, error) {
	features, result, err := a.embed(ctx, rec)
	if err != nil {
		return nil, err
	}

	m, err := a.config.Signs.Match(features)
	if err != nil {
		return nil, fmt.Errorf("match sign: %w", err)
	}

	a.logger.Info("custom sign matched",
		zap.String("label", m.Label),
		zap.Int("votes", m.Votes),
		zap.Float64("nearest", m.Neighbors[0].Distance))

	return &SignOutcome{Match: m, Result: result}, nil
}

// embed runs the pipeline on rec and returns the classifier's feature
// vector.
func (a *App) embed(ctx context.Context, rec *capture.Recording) ([]float64, *classify.Result, error) {
	_, result, err := a.analyze(ctx, rec)
	if err != nil {
		return nil, nil, err
	}
	if len(result.Features) == 0 {
		return nil, nil, ErrNoFeatures
	}
	return signs.Features(result.Features), result, nil
}
