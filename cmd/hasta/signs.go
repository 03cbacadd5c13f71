package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/ayusman/hasta/internal/app"
	"github.com/ayusman/hasta/internal/config"
	"github.com/ayusman/hasta/internal/signs"
	"github.com/ayusman/hasta/internal/store"
)

// newSignApp opens the store and builds an App with the stored custom signs
// loaded. The returned cleanup closes both.
func newSignApp(cfg *config.Config, logger *zap.Logger) (*app.App, *pipeline, func(), error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	p, err := newPipeline(cfg, logger)
	if err != nil {
		st.Close()
		return nil, nil, nil, err
	}
	cleanup := func() {
		p.models.Close()
		st.Close()
	}

	a := app.New(app.Config{
		Builder:    p.builder,
		Dispatcher: p.dispatcher,
		Store:      st,
		Signs:      signs.NewMatcher(cfg.Signs.K),
		Logger:     logger.Named("app"),
	})
	if err := a.LoadSigns(); err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return a, p, cleanup, nil
}

// addSignDir keeps the image burst in dir as a sample of label.
func addSignDir(ctx context.Context, cfg *config.Config, label, dir string, logger *zap.Logger) error {
	if err := signs.ValidateLabel(label); err != nil {
		return err
	}

	rec, err := loadBurst(cfg, dir)
	if err != nil {
		return err
	}
	defer rec.Close()

	a, p, cleanup, err := newSignApp(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	bar := extractBar(cfg, p)
	sample, err := a.RecordSignRecording(ctx, rec, label)
	bar.Finish()
	if err != nil {
		return err
	}

	printSample(os.Stdout, sample, a.SignLabels())
	return nil
}

// matchDir labels the image burst in dir by the stored custom signs.
func matchDir(ctx context.Context, cfg *config.Config, dir string, logger *zap.Logger) error {
	rec, err := loadBurst(cfg, dir)
	if err != nil {
		return err
	}
	defer rec.Close()

	a, p, cleanup, err := newSignApp(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	bar := extractBar(cfg, p)
	out, err := a.MatchSignRecording(ctx, rec)
	bar.Finish()
	if err != nil {
		return err
	}

	printMatch(os.Stdout, out)
	return nil
}

func printSample(w io.Writer, sample *store.SignSample, labels []signs.LabelCount) {
	color.New(color.Bold, color.FgGreen).Fprintf(w, "recorded %q (%d features)\n", sample.Label, len(sample.Features))
	for _, l := range labels {
		fmt.Fprintf(w, "  %-32s %d samples\n", l.Label, l.Samples)
	}
}

func printMatch(w io.Writer, out *app.SignOutcome) {
	bold := color.New(color.Bold, color.FgGreen)
	dim := color.New(color.Faint)

	bold.Fprintf(w, "%s (%d of %d votes)\n", out.Match.Label, out.Match.Votes, len(out.Match.Neighbors))
	for i, n := range out.Match.Neighbors {
		dim.Fprintf(w, "%d. %-32s %.4f\n", i+1, n.Sample.Label, n.Distance)
	}
}
