package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/ayusman/hasta/internal/app"
	"github.com/ayusman/hasta/internal/capture"
	"github.com/ayusman/hasta/internal/config"
	"github.com/ayusman/hasta/internal/sequence"
	"github.com/ayusman/hasta/internal/store"
)

const progressTemplate = `{{ string . "prefix" }} {{counters . }} {{bar . }} {{percent . }} {{etime . "%s elapsed"}}`

// classifyDir recognizes the image burst stored in dir and prints the top
// ranked labels.
func classifyDir(ctx context.Context, cfg *config.Config, dir string, logger *zap.Logger) error {
	rec, err := loadBurst(cfg, dir)
	if err != nil {
		return err
	}
	defer rec.Close()

	p, err := newPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer p.models.Close()

	bar := extractBar(cfg, p)
	a := app.New(app.Config{
		Builder:    p.builder,
		Dispatcher: p.dispatcher,
		Logger:     logger.Named("app"),
	})
	out, err := a.RecognizeRecording(ctx, rec, store.SourceFiles)
	bar.Finish()
	if err != nil {
		return err
	}

	printOutcome(os.Stdout, out)
	return nil
}

// loadBurst reads the images in dir with a progress bar.
func loadBurst(cfg *config.Config, dir string) (*capture.Recording, error) {
	files, err := capture.ImageFiles(dir)
	if err != nil {
		return nil, err
	}

	bar := pb.ProgressBarTemplate(progressTemplate).Start(len(files))
	bar.Set("prefix", "load   ")
	rec, err := capture.LoadDir(dir, cfg.Pipeline.FrameSize, func() { bar.Increment() })
	bar.Finish()
	return rec, err
}

// extractBar starts a progress bar advanced by every extracted frame.
func extractBar(cfg *config.Config, p *pipeline) *pb.ProgressBar {
	bar := pb.ProgressBarTemplate(progressTemplate).Start(cfg.Pipeline.Sequence().Length)
	bar.Set("prefix", "extract")
	p.builder.OnFrame(func(sequence.FrameEvent) { bar.Increment() })
	return bar
}

func printOutcome(w io.Writer, out *app.Outcome) {
	bold := color.New(color.Bold, color.FgGreen)
	dim := color.New(color.Faint)

	fmt.Fprintf(w, "%d frames, sampled %v\n", out.Recognition.FrameCount, out.Recognition.Indices)
	for i, s := range out.Top {
		line := fmt.Sprintf("%d. %-32s %6.2f%%", i+1, s.Label, s.Score*100)
		if i == 0 {
			bold.Fprintln(w, line)
			continue
		}
		dim.Fprintln(w, line)
	}
}
