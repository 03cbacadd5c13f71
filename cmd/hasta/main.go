package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ayusman/hasta/internal/app"
	"github.com/ayusman/hasta/internal/capture"
	"github.com/ayusman/hasta/internal/classify"
	"github.com/ayusman/hasta/internal/config"
	"github.com/ayusman/hasta/internal/detector"
	"github.com/ayusman/hasta/internal/extract"
	"github.com/ayusman/hasta/internal/logging"
	"github.com/ayusman/hasta/internal/sequence"
	"github.com/ayusman/hasta/internal/server"
	"github.com/ayusman/hasta/internal/signs"
	"github.com/ayusman/hasta/internal/store"
)

const usage = `Hasta - Sign Language Recognition

Usage:
  hasta serve                start the HTTP service (default)
  hasta classify <dir>       recognize the image burst in <dir>
  hasta sign <label> <dir>   keep the burst in <dir> as a custom sign sample
  hasta match <dir>          label the burst in <dir> by the custom signs
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env file is fine; the environment may be set directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error loading .env file: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "classify":
		if len(args) != 1 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		err = classifyDir(ctx, cfg, args[0], logger)
	case "sign":
		if len(args) != 2 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		err = addSignDir(ctx, cfg, args[0], args[1], logger)
	case "match":
		if len(args) != 1 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		err = matchDir(ctx, cfg, args[0], logger)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("command failed", zap.String("command", cmd), zap.Error(err))
		os.Exit(1)
	}
}

// pipeline holds the recognition collaborators built from cfg.
type pipeline struct {
	models     *detector.ProcessModel
	builder    *sequence.Builder
	dispatcher *classify.Dispatcher
}

// newPipeline starts nothing: the model service is launched on first use.
func newPipeline(cfg *config.Config, logger *zap.Logger) (*pipeline, error) {
	models, err := detector.NewProcessModel(detector.ProcessConfig{
		Script:      cfg.Models.Script,
		Python:      cfg.Models.Python,
		IdleTimeout: cfg.Models.IdleTimeout,
		Logger:      logger.Named("models"),
	})
	if err != nil {
		return nil, err
	}

	vocab, err := classify.LoadVocabulary(cfg.Models.Labels)
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}

	ex := extract.New(
		extract.Models{Pose: models, Face: models, Hand: models},
		extract.WarpCropper{},
		cfg.Pipeline.Extract(),
		logger.Named("extract"),
	)
	seq := cfg.Pipeline.Sequence()

	return &pipeline{
		models:     models,
		builder:    sequence.NewBuilder(ex, seq, logger.Named("sequence")),
		dispatcher: classify.NewDispatcher(models, vocab, seq.Length, logger.Named("classify")),
	}, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	staticDir := cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		logger.Info("serving static files", zap.String("dir", staticDir))
	}

	landmarks := server.NewLandmarksHandler(logger.Named("ws"))
	srvCfg := server.Config{
		StaticDir: staticDir,
		Store:     st,
		Landmarks: landmarks,
		Logger:    logger.Named("http"),
	}

	p, err := newPipeline(cfg, logger)
	switch {
	case err != nil:
		logger.Warn("recognition not available", zap.Error(err))
	case !cfg.Camera.Enabled:
		defer p.models.Close()
		logger.Warn("camera disabled, recognition not available")
	default:
		defer p.models.Close()
		camera := capture.NewCamera(cfg.Camera.DeviceID)
		defer camera.Close()

		recorder := capture.NewRecorder(camera, cfg.Pipeline.Burst(), logger.Named("capture"))
		recorder.OnCountdown(func(remaining int) {
			logger.Info("capture starting", zap.Int("seconds", remaining))
		})

		a := app.New(app.Config{
			Recorder:   recorder,
			Builder:    p.builder,
			Dispatcher: p.dispatcher,
			Store:      st,
			Publisher:  landmarks,
			Signs:      signs.NewMatcher(cfg.Signs.K),
			Logger:     logger.Named("app"),
		})
		if err := a.LoadSigns(); err != nil {
			return err
		}
		srvCfg.Recognizer = a
		srvCfg.Signs = a
	}

	srv := server.New(srvCfg)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe(cfg.Server.Addr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
}

// openStore opens the database, creating its directory if needed.
func openStore(cfg *config.Config) (*store.Store, error) {
	if dir := filepath.Dir(cfg.Server.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	st, err := store.New(cfg.Server.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}
	return st, nil
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.hasta/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".hasta", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
