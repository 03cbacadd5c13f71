package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/hasta/internal/tensor"
)

// DefaultIdleTimeout is how long an unused model service is kept running.
const DefaultIdleTimeout = 30 * time.Second

// ProcessConfig configures a ProcessModel.
type ProcessConfig struct {
	// Script is the model service entry point. When empty the default
	// search locations are tried.
	Script string
	// Python is the interpreter used to run Script. When empty a virtual
	// environment interpreter is preferred over python3.
	Python string
	// IdleTimeout shuts the service down after this much inactivity.
	IdleTimeout time.Duration
	Logger      *zap.Logger
}

// ProcessModel runs the pose, face, hand and classifier models in an external
// service process. The process is started lazily on first use and stopped
// after an idle period.
//
// Each request is a JSON header line naming the model and the input shapes,
// followed by the inputs as little-endian float32 values. The service
// answers with one JSON line holding the output tensors or an error.
type ProcessModel struct {
	config    ProcessConfig
	script    string
	logger    *zap.Logger
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	lastUsed  time.Time
	idleTimer *time.Timer
}

// NewProcessModel creates a ProcessModel. It returns ErrModelUnavailable if
// the service script cannot be found.
func NewProcessModel(config ProcessConfig) (*ProcessModel, error) {
	script := config.Script
	if script == "" {
		script = findModelScript()
	}
	if script == "" {
		return nil, fmt.Errorf("%w: model_service.py not found", ErrModelUnavailable)
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ProcessModel{
		config: config,
		script: script,
		logger: logger,
	}, nil
}

// PredictPose implements PoseModel.
func (d *ProcessModel) PredictPose(ctx context.Context, image *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	out, err := d.infer(ctx, "pose", 2, image)
	if err != nil {
		return nil, nil, err
	}
	return out[0], out[1], nil
}

// PredictFace implements FaceModel.
func (d *ProcessModel) PredictFace(ctx context.Context, crop *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := d.infer(ctx, "face", 1, crop)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// PredictHand implements HandModel.
func (d *ProcessModel) PredictHand(ctx context.Context, crop *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := d.infer(ctx, "hand", 1, crop)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// PredictSign implements ClassifierModel. The service answers with the
// scores followed by the feature vector.
func (d *ProcessModel) PredictSign(ctx context.Context, pose, face, leftHand, rightHand *tensor.Tensor) ([]float32, []float32, error) {
	out, err := d.infer(ctx, "classifier", 2, pose, face, leftHand, rightHand)
	if err != nil {
		return nil, nil, err
	}
	return out[0].Data, out[1].Data, nil
}

// Close shuts down the service process.
func (d *ProcessModel) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

type request struct {
	Model  string  `json:"model"`
	Shapes [][]int `json:"shapes"`
}

type response struct {
	Outputs []tensor.Tensor `json:"outputs"`
	Error   string          `json:"error,omitempty"`
}

func (d *ProcessModel) infer(ctx context.Context, model string, want int, inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	// A cancelled request leaves the stream mid-message; kill the process
	// so the next call starts clean.
	proc := d.cmd.Process
	stop := context.AfterFunc(ctx, func() { proc.Kill() })
	defer stop()

	resp, err := d.exchange(model, inputs)
	if err != nil {
		d.logger.Warn("model service exchange failed", zap.String("model", model), zap.Error(err))
		d.shutdown()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, model, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s model: %s", model, resp.Error)
	}
	if len(resp.Outputs) != want {
		return nil, fmt.Errorf("%s model: %w: got %d outputs, want %d", model, tensor.ErrShapeMismatch, len(resp.Outputs), want)
	}

	out := make([]*tensor.Tensor, want)
	for i := range resp.Outputs {
		t, err := tensor.FromData(resp.Outputs[i].Data, resp.Outputs[i].Shape...)
		if err != nil {
			return nil, fmt.Errorf("%s model output %d: %w", model, i, err)
		}
		out[i] = t
	}

	d.lastUsed = time.Now()
	d.resetIdleTimer()

	return out, nil
}

func (d *ProcessModel) exchange(model string, inputs []*tensor.Tensor) (*response, error) {
	req := request{Model: model, Shapes: make([][]int, len(inputs))}
	for i, in := range inputs {
		req.Shapes[i] = in.Shape
	}
	header, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}

	w := bufio.NewWriter(d.stdin)
	w.Write(header)
	w.WriteByte('\n')
	buf := make([]byte, 4)
	for _, in := range inputs {
		for _, v := range in.Data {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			w.Write(buf)
		}
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	line, err := d.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &resp, nil
}

func (d *ProcessModel) ensureStarted() error {
	if d.started {
		return nil
	}

	pythonPath := d.config.Python
	if pythonPath == "" {
		pythonPath = findVenvPython()
	}
	if pythonPath == "" {
		pythonPath = "python3"
	}

	d.cmd = exec.Command(pythonPath, d.script)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("%w: start model service: %v", ErrModelUnavailable, err)
	}

	d.logger.Info("model service started",
		zap.String("python", pythonPath),
		zap.String("script", d.script),
		zap.Int("pid", d.cmd.Process.Pid))

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.lastUsed = time.Now()

	return nil
}

func (d *ProcessModel) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	d.logger.Debug("model service stopped", zap.Error(err))
	return err
}

func (d *ProcessModel) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleTimeout, d.idleShutdown)
}

// idleShutdown stops the service unless it was used within the idle
// timeout. A timer that fired while a request held the lock is stale.
func (d *ProcessModel) idleShutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if time.Since(d.lastUsed) < d.config.IdleTimeout {
		return
	}
	d.shutdown()
}

func findModelScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/model_service.py",
		"../scripts/model_service.py",
		filepath.Join(execDir, "scripts/model_service.py"),
		filepath.Join(os.Getenv("HOME"), ".hasta/scripts/model_service.py"),
	}
	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		"../../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".hasta/venv/bin/python"),
	}
	return firstExisting(candidates)
}

func firstExisting(candidates []string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
