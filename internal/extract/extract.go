// Package extract turns one camera frame into pose, face and hand landmarks
// in frame coordinates.
package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/hasta/internal/detector"
	"github.com/ayusman/hasta/internal/region"
	"github.com/ayusman/hasta/internal/tensor"
)

// ErrEmptyFrame is returned when Extract is given a nil or empty frame.
var ErrEmptyFrame = errors.New("empty frame")

// Config holds extraction parameters.
type Config struct {
	// ScoreThreshold is the minimum keypoint score for a joint to count as
	// detected. Joints scoring below it are zeroed.
	ScoreThreshold float64
	// FrameSize is the side of the square frame the pose model runs on.
	FrameSize int
	// OutputStride is the pose heatmap stride.
	OutputStride int
}

// DefaultConfig returns the extraction parameters the models were trained with.
func DefaultConfig() Config {
	return Config{
		ScoreThreshold: 0.35,
		FrameSize:      detector.PoseInputSize,
		OutputStride:   detector.DefaultOutputStride,
	}
}

// Models bundles the inference models used per frame.
type Models struct {
	Pose detector.PoseModel
	Face detector.FaceModel
	Hand detector.HandModel
}

// Cropper converts frames into model inputs. Every Mat or tensor it creates
// is tracked by the given arena.
type Cropper interface {
	// PoseInput converts a square frame into a [1,S,S,3] RGB tensor in [-1,1].
	PoseInput(frame *gocv.Mat, arena *tensor.Arena) (*tensor.Tensor, error)
	// Crop cuts the rotated region c out of frame and returns a
	// [1,N,N,3] RGB tensor in [0,1], where N is c.NetSize.
	Crop(frame *gocv.Mat, c region.Crop, arena *tensor.Arena) (*tensor.Tensor, error)
}

// HandState is the region derived for one hand in one frame.
type HandState struct {
	Wrist  detector.Point     `json:"wrist"`
	Midfin detector.Point     `json:"midfin"`
	Region region.Descriptor `json:"region"`
	// Found is true when both anchors scored at or above the threshold.
	Found bool `json:"found"`
}

// FaceState is the region derived for the face in one frame.
type FaceState struct {
	LeftEar  detector.Point     `json:"leftEar"`
	RightEar detector.Point     `json:"rightEar"`
	Region   region.Descriptor `json:"region"`
}

// Result is everything extracted from one frame.
type Result struct {
	Landmarks detector.FrameLandmarks `json:"landmarks"`
	Pose      *detector.Pose          `json:"pose"`
	LeftHand  HandState               `json:"leftHand"`
	RightHand HandState               `json:"rightHand"`
	Face      FaceState               `json:"face"`
}

// Extractor produces FrameLandmarks from frames. It holds no per-frame state
// and is safe for concurrent use if its models and cropper are.
type Extractor struct {
	models  Models
	cropper Cropper
	config  Config
	logger  *zap.Logger
}

// New creates an Extractor.
func New(models Models, cropper Cropper, config Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		models:  models,
		cropper: cropper,
		config:  config,
		logger:  logger,
	}
}

// Config returns the extractor's configuration.
func (e *Extractor) Config() Config {
	return e.config
}

// Extract runs pose, hand and face inference on frame. Resources allocated
// for the frame are released before it returns, on every path.
func (e *Extractor) Extract(ctx context.Context, frame *gocv.Mat) (*Result, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyFrame
	}

	start := time.Now()
	arena := tensor.NewArena()
	defer func() {
		if err := arena.Release(); err != nil {
			e.logger.Warn("release frame resources", zap.Error(err))
		}
	}()

	frame, err := e.square(frame, arena)
	if err != nil {
		return nil, err
	}

	pose, err := e.detectPose(ctx, frame, arena)
	if err != nil {
		return nil, err
	}

	res := &Result{Pose: pose}
	joints := e.filterJoints(pose)
	for i, part := range detector.TrackedParts {
		res.Landmarks.Pose[i] = joints[part]
	}

	res.LeftHand = e.handState(pose, detector.LeftWrist, detector.LeftMidfin)
	res.RightHand = e.handState(pose, detector.RightWrist, detector.RightMidfin)

	res.Landmarks.LeftHand, err = e.predictHand(ctx, frame, res.LeftHand, arena)
	if err != nil {
		return nil, fmt.Errorf("left hand: %w", err)
	}
	res.Landmarks.RightHand, err = e.predictHand(ctx, frame, res.RightHand, arena)
	if err != nil {
		return nil, fmt.Errorf("right hand: %w", err)
	}

	// The face has no found gate: the ears are used as filtered, even when
	// zeroed, and only a zero-size region is skipped.
	res.Face = FaceState{
		LeftEar:  joints[detector.LeftEar],
		RightEar: joints[detector.RightEar],
	}
	res.Face.Region = region.Estimate(res.Face.LeftEar, res.Face.RightEar, region.Face)

	res.Landmarks.Face, err = e.predictFace(ctx, frame, res.Face, arena)
	if err != nil {
		return nil, fmt.Errorf("face: %w", err)
	}

	e.logger.Debug("frame extracted",
		zap.Duration("elapsed", time.Since(start)),
		zap.Float64("poseScore", pose.Score),
		zap.Bool("leftHand", res.LeftHand.Found),
		zap.Bool("rightHand", res.RightHand.Found))

	return res, nil
}

// square resizes frame to the configured frame size if needed.
func (e *Extractor) square(frame *gocv.Mat, arena *tensor.Arena) (*gocv.Mat, error) {
	size := e.config.FrameSize
	if frame.Rows() == size && frame.Cols() == size {
		return frame, nil
	}
	resized := gocv.NewMat()
	arena.Track(&resized)
	if err := gocv.Resize(*frame, &resized, image.Pt(size, size), 0, 0, gocv.InterpolationLinear); err != nil {
		return nil, fmt.Errorf("resize frame: %w", err)
	}
	return &resized, nil
}

func (e *Extractor) detectPose(ctx context.Context, frame *gocv.Mat, arena *tensor.Arena) (*detector.Pose, error) {
	if e.models.Pose == nil {
		return nil, fmt.Errorf("pose: %w", detector.ErrModelUnavailable)
	}
	input, err := e.cropper.PoseInput(frame, arena)
	if err != nil {
		return nil, fmt.Errorf("pose input: %w", err)
	}
	heatmap, offsets, err := e.models.Pose.PredictPose(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("pose model: %w", err)
	}
	pose, err := detector.DecodePose(heatmap, offsets, e.config.OutputStride)
	if err != nil {
		return nil, err
	}
	return pose, nil
}

// filterJoints returns keypoint positions with low-scoring tracked joints
// zeroed. Untracked joints are returned unchanged.
func (e *Extractor) filterJoints(pose *detector.Pose) [detector.NumParts]detector.Point {
	var joints [detector.NumParts]detector.Point
	for i, kp := range pose.Keypoints {
		joints[i] = kp.Position
	}
	for _, part := range detector.TrackedParts {
		if e.below(pose.Keypoints[part].Score) {
			joints[part] = detector.Point{}
		}
	}
	return joints
}

// below reports whether score is under the threshold. Scores come from
// float32 tensors, so the comparison is made at that precision.
func (e *Extractor) below(score float64) bool {
	return float32(score) < float32(e.config.ScoreThreshold)
}

func (e *Extractor) handState(pose *detector.Pose, wrist, midfin int) HandState {
	w, m := pose.Keypoints[wrist], pose.Keypoints[midfin]
	found := !e.below(w.Score) && !e.below(m.Score)
	if !found {
		return HandState{}
	}
	return HandState{
		Wrist:  w.Position,
		Midfin: m.Position,
		Region: region.Estimate(w.Position, m.Position, region.Hand),
		Found:  true,
	}
}

func (e *Extractor) predictHand(ctx context.Context, frame *gocv.Mat, hand HandState, arena *tensor.Arena) ([detector.NumHandPoints]detector.Point, error) {
	var out [detector.NumHandPoints]detector.Point
	if !hand.Found {
		return out, nil
	}
	if !hand.Region.Usable() {
		e.logger.Debug("hand region degenerate", zap.Any("wrist", hand.Wrist))
		return out, nil
	}
	if e.models.Hand == nil {
		return out, detector.ErrModelUnavailable
	}

	c := hand.Region.Crop(region.Hand)
	input, err := e.cropper.Crop(frame, c, arena)
	if err != nil {
		return out, fmt.Errorf("crop: %w", err)
	}
	raw, err := e.models.Hand.PredictHand(ctx, input)
	if err != nil {
		return out, fmt.Errorf("hand model: %w", err)
	}
	local, err := detector.ReadPoints(raw, detector.NumHandPoints)
	if err != nil {
		return out, err
	}
	copy(out[:], c.ToGlobal(local))
	return out, nil
}

func (e *Extractor) predictFace(ctx context.Context, frame *gocv.Mat, face FaceState, arena *tensor.Arena) ([detector.NumFacePoints]detector.Point, error) {
	var out [detector.NumFacePoints]detector.Point
	if !face.Region.Usable() {
		e.logger.Debug("face region degenerate")
		return out, nil
	}
	if e.models.Face == nil {
		return out, detector.ErrModelUnavailable
	}

	c := face.Region.Crop(region.Face)
	input, err := e.cropper.Crop(frame, c, arena)
	if err != nil {
		return out, fmt.Errorf("crop: %w", err)
	}
	raw, err := e.models.Face.PredictFace(ctx, input)
	if err != nil {
		return out, fmt.Errorf("face model: %w", err)
	}
	mesh, err := detector.ReadPoints(raw, detector.FaceMeshSize)
	if err != nil {
		return out, err
	}

	local := make([]detector.Point, detector.NumFacePoints)
	for i, idx := range detector.FaceIndices {
		local[i] = mesh[idx]
	}
	copy(out[:], c.ToGlobal(local))
	return out, nil
}
