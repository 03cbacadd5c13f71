package detector

import (
	"context"
	"sync"

	"github.com/ayusman/hasta/internal/tensor"
)

// MockPoseModel is a test implementation of PoseModel.
type MockPoseModel struct {
	mu      sync.Mutex
	heatmap *tensor.Tensor
	offsets *tensor.Tensor
	err     error
	calls   int
}

// NewMockPoseModel creates a MockPoseModel returning the given outputs.
func NewMockPoseModel(heatmap, offsets *tensor.Tensor) *MockPoseModel {
	return &MockPoseModel{heatmap: heatmap, offsets: offsets}
}

// SetOutput sets the tensors returned by PredictPose.
func (m *MockPoseModel) SetOutput(heatmap, offsets *tensor.Tensor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heatmap, m.offsets = heatmap, offsets
}

// SetError sets the error returned by PredictPose.
func (m *MockPoseModel) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times PredictPose was invoked.
func (m *MockPoseModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// PredictPose returns the pre-configured outputs or error.
func (m *MockPoseModel) PredictPose(ctx context.Context, image *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.heatmap, m.offsets, nil
}

// MockLandmarkModel is a test implementation of FaceModel and HandModel.
// It records the crops it was given.
type MockLandmarkModel struct {
	mu     sync.Mutex
	output *tensor.Tensor
	err    error
	crops  []*tensor.Tensor
}

// NewMockLandmarkModel creates a MockLandmarkModel returning output.
func NewMockLandmarkModel(output *tensor.Tensor) *MockLandmarkModel {
	return &MockLandmarkModel{output: output}
}

// SetError sets the error returned by predictions.
func (m *MockLandmarkModel) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many predictions were made.
func (m *MockLandmarkModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.crops)
}

// Crops returns the crops passed to the model, in call order.
func (m *MockLandmarkModel) Crops() []*tensor.Tensor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*tensor.Tensor(nil), m.crops...)
}

func (m *MockLandmarkModel) predict(crop *tensor.Tensor) (*tensor.Tensor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.crops = append(m.crops, crop)
	if m.err != nil {
		return nil, m.err
	}
	return m.output, nil
}

// PredictFace returns the pre-configured output or error.
func (m *MockLandmarkModel) PredictFace(ctx context.Context, crop *tensor.Tensor) (*tensor.Tensor, error) {
	return m.predict(crop)
}

// PredictHand returns the pre-configured output or error.
func (m *MockLandmarkModel) PredictHand(ctx context.Context, crop *tensor.Tensor) (*tensor.Tensor, error) {
	return m.predict(crop)
}

// MockClassifier is a test implementation of ClassifierModel.
type MockClassifier struct {
	mu       sync.Mutex
	scores   []float32
	features []float32
	err      error
	inputs   [][4]*tensor.Tensor
}

// NewMockClassifier creates a MockClassifier returning scores.
func NewMockClassifier(scores []float32) *MockClassifier {
	return &MockClassifier{scores: scores}
}

// SetFeatures sets the feature vector returned by PredictSign.
func (m *MockClassifier) SetFeatures(features []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features = features
}

// SetError sets the error returned by PredictSign.
func (m *MockClassifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Inputs returns the tensors of every PredictSign call.
func (m *MockClassifier) Inputs() [][4]*tensor.Tensor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][4]*tensor.Tensor(nil), m.inputs...)
}

// PredictSign returns the pre-configured scores and features or error.
func (m *MockClassifier) PredictSign(ctx context.Context, pose, face, leftHand, rightHand *tensor.Tensor) ([]float32, []float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, [4]*tensor.Tensor{pose, face, leftHand, rightHand})
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.scores, m.features, nil
}

// PoseFixture encodes keypoint positions and scores into the heatmap and
// offset tensors a pose model would emit for a frame of the given size.
// Decoding the result with DecodePose returns the same keypoints.
func PoseFixture(points [NumParts]Point, scores [NumParts]float64, frameSize, outputStride int) (heatmap, offsets *tensor.Tensor) {
	grid := (frameSize-1)/outputStride + 1
	heatmap = tensor.New(1, grid, grid, NumParts)
	offsets = tensor.New(1, grid, grid, 2*NumParts)

	for k, p := range points {
		row := clampCell(int(p.Y)/outputStride, grid)
		col := clampCell(int(p.X)/outputStride, grid)
		heatmap.Set(float32(scores[k]), 0, row, col, k)
		offsets.Set(float32(p.Y-float64(row*outputStride)), 0, row, col, k)
		offsets.Set(float32(p.X-float64(col*outputStride)), 0, row, col, k+NumParts)
	}
	return heatmap, offsets
}

func clampCell(v, grid int) int {
	if v < 0 {
		return 0
	}
	if v >= grid {
		return grid - 1
	}
	return v
}

// StandingPose returns keypoints of a subject facing the camera in a
// 257x257 frame, signing with both hands raised in front of the chest. The
// subject's left side appears on the right of the image.
func StandingPose() [NumParts]Point {
	var p [NumParts]Point
	p[Nose] = Point{X: 128, Y: 70}
	p[LeftEye] = Point{X: 138, Y: 60}
	p[RightEye] = Point{X: 118, Y: 60}
	p[LeftEar] = Point{X: 152, Y: 66}
	p[RightEar] = Point{X: 104, Y: 66}
	p[LeftShoulder] = Point{X: 168, Y: 120}
	p[RightShoulder] = Point{X: 88, Y: 120}
	p[LeftElbow] = Point{X: 184, Y: 170}
	p[RightElbow] = Point{X: 72, Y: 170}
	p[LeftWrist] = Point{X: 160, Y: 150}
	p[RightWrist] = Point{X: 96, Y: 150}
	p[LeftHip] = Point{X: 156, Y: 230}
	p[RightHip] = Point{X: 100, Y: 230}
	p[LeftKnee] = Point{X: 156, Y: 250}
	p[RightKnee] = Point{X: 100, Y: 250}
	p[LeftAnkle] = Point{X: 156, Y: 256}
	p[RightAnkle] = Point{X: 100, Y: 256}
	p[LeftMidfin] = Point{X: 156, Y: 118}
	p[RightMidfin] = Point{X: 100, Y: 118}
	return p
}

// UniformScores returns a score table with every joint set to s.
func UniformScores(s float64) [NumParts]float64 {
	var scores [NumParts]float64
	for i := range scores {
		scores[i] = s
	}
	return scores
}

// LandmarkFixture builds a raw landmark output of n (x, y, z) points laid
// on a 7x7 grid around the centre of a size x size crop.
func LandmarkFixture(n, size int) *tensor.Tensor {
	out := tensor.New(1, n, 3)
	c := float32(size) / 2
	for i := 0; i < n; i++ {
		dx := float32(i%7) - 3
		dy := float32((i/7)%7) - 3
		out.Set(c+dx*8, 0, i, 0)
		out.Set(c+dy*8, 0, i, 1)
		out.Set(0, 0, i, 2)
	}
	return out
}
