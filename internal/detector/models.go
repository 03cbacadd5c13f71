package detector

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayusman/hasta/internal/tensor"
)

// ErrModelUnavailable is returned when an inference model has not been
// initialized or its backing service cannot be reached.
var ErrModelUnavailable = errors.New("model unavailable")

// Model input sizes in pixels.
const (
	PoseInputSize = 257
	FaceInputSize = 192
	HandInputSize = 256
)

// PoseModel runs single-person pose estimation.
type PoseModel interface {
	// PredictPose takes a [1,257,257,3] image scaled to [-1,1] and returns
	// the heatmap [1,H,W,19] and offsets [1,H,W,38].
	PredictPose(ctx context.Context, image *tensor.Tensor) (heatmap, offsets *tensor.Tensor, err error)
}

// FaceModel runs face mesh estimation on an aligned face crop.
type FaceModel interface {
	// PredictFace takes a [1,192,192,3] crop scaled to [0,1] and returns the
	// raw mesh, FaceMeshSize points of (x, y, z) in crop pixels.
	PredictFace(ctx context.Context, crop *tensor.Tensor) (*tensor.Tensor, error)
}

// HandModel runs hand landmark estimation on an aligned hand crop.
type HandModel interface {
	// PredictHand takes a [1,256,256,3] crop scaled to [0,1] and returns
	// NumHandPoints points of (x, y, z) in crop pixels.
	PredictHand(ctx context.Context, crop *tensor.Tensor) (*tensor.Tensor, error)
}

// ClassifierModel scores a normalized landmark sequence against the label
// vocabulary. Besides the scores it returns the embedding the scores were
// computed from, which custom signs are matched on.
type ClassifierModel interface {
	PredictSign(ctx context.Context, pose, face, leftHand, rightHand *tensor.Tensor) (scores, features []float32, err error)
}

// ReadPoints reads the first n (x, y) pairs from a raw landmark tensor laid
// out as consecutive (x, y, z) triples.
func ReadPoints(raw *tensor.Tensor, n int) ([]Point, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: missing model output", tensor.ErrShapeMismatch)
	}
	if raw.Len() < n*3 {
		return nil, fmt.Errorf("%w: model output has %d values, need %d", tensor.ErrShapeMismatch, raw.Len(), n*3)
	}
	pts := make([]Point, n)
	for i := range pts {
		pts[i] = Point{X: float64(raw.Data[i*3]), Y: float64(raw.Data[i*3+1])}
	}
	return pts, nil
}
