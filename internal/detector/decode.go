package detector

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/ayusman/hasta/internal/tensor"
)

// DefaultOutputStride is the pose model's heatmap stride in pixels.
const DefaultOutputStride = 16

// DecodePose converts a pose model's heatmap [H,W,K] and offsets [H,W,2K]
// into one keypoint per channel. A leading batch dimension of 1 is accepted.
// Offsets for channel k hold the y displacement at k and x at k+K.
func DecodePose(heatmap, offsets *tensor.Tensor, outputStride int) (*Pose, error) {
	if heatmap == nil || offsets == nil {
		return nil, fmt.Errorf("decode pose: %w: missing output", tensor.ErrShapeMismatch)
	}
	heatmap = heatmap.Squeeze()
	offsets = offsets.Squeeze()

	if err := heatmap.CheckShape(tensor.Any, tensor.Any, NumParts); err != nil {
		return nil, fmt.Errorf("decode pose heatmap: %w", err)
	}
	h, w := heatmap.Shape[0], heatmap.Shape[1]
	if h == 0 || w == 0 {
		return nil, fmt.Errorf("decode pose heatmap: %w: empty grid %v", tensor.ErrShapeMismatch, heatmap.Shape)
	}
	if err := offsets.CheckShape(h, w, 2*NumParts); err != nil {
		return nil, fmt.Errorf("decode pose offsets: %w", err)
	}

	pose := &Pose{}
	channel := make([]float64, h*w)
	var total float64

	for k := 0; k < NumParts; k++ {
		for row := 0; row < h; row++ {
			for col := 0; col < w; col++ {
				channel[row*w+col] = float64(heatmap.At(row, col, k))
			}
		}

		// Argmax over this channel's grid only.
		idx := floats.MaxIdx(channel)
		row, col := idx/w, idx%w

		offY := float64(offsets.At(row, col, k))
		offX := float64(offsets.At(row, col, k+NumParts))

		score := clamp01(channel[idx])
		pose.Keypoints[k] = Keypoint{
			Position: Point{
				X: float64(col*outputStride) + offX,
				Y: float64(row*outputStride) + offY,
			},
			Score: score,
			Part:  PartNames[k],
		}
		total += score
	}

	pose.Score = total / NumParts
	return pose, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
