package extract

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/hasta/internal/region"
	"github.com/ayusman/hasta/internal/tensor"
)

// WarpCropper implements Cropper with OpenCV affine warps. Frames are
// expected as 8-bit BGR.
type WarpCropper struct{}

// PoseInput implements Cropper.
func (WarpCropper) PoseInput(frame *gocv.Mat, arena *tensor.Arena) (*tensor.Tensor, error) {
	rgb := gocv.NewMat()
	arena.Track(&rgb)
	gocv.CvtColor(*frame, &rgb, gocv.ColorBGRToRGB)

	return toTensor(&rgb, 1.0/127.5, -1, arena)
}

// Crop implements Cropper.
func (WarpCropper) Crop(frame *gocv.Mat, c region.Crop, arena *tensor.Arena) (*tensor.Tensor, error) {
	m := c.Affine()
	affine := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	arena.Track(&affine)
	for row := 0; row < 2; row++ {
		for col := 0; col < 3; col++ {
			affine.SetDoubleAt(row, col, m[row][col])
		}
	}

	warped := gocv.NewMat()
	arena.Track(&warped)
	gocv.WarpAffineWithParams(*frame, &warped, affine, image.Pt(c.NetSize, c.NetSize),
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})
	if warped.Empty() {
		return nil, fmt.Errorf("warp region %+v: empty result", c)
	}

	rgb := gocv.NewMat()
	arena.Track(&rgb)
	gocv.CvtColor(warped, &rgb, gocv.ColorBGRToRGB)

	return toTensor(&rgb, 1.0/255, 0, arena)
}

// toTensor converts an 8-bit 3-channel Mat to a [1,H,W,3] tensor with each
// value mapped to v*alpha + beta.
func toTensor(m *gocv.Mat, alpha, beta float32, arena *tensor.Arena) (*tensor.Tensor, error) {
	if m.Empty() || m.Channels() != 3 {
		return nil, fmt.Errorf("%w: expected 3-channel image, got %d channels", tensor.ErrShapeMismatch, m.Channels())
	}

	f := gocv.NewMat()
	arena.Track(&f)
	m.ConvertToWithParams(&f, gocv.MatTypeCV32FC3, alpha, beta)

	data, err := f.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read image data: %w", err)
	}

	t := arena.Alloc(1, m.Rows(), m.Cols(), 3)
	copy(t.Data, data)
	return t, nil
}
