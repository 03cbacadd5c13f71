package sequence

import (
	"github.com/ayusman/hasta/internal/detector"
	"github.com/ayusman/hasta/internal/tensor"
)

// Stack holds the four landmark streams of a sampled sequence, each shaped
// [1, T, points, 2].
type Stack struct {
	Pose      *tensor.Tensor `json:"pose"`
	Face      *tensor.Tensor `json:"face"`
	LeftHand  *tensor.Tensor `json:"leftHand"`
	RightHand *tensor.Tensor `json:"rightHand"`
	// Indices are the capture buffer positions that were sampled.
	Indices []int `json:"indices"`
	// Frames are the extracted landmarks in frame coordinates, before
	// scaling and normalization.
	Frames []detector.FrameLandmarks `json:"frames"`
}

// Len returns the number of time steps.
func (s *Stack) Len() int {
	return len(s.Frames)
}

// Assemble stacks per-frame landmarks in order, dividing every coordinate
// by scale. The frames are copied.
func Assemble(frames []detector.FrameLandmarks, scale float64) *Stack {
	t := len(frames)
	s := &Stack{
		Pose:      tensor.New(1, t, detector.NumTracked, 2),
		Face:      tensor.New(1, t, detector.NumFacePoints, 2),
		LeftHand:  tensor.New(1, t, detector.NumHandPoints, 2),
		RightHand: tensor.New(1, t, detector.NumHandPoints, 2),
		Frames:    append([]detector.FrameLandmarks(nil), frames...),
	}
	for i := range frames {
		f := &frames[i]
		fill(s.Pose, i, f.Pose[:], scale)
		fill(s.Face, i, f.Face[:], scale)
		fill(s.LeftHand, i, f.LeftHand[:], scale)
		fill(s.RightHand, i, f.RightHand[:], scale)
	}
	return s
}

func fill(dst *tensor.Tensor, step int, points []detector.Point, scale float64) {
	for j, p := range points {
		dst.Set(float32(p.X/scale), 0, step, j, 0)
		dst.Set(float32(p.Y/scale), 0, step, j, 1)
	}
}

// Reference returns the reference joint (the first tracked pose joint) at
// each time step.
func (s *Stack) Reference() [][2]float32 {
	ref := make([][2]float32, s.Len())
	for i := range ref {
		ref[i] = [2]float32{s.Pose.At(0, i, 0, 0), s.Pose.At(0, i, 0, 1)}
	}
	return ref
}

// Normalize subtracts, per time step, the reference joint from every point
// of every stream, leaving the reference joint at the origin.
func (s *Stack) Normalize() {
	// Copy first: the pose stream holds the reference itself.
	s.Subtract(s.Reference())
}

// Subtract shifts every point of every stream at time step i by -ref[i].
// It is not idempotent: subtracting the same reference twice shifts twice.
func (s *Stack) Subtract(ref [][2]float32) {
	for _, stream := range []*tensor.Tensor{s.Pose, s.Face, s.LeftHand, s.RightHand} {
		points := stream.Shape[2]
		for i, r := range ref {
			for j := 0; j < points; j++ {
				stream.Set(stream.At(0, i, j, 0)-r[0], 0, i, j, 0)
				stream.Set(stream.At(0, i, j, 1)-r[1], 0, i, j, 1)
			}
		}
	}
}

// CheckShapes verifies the streams have the shapes the classifier expects
// for length t.
func (s *Stack) CheckShapes(t int) error {
	checks := []struct {
		tn     *tensor.Tensor
		points int
	}{
		{s.Pose, detector.NumTracked},
		{s.Face, detector.NumFacePoints},
		{s.LeftHand, detector.NumHandPoints},
		{s.RightHand, detector.NumHandPoints},
	}
	for _, c := range checks {
		if c.tn == nil {
			return tensor.ErrShapeMismatch
		}
		if err := c.tn.CheckShape(1, t, c.points, 2); err != nil {
			return err
		}
	}
	return nil
}
