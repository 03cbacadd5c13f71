package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/hasta/internal/detector"
)

func syntheticFrames(n int) []detector.FrameLandmarks {
	frames := make([]detector.FrameLandmarks, n)
	for i := range frames {
		f := &frames[i]
		base := float64(10 * (i + 1))
		for j := range f.Pose {
			f.Pose[j] = detector.Point{X: base + float64(j), Y: base + 2*float64(j)}
		}
		for j := range f.Face {
			f.Face[j] = detector.Point{X: base + 50, Y: base + float64(j)}
		}
		for j := range f.LeftHand {
			f.LeftHand[j] = detector.Point{X: base + 100, Y: base - float64(j)}
		}
		// Right hand left undetected.
	}
	return frames
}

func TestAssemble(t *testing.T) {
	t.Parallel()

	frames := syntheticFrames(16)
	s := Assemble(frames, 257)

	require.NoError(t, s.CheckShapes(16))
	assert.Equal(t, []int{1, 16, 13, 2}, s.Pose.Shape)
	assert.Equal(t, []int{1, 16, 24, 2}, s.Face.Shape)
	assert.Equal(t, []int{1, 16, 21, 2}, s.LeftHand.Shape)
	assert.Equal(t, []int{1, 16, 21, 2}, s.RightHand.Shape)

	assert.InDelta(t, (30.0+4)/257, s.Pose.At(0, 2, 4, 0), 1e-6)
	assert.InDelta(t, (30.0+8)/257, s.Pose.At(0, 2, 4, 1), 1e-6)

	// Frames are copied, not aliased.
	frames[0].Pose[0] = detector.Point{X: -1, Y: -1}
	assert.NotEqual(t, frames[0].Pose[0], s.Frames[0].Pose[0])
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	t.Run("reference joint is at origin", func(t *testing.T) {
		s := Assemble(syntheticFrames(16), 257)
		s.Normalize()

		for i := 0; i < s.Len(); i++ {
			assert.Equal(t, float32(0), s.Pose.At(0, i, 0, 0), "frame %d", i)
			assert.Equal(t, float32(0), s.Pose.At(0, i, 0, 1), "frame %d", i)
		}
	})

	t.Run("every stream is shifted by the frame's reference", func(t *testing.T) {
		frames := syntheticFrames(16)
		s := Assemble(frames, 257)
		s.Normalize()

		for i, f := range frames {
			nose := f.Pose[0]
			assert.InDelta(t, (f.Face[3].X-nose.X)/257, s.Face.At(0, i, 3, 0), 1e-6)
			assert.InDelta(t, (f.LeftHand[20].Y-nose.Y)/257, s.LeftHand.At(0, i, 20, 1), 1e-6)
			// Undetected points are shifted too.
			assert.InDelta(t, -nose.X/257, s.RightHand.At(0, i, 0, 0), 1e-6)
		}
	})

	t.Run("subtracting the same reference twice shifts twice", func(t *testing.T) {
		frames := syntheticFrames(16)
		s := Assemble(frames, 257)
		ref := s.Reference()

		s.Subtract(ref)
		s.Subtract(ref)

		for i, f := range frames {
			nose := f.Pose[0]
			assert.InDelta(t, (f.Face[0].X-2*nose.X)/257, s.Face.At(0, i, 0, 0), 1e-6)
			assert.InDelta(t, -nose.X/257, s.Pose.At(0, i, 0, 0), 1e-6)
		}
	})
}

func TestCheckShapes(t *testing.T) {
	t.Parallel()

	s := Assemble(syntheticFrames(8), 257)
	assert.NoError(t, s.CheckShapes(8))
	assert.Error(t, s.CheckShapes(16))
	assert.Error(t, (&Stack{}).CheckShapes(16))
}
