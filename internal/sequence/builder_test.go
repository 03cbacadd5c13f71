package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/hasta/internal/detector"
	"github.com/ayusman/hasta/internal/extract"
)

// rowsExtractor identifies frames by their row count and places the nose at
// (rows, 2*rows).
type rowsExtractor struct {
	mu     sync.Mutex
	seen   []int
	failAt int
}

func (r *rowsExtractor) Extract(ctx context.Context, frame *gocv.Mat) (*extract.Result, error) {
	rows := frame.Rows()
	r.mu.Lock()
	r.seen = append(r.seen, rows)
	r.mu.Unlock()
	if r.failAt > 0 && rows == r.failAt {
		return nil, errors.New("extract failed")
	}
	res := &extract.Result{}
	res.Landmarks.Pose[0] = detector.Point{X: float64(rows), Y: float64(2 * rows)}
	res.Landmarks.Pose[1] = detector.Point{X: float64(rows) + 1, Y: float64(2 * rows)}
	return res, nil
}

// sizedFrames returns n frames where frame i has i+1 rows.
func sizedFrames(t *testing.T, n int) []gocv.Mat {
	t.Helper()
	frames := make([]gocv.Mat, n)
	for i := range frames {
		frames[i] = gocv.NewMatWithSize(i+1, 1, gocv.MatTypeCV8UC1)
	}
	t.Cleanup(func() {
		for i := range frames {
			frames[i].Close()
		}
	})
	return frames
}

func TestBuilder_Build(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("%d workers", workers), func(t *testing.T) {
			ex := &rowsExtractor{}
			cfg := DefaultConfig()
			cfg.Workers = workers
			b := NewBuilder(ex, cfg, nil)

			var events []FrameEvent
			b.OnFrame(func(ev FrameEvent) { events = append(events, ev) })

			frames := sizedFrames(t, 90)
			stack, err := b.Build(context.Background(), frames)
			require.NoError(t, err)

			require.NoError(t, stack.CheckShapes(16))
			assert.Equal(t, []int{3, 8, 14, 19, 24, 30, 35, 40, 46, 51, 56, 61, 67, 72, 77, 83}, stack.Indices)
			assert.Len(t, events, 16)

			// Stack order follows sample order regardless of completion order.
			for step, src := range stack.Indices {
				assert.Equal(t, float64(src+1), stack.Frames[step].Pose[0].X)
				assert.Equal(t, float32(0), stack.Pose.At(0, step, 0, 0))
				assert.InDelta(t, 1.0/257, stack.Pose.At(0, step, 1, 0), 1e-6)
			}
		})
	}
}

func TestBuilder_Errors(t *testing.T) {
	t.Run("insufficient frames skips extraction", func(t *testing.T) {
		ex := &rowsExtractor{}
		b := NewBuilder(ex, DefaultConfig(), nil)

		_, err := b.Build(context.Background(), sizedFrames(t, 18))
		assert.ErrorIs(t, err, ErrInsufficientFrames)
		assert.Empty(t, ex.seen)
	})

	t.Run("extraction failure aborts the build", func(t *testing.T) {
		ex := &rowsExtractor{failAt: 15}
		b := NewBuilder(ex, DefaultConfig(), nil)

		_, err := b.Build(context.Background(), sizedFrames(t, 90))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "frame 14")
	})
}

func TestBuilder_WithExtractor(t *testing.T) {
	heatmap, offsets := detector.PoseFixture(detector.StandingPose(), detector.UniformScores(0.9), detector.PoseInputSize, detector.DefaultOutputStride)
	models := extract.Models{
		Pose: detector.NewMockPoseModel(heatmap, offsets),
		Face: detector.NewMockLandmarkModel(detector.LandmarkFixture(detector.FaceMeshSize, detector.FaceInputSize)),
		Hand: detector.NewMockLandmarkModel(detector.LandmarkFixture(detector.NumHandPoints, detector.HandInputSize)),
	}
	ex := extract.New(models, extract.WarpCropper{}, extract.DefaultConfig(), nil)

	frames := make([]gocv.Mat, 19)
	for i := range frames {
		frames[i] = gocv.NewMatWithSize(detector.PoseInputSize, detector.PoseInputSize, gocv.MatTypeCV8UC3)
	}
	defer func() {
		for i := range frames {
			frames[i].Close()
		}
	}()

	cfg := DefaultConfig()
	cfg.Workers = 2
	stack, err := NewBuilder(ex, cfg, nil).Build(context.Background(), frames)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 16, 13, 2}, stack.Pose.Shape)
	assert.Equal(t, []int{1, 16, 24, 2}, stack.Face.Shape)
	assert.Equal(t, []int{1, 16, 21, 2}, stack.LeftHand.Shape)
	assert.Equal(t, []int{1, 16, 21, 2}, stack.RightHand.Shape)
	for _, f := range stack.Frames {
		assert.Equal(t, detector.Visibility{Pose: true, Face: true, LeftHand: true, RightHand: true}, f.Visibility())
	}
}
