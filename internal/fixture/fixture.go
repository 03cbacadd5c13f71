// Package fixture builds synthetic frames and mock-backed pipelines for
// tests that exercise several packages together.
package fixture

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/hasta/internal/classify"
	"github.com/ayusman/hasta/internal/detector"
	"github.com/ayusman/hasta/internal/extract"
	"github.com/ayusman/hasta/internal/sequence"
)

// Labels is a small vocabulary with one multi-tag label.
var Labels = []string{"0_Idle", "Hksl_busy", "Hksl_hat-Jsl_cap", "Jsl_wine", "Jsl_yellow", "Jsl_bicycle"}

// Scores are classifier outputs for Labels; Jsl_wine wins.
var Scores = []float32{0.02, 0.08, 0.2, 0.5, 0.1, 0.1}

// Features is the embedding the fixture classifier reports.
var Features = []float32{0.5, -0.25, 1, 0, 0.75, -1, 0.125, 0.5}

// Frames returns n square BGR frames of the given side, each with a
// different brightness. The caller closes them.
func Frames(n, size int) []gocv.Mat {
	frames := make([]gocv.Mat, n)
	for i := range frames {
		v := float64(i * 255 / max(n, 1))
		frames[i] = gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), size, size, gocv.MatTypeCV8UC3)
		gocv.Circle(&frames[i], image.Pt(size/2, size/2), size/8, color.RGBA{R: 255, A: 255}, -1)
	}
	return frames
}

// CameraFrames returns n frames of the given size as pointers, the form a
// mock camera plays back. The caller closes them.
func CameraFrames(n, width, height int) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		m := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
		frames[i] = &m
	}
	return frames
}

// WriteImages writes n PNG frames named frame_000.png onwards into dir.
func WriteImages(dir string, n, size int) error {
	frames := Frames(n, size)
	defer func() {
		for i := range frames {
			frames[i].Close()
		}
	}()

	for i := range frames {
		name := filepath.Join(dir, fmt.Sprintf("frame_%03d.png", i))
		if !gocv.IMWrite(name, frames[i]) {
			return fmt.Errorf("write %s", name)
		}
	}
	return nil
}

// Models returns mock pose, face and hand models reporting a standing
// person with every region detected.
func Models() extract.Models {
	heatmap, offsets := detector.PoseFixture(detector.StandingPose(), detector.UniformScores(0.9),
		detector.PoseInputSize, detector.DefaultOutputStride)
	return extract.Models{
		Pose: detector.NewMockPoseModel(heatmap, offsets),
		Face: detector.NewMockLandmarkModel(detector.LandmarkFixture(detector.FaceMeshSize, detector.FaceInputSize)),
		Hand: detector.NewMockLandmarkModel(detector.LandmarkFixture(detector.NumHandPoints, detector.HandInputSize)),
	}
}

// Builder returns a sequence builder over a real extractor backed by Models.
func Builder(logger *zap.Logger) *sequence.Builder {
	ex := extract.New(Models(), extract.WarpCropper{}, extract.DefaultConfig(), logger)
	return sequence.NewBuilder(ex, sequence.DefaultConfig(), logger)
}

// Dispatcher returns a dispatcher over Labels whose classifier returns
// Scores and Features, along with the mock classifier.
func Dispatcher(logger *zap.Logger) (*classify.Dispatcher, *detector.MockClassifier, error) {
	vocab, err := classify.NewVocabulary(Labels)
	if err != nil {
		return nil, nil, err
	}
	model := detector.NewMockClassifier(Scores)
	model.SetFeatures(Features)
	return classify.NewDispatcher(model, vocab, sequence.DefaultConfig().Length, logger), model, nil
}
