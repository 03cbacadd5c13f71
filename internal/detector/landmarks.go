// Package detector provides the landmark data model, the pose heatmap
// decoder and the inference model contracts used by the extraction pipeline.
package detector

import "math"

// Pose keypoint indices in the order produced by the pose model. The last two
// are synthetic mid-fingertip points used to orient the hand regions.
const (
	Nose          = 0
	LeftEye       = 1
	RightEye      = 2
	LeftEar       = 3
	RightEar      = 4
	LeftShoulder  = 5
	RightShoulder = 6
	LeftElbow     = 7
	RightElbow    = 8
	LeftWrist     = 9
	RightWrist    = 10
	LeftHip       = 11
	RightHip      = 12
	LeftKnee      = 13
	RightKnee     = 14
	LeftAnkle     = 15
	RightAnkle    = 16
	LeftMidfin    = 17
	RightMidfin   = 18
	NumParts      = 19
)

// Landmark set sizes.
const (
	NumTracked    = 13
	NumFacePoints = 24
	NumHandPoints = 21
	// FaceMeshSize is the number of points in the face model's raw output.
	FaceMeshSize = 468
)

// PartNames maps a pose keypoint index to its name.
var PartNames = [NumParts]string{
	"nose", "leftEye", "rightEye", "leftEar", "rightEar",
	"leftShoulder", "rightShoulder", "leftElbow", "rightElbow",
	"leftWrist", "rightWrist", "leftHip", "rightHip",
	"leftKnee", "rightKnee", "leftAnkle", "rightAnkle",
	"leftMidfin", "rightMidfin",
}

// TrackedParts lists the pose keypoints kept in FrameLandmarks.Pose, in
// order. The first entry is the per-frame reference joint.
var TrackedParts = [NumTracked]int{
	Nose, LeftEye, RightEye, LeftEar, RightEar,
	LeftShoulder, RightShoulder, LeftElbow, RightElbow,
	LeftWrist, RightWrist, LeftMidfin, RightMidfin,
}

// FaceIndices selects the face mesh points kept in FrameLandmarks.Face
// (lips, eyebrows and eyelids).
var FaceIndices = [NumFacePoints]int{
	78, 191, 80, 13, 310, 415, 308, 324, 318, 14, 88, 95,
	107, 69, 105, 52, 159, 145, 336, 299, 334, 282, 386, 374,
}

// Point is a 2D position in pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IsZero reports whether p is the "not detected" sentinel.
func (p Point) IsZero() bool {
	return p.X == 0 && p.Y == 0
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Midpoint returns the point halfway between p and q.
func (p Point) Midpoint(q Point) Point {
	return Point{X: (p.X + q.X) / 2, Y: (p.Y + q.Y) / 2}
}

// Keypoint is a decoded pose joint.
type Keypoint struct {
	Position Point   `json:"position"`
	Score    float64 `json:"score"`
	Part     string  `json:"part"`
}

// Pose is a decoded single-person pose.
type Pose struct {
	Keypoints [NumParts]Keypoint `json:"keypoints"`
	// Score is the mean of the keypoint scores.
	Score float64 `json:"score"`
}

// FrameLandmarks holds the four landmark streams extracted from one frame.
// A zero point means the landmark was not detected.
type FrameLandmarks struct {
	Pose      [NumTracked]Point    `json:"pose"`
	Face      [NumFacePoints]Point `json:"face"`
	LeftHand  [NumHandPoints]Point `json:"leftHand"`
	RightHand [NumHandPoints]Point `json:"rightHand"`
}

// Visibility records which streams of a frame were fully detected.
type Visibility struct {
	Pose      bool `json:"pose"`
	Face      bool `json:"face"`
	LeftHand  bool `json:"leftHand"`
	RightHand bool `json:"rightHand"`
}

// Visibility reports which streams of f have no undetected point. A stream
// with a single zero point, such as a pose with one elbow below threshold,
// is not visible.
func (f *FrameLandmarks) Visibility() Visibility {
	if f == nil {
		return Visibility{}
	}
	return Visibility{
		Pose:      allDetected(f.Pose[:]),
		Face:      allDetected(f.Face[:]),
		LeftHand:  allDetected(f.LeftHand[:]),
		RightHand: allDetected(f.RightHand[:]),
	}
}

func allDetected(points []Point) bool {
	for _, p := range points {
		if p.IsZero() {
			return false
		}
	}
	return true
}
