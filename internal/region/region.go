// Package region derives rotated square regions of interest from pairs of
// anchor keypoints and maps landmarks between a region's crop and the frame.
package region

import (
	"math"

	"github.com/ayusman/hasta/internal/detector"
)

// Spec describes how a region is derived from its two anchors.
type Spec struct {
	// RotationFactor divides π in the canonical orientation: 1 aligns the
	// anchor pair horizontally, 2 vertically.
	RotationFactor float64
	// ExtentScale multiplies the anchor distance to give the crop side.
	ExtentScale float64
	// NetSize is the side of the model input the crop is resized to.
	NetSize int
	// CenterOnB centres the region on the second anchor instead of the
	// anchors' midpoint.
	CenterOnB bool
}

var (
	// Face regions are anchored on the left and right ear.
	Face = Spec{RotationFactor: 1, ExtentScale: 2, NetSize: detector.FaceInputSize}
	// Hand regions are anchored on the wrist and the mid-fingertip.
	Hand = Spec{RotationFactor: 2, ExtentScale: 4, NetSize: detector.HandInputSize, CenterOnB: true}
)

// Descriptor is a region derived from two anchors.
type Descriptor struct {
	Center detector.Point `json:"center"`
	// Distance is the anchor distance, before the region's extent scale.
	Distance float64 `json:"distance"`
	Rotation float64 `json:"rotation"`
}

// Radians returns the rotation that brings the a→b direction to the
// canonical orientation for factor, wrapped to [-π, π).
func Radians(a, b detector.Point, factor float64) float64 {
	r := math.Pi/factor - math.Atan2(-(b.Y-a.Y), b.X-a.X)
	return r - 2*math.Pi*math.Floor((r+math.Pi)/(2*math.Pi))
}

// Estimate derives the region for anchors a and b.
func Estimate(a, b detector.Point, spec Spec) Descriptor {
	center := a.Midpoint(b)
	if spec.CenterOnB {
		center = b
	}
	return Descriptor{
		Center:   center,
		Distance: a.Distance(b),
		Rotation: Radians(a, b, spec.RotationFactor),
	}
}

// Usable reports whether the region has a positive, finite size. Regions
// with coincident anchors must not be cropped.
func (d Descriptor) Usable() bool {
	return d.Distance > 0 && !math.IsInf(d.Distance, 0) && !math.IsNaN(d.Distance)
}

// Crop returns the crop geometry for this region under spec.
func (d Descriptor) Crop(spec Spec) Crop {
	return Crop{
		Center:   d.Center,
		Size:     d.Distance * spec.ExtentScale,
		Rotation: d.Rotation,
		NetSize:  spec.NetSize,
	}
}
