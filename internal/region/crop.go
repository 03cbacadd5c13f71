package region

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ayusman/hasta/internal/detector"
)

// Crop is a rotated square window of the frame resized to NetSize. A frame
// point p maps to crop point q = (NetSize/Size)·R(-Rotation)·(p-Center) + NetSize/2.
type Crop struct {
	Center   detector.Point `json:"center"`
	Size     float64        `json:"size"`
	Rotation float64        `json:"rotation"`
	NetSize  int            `json:"netSize"`
}

// ToGlobal maps points predicted on the crop back into frame coordinates.
func (c Crop) ToGlobal(local []detector.Point) []detector.Point {
	if len(local) == 0 {
		return nil
	}
	scale := c.Size / float64(c.NetSize)
	half := c.Size / 2

	v := pointsMatrix(local, func(p detector.Point) (float64, float64) {
		return p.X*scale - half, p.Y*scale - half
	})

	// Row vectors times R(θ)ᵀ, i.e. R(θ) applied to each point.
	var out mat.Dense
	out.Mul(v, rotation(c.Rotation).T())

	return matrixPoints(&out, c.Center.X, c.Center.Y)
}

// ToLocal maps frame points onto the crop. It is the inverse of ToGlobal.
func (c Crop) ToLocal(global []detector.Point) []detector.Point {
	if len(global) == 0 {
		return nil
	}
	scale := float64(c.NetSize) / c.Size
	half := float64(c.NetSize) / 2

	v := pointsMatrix(global, func(p detector.Point) (float64, float64) {
		return p.X - c.Center.X, p.Y - c.Center.Y
	})

	var out mat.Dense
	out.Mul(v, rotation(-c.Rotation).T())
	out.Scale(scale, &out)

	return matrixPoints(&out, half, half)
}

// Affine returns the 2x3 matrix mapping frame pixels to crop pixels, in the
// row-major layout expected by image warping routines.
func (c Crop) Affine() [2][3]float64 {
	k := float64(c.NetSize) / c.Size
	cos, sin := math.Cos(c.Rotation), math.Sin(c.Rotation)
	half := float64(c.NetSize) / 2
	cx, cy := c.Center.X, c.Center.Y

	return [2][3]float64{
		{k * cos, k * sin, half - k*(cos*cx+sin*cy)},
		{-k * sin, k * cos, half - k*(-sin*cx+cos*cy)},
	}
}

// rotation returns the column-vector rotation matrix [[cos, -sin], [sin, cos]].
func rotation(theta float64) *mat.Dense {
	cos, sin := math.Cos(theta), math.Sin(theta)
	return mat.NewDense(2, 2, []float64{
		cos, -sin,
		sin, cos,
	})
}

func pointsMatrix(pts []detector.Point, f func(detector.Point) (float64, float64)) *mat.Dense {
	data := make([]float64, 0, 2*len(pts))
	for _, p := range pts {
		x, y := f(p)
		data = append(data, x, y)
	}
	return mat.NewDense(len(pts), 2, data)
}

func matrixPoints(m *mat.Dense, dx, dy float64) []detector.Point {
	rows, _ := m.Dims()
	pts := make([]detector.Point, rows)
	for i := range pts {
		pts[i] = detector.Point{X: m.At(i, 0) + dx, Y: m.At(i, 1) + dy}
	}
	return pts
}
