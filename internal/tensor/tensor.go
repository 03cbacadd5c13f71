// Package tensor provides a statically shaped float32 tensor and a
// per-frame arena for releasing intermediate buffers.
package tensor

import (
	"errors"
	"fmt"
	"slices"
)

// ErrShapeMismatch is returned when a tensor does not have the rank or size
// a consumer expects.
var ErrShapeMismatch = errors.New("tensor shape mismatch")

// Any matches any extent in a CheckShape pattern.
const Any = -1

// Tensor is a dense, row-major float32 tensor with an explicit shape.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// New allocates a zero-filled tensor of the given shape.
func New(shape ...int) *Tensor {
	return &Tensor{
		Shape: slices.Clone(shape),
		Data:  make([]float32, Size(shape)),
	}
}

// FromData wraps data in a tensor of the given shape. The data length must
// equal the product of the shape.
func FromData(data []float32, shape ...int) (*Tensor, error) {
	if len(data) != Size(shape) {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(data), shape)
	}
	return &Tensor{Shape: slices.Clone(shape), Data: data}, nil
}

// Size returns the number of elements described by shape.
func Size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.Shape)
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	return len(t.Data)
}

func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("tensor: %d indices for rank %d", len(idx), len(t.Shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.Shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.Shape))
		}
		off = off*t.Shape[i] + v
	}
	return off
}

// At returns the element at idx.
func (t *Tensor) At(idx ...int) float32 {
	return t.Data[t.offset(idx)]
}

// Set stores v at idx.
func (t *Tensor) Set(v float32, idx ...int) {
	t.Data[t.offset(idx)] = v
}

// CheckShape verifies the tensor matches want, where Any matches any extent.
func (t *Tensor) CheckShape(want ...int) error {
	if len(t.Shape) != len(want) {
		return fmt.Errorf("%w: got %v, want %v", ErrShapeMismatch, t.Shape, want)
	}
	for i, d := range want {
		if d != Any && t.Shape[i] != d {
			return fmt.Errorf("%w: got %v, want %v", ErrShapeMismatch, t.Shape, want)
		}
	}
	return nil
}

// Squeeze drops a leading batch dimension of extent 1. The returned tensor
// shares data with t.
func (t *Tensor) Squeeze() *Tensor {
	if len(t.Shape) > 1 && t.Shape[0] == 1 {
		return &Tensor{Shape: slices.Clone(t.Shape[1:]), Data: t.Data}
	}
	return t
}

// Expand prepends a batch dimension of extent 1. The returned tensor shares
// data with t.
func (t *Tensor) Expand() *Tensor {
	return &Tensor{Shape: append([]int{1}, t.Shape...), Data: t.Data}
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data)}
}
