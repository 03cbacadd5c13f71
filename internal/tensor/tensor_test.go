package tensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromData(t *testing.T) {
	t.Parallel()

	t.Run("matching length", func(t *testing.T) {
		tn, err := FromData([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
		require.NoError(t, err)
		assert.Equal(t, float32(6), tn.At(1, 2))
		assert.Equal(t, float32(2), tn.At(0, 1))
	})

	t.Run("wrong length", func(t *testing.T) {
		_, err := FromData([]float32{1, 2, 3}, 2, 2)
		assert.True(t, errors.Is(err, ErrShapeMismatch))
	})
}

func TestCheckShape(t *testing.T) {
	t.Parallel()

	tn := New(1, 16, 13, 2)
	assert.NoError(t, tn.CheckShape(1, 16, 13, 2))
	assert.NoError(t, tn.CheckShape(Any, 16, Any, 2))
	assert.ErrorIs(t, tn.CheckShape(16, 13, 2), ErrShapeMismatch)
	assert.ErrorIs(t, tn.CheckShape(1, 16, 24, 2), ErrShapeMismatch)
}

func TestSetAt(t *testing.T) {
	t.Parallel()

	tn := New(3, 4, 2)
	tn.Set(7, 2, 3, 1)
	assert.Equal(t, float32(7), tn.At(2, 3, 1))
	assert.Equal(t, float32(7), tn.Data[len(tn.Data)-1])
	assert.Panics(t, func() { tn.At(3, 0, 0) })
}

func TestSqueezeExpand(t *testing.T) {
	t.Parallel()

	tn := New(1, 9, 9, 19)
	sq := tn.Squeeze()
	assert.Equal(t, []int{9, 9, 19}, sq.Shape)
	assert.Equal(t, []int{1, 9, 9, 19}, sq.Expand().Shape)

	// Non-batch tensors are returned unchanged.
	flat := New(4, 2)
	assert.Same(t, flat, flat.Squeeze())
}

func TestClone(t *testing.T) {
	t.Parallel()

	tn := New(2)
	c := tn.Clone()
	c.Data[0] = 1
	assert.Equal(t, float32(0), tn.Data[0])
}
