package blur

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxIsNormalized(t *testing.T) {
	for size := 1; size < 100; size += 2 {
		k, err := Box(size)
		require.NoError(t, err)
		assert.Len(t, k.Weights, size*size)
		assert.InDelta(t, 1.0, k.Sum(), 1e-9, "size %d", size)
		assert.Equal(t, 1.0/float64(size*size), k.At(size/2, size/2))
		assert.Equal(t, (size-1)/2, k.Radius())
	}
}

func TestInvalidKernelSizes(t *testing.T) {
	for _, size := range []int{-3, -1, 0, 2, 4, 10} {
		_, err := Box(size)
		assert.ErrorIs(t, err, ErrInvalidKernelSize, "size %d", size)
		_, err = Gaussian(size)
		assert.ErrorIs(t, err, ErrInvalidKernelSize, "size %d", size)
		_, err = FromExpression(size, "1")
		assert.ErrorIs(t, err, ErrInvalidKernelSize, "size %d", size)
	}
}

func TestGaussianPeaksAtCenter(t *testing.T) {
	k, err := Gaussian(7)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, k.Sum(), 1e-9)
	assert.Greater(t, k.At(3, 3), k.At(0, 0))
	assert.InDelta(t, k.At(0, 6), k.At(6, 0), 1e-15)
}

func TestFromExpression(t *testing.T) {
	t.Run("constant matches box", func(t *testing.T) {
		k, err := FromExpression(5, "1")
		require.NoError(t, err)
		box, err := Box(5)
		require.NoError(t, err)
		for i := range k.Weights {
			assert.InDelta(t, box.Weights[i], k.Weights[i], 1e-15)
		}
	})

	t.Run("uses offsets", func(t *testing.T) {
		k, err := FromExpression(5, "exp(-(i*i + j*j) / (2 * radius))")
		require.NoError(t, err)
		assert.InDelta(t, 1.0, k.Sum(), 1e-9)
		assert.Greater(t, k.At(2, 2), k.At(2, 0))
		assert.InDelta(t, k.At(1, 2), k.At(2, 1), 1e-15)
	})

	t.Run("rejects", func(t *testing.T) {
		for _, expr := range []string{"(", "i > 0", "0", "-1", "unknown_var"} {
			_, err := FromExpression(3, expr)
			assert.Error(t, err, expr)
		}
	})
}
