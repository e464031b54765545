package mcastack

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedMemory(n int64) MemoryFunc {
	return func() (int64, bool) { return n, true }
}

func unknownMemory() (int64, bool) { return 0, false }

func TestCapacityForMemory(t *testing.T) {
	n, err := CapacityForMemory([]int{100, 50}, 8, []int{0}, 0.01, 1, fixedMemory(8_000_000))
	require.NoError(t, err)
	assert.Equal(t, 200, n)

	// negative axes count from the end
	n, err = CapacityForMemory([]int{100, 50}, 8, []int{-2}, 0.01, 1, fixedMemory(8_000_000))
	require.NoError(t, err)
	assert.Equal(t, 200, n)

	n, err = CapacityForMemory([]int{100, 50}, 8, []int{0}, 0.01, 3, fixedMemory(100))
	require.NoError(t, err)
	assert.Equal(t, 3, n, "never below the minimum")

	n, err = CapacityForMemory([]int{100, 50}, 8, []int{0}, 0.01, 5, unknownMemory)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = CapacityForMemory([]int{4, 0}, 8, []int{0}, 0.5, 1, fixedMemory(1024))
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, n)
}

func TestCapacityForMemoryErrors(t *testing.T) {
	mem := fixedMemory(1 << 20)
	_, err := CapacityForMemory([]int{3, 4}, 8, []int{0, 1}, 0.1, 1, mem)
	assert.ErrorIs(t, err, ErrConfig)
	_, err = CapacityForMemory([]int{3, 4}, 8, []int{2}, 0.1, 1, mem)
	assert.ErrorIs(t, err, ErrConfig)
	_, err = CapacityForMemory([]int{3, 4}, 0, []int{0}, 0.1, 1, mem)
	assert.ErrorIs(t, err, ErrConfig)
	_, err = CapacityForMemory([]int{3, 4}, 8, []int{0}, 0, 1, mem)
	assert.ErrorIs(t, err, ErrConfig)
}
