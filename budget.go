package mcastack

import (
	"fmt"
	"math"
	"slices"

	"github.com/qri-io/mcastack/internal/memory"
)

// MemoryFunc reports the bytes of physical memory available to the process.
// ok is false when the amount is unknown.
type MemoryFunc func() (bytes int64, ok bool)

// SystemMemory queries the operating system.
func SystemMemory() (int64, bool) { return memory.Available() }

// CapacityForMemory returns how many units of the given shape fit in a
// margin fraction of the available memory. A unit spans every axis except
// the excluded ones, itemSize bytes per element. When the memory query has
// no answer the minimum is returned; otherwise the result is at least the
// minimum. A nil query uses SystemMemory.
func CapacityForMemory(shape []int, itemSize int, excluded []int, margin float64, minimum int, query MemoryFunc) (int, error) {
	ndim := len(shape)
	drop := make([]bool, ndim)
	for _, axis := range excluded {
		a, err := normalizeAxis(axis, ndim)
		if err != nil {
			return 0, err
		}
		drop[a] = true
	}
	if !slices.Contains(drop, false) {
		return 0, fmt.Errorf("%w: excluding axes %v leaves nothing of shape %v", ErrConfig, excluded, shape)
	}
	if itemSize <= 0 {
		return 0, fmt.Errorf("%w: item size %d", ErrConfig, itemSize)
	}
	if margin <= 0 {
		return 0, fmt.Errorf("%w: memory margin %g", ErrConfig, margin)
	}

	if query == nil {
		query = SystemMemory
	}
	avail, ok := query()
	if !ok {
		return minimum, nil
	}

	unit := float64(itemSize)
	for axis, n := range shape {
		if !drop[axis] {
			unit *= float64(n)
		}
	}
	if unit == 0 {
		return math.MaxInt, nil
	}
	n := math.Floor(float64(avail) * margin / unit)
	if n >= math.MaxInt {
		return math.MaxInt, nil
	}
	return max(int(n), minimum), nil
}

func normalizeAxis(axis, ndim int) (int, error) {
	a := axis
	if a < 0 {
		a += ndim
	}
	if a < 0 || a >= ndim {
		return 0, fmt.Errorf("%w: axis %d out of range for %d dimensions", ErrConfig, axis, ndim)
	}
	return a, nil
}
