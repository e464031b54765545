package mcastack

import (
	"fmt"
	"slices"
)

// Number is the set of element types a Dense array can hold.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Source is an N-dimensional array that chunks are read from and written to.
//
// Read fills dst with the C-ordered result of applying idx and Write stores
// src at the positions idx selects. A Source must accept any mix of Slice and
// Point selectors and a List on at least one axis at a time.
type Source interface {
	Shape() []int
	Read(idx Index, dst []float64) error
	Write(idx Index, src []float64) error
}

// MultiListIndexer is implemented by sources that accept List selectors on
// several axes of the same Index.
type MultiListIndexer interface {
	MultiListIndexing() bool
}

// Dense is an in-memory C-ordered array.
type Dense[T Number] struct {
	shape   []int
	strides []int
	data    []T
}

var (
	_ Source           = (*Dense[float64])(nil)
	_ MultiListIndexer = (*Dense[float64])(nil)
)

// NewDense wraps data as an array of the given shape. A nil data slice
// allocates a zeroed array.
func NewDense[T Number](shape []int, data []T) (*Dense[T], error) {
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("%w: negative dimension in shape %v", ErrConfig, shape)
		}
	}
	n := Size(shape)
	if data == nil {
		data = make([]T, n)
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrSize, len(data), shape)
	}
	return &Dense[T]{
		shape:   slices.Clone(shape),
		strides: strides(shape),
		data:    data,
	}, nil
}

// Shape returns a copy of the array shape.
func (d *Dense[T]) Shape() []int { return slices.Clone(d.shape) }

// Data exposes the backing slice.
func (d *Dense[T]) Data() []T { return d.data }

// At returns the element at coord.
func (d *Dense[T]) At(coord ...int) T { return d.data[d.offset(coord)] }

// Set stores v at coord.
func (d *Dense[T]) Set(v T, coord ...int) { d.data[d.offset(coord)] = v }

func (d *Dense[T]) offset(coord []int) int {
	off := 0
	for i, c := range coord {
		off += c * d.strides[i]
	}
	return off
}

// MultiListIndexing reports that Dense accepts lists on several axes.
func (d *Dense[T]) MultiListIndexing() bool { return true }

func (d *Dense[T]) Read(idx Index, dst []float64) error {
	dims, coords, err := idx.Coords(d.shape)
	if err != nil {
		return err
	}
	if n := Size(dims); len(dst) != n {
		return fmt.Errorf("%w: buffer holds %d values, index selects %d", ErrSize, len(dst), n)
	}
	for pos, coord := range coords {
		dst[pos] = float64(d.data[d.offset(coord)])
	}
	return nil
}

func (d *Dense[T]) Write(idx Index, src []float64) error {
	dims, coords, err := idx.Coords(d.shape)
	if err != nil {
		return err
	}
	if n := Size(dims); len(src) != n {
		return fmt.Errorf("%w: buffer holds %d values, index selects %d", ErrSize, len(src), n)
	}
	for pos, coord := range coords {
		d.data[d.offset(coord)] = T(src[pos])
	}
	return nil
}
