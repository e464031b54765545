package mcastack

import (
	"fmt"
	"slices"
)

// Mask selects rows from the order axes of an array. Dimension k of a mask
// addresses the k-th order axis of the view it is used with.
type Mask interface {
	// Dims is the number of axes the mask addresses.
	Dims() int
	// Indices returns one coordinate list per axis; entry i of every list
	// together forms the i-th selected row.
	Indices() ([][]int, error)
}

// BoolMask is a boolean array over the order axes, stored in C order.
type BoolMask struct {
	Shape  []int
	Values []bool
}

// NewBoolMask checks that values fill shape.
func NewBoolMask(shape []int, values []bool) (*BoolMask, error) {
	if Size(shape) != len(values) {
		return nil, fmt.Errorf("%w: %d mask values for shape %v", ErrInconsistent, len(values), shape)
	}
	return &BoolMask{Shape: slices.Clone(shape), Values: values}, nil
}

func (m *BoolMask) Dims() int { return len(m.Shape) }

// Indices lists the coordinates of the true elements in C order.
func (m *BoolMask) Indices() ([][]int, error) {
	if Size(m.Shape) != len(m.Values) {
		return nil, fmt.Errorf("%w: %d mask values for shape %v", ErrInconsistent, len(m.Values), m.Shape)
	}
	return nonzero(m.Shape, m.Values), nil
}

// Invert returns the mask selecting every element m does not.
func (m *BoolMask) Invert() *BoolMask {
	inv := make([]bool, len(m.Values))
	for i, v := range m.Values {
		inv[i] = !v
	}
	return &BoolMask{Shape: slices.Clone(m.Shape), Values: inv}
}

// IndexMask is an explicit list of selected rows given as parallel
// per-axis coordinate lists.
type IndexMask [][]int

func (m IndexMask) Dims() int { return len(m) }

func (m IndexMask) Indices() ([][]int, error) {
	for k := 1; k < len(m); k++ {
		if len(m[k]) != len(m[0]) {
			return nil, fmt.Errorf("%w: mask index lists have lengths %d and %d", ErrInconsistent, len(m[0]), len(m[k]))
		}
	}
	return m, nil
}

func nonzero(shape []int, values []bool) [][]int {
	out := make([][]int, len(shape))
	st := strides(shape)
	for off, v := range values {
		if !v {
			continue
		}
		rem := off
		for k := range shape {
			out[k] = append(out[k], rem/st[k])
			rem %= st[k]
		}
	}
	for k := range out {
		if out[k] == nil {
			out[k] = []int{}
		}
	}
	return out
}

// resolveMask validates m against the order-axis sizes and returns its
// coordinate lists.
func resolveMask(m Mask, dims []int) ([][]int, error) {
	if m.Dims() != len(dims) {
		return nil, fmt.Errorf("%w: mask has %d dimensions, view has %d order axes", ErrConfig, m.Dims(), len(dims))
	}
	if bm, ok := m.(*BoolMask); ok && !slices.Equal(bm.Shape, dims) {
		return nil, fmt.Errorf("%w: mask shape %v does not match order axes %v", ErrConfig, bm.Shape, dims)
	}
	coords, err := m.Indices()
	if err != nil {
		return nil, err
	}
	for k, list := range coords {
		for _, p := range list {
			if p < 0 || p >= dims[k] {
				return nil, fmt.Errorf("%w: mask position %d out of range for axis size %d", ErrInconsistent, p, dims[k])
			}
		}
	}
	return coords, nil
}

// complementRows lists, in C order, the coordinates over dims that coords
// does not select.
func complementRows(coords [][]int, dims []int) [][]int {
	selected := make([]bool, Size(dims))
	st := strides(dims)
	if len(coords) > 0 {
		for i := range coords[0] {
			off := 0
			for k := range coords {
				off += coords[k][i] * st[k]
			}
			selected[off] = true
		}
	}
	for i := range selected {
		selected[i] = !selected[i]
	}
	return nonzero(dims, selected)
}
