package mcastack

import (
	"fmt"
	"iter"
	"slices"
)

// Selector picks positions along a single axis. It is one of Slice, Point or List.
type Selector interface {
	isSelector()
}

// Point selects one position and drops the axis from the result.
type Point int

// List selects arbitrary positions, in list order.
type List []int

func (Point) isSelector() {}
func (List) isSelector()  {}

// Index holds one Selector per array axis.
//
// Applying an Index yields a C-ordered result. Slice axes keep their place,
// Point axes are dropped. All List axes share one result dimension (their
// lists must have equal length); it sits where the first list axis was when
// the list axes are adjacent and at the front otherwise.
type Index []Selector

// Clone returns a copy of idx whose lists do not alias the original.
func (idx Index) Clone() Index {
	out := make(Index, len(idx))
	for i, sel := range idx {
		if l, ok := sel.(List); ok {
			sel = slices.Clone(l)
		}
		out[i] = sel
	}
	return out
}

// ListAxes returns the axes of idx selected with a List.
func (idx Index) ListAxes() []int {
	var axes []int
	for axis, sel := range idx {
		if _, ok := sel.(List); ok {
			axes = append(axes, axis)
		}
	}
	return axes
}

// listAxis is the axis that holds the combined list dimension, or -1 when
// there are no list axes.
func listAxis(axes []int) int {
	switch len(axes) {
	case 0:
		return -1
	case 1:
		return axes[0]
	}
	sorted := slices.Sorted(slices.Values(axes))
	for i := 1; i < len(sorted); i++ {
		if sorted[i]-sorted[i-1] != 1 {
			return 0
		}
	}
	return sorted[0]
}

// gatherAxis is one result dimension together with the source axes it drives.
type gatherAxis struct {
	axes   []int
	coords [][]int
	n      int
}

// Dims returns the result shape of applying idx to an array of the given shape.
func (idx Index) Dims(shape []int) ([]int, error) {
	dims, _, err := idx.Coords(shape)
	return dims, err
}

// Coords validates idx against shape and returns the result shape together
// with a sequence of (result offset, source coordinate) pairs in C order. The
// coordinate slice is reused between steps.
func (idx Index) Coords(shape []int) ([]int, iter.Seq2[int, []int], error) {
	if len(idx) != len(shape) {
		return nil, nil, fmt.Errorf("%w: %d selectors for %d dimensions", ErrIndex, len(idx), len(shape))
	}
	base := make([]int, len(shape))
	var (
		groups []gatherAxis
		lists  []int
		before int
	)
	listLen := -1
	for axis, sel := range idx {
		n := shape[axis]
		switch s := sel.(type) {
		case Slice:
			c := s.Expand(n)
			groups = append(groups, gatherAxis{axes: []int{axis}, coords: [][]int{c}, n: len(c)})
		case Point:
			p := int(s)
			if p < 0 {
				p += n
			}
			if p < 0 || p >= n {
				return nil, nil, fmt.Errorf("%w: position %d out of range for axis %d of size %d", ErrIndex, int(s), axis, n)
			}
			base[axis] = p
		case List:
			if listLen >= 0 && len(s) != listLen {
				return nil, nil, fmt.Errorf("%w: list lengths %d and %d differ", ErrIndex, listLen, len(s))
			}
			listLen = len(s)
			for _, p := range s {
				if p < 0 || p >= n {
					return nil, nil, fmt.Errorf("%w: position %d out of range for axis %d of size %d", ErrIndex, p, axis, n)
				}
			}
			if len(lists) == 0 {
				before = len(groups)
			}
			lists = append(lists, axis)
		default:
			return nil, nil, fmt.Errorf("%w: unsupported selector %T on axis %d", ErrIndex, sel, axis)
		}
	}
	if len(lists) > 0 {
		g := gatherAxis{axes: lists, n: listLen}
		for _, axis := range lists {
			g.coords = append(g.coords, idx[axis].(List))
		}
		pos := before
		if listAxis(lists) != lists[0] {
			pos = 0
		}
		groups = slices.Insert(groups, pos, g)
	}

	dims := make([]int, len(groups))
	total := 1
	for i, g := range groups {
		dims[i] = g.n
		total *= g.n
	}
	seq := func(yield func(int, []int) bool) {
		coord := slices.Clone(base)
		ctr := make([]int, len(groups))
		for pos := 0; pos < total; pos++ {
			for gi, g := range groups {
				for k, axis := range g.axes {
					coord[axis] = g.coords[k][ctr[gi]]
				}
			}
			if !yield(pos, coord) {
				return
			}
			for gi := len(groups) - 1; gi >= 0; gi-- {
				ctr[gi]++
				if ctr[gi] < groups[gi].n {
					break
				}
				ctr[gi] = 0
			}
		}
	}
	return dims, seq, nil
}

// Size is the number of elements in an array of the given shape.
func Size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// strides returns C-order element strides for shape.
func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}
