package mcastack

import "iter"

// Chunks returns the plan's chunks as a lazy, single-pass sequence.
func (p *Plan) Chunks() iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		next := p.walk.cursor()
		for {
			c, ok := next()
			if !ok || !yield(c) {
				return
			}
		}
	}
}

// denseWalk enumerates the Cartesian product of the per-axis pieces with the
// first traversal axis varying fastest.
type denseWalk struct {
	plan *Plan
}

func (w *denseWalk) numChunks() int {
	n := 1
	for _, pieces := range w.plan.pieces {
		n *= len(pieces)
	}
	return n
}

func (w *denseWalk) cursor() func() (Chunk, bool) {
	p := w.plan
	ndim := len(p.shape)
	ch := p.layout.ChannelAxis
	ctr := make([]int, len(p.pieces))
	done := w.numChunks() == 0
	return func() (Chunk, bool) {
		if done {
			return Chunk{}, false
		}
		c := Chunk{Index: make(Index, ndim), Shape: make([]int, ndim), Count: 1}
		c.Index[ch] = p.layout.ChannelSlice
		c.Shape[ch] = p.channels
		for k, axis := range p.layout.Order {
			piece := p.pieces[k][ctr[k]]
			c.Index[axis] = piece.Slice
			c.Shape[axis] = piece.Len
			c.Count *= piece.Len
		}
		k := 0
		for ; k < len(ctr); k++ {
			ctr[k]++
			if ctr[k] < len(p.pieces[k]) {
				break
			}
			ctr[k] = 0
		}
		done = k == len(ctr)
		return c, true
	}
}

// maskedWalk cuts the mask coordinates into consecutive batches.
type maskedWalk struct {
	plan     *Plan
	capacity int
}

func (w *maskedWalk) numChunks() int {
	return ceilDiv(w.plan.total, w.capacity)
}

func (w *maskedWalk) cursor() func() (Chunk, bool) {
	p := w.plan
	ndim := len(p.shape)
	ch := p.layout.ChannelAxis
	a := 0
	return func() (Chunk, bool) {
		if a >= p.total {
			return Chunk{}, false
		}
		b := min(a+w.capacity, p.total)
		c := Chunk{Index: make(Index, ndim), Count: b - a}
		c.Index[ch] = p.layout.ChannelSlice
		for k, axis := range p.layout.Order {
			c.Index[axis] = List(p.coords[k][a:b:b])
		}
		if p.listPos == 0 {
			c.Shape = []int{c.Count, p.channels}
		} else {
			c.Shape = []int{p.channels, c.Count}
		}
		a = b
		return c, true
	}
}
