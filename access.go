package mcastack

import "slices"

// access moves one chunk between the source and the (rows, channels) buffer.
type access interface {
	alloc(n int)
	read(c Chunk, dst []float64) error
	write(c Chunk, src []float64) error
}

// newAccess picks the access strategy for a plan. Masked plans over more than
// one order axis need list indexing on several axes at once; sources that
// cannot do that are visited one row at a time.
func newAccess(src Source, p *Plan) access {
	if p.Masked() && len(p.layout.Order) > 1 {
		if ml, ok := src.(MultiListIndexer); !ok || !ml.MultiListIndexing() {
			return &pointAccess{src: src, axes: p.Layout().Order, channels: p.channels}
		}
	}
	perm := p.transpose()
	return &directAccess{src: src, perm: perm, identity: isIdentity(perm)}
}

// directAccess applies the chunk index to the source in one call and
// transposes the result when the channel axis is not already last.
type directAccess struct {
	src      Source
	perm     []int
	identity bool
	scratch  []float64
}

func (a *directAccess) alloc(n int) {
	if !a.identity {
		a.scratch = make([]float64, n)
	}
}

func (a *directAccess) read(c Chunk, dst []float64) error {
	if a.identity {
		return a.src.Read(c.Index, dst)
	}
	native := a.scratch[:len(dst)]
	if err := a.src.Read(c.Index, native); err != nil {
		return err
	}
	gather(dst, native, c.Shape, a.perm)
	return nil
}

func (a *directAccess) write(c Chunk, src []float64) error {
	if a.identity {
		return a.src.Write(c.Index, src)
	}
	native := a.scratch[:len(src)]
	scatter(native, src, c.Shape, a.perm)
	return a.src.Write(c.Index, native)
}

// pointAccess replaces the chunk's lists by one coordinate per row.
type pointAccess struct {
	src      Source
	axes     []int
	channels int
}

func (a *pointAccess) alloc(int) {}

func (a *pointAccess) each(c Chunk, buf []float64, fn func(Index, []float64) error) error {
	idx := slices.Clone(c.Index)
	for i := range c.Count {
		for _, axis := range a.axes {
			idx[axis] = Point(c.Index[axis].(List)[i])
		}
		if err := fn(idx, buf[i*a.channels:(i+1)*a.channels]); err != nil {
			return err
		}
	}
	return nil
}

func (a *pointAccess) read(c Chunk, dst []float64) error {
	return a.each(c, dst, a.src.Read)
}

func (a *pointAccess) write(c Chunk, src []float64) error {
	return a.each(c, src, a.src.Write)
}
