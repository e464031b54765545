package zarr

import (
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"

	"github.com/qri-io/mcastack"
)

// chunkGrid maps array coordinates onto the regular grid of chunks.
type chunkGrid struct {
	shape  []int
	chunks []int
	// element strides inside one chunk, in the chunk's memory order
	inner []int
	// C-order strides over the grid
	outer []int
	grid  []int
	sep   string
}

func newChunkGrid(m *ArrayMeta) chunkGrid {
	g := chunkGrid{
		shape:  m.Shape,
		chunks: m.Chunks,
		inner:  make([]int, len(m.Shape)),
		outer:  make([]int, len(m.Shape)),
		grid:   make([]int, len(m.Shape)),
		sep:    m.separator(),
	}
	for d := range m.Shape {
		g.grid[d] = (m.Shape[d] + m.Chunks[d] - 1) / m.Chunks[d]
	}
	acc := 1
	for d := len(g.grid) - 1; d >= 0; d-- {
		g.outer[d] = acc
		acc *= g.grid[d]
	}
	acc = 1
	if m.Order == "F" {
		for d := range g.chunks {
			g.inner[d] = acc
			acc *= g.chunks[d]
		}
	} else {
		for d := len(g.chunks) - 1; d >= 0; d-- {
			g.inner[d] = acc
			acc *= g.chunks[d]
		}
	}
	return g
}

// GridShape is the number of chunks along every dimension.
func (g chunkGrid) GridShape() []int { return slices.Clone(g.grid) }

// chunkSize is the number of elements stored in one chunk. Chunks on the
// upper edges of the array are stored at full size.
func (g chunkGrid) chunkSize() int { return mcastack.Size(g.chunks) }

// ChunkKey joins chunk coordinates with the dimension separator.
func (g chunkGrid) ChunkKey(coords []int) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, g.sep)
}

// all enumerates the coordinates of every chunk in the grid.
func (g chunkGrid) all() iter.Seq[[]int] {
	return func(yield func([]int) bool) {
		idx := make(mcastack.Index, len(g.grid))
		for i := range idx {
			idx[i] = mcastack.Full()
		}
		_, coords, err := idx.Coords(g.grid)
		if err != nil {
			return
		}
		for _, c := range coords {
			if !yield(c) {
				return
			}
		}
	}
}

// A mapping of items from chunk to output array. Can be used to extract items
// from the chunk array for loading into an output array. Can also be used to
// extract items from a value array for setting/updating in a chunk array.
type chunkProjection struct {
	// Indices of chunk
	ChunkCoords []int
	// Selection of items from chunk array.
	ChunkSelection []int
	// Selection of items in target (output) array.
	OutSelection []int
}

// project groups the elements idx selects by the chunk holding them. It
// returns the number of selected elements and one projection per touched
// chunk, in order of first use.
func (g chunkGrid) project(idx mcastack.Index) (int, []*chunkProjection, error) {
	if lists := idx.ListAxes(); len(lists) > 1 {
		return 0, nil, fmt.Errorf("%w: lists on axes %v, zarr arrays take at most one list", mcastack.ErrIndex, lists)
	}
	dims, coords, err := idx.Coords(g.shape)
	if err != nil {
		return 0, nil, err
	}
	var (
		out  []*chunkProjection
		seen = map[int]*chunkProjection{}
		cc   = make([]int, len(g.shape))
	)
	for pos, coord := range coords {
		id, off := 0, 0
		for d, c := range coord {
			cc[d] = c / g.chunks[d]
			id += cc[d] * g.outer[d]
			off += (c % g.chunks[d]) * g.inner[d]
		}
		p, ok := seen[id]
		if !ok {
			p = &chunkProjection{ChunkCoords: slices.Clone(cc)}
			seen[id] = p
			out = append(out, p)
		}
		p.ChunkSelection = append(p.ChunkSelection, off)
		p.OutSelection = append(p.OutSelection, pos)
	}
	return mcastack.Size(dims), out, nil
}
