package mcastack

import (
	"fmt"
	"math"
	"slices"
)

// Layout assigns axis roles: one channel axis, optionally pre-sliced, and
// the order axes in traversal order (fastest varying first). A nil Order
// selects the default: descending axes for dense plans (last index varies
// fastest) and ascending axes for masked plans.
type Layout struct {
	ChannelAxis  int
	ChannelSlice Slice
	Order        []int
}

// NewLayout returns a layout reading the whole channel axis in default order.
func NewLayout(channelAxis int) Layout {
	return Layout{ChannelAxis: channelAxis, ChannelSlice: Full()}
}

func (l Layout) resolve(shape []int, masked bool) (Layout, error) {
	ndim := len(shape)
	if ndim == 0 {
		return l, fmt.Errorf("%w: cannot chunk a zero-dimensional array", ErrConfig)
	}
	ch, err := normalizeAxis(l.ChannelAxis, ndim)
	if err != nil {
		return l, err
	}
	def := make([]int, 0, ndim-1)
	for axis := range ndim {
		if axis != ch {
			def = append(def, axis)
		}
	}
	if !masked {
		slices.Reverse(def)
	}
	order := def
	if l.Order != nil {
		order = make([]int, len(l.Order))
		for i, axis := range l.Order {
			if order[i], err = normalizeAxis(axis, ndim); err != nil {
				return l, err
			}
		}
		if !slices.Equal(slices.Sorted(slices.Values(order)), slices.Sorted(slices.Values(def))) {
			return l, fmt.Errorf("%w: order %v does not partition the non-channel axes of %v", ErrConfig, l.Order, shape)
		}
	}
	return Layout{ChannelAxis: ch, ChannelSlice: l.ChannelSlice, Order: order}, nil
}

// Piece is one run of an order axis in a dense plan.
type Piece struct {
	Slice Slice
	Len   int
}

// Chunk describes one batch of rows: the index to apply to the source, the
// shape of the result, and the number of rows it holds.
type Chunk struct {
	Index Index
	Shape []int
	Count int
}

type traversal interface {
	cursor() func() (Chunk, bool)
	numChunks() int
}

// Plan is a partition of an array's rows into chunks.
type Plan struct {
	shape    []int
	layout   Layout
	channels int
	rows     int
	total    int
	masked   bool
	pieces   [][]Piece
	coords   [][]int
	listPos  int
	walk     traversal
}

// PlanDense partitions every row of shape into chunks of at most capacity
// rows. Capacity is raised to 1 when smaller.
func PlanDense(shape []int, capacity int, l Layout) (*Plan, error) {
	l, err := l.resolve(shape, false)
	if err != nil {
		return nil, err
	}
	capacity = clampCapacity(capacity)
	p := newPlan(shape, l)
	p.pieces = make([][]Piece, len(l.Order))

	consumed, rows := 1, 1
	for k, axis := range l.Order {
		n := shape[axis]
		switch {
		case n == 0:
			p.pieces[k] = nil
			rows = 0
		case consumed <= capacity/n:
			p.pieces[k] = []Piece{{Slice: Full(), Len: n}}
			rows *= n
		case consumed >= capacity:
			p.pieces[k] = splitAxis(n, 1)
		default:
			step := capacity / consumed
			if consumed > 1 {
				// spread the axis over equal pieces so the last one is not short
				pieces := ceilDiv(n, step)
				step = ceilDiv(n, pieces)
			}
			p.pieces[k] = splitAxis(n, step)
			rows *= step
		}
		consumed = satMul(consumed, n, capacity)
	}

	p.rows = rows
	p.total = 1
	for _, axis := range l.Order {
		p.total *= shape[axis]
	}
	p.walk = &denseWalk{plan: p}
	return p, nil
}

// PlanMasked partitions the rows selected by mask into consecutive batches of
// at most capacity rows, keeping mask order.
func PlanMasked(shape []int, capacity int, mask Mask, l Layout) (*Plan, error) {
	l, err := l.resolve(shape, true)
	if err != nil {
		return nil, err
	}
	if len(l.Order) == 0 {
		return nil, fmt.Errorf("%w: a mask needs at least one order axis", ErrConfig)
	}
	dims := make([]int, len(l.Order))
	for k, axis := range l.Order {
		dims[k] = shape[axis]
	}
	coords, err := resolveMask(mask, dims)
	if err != nil {
		return nil, err
	}
	capacity = clampCapacity(capacity)
	p := newPlan(shape, l)
	p.masked = true
	p.coords = coords
	p.total = len(coords[0])
	p.rows = min(capacity, p.total)
	if listAxis(l.Order) != 0 {
		p.listPos = 1
	}
	p.walk = &maskedWalk{plan: p, capacity: capacity}
	return p, nil
}

func newPlan(shape []int, l Layout) *Plan {
	return &Plan{
		shape:    slices.Clone(shape),
		layout:   l,
		channels: l.ChannelSlice.Len(shape[l.ChannelAxis]),
	}
}

// Shape is the shape of the planned array.
func (p *Plan) Shape() []int { return slices.Clone(p.shape) }

// Layout returns the resolved axis roles.
func (p *Plan) Layout() Layout {
	l := p.layout
	l.Order = slices.Clone(l.Order)
	return l
}

// Masked reports whether the plan follows a mask.
func (p *Plan) Masked() bool { return p.masked }

// Channels is the number of channels per row after the channel slice.
func (p *Plan) Channels() int { return p.channels }

// Rows is the largest row count of any chunk, the row size of the buffer.
func (p *Plan) Rows() int { return p.rows }

// Total is the number of rows the plan covers.
func (p *Plan) Total() int { return p.total }

// Pieces returns, per order axis in traversal order, the runs a dense plan
// splits the axis into. It is nil for masked plans.
func (p *Plan) Pieces() [][]Piece { return p.pieces }

// NumChunks counts the chunks without enumerating them.
func (p *Plan) NumChunks() int { return p.walk.numChunks() }

// transpose is the axis permutation that turns a chunk read from the source
// into (rows, channels) order.
func (p *Plan) transpose() []int {
	if p.masked {
		if p.listPos == 0 {
			return []int{0, 1}
		}
		return []int{1, 0}
	}
	perm := slices.Sorted(slices.Values(p.layout.Order))
	return append(perm, p.layout.ChannelAxis)
}

func splitAxis(n, step int) []Piece {
	pieces := make([]Piece, 0, ceilDiv(n, step))
	for a := 0; a < n; a += step {
		b := min(a+step, n)
		pieces = append(pieces, Piece{Slice: Span(a, b), Len: b - a})
	}
	return pieces
}

func clampCapacity(c int) int {
	return min(max(c, 1), math.MaxInt-1)
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a-1)/b + 1
}

// satMul multiplies a and b, saturating just above limit.
func satMul(a, b, limit int) int {
	if a > limit || (b != 0 && a > (limit+1)/b) {
		return limit + 1
	}
	return min(a*b, limit+1)
}
