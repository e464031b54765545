package mcastack

import (
	"context"
	"fmt"
	"iter"
	"slices"
)

// bufferItemSize is the byte size of one buffered value (float64).
const bufferItemSize = 8

// DefaultMemoryMargin is the fraction of available memory a view buffers
// when no row capacity is given.
const DefaultMemoryMargin = 0.01

type viewState int

const (
	stateConstructed viewState = iota
	stateIterating
	stateExhausted
)

type viewConfig struct {
	mask         Mask
	capacity     int
	channelAxis  int
	channelSlice Slice
	order        []int
	readOnly     bool
	observer     Observer
	memory       MemoryFunc
	margin       float64
	minRows      int
}

// Option configures a View.
type Option func(*viewConfig)

// WithMask restricts the view to the rows a mask selects. A nil mask
// traverses every row.
func WithMask(m Mask) Option {
	return func(c *viewConfig) { c.mask = m }
}

// WithRowCapacity fixes the number of rows buffered at once. Without it the
// capacity is derived from available memory.
func WithRowCapacity(n int) Option {
	return func(c *viewConfig) { c.capacity = n }
}

// WithChannelAxis sets the axis holding the channels of each spectrum.
// Negative values count from the last axis, which is the default.
func WithChannelAxis(axis int) Option {
	return func(c *viewConfig) { c.channelAxis = axis }
}

// WithChannelSlice restricts every row to part of the channel axis.
func WithChannelSlice(s Slice) Option {
	return func(c *viewConfig) { c.channelSlice = s }
}

// WithOrder sets the traversal order of the non-channel axes, fastest first.
func WithOrder(axes ...int) Option {
	return func(c *viewConfig) { c.order = slices.Clone(axes) }
}

// WithReadOnly controls write-back. Views are read-only by default; a view
// that is not writes every chunk back before reading the next one.
func WithReadOnly(ro bool) Option {
	return func(c *viewConfig) { c.readOnly = ro }
}

// WithObserver receives the view's events.
func WithObserver(o Observer) Option {
	return func(c *viewConfig) { c.observer = o }
}

// WithMemoryQuery replaces the system memory query used to derive capacity.
func WithMemoryQuery(fn MemoryFunc) Option {
	return func(c *viewConfig) { c.memory = fn }
}

// WithMemoryMargin sets the fraction of available memory to buffer.
func WithMemoryMargin(f float64) Option {
	return func(c *viewConfig) { c.margin = f }
}

// WithMinRows sets the smallest derived row capacity, also used when the
// available memory is unknown.
func WithMinRows(n int) Option {
	return func(c *viewConfig) { c.minRows = n }
}

// View traverses a Source chunk by chunk through one reusable buffer of
// (rows, channels) values.
type View struct {
	src      Source
	plan     *Plan
	access   access
	readOnly bool
	observer Observer
	buf      []float64
	state    viewState
}

// NewView plans a traversal of src. Nothing is read and no buffer is
// allocated until Items is called.
func NewView(src Source, opts ...Option) (*View, error) {
	cfg := viewConfig{
		channelAxis:  -1,
		channelSlice: Full(),
		readOnly:     true,
		memory:       SystemMemory,
		margin:       DefaultMemoryMargin,
		minRows:      1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	shape := src.Shape()
	layout := Layout{ChannelAxis: cfg.channelAxis, ChannelSlice: cfg.channelSlice, Order: cfg.order}
	capacity := cfg.capacity
	memoryKnown := true
	if capacity <= 0 {
		var err error
		if capacity, memoryKnown, err = deriveCapacity(shape, layout, cfg); err != nil {
			return nil, err
		}
	}

	var (
		plan *Plan
		err  error
	)
	if cfg.mask == nil {
		plan, err = PlanDense(shape, capacity, layout)
	} else {
		plan, err = PlanMasked(shape, capacity, cfg.mask, layout)
	}
	if err != nil {
		return nil, err
	}

	v := &View{
		src:      src,
		plan:     plan,
		access:   newAccess(src, plan),
		readOnly: cfg.readOnly,
		observer: cfg.observer,
	}
	if !memoryKnown {
		v.emit(Event{Kind: EventMemoryUnknown, Rows: capacity})
	}
	v.emit(Event{
		Kind:     EventPlanned,
		Rows:     plan.Rows(),
		Channels: plan.Channels(),
		Chunks:   plan.NumChunks(),
		Total:    plan.Total(),
		Masked:   plan.Masked(),
	})
	return v, nil
}

// NewFullView is NewView over every row, ignoring any mask option.
func NewFullView(src Source, opts ...Option) (*View, error) {
	return NewView(src, append(slices.Clone(opts), WithMask(nil))...)
}

func deriveCapacity(shape []int, l Layout, cfg viewConfig) (int, bool, error) {
	ch, err := normalizeAxis(l.ChannelAxis, len(shape))
	if err != nil {
		return 0, false, err
	}
	row := slices.Clone(shape)
	row[ch] = l.ChannelSlice.Len(shape[ch])
	excluded := make([]int, 0, len(shape))
	for axis := range shape {
		if axis != ch {
			excluded = append(excluded, axis)
		}
	}
	known := true
	query := func() (int64, bool) {
		n, ok := cfg.memory()
		known = ok
		return n, ok
	}
	n, err := CapacityForMemory(row, bufferItemSize, excluded, cfg.margin, cfg.minRows, query)
	if err != nil {
		return 0, false, err
	}
	return n, known, nil
}

func (v *View) emit(e Event) {
	if v.observer != nil {
		v.observer(e)
	}
}

// Plan returns the partition the view traverses.
func (v *View) Plan() *Plan { return v.plan }

// ReadOnly reports whether chunks are left unwritten.
func (v *View) ReadOnly() bool { return v.readOnly }

// Masked reports whether the view follows a mask.
func (v *View) Masked() bool { return v.plan.Masked() }

// Channels is the number of channels per buffered row.
func (v *View) Channels() int { return v.plan.Channels() }

// ChannelsOrg is the length of the source's channel axis.
func (v *View) ChannelsOrg() int { return v.plan.shape[v.plan.layout.ChannelAxis] }

// RowCapacity is the number of rows the buffer holds.
func (v *View) RowCapacity() int { return v.plan.Rows() }

// IndexFull selects every row of the view over the requested channels.
func (v *View) IndexFull() Index {
	l := v.plan.layout
	idx := fullIndex(len(v.plan.shape))
	idx[l.ChannelAxis] = l.ChannelSlice
	if v.plan.masked {
		for k, axis := range l.Order {
			idx[axis] = List(slices.Clone(v.plan.coords[k]))
		}
	}
	return idx
}

// IndexFullComplement yields the indices of the data a traversal leaves
// alone. Without a mask that is a single index over the channels outside the
// channel slice. With a mask it yields, for every such channel, an index over
// that channel and the rows the mask does not select.
func (v *View) IndexFullComplement() iter.Seq[Index] {
	return func(yield func(Index) bool) {
		p := v.plan
		l := p.layout
		channels := l.ChannelSlice.Complement(v.ChannelsOrg())
		if !p.masked {
			idx := fullIndex(len(p.shape))
			idx[l.ChannelAxis] = List(channels)
			yield(idx)
			return
		}
		dims := make([]int, len(l.Order))
		for k, axis := range l.Order {
			dims[k] = p.shape[axis]
		}
		rows := complementRows(p.coords, dims)
		for _, c := range channels {
			idx := fullIndex(len(p.shape))
			for k, axis := range l.Order {
				idx[axis] = List(slices.Clone(rows[k]))
			}
			idx[l.ChannelAxis] = Point(c)
			if !yield(idx) {
				return
			}
		}
	}
}

func fullIndex(ndim int) Index {
	idx := make(Index, ndim)
	for i := range idx {
		idx[i] = Full()
	}
	return idx
}

// KeyMode selects what an Iterator's Key describes.
type KeyMode int

const (
	// KeyAll keys chunks by their full index and result shape.
	KeyAll KeyMode = iota
	// KeySelect keys chunks by the order axes only, in ascending axis order.
	KeySelect
)

// Key identifies the rows of a chunk.
type Key struct {
	Index Index
	Shape []int
}

// Items starts the traversal. A view can be traversed once; later calls
// return ErrConsumed.
func (v *View) Items(mode KeyMode) (*Iterator, error) {
	return v.ItemsContext(context.Background(), mode)
}

// ItemsContext is Items with a context checked before every advance.
func (v *View) ItemsContext(ctx context.Context, mode KeyMode) (*Iterator, error) {
	if v.state != stateConstructed {
		return nil, ErrConsumed
	}
	if mode != KeyAll && mode != KeySelect {
		return nil, fmt.Errorf("%w: unknown key mode %d", ErrConfig, mode)
	}
	v.state = stateIterating
	if v.buf == nil {
		n := v.plan.Rows() * v.plan.Channels()
		v.buf = make([]float64, n)
		v.access.alloc(n)
	}
	return &Iterator{
		view: v,
		ctx:  ctx,
		mode: mode,
		next: v.plan.walk.cursor(),
	}, nil
}

// Iterator walks a View's chunks in the style of bufio.Scanner:
//
//	it, err := view.Items(mcastack.KeyAll)
//	if err != nil {
//	    return err
//	}
//	for it.Next() {
//	    key, blk := it.Key(), it.Block()
//	    ...
//	}
//	if err := it.Err(); err != nil {
//	    return err
//	}
//
// The Block returned for a chunk is only valid until the next call to Next.
// For writable views, Next first writes the current block back to the source.
type Iterator struct {
	view  *View
	ctx   context.Context
	mode  KeyMode
	next  func() (Chunk, bool)
	chunk Chunk
	n     int
	has   bool
	done  bool
	err   error
}

// Next advances to the next chunk, reporting false once the traversal is
// over or failed.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	if it.ctx != nil {
		if err := it.ctx.Err(); err != nil {
			return it.fail(err)
		}
	}
	v := it.view
	if it.has && !v.readOnly {
		if err := v.access.write(it.chunk, it.data()); err != nil {
			return it.fail(err)
		}
		v.emit(Event{Kind: EventChunkWritten, Chunk: it.n - 1, Rows: it.chunk.Count, Channels: v.plan.channels})
	}
	it.has = false

	c, ok := it.next()
	if !ok {
		it.done = true
		v.state = stateExhausted
		v.emit(Event{Kind: EventExhausted, Chunks: it.n, Total: v.plan.total, Masked: v.plan.masked})
		return false
	}
	it.chunk = c
	if err := v.access.read(c, it.data()); err != nil {
		return it.fail(err)
	}
	it.has = true
	it.n++
	v.emit(Event{Kind: EventChunkRead, Chunk: it.n - 1, Rows: c.Count, Channels: v.plan.channels})
	return true
}

func (it *Iterator) fail(err error) bool {
	it.err = err
	it.done = true
	it.has = false
	it.view.state = stateExhausted
	return false
}

func (it *Iterator) data() []float64 {
	return it.view.buf[:it.chunk.Count*it.view.plan.channels]
}

// Err returns the error that ended the traversal, if any.
func (it *Iterator) Err() error { return it.err }

// Chunk returns the descriptor of the current chunk.
func (it *Iterator) Chunk() Chunk { return it.chunk }

// Block returns the current chunk's rows.
func (it *Iterator) Block() Block {
	if !it.has {
		return Block{Channels: it.view.plan.channels}
	}
	return Block{Rows: it.chunk.Count, Channels: it.view.plan.channels, Data: it.data()}
}

// Key describes the current chunk according to the iterator's key mode.
func (it *Iterator) Key() Key {
	c := it.chunk
	if it.mode == KeyAll {
		return Key{Index: c.Index, Shape: c.Shape}
	}
	p := it.view.plan
	axes := slices.Sorted(slices.Values(p.layout.Order))
	k := Key{Index: make(Index, len(axes))}
	for i, axis := range axes {
		k.Index[i] = c.Index[axis]
	}
	if p.masked {
		k.Shape = []int{c.Count}
		return k
	}
	k.Shape = make([]int, len(axes))
	for i, axis := range axes {
		k.Shape[i] = c.Shape[axis]
	}
	return k
}
