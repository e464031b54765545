package mcastack

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// singleList is a source that, like most chunked stores, refuses lists on
// more than one axis of an index.
type singleList struct {
	Source
	reads int
}

func (s *singleList) Read(idx Index, dst []float64) error {
	if len(idx.ListAxes()) > 1 {
		return fmt.Errorf("%w: one list at a time", ErrIndex)
	}
	s.reads++
	return s.Source.Read(idx, dst)
}

func (s *singleList) Write(idx Index, src []float64) error {
	if len(idx.ListAxes()) > 1 {
		return fmt.Errorf("%w: one list at a time", ErrIndex)
	}
	return s.Source.Write(idx, src)
}

var errBroken = errors.New("broken source")

type brokenSource struct {
	Source
	failRead, failWrite bool
}

func (s *brokenSource) Read(idx Index, dst []float64) error {
	if s.failRead {
		return errBroken
	}
	return s.Source.Read(idx, dst)
}

func (s *brokenSource) Write(idx Index, src []float64) error {
	if s.failWrite {
		return errBroken
	}
	return s.Source.Write(idx, src)
}

func newRamp(t *testing.T, shape ...int) *Dense[float64] {
	t.Helper()
	d, err := NewDense(shape, ramp(Size(shape)))
	require.NoError(t, err)
	return d
}

func drain(t *testing.T, v *View, fn func(it *Iterator)) {
	t.Helper()
	it, err := v.Items(KeyAll)
	require.NoError(t, err)
	for it.Next() {
		if fn != nil {
			fn(it)
		}
	}
	require.NoError(t, it.Err())
}

func TestViewReadsChunks(t *testing.T) {
	src := newRamp(t, 4, 3, 5)
	v, err := NewView(src, WithRowCapacity(5), WithReadOnly(false))
	require.NoError(t, err)
	assert.Equal(t, 3, v.RowCapacity())
	assert.Equal(t, 5, v.Channels())
	assert.Equal(t, 5, v.ChannelsOrg())
	assert.False(t, v.ReadOnly())
	assert.False(t, v.Masked())

	chunks := 0
	drain(t, v, func(it *Iterator) {
		c := it.Chunk()
		want := make([]float64, c.Count*5)
		require.NoError(t, src.Read(c.Index, want))
		blk := it.Block()
		assert.Equal(t, c.Count, blk.Rows)
		assert.Equal(t, want, blk.Data)
		chunks++
	})
	assert.Equal(t, 4, chunks)
	// an untouched writable traversal leaves the data as it was
	assert.Equal(t, ramp(60), src.Data())
}

func TestViewWriteBack(t *testing.T) {
	src := newRamp(t, 3, 2)
	v, err := NewView(src, WithRowCapacity(1), WithReadOnly(false))
	require.NoError(t, err)
	it, err := v.Items(KeyAll)
	require.NoError(t, err)

	require.True(t, it.Next())
	first := it.Block()
	first.Set(0, 1, -1)
	assert.Equal(t, 1.0, src.At(0, 1), "written only when advancing")

	require.True(t, it.Next())
	assert.Equal(t, -1.0, src.At(0, 1))
	second := it.Block()
	assert.Same(t, &first.Data[0], &second.Data[0], "blocks alias the buffer")
	assert.Equal(t, []float64{2, 3}, first.Data)

	for it.Next() {
		blk := it.Block()
		for i := range blk.Data {
			blk.Data[i] *= 10
		}
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []float64{0, -1, 2, 3, 40, 50}, src.Data())
	assert.Equal(t, 0, it.Block().Rows)
}

func TestViewReadOnly(t *testing.T) {
	src := newRamp(t, 6, 4)
	v, err := NewView(src, WithRowCapacity(4))
	require.NoError(t, err)
	assert.True(t, v.ReadOnly())
	drain(t, v, func(it *Iterator) {
		blk := it.Block()
		for i := range blk.Data {
			blk.Data[i] = 0
		}
	})
	assert.Equal(t, ramp(24), src.Data())
}

func TestViewConsumed(t *testing.T) {
	v, err := NewView(newRamp(t, 4, 2), WithRowCapacity(2))
	require.NoError(t, err)
	_, err = v.Items(KeyMode(7))
	assert.ErrorIs(t, err, ErrConfig)

	drain(t, v, nil)
	_, err = v.Items(KeyAll)
	assert.ErrorIs(t, err, ErrConsumed)

	v, err = NewView(newRamp(t, 4, 2), WithRowCapacity(2))
	require.NoError(t, err)
	_, err = v.Items(KeyAll)
	require.NoError(t, err)
	_, err = v.Items(KeyAll)
	assert.ErrorIs(t, err, ErrConsumed, "a second traversal cannot start while one runs")
}

func TestViewChannelFirst(t *testing.T) {
	src := newRamp(t, 5, 3, 4)
	v, err := NewView(src, WithChannelAxis(0), WithRowCapacity(4), WithReadOnly(false))
	require.NoError(t, err)
	assert.Equal(t, 5, v.Channels())

	it, err := v.Items(KeySelect)
	require.NoError(t, err)
	seen := 0
	for it.Next() {
		key, blk := it.Key(), it.Block()
		a1 := key.Index[0].(Slice).Expand(3)
		a2 := key.Index[1].(Slice).Expand(4)
		assert.Equal(t, []int{len(a1), len(a2)}, key.Shape)
		i := 0
		for _, r := range a1 {
			for _, c := range a2 {
				for j := range 5 {
					assert.Equal(t, src.At(j, r, c), blk.At(i, j))
				}
				i++
			}
		}
		for i := range blk.Data {
			blk.Data[i] *= 2
		}
		seen += blk.Rows
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 12, seen)

	want := ramp(60)
	for i := range want {
		want[i] *= 2
	}
	assert.Equal(t, want, src.Data())
}

func TestViewChannelSlice(t *testing.T) {
	src := newRamp(t, 4, 6)
	v, err := NewView(src, WithChannelSlice(Stride(1, Unset, 2)), WithRowCapacity(3), WithReadOnly(false))
	require.NoError(t, err)
	assert.Equal(t, 3, v.Channels())
	drain(t, v, func(it *Iterator) {
		blk := it.Block()
		for i := range blk.Data {
			blk.Data[i] = -1
		}
	})
	for r := range 4 {
		for c := range 6 {
			want := float64(r*6 + c)
			if c%2 == 1 {
				want = -1
			}
			assert.Equal(t, want, src.At(r, c), "(%d, %d)", r, c)
		}
	}
}

func TestViewMasked(t *testing.T) {
	mask := IndexMask{{3, 0, 2, 1, 0}, {2, 1, 0, 2, 2}}
	blocks := func(src Source) [][]float64 {
		v, err := NewView(src, WithMask(mask), WithRowCapacity(2))
		require.NoError(t, err)
		assert.True(t, v.Masked())
		var out [][]float64
		drain(t, v, func(it *Iterator) {
			out = append(out, slices.Clone(it.Block().Data))
		})
		return out
	}

	src := newRamp(t, 4, 3, 5)
	direct := blocks(src)
	require.Len(t, direct, 3)
	for i := range 5 {
		row := direct[i/2][(i%2)*5 : (i%2)*5+5]
		for c := range 5 {
			assert.Equal(t, src.At(mask[0][i], mask[1][i], c), row[c])
		}
	}

	limited := &singleList{Source: src}
	assert.Equal(t, direct, blocks(limited))
	assert.Equal(t, 5, limited.reads, "one read per selected row")
}

func TestViewMaskedWriteBack(t *testing.T) {
	mask := IndexMask{{3, 0, 2}, {2, 1, 0}}
	selected := map[[2]int]bool{{3, 2}: true, {0, 1}: true, {2, 0}: true}
	for _, name := range []string{"direct", "per row"} {
		t.Run(name, func(t *testing.T) {
			dense := newRamp(t, 4, 3, 5)
			var src Source = dense
			if name == "per row" {
				src = &singleList{Source: dense}
			}
			v, err := NewView(src, WithMask(mask), WithRowCapacity(2), WithReadOnly(false))
			require.NoError(t, err)
			drain(t, v, func(it *Iterator) {
				blk := it.Block()
				for i := range blk.Data {
					blk.Data[i] = -blk.Data[i]
				}
			})
			for a := range 4 {
				for b := range 3 {
					for c := range 5 {
						want := float64(a*15 + b*5 + c)
						if selected[[2]int{a, b}] {
							want = -want
						}
						assert.Equal(t, want, dense.At(a, b, c))
					}
				}
			}
		})
	}
}

func TestViewMaskedChannelFirst(t *testing.T) {
	mask := IndexMask{{2, 0}, {1, 3}}
	for _, limited := range []bool{false, true} {
		dense := newRamp(t, 5, 3, 4)
		var src Source = dense
		if limited {
			src = &singleList{Source: dense}
		}
		v, err := NewView(src, WithMask(mask), WithChannelAxis(0), WithRowCapacity(10))
		require.NoError(t, err)
		drain(t, v, func(it *Iterator) {
			c := it.Chunk()
			assert.Equal(t, []int{5, 2}, c.Shape)
			blk := it.Block()
			require.Equal(t, 2, blk.Rows)
			for i := range 2 {
				for j := range 5 {
					assert.Equal(t, dense.At(j, mask[0][i], mask[1][i]), blk.At(i, j))
				}
			}
		})
	}
}

func TestViewKeys(t *testing.T) {
	v, err := NewView(newRamp(t, 4, 3, 5), WithRowCapacity(3))
	require.NoError(t, err)
	it, err := v.Items(KeySelect)
	require.NoError(t, err)
	var keys []Key
	for it.Next() {
		keys = append(keys, it.Key())
	}
	require.NoError(t, it.Err())
	require.Len(t, keys, 4)
	assert.Equal(t, Key{Index: Index{Span(1, 2), Full()}, Shape: []int{1, 3}}, keys[1])

	v, err = NewView(newRamp(t, 4, 3, 5), WithRowCapacity(3))
	require.NoError(t, err)
	it, err = v.Items(KeyAll)
	require.NoError(t, err)
	require.True(t, it.Next())
	assert.Equal(t, Key{Index: Index{Span(0, 1), Full(), Full()}, Shape: []int{1, 3, 5}}, it.Key())

	v, err = NewView(newRamp(t, 4, 3, 5), WithMask(IndexMask{{3, 0}, {2, 1}}), WithRowCapacity(10))
	require.NoError(t, err)
	it, err = v.Items(KeySelect)
	require.NoError(t, err)
	require.True(t, it.Next())
	assert.Equal(t, Key{Index: Index{List{3, 0}, List{2, 1}}, Shape: []int{2}}, it.Key())
}

func TestViewIndexFull(t *testing.T) {
	v, err := NewView(newRamp(t, 2, 2, 5), WithChannelSlice(Span(1, 3)))
	require.NoError(t, err)
	assert.Equal(t, Index{Full(), Full(), Span(1, 3)}, v.IndexFull())
	comp := slices.Collect(v.IndexFullComplement())
	assert.Equal(t, []Index{{Full(), Full(), List{0, 3, 4}}}, comp)

	mask := IndexMask{{0, 1}, {1, 0}}
	v, err = NewView(newRamp(t, 2, 2, 3), WithMask(mask), WithChannelSlice(Span(0, 2)))
	require.NoError(t, err)
	assert.Equal(t, Index{List{0, 1}, List{1, 0}, Span(0, 2)}, v.IndexFull())
	comp = slices.Collect(v.IndexFullComplement())
	assert.Equal(t, []Index{{List{0, 1}, List{0, 1}, Point(2)}}, comp)

	// a full channel slice leaves nothing for a masked view
	v, err = NewView(newRamp(t, 2, 2, 3), WithMask(mask))
	require.NoError(t, err)
	assert.Empty(t, slices.Collect(v.IndexFullComplement()))
}

func TestViewComplementCoversRest(t *testing.T) {
	src := newRamp(t, 3, 4, 6)
	mask := IndexMask{{0, 2, 1}, {3, 0, 1}}
	v, err := NewView(src, WithMask(mask), WithChannelSlice(Stride(Unset, Unset, 3)))
	require.NoError(t, err)

	touched := make([]int, 72)
	mark := func(idx Index) {
		_, coords, err := idx.Coords(src.Shape())
		require.NoError(t, err)
		for _, c := range coords {
			touched[c[0]*24+c[1]*6+c[2]]++
		}
	}
	mark(v.IndexFull())
	for idx := range v.IndexFullComplement() {
		mark(idx)
	}
	// selected rows over every channel, plus the rest over the other channels
	for a := range 3 {
		for b := range 4 {
			sel := false
			for i := range mask[0] {
				sel = sel || (mask[0][i] == a && mask[1][i] == b)
			}
			for c := range 6 {
				want := 0
				if sel && c%3 == 0 || !sel && c%3 != 0 {
					want = 1
				}
				assert.Equal(t, want, touched[a*24+b*6+c], "(%d, %d, %d)", a, b, c)
			}
		}
	}
}

func TestViewMemoryCapacity(t *testing.T) {
	src := newRamp(t, 100, 10)
	v, err := NewView(src, WithMemoryQuery(fixedMemory(8000)), WithMemoryMargin(0.5))
	require.NoError(t, err)
	assert.Equal(t, 50, v.RowCapacity())

	v, err = NewView(src, WithMemoryQuery(fixedMemory(8000)), WithMemoryMargin(0.5), WithChannelSlice(Stride(Unset, Unset, 2)))
	require.NoError(t, err)
	assert.Equal(t, 100, v.RowCapacity())

	var events []Event
	v, err = NewView(src, WithMemoryQuery(unknownMemory), WithMinRows(7), WithObserver(func(e Event) { events = append(events, e) }))
	require.NoError(t, err)
	assert.Equal(t, 7, v.RowCapacity())
	require.Len(t, events, 2)
	assert.Equal(t, Event{Kind: EventMemoryUnknown, Rows: 7}, events[0])
	assert.Equal(t, EventPlanned, events[1].Kind)

	_, err = NewView(src, WithMemoryQuery(fixedMemory(8000)), WithMemoryMargin(0))
	assert.ErrorIs(t, err, ErrConfig)
}

func TestViewOptionErrors(t *testing.T) {
	src := newRamp(t, 4, 3)
	_, err := NewView(src, WithChannelAxis(2), WithRowCapacity(2))
	assert.ErrorIs(t, err, ErrConfig)
	_, err = NewView(src, WithChannelAxis(5))
	assert.ErrorIs(t, err, ErrConfig)
	_, err = NewView(src, WithOrder(1), WithRowCapacity(2))
	assert.ErrorIs(t, err, ErrConfig)
	_, err = NewView(src, WithMask(IndexMask{{4}}), WithRowCapacity(2))
	assert.ErrorIs(t, err, ErrInconsistent)

	v, err := NewFullView(src, WithMask(IndexMask{{4}}), WithRowCapacity(2))
	require.NoError(t, err)
	assert.False(t, v.Masked())
	assert.Equal(t, 4, v.Plan().Total())
}

func TestViewEmpty(t *testing.T) {
	var events []Event
	v, err := NewView(newRamp(t, 0, 4), WithRowCapacity(3), WithObserver(func(e Event) { events = append(events, e) }))
	require.NoError(t, err)
	drain(t, v, func(*Iterator) { t.Fatal("no chunk expected") })
	require.Len(t, events, 2)
	assert.Equal(t, EventExhausted, events[1].Kind)
	assert.Equal(t, 0, events[1].Chunks)
}

func TestViewEvents(t *testing.T) {
	var events []Event
	v, err := NewView(newRamp(t, 10, 4), WithRowCapacity(3), WithReadOnly(false),
		WithObserver(func(e Event) { events = append(events, e) }))
	require.NoError(t, err)
	drain(t, v, nil)

	var kinds []EventKind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []EventKind{
		EventPlanned,
		EventChunkRead, EventChunkWritten,
		EventChunkRead, EventChunkWritten,
		EventChunkRead, EventChunkWritten,
		EventChunkRead, EventChunkWritten,
		EventExhausted,
	}, kinds)
	assert.Equal(t, Event{Kind: EventPlanned, Rows: 3, Channels: 4, Chunks: 4, Total: 10}, events[0])
	assert.Equal(t, Event{Kind: EventChunkWritten, Chunk: 3, Rows: 1, Channels: 4}, events[8])
	assert.Equal(t, Event{Kind: EventExhausted, Chunks: 4, Total: 10}, events[9])
}

func TestViewContextCancel(t *testing.T) {
	src := newRamp(t, 3, 2)
	v, err := NewView(src, WithRowCapacity(1), WithReadOnly(false))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	it, err := v.ItemsContext(ctx, KeyAll)
	require.NoError(t, err)

	require.True(t, it.Next())
	it.Block().Set(0, 0, 99)
	cancel()
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), context.Canceled)
	assert.Equal(t, 0.0, src.At(0, 0), "the pending chunk is dropped")
	assert.False(t, it.Next())

	_, err = v.Items(KeyAll)
	assert.ErrorIs(t, err, ErrConsumed)
}

func TestViewSourceErrors(t *testing.T) {
	src := &brokenSource{Source: newRamp(t, 4, 2), failRead: true}
	v, err := NewView(src, WithRowCapacity(2))
	require.NoError(t, err)
	it, err := v.Items(KeyAll)
	require.NoError(t, err)
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), errBroken)

	src = &brokenSource{Source: newRamp(t, 4, 2), failWrite: true}
	v, err = NewView(src, WithRowCapacity(2), WithReadOnly(false))
	require.NoError(t, err)
	it, err = v.Items(KeyAll)
	require.NoError(t, err)
	assert.True(t, it.Next())
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), errBroken)
}
