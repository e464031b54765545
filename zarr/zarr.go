// Package zarr reads and writes zarr v2 arrays held in a key/value Store.
// An Array is a mcastack.Source, so chunked views can traverse it.
package zarr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/qri-io/mcastack"
)

const (
	// Version is the zarr storage format version this package reads and writes.
	Version = 2
)

var (
	// ErrUnsupported marks metadata this package cannot serve.
	ErrUnsupported = errors.New("unsupported")
	// ErrInvalidMeta marks malformed array metadata.
	ErrInvalidMeta = errors.New("invalid array metadata")
	// ErrExists is returned when creating over an existing array with ModeWriteFail.
	ErrExists = errors.New("array exists")
	// ErrReadOnly is returned when writing to an array opened with ModeRead.
	ErrReadOnly = errors.New("array is read-only")
)

type Array struct {
	path  Path
	store Store
	mode  PersistenceMode
	meta  *ArrayMeta
	grid  chunkGrid
	fill  float64

	// most recently decoded chunk
	lastKey string
	last    []float64
}

var _ mcastack.Source = (*Array)(nil)

// Open opens the existing array at path. Only ModeRead and ModeReadWrite
// open without metadata to create from; use Create for the other modes.
func Open(store Store, path string, mode PersistenceMode) (*Array, error) {
	if mode != ModeRead && mode != ModeReadWrite {
		return nil, fmt.Errorf("%w: open with mode %q, use Create", ErrUnsupported, mode)
	}
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	meta, err := readMeta(store, p)
	if err != nil {
		return nil, err
	}
	return newArray(store, p, mode, meta)
}

// Create makes an array at path according to mode:
// ModeReadWriteCreate opens an existing array and creates it otherwise,
// ModeWrite replaces any existing array and ModeWriteFail fails with
// ErrExists when one is present.
func Create(store Store, path string, meta *ArrayMeta, mode PersistenceMode) (*Array, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	existing, err := readMeta(store, p)
	switch {
	case errors.Is(err, ErrNotfound):
		existing = nil
	case err != nil && mode != ModeWrite:
		return nil, err
	}

	switch mode {
	case ModeReadWriteCreate:
		if existing != nil {
			return newArray(store, p, mode, existing)
		}
	case ModeWrite:
		if existing != nil {
			if err := clearChunks(store, p, existing); err != nil {
				return nil, err
			}
		}
	case ModeWriteFail:
		if existing != nil {
			return nil, fmt.Errorf("%w: %s", ErrExists, p)
		}
	default:
		return nil, fmt.Errorf("%w: create with mode %q", ErrUnsupported, mode)
	}

	meta = meta.clone()
	d, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := store.Put(p.Join(string(MTArray)).String(), bytes.NewReader(d)); err != nil {
		return nil, err
	}
	return newArray(store, p, mode, meta)
}

func newArray(store Store, p Path, mode PersistenceMode, meta *ArrayMeta) (*Array, error) {
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("array %q: %w", p, err)
	}
	fill, err := meta.Fill()
	if err != nil {
		return nil, err
	}
	return &Array{
		path:  p,
		store: store,
		mode:  mode,
		meta:  meta,
		grid:  newChunkGrid(meta),
		fill:  fill,
	}, nil
}

func readMeta(store Store, p Path) (*ArrayMeta, error) {
	f, err := store.Get(p.Join(string(MTArray)).String())
	if err != nil {
		return nil, err
	}
	defer f.Close()
	meta := &ArrayMeta{}
	if err := json.NewDecoder(f).Decode(meta); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidMeta, p, err)
	}
	return meta, nil
}

// clearChunks deletes the chunks of an array described by meta.
func clearChunks(store Store, p Path, meta *ArrayMeta) error {
	if len(meta.Chunks) != len(meta.Shape) || slices.Contains(meta.Chunks, 0) {
		return nil
	}
	g := newChunkGrid(meta)
	for c := range g.all() {
		err := store.Delete(p.Join(g.ChunkKey(c)).String())
		if err != nil && !errors.Is(err, ErrNotfound) {
			return err
		}
	}
	return nil
}

func (m *ArrayMeta) clone() *ArrayMeta {
	c := *m
	c.Shape = slices.Clone(m.Shape)
	c.Chunks = slices.Clone(m.Chunks)
	c.Filters = slices.Clone(m.Filters)
	if m.Compressor != nil {
		cm := *m.Compressor
		c.Compressor = &cm
	}
	return &c
}

// Info summarizes the array in one line.
func (a *Array) Info() string {
	comp := "none"
	if a.meta.Compressor != nil {
		comp = a.meta.Compressor.ID
	}
	return fmt.Sprintf("<zarr.Array %q shape=%v chunks=%v dtype=%s order=%s compressor=%s>",
		a.path.String(), a.meta.Shape, a.meta.Chunks, a.meta.Dtype, a.meta.Order, comp)
}

func (a *Array) Path() string {
	return a.path.String()
}

// Meta returns a copy of the array metadata.
func (a *Array) Meta() *ArrayMeta { return a.meta.clone() }

func (a *Array) Shape() []int { return slices.Clone(a.meta.Shape) }

// GridShape is the number of chunks along every dimension.
func (a *Array) GridShape() []int { return a.grid.GridShape() }

// MultiListIndexing reports that an Index may hold at most one List.
func (a *Array) MultiListIndexing() bool { return false }

// Attributes reads the ".zattrs" document, empty when there is none.
func (a *Array) Attributes() (Attributes, error) {
	f, err := a.store.Get(a.path.Join(string(MTAttributes)).String())
	if errors.Is(err, ErrNotfound) {
		return Attributes{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	attrs := Attributes{}
	if err := json.NewDecoder(f).Decode(&attrs); err != nil {
		return nil, fmt.Errorf("reading %s attributes: %w", a.path, err)
	}
	return attrs, nil
}

// SetAttributes replaces the ".zattrs" document.
func (a *Array) SetAttributes(attrs Attributes) error {
	if a.mode == ModeRead {
		return ErrReadOnly
	}
	d, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	return a.store.Put(a.path.Join(string(MTAttributes)).String(), bytes.NewReader(d))
}

// ReadAll returns the whole array in C order.
func (a *Array) ReadAll() ([]float64, error) {
	idx := make(mcastack.Index, len(a.meta.Shape))
	for i := range idx {
		idx[i] = mcastack.Full()
	}
	dst := make([]float64, mcastack.Size(a.meta.Shape))
	if err := a.Read(idx, dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// Read fills dst with the elements idx selects. Chunks that were never
// written read as the fill value.
func (a *Array) Read(idx mcastack.Index, dst []float64) error {
	n, projections, err := a.grid.project(idx)
	if err != nil {
		return err
	}
	if len(dst) != n {
		return fmt.Errorf("%w: buffer holds %d values, index selects %d", mcastack.ErrSize, len(dst), n)
	}
	for _, p := range projections {
		chunk, err := a.loadChunk(p.ChunkCoords)
		if err != nil {
			return err
		}
		for i, off := range p.ChunkSelection {
			dst[p.OutSelection[i]] = chunk[off]
		}
	}
	return nil
}

// Write stores src at the elements idx selects, rewriting every touched chunk.
func (a *Array) Write(idx mcastack.Index, src []float64) error {
	if a.mode == ModeRead {
		return ErrReadOnly
	}
	n, projections, err := a.grid.project(idx)
	if err != nil {
		return err
	}
	if len(src) != n {
		return fmt.Errorf("%w: buffer holds %d values, index selects %d", mcastack.ErrSize, len(src), n)
	}
	for _, p := range projections {
		cached, err := a.loadChunk(p.ChunkCoords)
		if err != nil {
			return err
		}
		chunk := slices.Clone(cached)
		for i, off := range p.ChunkSelection {
			chunk[off] = src[p.OutSelection[i]]
		}
		if err := a.storeChunk(p.ChunkCoords, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (a *Array) chunkPath(coords []int) Path {
	return a.path.Join(a.grid.ChunkKey(coords))
}

func (a *Array) loadChunk(coords []int) ([]float64, error) {
	key := a.chunkPath(coords).String()
	if key == a.lastKey && a.last != nil {
		return a.last, nil
	}
	chunk := make([]float64, a.grid.chunkSize())
	f, err := a.store.Get(key)
	if errors.Is(err, ErrNotfound) {
		for i := range chunk {
			chunk[i] = a.fill
		}
		a.lastKey, a.last = key, chunk
		return chunk, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := a.meta.Compressor.Decompressor(f)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", key, err)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", key, err)
	}
	if err := a.meta.Dtype.decode(chunk, raw); err != nil {
		return nil, fmt.Errorf("chunk %s: %w", key, err)
	}
	a.lastKey, a.last = key, chunk
	return chunk, nil
}

func (a *Array) storeChunk(coords []int, chunk []float64) error {
	key := a.chunkPath(coords).String()
	raw := make([]byte, len(chunk)*a.meta.Dtype.ByteSize)
	if err := a.meta.Dtype.encode(raw, chunk); err != nil {
		return err
	}
	buf, err := a.meta.Compressor.compress(raw)
	if err != nil {
		return fmt.Errorf("chunk %s: %w", key, err)
	}
	if err := a.store.Put(key, buf); err != nil {
		return err
	}
	// re-decode so the cache holds what a later read would see
	if err := a.meta.Dtype.decode(chunk, raw); err != nil {
		return err
	}
	a.lastKey, a.last = key, chunk
	return nil
}

type PersistenceMode string

const (
	// Persistence mode:
	// ‘r’ means read only (must exist);
	ModeRead PersistenceMode = "r"
	//‘r+’ means read/write (must exist)
	ModeReadWrite PersistenceMode = "r+"
	// ‘a’ means read/write (create if doesn’t exist)
	ModeReadWriteCreate PersistenceMode = "a"
	// ‘w’ means create (overwrite if exists)
	ModeWrite PersistenceMode = "w"
	// ‘w-’ means create (fail if exists).
	ModeWriteFail PersistenceMode = "w-"
)

// ParsePersistenceMode validates a mode string.
func ParsePersistenceMode(s string) (PersistenceMode, error) {
	switch m := PersistenceMode(s); m {
	case ModeRead, ModeReadWrite, ModeReadWriteCreate, ModeWrite, ModeWriteFail:
		return m, nil
	}
	return "", fmt.Errorf("%w: persistence mode %q", ErrUnsupported, s)
}

// Path is a logical path in a store, split on "/". The root is the empty Path.
type Path []string

// NewPath normalizes a logical path so that it addresses the same keys on
// every store: backward slashes become forward slashes, leading and trailing
// slashes are stripped and runs of slashes collapse into one.
func NewPath(posix string) (Path, error) {
	s := strings.ReplaceAll(posix, `\`, "/")
	var p Path
	for _, seg := range strings.Split(s, "/") {
		switch seg {
		case "":
			continue
		case ".", "..":
			return nil, fmt.Errorf("invalid path %q: relative segment %q", posix, seg)
		}
		p = append(p, seg)
	}
	return p, nil
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

// Join returns a new path with elems appended. elems may contain "/"; the
// chunk keys of nested dimension separators do.
func (p Path) Join(elems ...string) Path {
	out := slices.Clone(p)
	for _, e := range elems {
		for _, seg := range strings.Split(e, "/") {
			if seg != "" {
				out = append(out, seg)
			}
		}
	}
	return out
}
