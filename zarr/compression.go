package zarr

import (
	"bytes"
	"fmt"
	"io"

	"github.com/qri-io/dataset/compression"
)

// CompressionMeta defines compression settings zarr-go understands
type CompressionMeta struct {
	ID      string `json:"id"`
	Cname   string `json:"cname,omitempty"`
	Clevel  int    `json:"clevel,omitempty"`
	Shuffle int    `json:"shuffle,omitempty"`
}

// codec ids mapped to the stream formats of the compression package
var codecFormats = map[string]string{
	"zstd": "zst",
	"gzip": "gzip",
}

// format returns the compression stream format, "" for uncompressed chunks.
func (m *CompressionMeta) format() (string, error) {
	if m == nil {
		return "", nil
	}
	f, ok := codecFormats[m.ID]
	if !ok {
		return "", fmt.Errorf("%w: compressor %q", ErrUnsupported, m.ID)
	}
	return f, nil
}

func (m *CompressionMeta) Decompressor(r io.ReadCloser) (io.ReadCloser, error) {
	f, err := m.format()
	if err != nil {
		return nil, err
	}
	if f == "" {
		return r, nil
	}
	return compression.Decompressor(f, r)
}

func (m *CompressionMeta) Compressor(w io.Writer) (io.WriteCloser, error) {
	f, err := m.format()
	if err != nil {
		return nil, err
	}
	if f == "" {
		return nopWriteCloser{w}, nil
	}
	return compression.Compressor(f, w)
}

// compress runs raw through the compressor into a new buffer.
func (m *CompressionMeta) compress(raw []byte) (*bytes.Buffer, error) {
	buf := &bytes.Buffer{}
	w, err := m.Compressor(buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
