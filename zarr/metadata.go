package zarr

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

type MetaType string

const (
	// MTAttributes stores userland metadata keyed by array name
	MTAttributes MetaType = ".zattrs"
	// MTArray is the key for storing metadata on an array store
	MTArray MetaType = ".zarray"
)

// Attributes is the free-form JSON object stored under ".zattrs".
type Attributes map[string]any

// Each array requires essential configuration metadata to be stored,
// enabling correct interpretation of the stored data.
// This metadata is encoded using JSON and stored as the value of the
// “.zarray” key within an array store.
type ArrayMeta struct {
	// An integer defining the version of the storage specification to which
	// the array store adheres.
	ZarrFormat int `json:"zarr_format"`
	// A list of integers defining the length of each dimension of the array.
	Shape []int `json:"shape"`
	// A list of integers defining the length of each dimension of a chunk of the
	// array. Note that all chunks within a Zarr array have the same shape.
	Chunks []int `json:"chunks"`
	Dtype  Dtype `json:"dtype"`
	// The primary compression codec, or null if no compressor is to be used.
	Compressor *CompressionMeta `json:"compressor"`
	// A scalar value providing the default value to use for uninitialized
	// portions of the array, or null if no fill_value is to be used. NaN and
	// the infinities are encoded as the strings "NaN", "Infinity" and
	// "-Infinity".
	FillValue any `json:"fill_value"`
	// Either “C” or “F”, defining the layout of bytes within each chunk of the
	// array. “C” means row-major order, i.e., the last dimension varies fastest;
	// “F” means column-major order, i.e., the first dimension varies fastest.
	Order string `json:"order"`
	// A list of codec configurations, or null if no filters are to be
	// applied. Filters are not supported and must be null.
	Filters []Filter `json:"filters"`

	// If present, either the string "." or "/" definining the separator placed
	// between the dimensions of a chunk. If the value is not set, then the
	// default MUST be assumed to be ".", leading to chunk keys of the form “0.0”.
	DimensionSeparator string `json:"dimension_separator,omitempty"`
}

// NewArrayMeta returns C-ordered, uncompressed, zero-filled metadata.
func NewArrayMeta(shape, chunks []int, dt Dtype) *ArrayMeta {
	return &ArrayMeta{
		ZarrFormat: Version,
		Shape:      slices.Clone(shape),
		Chunks:     slices.Clone(chunks),
		Dtype:      dt,
		FillValue:  0.0,
		Order:      "C",
	}
}

type Filter struct {
	ID     string `json:"id"`
	Delta  string `json:"delta,omitempty"`
	Dtype  string `json:"dtype,omitempty"`
	AsType string `json:"astype,omitempty"`
}

const (
	// Not a Number
	FillValueNaN = "NaN"
	// Infinity
	FillValueInfinity = "Infinity"
	// -Infinity
	FillValueNegativeInfinity = "-Infinity"
)

// Validate checks that the metadata describes an array this package can
// read and write.
func (m *ArrayMeta) Validate() error {
	if m.ZarrFormat != Version {
		return fmt.Errorf("%w: zarr format %d", ErrUnsupported, m.ZarrFormat)
	}
	if len(m.Shape) == 0 {
		return fmt.Errorf("%w: zero-dimensional arrays", ErrUnsupported)
	}
	if len(m.Chunks) != len(m.Shape) {
		return fmt.Errorf("%w: chunks %v do not match shape %v", ErrInvalidMeta, m.Chunks, m.Shape)
	}
	for i, d := range m.Shape {
		if d < 0 || m.Chunks[i] <= 0 {
			return fmt.Errorf("%w: shape %v with chunks %v", ErrInvalidMeta, m.Shape, m.Chunks)
		}
	}
	if !m.Dtype.Numeric() {
		return fmt.Errorf("%w: dtype %s", ErrUnsupported, m.Dtype)
	}
	if m.Order != "C" && m.Order != "F" {
		return fmt.Errorf("%w: order %q", ErrInvalidMeta, m.Order)
	}
	if len(m.Filters) > 0 {
		return fmt.Errorf("%w: filters", ErrUnsupported)
	}
	switch m.DimensionSeparator {
	case "", ".", "/":
	default:
		return fmt.Errorf("%w: dimension separator %q", ErrInvalidMeta, m.DimensionSeparator)
	}
	if _, err := m.Compressor.format(); err != nil {
		return err
	}
	if _, err := m.Fill(); err != nil {
		return err
	}
	return nil
}

// Fill returns the fill value as a float64. A null fill value reads as 0.
func (m *ArrayMeta) Fill() (float64, error) {
	switch v := m.FillValue.(type) {
	case nil:
		return 0, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		switch v {
		case FillValueNaN:
			return math.NaN(), nil
		case FillValueInfinity:
			return math.Inf(1), nil
		case FillValueNegativeInfinity:
			return math.Inf(-1), nil
		}
	}
	return 0, fmt.Errorf("%w: fill value %v", ErrInvalidMeta, m.FillValue)
}

// SetFill stores v as the fill value, encoding non-finite values as strings.
func (m *ArrayMeta) SetFill(v float64) {
	switch {
	case math.IsNaN(v):
		m.FillValue = FillValueNaN
	case math.IsInf(v, 1):
		m.FillValue = FillValueInfinity
	case math.IsInf(v, -1):
		m.FillValue = FillValueNegativeInfinity
	default:
		m.FillValue = v
	}
}

func (m *ArrayMeta) separator() string {
	if m.DimensionSeparator == "" {
		return "."
	}
	return m.DimensionSeparator
}
