package zarr

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Dtype is a zarr data type in the NumPy array protocol type string
// (typestr) format. The format consists of 3 parts:
//   - One character describing the byteorder of the data:
//     "<": little-endian; ">": big-endian; "|": not-relevant
//   - One character code giving the basic type of the array:
//     "b": boolean, "i": integer, "u": unsigned integer,
//     "f": floating point, "c": complex floating point,
//     "m": timedelta, "M": datetime, "S": string, "U": unicode,
//     "V": other
//   - An integer specifying the number of bytes the type uses.
//
// Arrays can only be read and written through the numeric types
// b1, i1-i8, u1-u8, f4 and f8. The other types parse but are rejected by
// Create and Open.
type Dtype struct {
	ByteOrder ByteOrder
	BasicType BasicType
	ByteSize  int
	Units     string
}

var (
	_ json.Unmarshaler = (*Dtype)(nil)
	_ json.Marshaler   = (*Dtype)(nil)
)

// Float64 is the little-endian "<f8" type.
var Float64 = Dtype{ByteOrder: BOLittleEndian, BasicType: BTFloatingPoint, ByteSize: 8}

func ParseDtype(s string) (dt Dtype, err error) {
	// bug in python implementation uses HTML escape sequences when serializaing JSON
	s = strings.Replace(s, "&lt;", "<", 1)
	s = strings.Replace(s, "&gt;", ">", 1)

	if len(s) < 3 {
		return dt, fmt.Errorf("invalid Dtype string. %q is too short", s)
	}

	boByte, s := s[0], s[1:]
	dt.ByteOrder, err = ParseByteOrder(rune(boByte))
	if err != nil {
		return dt, err
	}

	typeByte, s := s[0], s[1:]
	dt.BasicType, err = ParseBasicType(rune(typeByte))
	if err != nil {
		return dt, err
	}

	sizeStr, unitStr, _ := strings.Cut(s, "[")
	if unitStr != "" {
		unitStr = "[" + unitStr
	}
	size, err := strconv.Atoi(sizeStr)
	if err != nil {
		return dt, fmt.Errorf("invalid Dtype size %q: %w", sizeStr, err)
	}
	dt.ByteSize = size
	dt.Units = unitStr

	return dt, nil
}

func (dt Dtype) String() string {
	return fmt.Sprintf("%s%s%d%s", string(dt.ByteOrder), string(dt.BasicType), dt.ByteSize, dt.Units)
}

func (dt Dtype) MarshalJSON() ([]byte, error) {
	return json.Marshal(dt.String())
}

func (dt *Dtype) UnmarshalJSON(d []byte) error {
	var s string
	if err := json.Unmarshal(d, &s); err != nil {
		return fmt.Errorf("structured dtypes are not supported: %w", err)
	}
	t, err := ParseDtype(s)
	if err != nil {
		return err
	}

	*dt = t
	return nil
}

// Numeric reports whether values of this type convert to and from float64.
func (dt Dtype) Numeric() bool {
	switch dt.BasicType {
	case BTBoolean:
		return dt.ByteSize == 1
	case BTInteger, BTUnsigned:
		switch dt.ByteSize {
		case 1, 2, 4, 8:
			return true
		}
	case BTFloatingPoint:
		return dt.ByteSize == 4 || dt.ByteSize == 8
	}
	return false
}

func (dt Dtype) byteOrder() binary.ByteOrder {
	if dt.ByteOrder == BOBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// decode converts the raw chunk bytes b into dst, one value per ByteSize bytes.
func (dt Dtype) decode(dst []float64, b []byte) error {
	if len(b) != len(dst)*dt.ByteSize {
		return fmt.Errorf("chunk holds %d bytes, want %d", len(b), len(dst)*dt.ByteSize)
	}
	bo := dt.byteOrder()
	for i := range dst {
		v := b[i*dt.ByteSize : (i+1)*dt.ByteSize]
		switch dt.BasicType {
		case BTBoolean:
			dst[i] = 0
			if v[0] != 0 {
				dst[i] = 1
			}
		case BTInteger:
			switch dt.ByteSize {
			case 1:
				dst[i] = float64(int8(v[0]))
			case 2:
				dst[i] = float64(int16(bo.Uint16(v)))
			case 4:
				dst[i] = float64(int32(bo.Uint32(v)))
			case 8:
				dst[i] = float64(int64(bo.Uint64(v)))
			}
		case BTUnsigned:
			switch dt.ByteSize {
			case 1:
				dst[i] = float64(v[0])
			case 2:
				dst[i] = float64(bo.Uint16(v))
			case 4:
				dst[i] = float64(bo.Uint32(v))
			case 8:
				dst[i] = float64(bo.Uint64(v))
			}
		case BTFloatingPoint:
			if dt.ByteSize == 4 {
				dst[i] = float64(math.Float32frombits(bo.Uint32(v)))
			} else {
				dst[i] = math.Float64frombits(bo.Uint64(v))
			}
		default:
			return fmt.Errorf("unsupported decoding type %s", dt)
		}
	}
	return nil
}

// encode is the inverse of decode. Values are converted the way a numpy
// astype would: integers truncate toward zero.
func (dt Dtype) encode(b []byte, src []float64) error {
	if len(b) != len(src)*dt.ByteSize {
		return fmt.Errorf("chunk holds %d bytes, want %d", len(b), len(src)*dt.ByteSize)
	}
	bo := dt.byteOrder()
	for i, x := range src {
		v := b[i*dt.ByteSize : (i+1)*dt.ByteSize]
		switch dt.BasicType {
		case BTBoolean:
			v[0] = 0
			if x != 0 {
				v[0] = 1
			}
		case BTInteger:
			switch dt.ByteSize {
			case 1:
				v[0] = byte(int8(x))
			case 2:
				bo.PutUint16(v, uint16(int16(x)))
			case 4:
				bo.PutUint32(v, uint32(int32(x)))
			case 8:
				bo.PutUint64(v, uint64(int64(x)))
			}
		case BTUnsigned:
			switch dt.ByteSize {
			case 1:
				v[0] = uint8(x)
			case 2:
				bo.PutUint16(v, uint16(x))
			case 4:
				bo.PutUint32(v, uint32(x))
			case 8:
				bo.PutUint64(v, uint64(x))
			}
		case BTFloatingPoint:
			if dt.ByteSize == 4 {
				bo.PutUint32(v, math.Float32bits(float32(x)))
			} else {
				bo.PutUint64(v, math.Float64bits(x))
			}
		default:
			return fmt.Errorf("unsupported encoding type %s", dt)
		}
	}
	return nil
}

type ByteOrder rune

func ParseByteOrder(r rune) (ByteOrder, error) {
	o := ByteOrder(r)
	if _, ok := byteOrders[o]; !ok {
		return o, fmt.Errorf("unsupported byte order format: %q", r)
	}
	return o, nil
}

const (
	BONotRelevant  ByteOrder = '|'
	BOLittleEndian ByteOrder = '<'
	BOBigEndian    ByteOrder = '>'
)

var byteOrders = map[ByteOrder]struct{}{
	BONotRelevant:  {},
	BOLittleEndian: {},
	BOBigEndian:    {},
}

type BasicType rune

func ParseBasicType(r rune) (BasicType, error) {
	t := BasicType(r)
	if _, ok := supportedBasicTypes[t]; !ok {
		return t, fmt.Errorf("unsupported basic type: %q", r)
	}
	return t, nil
}

func (bt BasicType) Human() string {
	return supportedBasicTypes[bt]
}

const (
	BTBoolean       BasicType = 'b'
	BTInteger       BasicType = 'i'
	BTUnsigned      BasicType = 'u'
	BTFloatingPoint BasicType = 'f'
	BTComplex       BasicType = 'c'
	BTTimedelta     BasicType = 'm'
	BTDatetime      BasicType = 'M'
	BTString        BasicType = 'S'
	BTUnicode       BasicType = 'U'
	BTOther         BasicType = 'V'
)

var supportedBasicTypes = map[BasicType]string{
	BTBoolean:       "bool",
	BTInteger:       "int",
	BTUnsigned:      "uint",
	BTFloatingPoint: "float",
	BTComplex:       "complex",
	BTTimedelta:     "timedelta",
	BTDatetime:      "datetime",
	BTString:        "string",
	BTUnicode:       "unicode",
	BTOther:         "other",
}
