package zarr

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/janelia-flyem/pyramid/pyramid"
)

var dtypeSuffixes = map[string]pyramid.DataType{
	"u1": pyramid.Uint8,
	"u2": pyramid.Uint16,
	"u4": pyramid.Uint32,
	"i1": pyramid.Int8,
	"i2": pyramid.Int16,
	"i4": pyramid.Int32,
	"f4": pyramid.Float32,
	"f8": pyramid.Float64,
}

// DType is a parsed zarr dtype string like "<u2".
type DType struct {
	Type  pyramid.DataType
	Order binary.ByteOrder
}

// ParseDType parses a zarr dtype.  Only the byte order prefix and the suffixes u1, u2,
// u4, i1, i2, i4, f4 and f8 are understood.
func ParseDType(s string) (DType, error) {
	if len(s) != 3 {
		return DType{}, fmt.Errorf("bad zarr dtype %q: %w", s, pyramid.ErrFormat)
	}
	dtype, found := dtypeSuffixes[s[1:]]
	if !found {
		return DType{}, fmt.Errorf("zarr dtype not supported, got %q: %w", s[1:], pyramid.ErrFormat)
	}
	d := DType{Type: dtype}
	switch s[0] {
	case '<', '|':
		d.Order = binary.LittleEndian
	case '>':
		d.Order = binary.BigEndian
	default:
		return DType{}, fmt.Errorf("bad byte order in zarr dtype %q: %w", s, pyramid.ErrFormat)
	}
	return d, nil
}

// Decode converts raw chunk bytes into a typed buffer.
func (d DType) Decode(b []byte) (any, error) {
	size := d.Type.Bytes()
	if len(b)%size != 0 {
		return nil, fmt.Errorf("%d bytes is not a multiple of %s size: %w", len(b), d.Type, pyramid.ErrFormat)
	}
	n := len(b) / size
	buf, err := d.Type.NewBuffer(n)
	if err != nil {
		return nil, err
	}
	switch data := buf.(type) {
	case []uint8:
		copy(data, b)
	case []int8:
		for i := range data {
			data[i] = int8(b[i])
		}
	case []uint16:
		for i := range data {
			data[i] = d.Order.Uint16(b[2*i:])
		}
	case []int16:
		for i := range data {
			data[i] = int16(d.Order.Uint16(b[2*i:]))
		}
	case []uint32:
		for i := range data {
			data[i] = d.Order.Uint32(b[4*i:])
		}
	case []int32:
		for i := range data {
			data[i] = int32(d.Order.Uint32(b[4*i:]))
		}
	case []float32:
		for i := range data {
			data[i] = math.Float32frombits(d.Order.Uint32(b[4*i:]))
		}
	case []float64:
		for i := range data {
			data[i] = math.Float64frombits(d.Order.Uint64(b[8*i:]))
		}
	}
	return buf, nil
}

// fillBytes returns n elements of the fill value encoded in the dtype's byte order.
// A nil fill value is zero.
func (d DType) fillBytes(fill any, n int) ([]byte, error) {
	size := d.Type.Bytes()
	out := make([]byte, size*n)
	var v float64
	switch f := fill.(type) {
	case nil:
		return out, nil
	case float64:
		v = f
	case string:
		switch f {
		case "NaN":
			v = math.NaN()
		case "Infinity":
			v = math.Inf(1)
		case "-Infinity":
			v = math.Inf(-1)
		default:
			return nil, fmt.Errorf("unsupported fill_value %q: %w", f, pyramid.ErrFormat)
		}
	default:
		return nil, fmt.Errorf("unsupported fill_value type %T: %w", fill, pyramid.ErrFormat)
	}
	if v == 0 && !math.Signbit(v) {
		return out, nil
	}
	elem := make([]byte, size)
	switch d.Type {
	case pyramid.Uint8, pyramid.Int8:
		elem[0] = byte(int64(v))
	case pyramid.Uint16, pyramid.Int16:
		d.Order.PutUint16(elem, uint16(int64(v)))
	case pyramid.Uint32, pyramid.Int32:
		d.Order.PutUint32(elem, uint32(int64(v)))
	case pyramid.Float32:
		d.Order.PutUint32(elem, math.Float32bits(float32(v)))
	case pyramid.Float64:
		d.Order.PutUint64(elem, math.Float64bits(v))
	}
	for i := 0; i < n; i++ {
		copy(out[i*size:], elem)
	}
	return out, nil
}
