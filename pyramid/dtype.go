/*
   This file handles the sample types of pixel data and the typed buffers that hold them.
*/

package pyramid

import (
	"fmt"
	"math"
)

// DataType is the numeric type of each sample, e.g., a uint16 or a float32.
type DataType uint8

const (
	Uint8 DataType = iota + 1
	Uint16
	Uint32
	Int8
	Int16
	Int32
	Float32
	Float64
)

var dataTypeNames = map[DataType]string{
	Uint8:   "Uint8",
	Uint16:  "Uint16",
	Uint32:  "Uint32",
	Int8:    "Int8",
	Int16:   "Int16",
	Int32:   "Int32",
	Float32: "Float32",
	Float64: "Float64",
}

var typeBytes = map[DataType]int{
	Uint8:   1,
	Uint16:  2,
	Uint32:  4,
	Int8:    1,
	Int16:   2,
	Int32:   4,
	Float32: 4,
	Float64: 8,
}

func (t DataType) String() string {
	if name, found := dataTypeNames[t]; found {
		return name
	}
	return fmt.Sprintf("DataType(%d)", uint8(t))
}

// ParseDataType returns the DataType for names like "Uint16" or "uint16".
// OME pixel types "float" and "double" are accepted as Float32 and Float64.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "Uint8", "uint8":
		return Uint8, nil
	case "Uint16", "uint16":
		return Uint16, nil
	case "Uint32", "uint32":
		return Uint32, nil
	case "Int8", "int8":
		return Int8, nil
	case "Int16", "int16":
		return Int16, nil
	case "Int32", "int32":
		return Int32, nil
	case "Float32", "float32", "float":
		return Float32, nil
	case "Float64", "float64", "double":
		return Float64, nil
	}
	return 0, fmt.Errorf("pixel type %q not supported: %w", s, ErrFormat)
}

// Bytes returns the number of bytes per sample.
func (t DataType) Bytes() int {
	return typeBytes[t]
}

// Max returns the largest value representable by the type.  Float64 reports the
// float32 maximum since rendering layers down-convert doubles.
func (t DataType) Max() float64 {
	switch t {
	case Uint8:
		return math.MaxUint8
	case Uint16:
		return math.MaxUint16
	case Uint32:
		return math.MaxUint32
	case Int8:
		return math.MaxInt8
	case Int16:
		return math.MaxInt16
	case Int32:
		return math.MaxInt32
	case Float32, Float64:
		return 3.4e38
	}
	return 0
}

// NewBuffer allocates a typed sample buffer of length n.
func (t DataType) NewBuffer(n int) (any, error) {
	switch t {
	case Uint8:
		return make([]uint8, n), nil
	case Uint16:
		return make([]uint16, n), nil
	case Uint32:
		return make([]uint32, n), nil
	case Int8:
		return make([]int8, n), nil
	case Int16:
		return make([]int16, n), nil
	case Int32:
		return make([]int32, n), nil
	case Float32:
		return make([]float32, n), nil
	case Float64:
		return make([]float64, n), nil
	}
	return nil, fmt.Errorf("cannot allocate buffer of %s: %w", t, ErrFormat)
}

// BufferDataType returns the DataType of a typed sample buffer.
func BufferDataType(data any) (DataType, error) {
	switch data.(type) {
	case []uint8:
		return Uint8, nil
	case []uint16:
		return Uint16, nil
	case []uint32:
		return Uint32, nil
	case []int8:
		return Int8, nil
	case []int16:
		return Int16, nil
	case []int32:
		return Int32, nil
	case []float32:
		return Float32, nil
	case []float64:
		return Float64, nil
	}
	return 0, fmt.Errorf("unsupported sample buffer %T: %w", data, ErrFormat)
}

// BufferLen returns the number of samples in a typed sample buffer, or -1 if the
// buffer type is not supported.
func BufferLen(data any) int {
	switch d := data.(type) {
	case []uint8:
		return len(d)
	case []uint16:
		return len(d)
	case []uint32:
		return len(d)
	case []int8:
		return len(d)
	case []int16:
		return len(d)
	case []int32:
		return len(d)
	case []float32:
		return len(d)
	case []float64:
		return len(d)
	}
	return -1
}
