package operators

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/born-ml/singleshot/internal/tensor"
)

// Value is a tensor flowing through the graph. Data holds the elements in
// little-endian order; Shape is outermost-first and may be empty for a
// scalar. Kernels never write into the Data of their inputs.
type Value struct {
	Type  tensor.Type
	Shape tensor.Shape
	Data  []byte
}

// NewValue returns a zeroed value.
func NewValue(t tensor.Type, shape tensor.Shape) *Value {
	return &Value{Type: t, Shape: shape.Clone(), Data: make([]byte, shape.NumElements()*t.Size())}
}

// Len returns the number of elements.
func (v *Value) Len() int {
	return v.Shape.NumElements()
}

// Info describes v as a constant.
func (v *Value) Info() *ValueInfo {
	return &ValueInfo{Type: v.Type, Shape: v.Shape.Clone(), Const: v}
}

// ValueInfo is the static description of a value used by shape inference.
type ValueInfo struct {
	Type  tensor.Type
	Shape tensor.Shape

	// Const holds the contents when they are known before running,
	// as for initializers and Constant outputs.
	Const *Value
}

// scalar is the set of types kernels compute in.
type scalar interface {
	float64 | int64 | uint64
}

// loadFloat reads element i of b as float64, converting integers.
func loadFloat(t tensor.Type, b []byte, i int) float64 {
	switch t {
	case tensor.Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:])))
	case tensor.Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	case tensor.Float16:
		return float64(float16.Frombits(binary.LittleEndian.Uint16(b[2*i:])).Float32())
	case tensor.Uint8, tensor.Uint16, tensor.Uint32, tensor.Uint64:
		return float64(loadUint(t, b, i))
	default:
		return float64(loadInt(t, b, i))
	}
}

// loadInt reads element i of b as int64. Floats truncate toward zero.
func loadInt(t tensor.Type, b []byte, i int) int64 {
	switch t {
	case tensor.Int8:
		return int64(int8(b[i]))
	case tensor.Int16:
		return int64(int16(binary.LittleEndian.Uint16(b[2*i:])))
	case tensor.Int32:
		return int64(int32(binary.LittleEndian.Uint32(b[4*i:])))
	case tensor.Int64:
		return int64(binary.LittleEndian.Uint64(b[8*i:]))
	case tensor.Float16, tensor.Float32, tensor.Float64:
		return int64(loadFloat(t, b, i))
	default:
		return int64(loadUint(t, b, i))
	}
}

// loadUint reads element i of b as uint64.
func loadUint(t tensor.Type, b []byte, i int) uint64 {
	switch t {
	case tensor.Uint8:
		return uint64(b[i])
	case tensor.Uint16:
		return uint64(binary.LittleEndian.Uint16(b[2*i:]))
	case tensor.Uint32:
		return uint64(binary.LittleEndian.Uint32(b[4*i:]))
	case tensor.Uint64:
		return binary.LittleEndian.Uint64(b[8*i:])
	case tensor.Float16, tensor.Float32, tensor.Float64:
		return uint64(loadFloat(t, b, i))
	default:
		return uint64(loadInt(t, b, i))
	}
}

// storeFloat writes x as element i of b, rounding or truncating to t.
func storeFloat(t tensor.Type, b []byte, i int, x float64) {
	switch t {
	case tensor.Float32:
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(float32(x)))
	case tensor.Float64:
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(x))
	case tensor.Float16:
		binary.LittleEndian.PutUint16(b[2*i:], float16.Fromfloat32(float32(x)).Bits())
	case tensor.Uint8, tensor.Uint16, tensor.Uint32, tensor.Uint64:
		storeUint(t, b, i, uint64(x))
	default:
		storeInt(t, b, i, int64(x))
	}
}

// storeInt writes x as element i of b, wrapping to the width of t.
func storeInt(t tensor.Type, b []byte, i int, x int64) {
	switch t {
	case tensor.Int8, tensor.Uint8:
		b[i] = byte(x)
	case tensor.Int16, tensor.Uint16:
		binary.LittleEndian.PutUint16(b[2*i:], uint16(x))
	case tensor.Int32, tensor.Uint32:
		binary.LittleEndian.PutUint32(b[4*i:], uint32(x))
	case tensor.Int64, tensor.Uint64:
		binary.LittleEndian.PutUint64(b[8*i:], uint64(x))
	default:
		storeFloat(t, b, i, float64(x))
	}
}

func storeUint(t tensor.Type, b []byte, i int, x uint64) {
	if t.IsFloat() {
		storeFloat(t, b, i, float64(x))
		return
	}
	storeInt(t, b, i, int64(x))
}

// decode reads all elements of v in the compute type T.
func decode[T scalar](v *Value) []T {
	out := make([]T, v.Len())
	switch p := any(out).(type) {
	case []float64:
		for i := range p {
			p[i] = loadFloat(v.Type, v.Data, i)
		}
	case []int64:
		for i := range p {
			p[i] = loadInt(v.Type, v.Data, i)
		}
	case []uint64:
		for i := range p {
			p[i] = loadUint(v.Type, v.Data, i)
		}
	}
	return out
}

// store writes xs[start:end] into dst at the same offsets.
func store[T scalar](dst *Value, xs []T, start, end int) {
	switch p := any(xs).(type) {
	case []float64:
		for i := start; i < end; i++ {
			storeFloat(dst.Type, dst.Data, i, p[i])
		}
	case []int64:
		for i := start; i < end; i++ {
			storeInt(dst.Type, dst.Data, i, p[i])
		}
	case []uint64:
		for i := start; i < end; i++ {
			storeUint(dst.Type, dst.Data, i, p[i])
		}
	}
}

// Int64s returns the elements of an integer value, as used for shape and
// axes operands.
func (v *Value) Int64s() ([]int64, error) {
	if v.Type.IsFloat() {
		return nil, errors.Errorf("expected an integer tensor, got %s", v.Type)
	}
	return decode[int64](v), nil
}

// Float64s returns the elements converted to float64.
func (v *Value) Float64s() []float64 {
	return decode[float64](v)
}

// ValueFromInt64s builds an int64 value.
func ValueFromInt64s(shape tensor.Shape, xs []int64) *Value {
	v := NewValue(tensor.Int64, shape)
	store(v, xs, 0, len(xs))
	return v
}

// ValueFromFloat32s builds a float32 value.
func ValueFromFloat32s(shape tensor.Shape, xs []float32) *Value {
	v := NewValue(tensor.Float32, shape)
	for i, x := range xs {
		storeFloat(tensor.Float32, v.Data, i, float64(x))
	}
	return v
}
