package onnx

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/singleshot/internal/backend/onnx/operators"
	"github.com/born-ml/singleshot/internal/tensor"
)

// tensorFromProto converts a TensorProto to an operator value.
//
//nolint:gocyclo,cyclop // Every legacy data field has its own layout.
func tensorFromProto(proto *TensorProto) (*operators.Value, error) {
	typ, err := operators.TypeFromProto(proto.DataType)
	if err != nil {
		return nil, errors.Wrapf(err, "tensor %q", proto.Name)
	}

	shape := make(tensor.Shape, len(proto.Dims))
	for i, dim := range proto.Dims {
		if dim < 1 {
			return nil, errors.Errorf("tensor %q: invalid extent %d", proto.Name, dim)
		}
		shape[i] = int(dim)
	}

	v := operators.NewValue(typ, shape)
	n := v.Len()
	size := typ.Size()

	// Data fields are mutually exclusive.
	switch {
	case len(proto.RawData) > 0:
		if len(proto.RawData) != len(v.Data) {
			return nil, errors.Errorf("tensor %q: raw data holds %d bytes, want %d", proto.Name, len(proto.RawData), len(v.Data))
		}
		copy(v.Data, proto.RawData)
	case len(proto.FloatData) > 0:
		if typ != tensor.Float32 || len(proto.FloatData) != n {
			return nil, errors.Errorf("tensor %q: float_data does not match %s%v", proto.Name, typ, shape)
		}
		for i, f := range proto.FloatData {
			binary.LittleEndian.PutUint32(v.Data[4*i:], math.Float32bits(f))
		}
	case len(proto.Int32Data) > 0:
		if size > 4 || typ == tensor.Uint32 || typ == tensor.Float32 || len(proto.Int32Data) != n {
			return nil, errors.Errorf("tensor %q: int32_data does not match %s%v", proto.Name, typ, shape)
		}
		// Narrow types and float16 bits are stored widened to int32.
		for i, x := range proto.Int32Data {
			switch size {
			case 1:
				v.Data[i] = byte(x)
			case 2:
				binary.LittleEndian.PutUint16(v.Data[2*i:], uint16(x)) //nolint:gosec // G115: truncation intended.
			default:
				binary.LittleEndian.PutUint32(v.Data[4*i:], uint32(x)) //nolint:gosec // G115: two's complement.
			}
		}
	case len(proto.Int64Data) > 0:
		if typ != tensor.Int64 || len(proto.Int64Data) != n {
			return nil, errors.Errorf("tensor %q: int64_data does not match %s%v", proto.Name, typ, shape)
		}
		for i, x := range proto.Int64Data {
			binary.LittleEndian.PutUint64(v.Data[8*i:], uint64(x)) //nolint:gosec // G115: two's complement.
		}
	case len(proto.DoubleData) > 0:
		if typ != tensor.Float64 || len(proto.DoubleData) != n {
			return nil, errors.Errorf("tensor %q: double_data does not match %s%v", proto.Name, typ, shape)
		}
		for i, f := range proto.DoubleData {
			binary.LittleEndian.PutUint64(v.Data[8*i:], math.Float64bits(f))
		}
	case len(proto.Uint64Data) > 0:
		if (typ != tensor.Uint32 && typ != tensor.Uint64) || len(proto.Uint64Data) != n {
			return nil, errors.Errorf("tensor %q: uint64_data does not match %s%v", proto.Name, typ, shape)
		}
		for i, x := range proto.Uint64Data {
			if typ == tensor.Uint32 {
				binary.LittleEndian.PutUint32(v.Data[4*i:], uint32(x)) //nolint:gosec // G115: uint32 payload.
			} else {
				binary.LittleEndian.PutUint64(v.Data[8*i:], x)
			}
		}
	}

	return v, nil
}

// TensorProtoOf builds a raw-data TensorProto from a value.
func TensorProtoOf(name string, v *operators.Value) TensorProto {
	dims := make([]int64, len(v.Shape))
	for i, d := range v.Shape {
		dims[i] = int64(d)
	}
	return TensorProto{
		Name:     name,
		DataType: operators.ProtoFromType(v.Type),
		Dims:     dims,
		RawData:  append([]byte(nil), v.Data...),
	}
}
