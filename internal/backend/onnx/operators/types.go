package operators

import (
	"github.com/pkg/errors"

	"github.com/born-ml/singleshot/internal/tensor"
)

// TypeFromProto maps an ONNX element type to a tensor type.
func TypeFromProto(dataType int32) (tensor.Type, error) {
	switch dataType {
	case TensorProtoFloat:
		return tensor.Float32, nil
	case TensorProtoUint8:
		return tensor.Uint8, nil
	case TensorProtoInt8:
		return tensor.Int8, nil
	case TensorProtoUint16:
		return tensor.Uint16, nil
	case TensorProtoInt16:
		return tensor.Int16, nil
	case TensorProtoInt32:
		return tensor.Int32, nil
	case TensorProtoInt64:
		return tensor.Int64, nil
	case TensorProtoFloat16:
		return tensor.Float16, nil
	case TensorProtoDouble:
		return tensor.Float64, nil
	case TensorProtoUint32:
		return tensor.Uint32, nil
	case TensorProtoUint64:
		return tensor.Uint64, nil
	default:
		return tensor.Unknown, errors.Errorf("unsupported ONNX element type %d", dataType)
	}
}

// ProtoFromType maps a tensor type to its ONNX element type.
func ProtoFromType(t tensor.Type) int32 {
	switch t {
	case tensor.Float32:
		return TensorProtoFloat
	case tensor.Uint8:
		return TensorProtoUint8
	case tensor.Int8:
		return TensorProtoInt8
	case tensor.Uint16:
		return TensorProtoUint16
	case tensor.Int16:
		return TensorProtoInt16
	case tensor.Int32:
		return TensorProtoInt32
	case tensor.Int64:
		return TensorProtoInt64
	case tensor.Float16:
		return TensorProtoFloat16
	case tensor.Float64:
		return TensorProtoDouble
	case tensor.Uint32:
		return TensorProtoUint32
	case tensor.Uint64:
		return TensorProtoUint64
	default:
		return TensorProtoUndefined
	}
}
