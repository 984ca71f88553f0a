package operators

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/singleshot/internal/tensor"
)

// registerUtilityOps adds utility operators to the registry.
func (r *Registry) registerUtilityOps() {
	r.Register("Identity", Operator{Infer: inferSame, Run: handleIdentity})
	r.Register("Dropout", Operator{Infer: inferDropout, Run: handleIdentity})
	r.Register("Constant", Operator{Infer: inferConstant, Run: handleConstant})
	r.Register("Cast", Operator{Infer: inferCast, Run: handleCast})
	r.Register("Clip", Operator{Infer: inferClip, Run: handleClip})
}

func inferSame(node *Node, inputs []*ValueInfo) ([]*ValueInfo, error) {
	if err := arity(node, inputs, 1, 1); err != nil {
		return nil, err
	}
	return []*ValueInfo{{Type: inputs[0].Type, Shape: inputs[0].Shape.Clone(), Const: inputs[0].Const}}, nil
}

func handleIdentity(_ *Context, _ *Node, inputs []*Value, _ []*ValueInfo) ([]*Value, error) {
	return inputs[:1], nil
}

// In inference mode Dropout is the identity. The optional mask output is
// boolean, which no tensor type can carry.
func inferDropout(node *Node, inputs []*ValueInfo) ([]*ValueInfo, error) {
	if err := arity(node, inputs, 1, 3); err != nil {
		return nil, err
	}
	if len(node.Outputs) > 1 && node.Outputs[1] != "" {
		return nil, errors.New("dropout: mask output is not supported")
	}
	return []*ValueInfo{{Type: inputs[0].Type, Shape: inputs[0].Shape.Clone()}}, nil
}

func constantValue(node *Node) (*Value, error) {
	switch {
	case HasAttr(node, "value"):
		v := GetAttrTensor(node, "value")
		if v == nil {
			return nil, errors.New("constant: value attribute holds no tensor")
		}
		return v, nil
	case HasAttr(node, "value_float"):
		return ValueFromFloat32s(tensor.Shape{}, []float32{GetAttrFloat(node, "value_float", 0)}), nil
	case HasAttr(node, "value_floats"):
		fs := node.attr("value_floats").Floats
		return ValueFromFloat32s(tensor.Shape{len(fs)}, fs), nil
	case HasAttr(node, "value_int"):
		return ValueFromInt64s(tensor.Shape{}, []int64{GetAttrInt(node, "value_int", 0)}), nil
	case HasAttr(node, "value_ints"):
		is := GetAttrInts(node, "value_ints")
		return ValueFromInt64s(tensor.Shape{len(is)}, is), nil
	default:
		return nil, errors.New("constant: no supported value attribute")
	}
}

func inferConstant(node *Node, _ []*ValueInfo) ([]*ValueInfo, error) {
	v, err := constantValue(node)
	if err != nil {
		return nil, err
	}
	return []*ValueInfo{v.Info()}, nil
}

func handleConstant(_ *Context, _ *Node, _ []*Value, outputs []*ValueInfo) ([]*Value, error) {
	return []*Value{outputs[0].Const}, nil
}

func inferCast(node *Node, inputs []*ValueInfo) ([]*ValueInfo, error) {
	if err := arity(node, inputs, 1, 1); err != nil {
		return nil, err
	}
	to, err := TypeFromProto(int32(GetAttrInt(node, "to", TensorProtoUndefined))) //nolint:gosec // G115: enum value.
	if err != nil {
		return nil, errors.Wrap(err, "cast")
	}
	return []*ValueInfo{{Type: to, Shape: inputs[0].Shape.Clone()}}, nil
}

func handleCast(ctx *Context, _ *Node, inputs []*Value, outputs []*ValueInfo) ([]*Value, error) {
	x := inputs[0]
	out := NewValue(outputs[0].Type, outputs[0].Shape)
	err := ctx.For(x.Len(), func(start, end int) error {
		for i := start; i < end; i++ {
			switch {
			case x.Type.IsFloat():
				storeFloat(out.Type, out.Data, i, loadFloat(x.Type, x.Data, i))
			case x.Type.IsUnsigned():
				storeUint(out.Type, out.Data, i, loadUint(x.Type, x.Data, i))
			default:
				storeInt(out.Type, out.Data, i, loadInt(x.Type, x.Data, i))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return []*Value{out}, nil
}

func inferClip(node *Node, inputs []*ValueInfo) ([]*ValueInfo, error) {
	if err := arity(node, inputs, 1, 3); err != nil {
		return nil, err
	}
	for _, bound := range inputs[1:] {
		if bound == nil {
			continue
		}
		if bound.Type != inputs[0].Type {
			return nil, errors.Errorf("clip: bound type %s differs from input type %s", bound.Type, inputs[0].Type)
		}
		if bound.Shape.NumElements() != 1 {
			return nil, errors.Errorf("clip: bound must be a scalar, got shape %v", bound.Shape)
		}
	}
	return []*ValueInfo{{Type: inputs[0].Type, Shape: inputs[0].Shape.Clone()}}, nil
}

// clipBound returns input i when present, otherwise nil.
func clipBound(inputs []*Value, i int) *Value {
	if i < len(inputs) {
		return inputs[i]
	}
	return nil
}

func handleClip(ctx *Context, node *Node, inputs []*Value, outputs []*ValueInfo) ([]*Value, error) {
	x := inputs[0]
	lo, hi := clipBound(inputs, 1), clipBound(inputs, 2)
	out := NewValue(outputs[0].Type, outputs[0].Shape)

	var err error
	switch {
	case x.Type.IsFloat():
		minV, maxV := math.Inf(-1), math.Inf(1)
		if lo != nil {
			minV = loadFloat(lo.Type, lo.Data, 0)
		} else if HasAttr(node, "min") {
			minV = float64(GetAttrFloat(node, "min", 0))
		}
		if hi != nil {
			maxV = loadFloat(hi.Type, hi.Data, 0)
		} else if HasAttr(node, "max") {
			maxV = float64(GetAttrFloat(node, "max", 0))
		}
		err = unaryKernel(ctx, x, out, func(v float64) (float64, error) { return math.Min(math.Max(v, minV), maxV), nil })
	case x.Type.IsUnsigned():
		minV, maxV := uint64(0), uint64(math.MaxUint64)
		if lo != nil {
			minV = loadUint(lo.Type, lo.Data, 0)
		}
		if hi != nil {
			maxV = loadUint(hi.Type, hi.Data, 0)
		}
		err = unaryKernel(ctx, x, out, func(v uint64) (uint64, error) { return min(max(v, minV), maxV), nil })
	default:
		minV, maxV := int64(math.MinInt64), int64(math.MaxInt64)
		if lo != nil {
			minV = loadInt(lo.Type, lo.Data, 0)
		}
		if hi != nil {
			maxV = loadInt(hi.Type, hi.Data, 0)
		}
		err = unaryKernel(ctx, x, out, func(v int64) (int64, error) { return min(max(v, minV), maxV), nil })
	}
	if err != nil {
		return nil, err
	}
	return []*Value{out}, nil
}
