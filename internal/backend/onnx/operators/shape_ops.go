package operators

import (
	"github.com/pkg/errors"

	"github.com/born-ml/singleshot/internal/tensor"
)

// registerShapeOps adds shape manipulation operators to the registry.
func (r *Registry) registerShapeOps() {
	r.Register("Reshape", Operator{Infer: inferReshape, Run: handleRelabel})
	r.Register("Flatten", Operator{Infer: inferFlatten, Run: handleRelabel})
}

func inferReshape(node *Node, inputs []*ValueInfo) ([]*ValueInfo, error) {
	if err := arity(node, inputs, 2, 2); err != nil {
		return nil, err
	}
	if inputs[1].Const == nil {
		return nil, errors.New("reshape: target shape must be a constant")
	}
	target, err := inputs[1].Const.Int64s()
	if err != nil {
		return nil, errors.Wrap(err, "reshape")
	}
	shape, err := reshapeTarget(inputs[0].Shape, target, GetAttrInt(node, "allowzero", 0) != 0)
	if err != nil {
		return nil, errors.Wrap(err, "reshape")
	}
	return []*ValueInfo{{Type: inputs[0].Type, Shape: shape}}, nil
}

// reshapeTarget resolves 0 (copy) and -1 (infer) entries of target.
func reshapeTarget(in tensor.Shape, target []int64, allowZero bool) (tensor.Shape, error) {
	out := make(tensor.Shape, len(target))
	inferred := -1
	known := 1
	for i, v := range target {
		switch {
		case v == -1:
			if inferred >= 0 {
				return nil, errors.New("more than one -1 in target shape")
			}
			inferred = i
			continue
		case v == 0 && !allowZero:
			if i >= len(in) {
				return nil, errors.Errorf("target axis %d copies a missing input axis", i)
			}
			out[i] = in[i]
		case v <= 0:
			return nil, errors.Errorf("invalid target extent %d", v)
		default:
			out[i] = int(v)
		}
		known *= out[i]
	}

	total := in.NumElements()
	if inferred >= 0 {
		if known == 0 || total%known != 0 {
			return nil, errors.Errorf("cannot reshape %v into %v", in, target)
		}
		out[inferred] = total / known
	}
	if out.NumElements() != total {
		return nil, errors.Errorf("cannot reshape %v (%d elements) into %v", in, total, out)
	}
	return out, nil
}

func inferFlatten(node *Node, inputs []*ValueInfo) ([]*ValueInfo, error) {
	if err := arity(node, inputs, 1, 1); err != nil {
		return nil, err
	}
	in := inputs[0].Shape
	axis := int(GetAttrInt(node, "axis", 1))
	if axis < 0 {
		axis += len(in)
	}
	if axis < 0 || axis > len(in) {
		return nil, errors.Errorf("flatten: axis %d out of range for rank %d", axis, len(in))
	}
	outer := in[:axis].NumElements()
	return []*ValueInfo{{Type: inputs[0].Type, Shape: tensor.Shape{outer, in.NumElements() / max(outer, 1)}}}, nil
}

// handleRelabel returns the input bytes under the inferred output shape.
func handleRelabel(_ *Context, _ *Node, inputs []*Value, outputs []*ValueInfo) ([]*Value, error) {
	return []*Value{{Type: inputs[0].Type, Shape: outputs[0].Shape.Clone(), Data: inputs[0].Data}}, nil
}
