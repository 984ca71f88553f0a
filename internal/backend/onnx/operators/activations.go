package operators

import (
	"math"

	"github.com/pkg/errors"
)

// unaryOp holds one element function per compute domain. A nil function
// means the domain is not supported.
type unaryOp struct {
	float func(x float64) float64
	int   func(x int64) int64
	uint  func(x uint64) uint64
}

func (r *Registry) registerActivations() {
	r.Register("Relu", unary(unaryOp{
		float: func(x float64) float64 { return math.Max(x, 0) },
		int:   func(x int64) int64 { return max(x, 0) },
		uint:  func(x uint64) uint64 { return x },
	}))
	r.Register("Neg", unary(unaryOp{
		float: func(x float64) float64 { return -x },
		int:   func(x int64) int64 { return -x },
	}))
	r.Register("Abs", unary(unaryOp{
		float: math.Abs,
		int: func(x int64) int64 {
			if x < 0 {
				return -x
			}
			return x
		},
		uint: func(x uint64) uint64 { return x },
	}))
	r.Register("Sigmoid", unary(unaryOp{float: sigmoid}))
	r.Register("Tanh", unary(unaryOp{float: math.Tanh}))
	r.Register("Exp", unary(unaryOp{float: math.Exp}))
	r.Register("Sqrt", unary(unaryOp{float: math.Sqrt}))
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func unary(op unaryOp) Operator {
	return Operator{
		Infer: func(node *Node, inputs []*ValueInfo) ([]*ValueInfo, error) {
			if err := arity(node, inputs, 1, 1); err != nil {
				return nil, err
			}
			in := inputs[0]
			supported := op.int != nil
			switch {
			case in.Type.IsFloat():
				supported = op.float != nil
			case in.Type.IsUnsigned():
				supported = op.uint != nil
			}
			if !supported {
				return nil, errors.Errorf("%s does not support %s tensors", node.OpType, in.Type)
			}
			return []*ValueInfo{{Type: in.Type, Shape: in.Shape.Clone()}}, nil
		},
		Run: func(ctx *Context, _ *Node, inputs []*Value, outputs []*ValueInfo) ([]*Value, error) {
			x := inputs[0]
			out := NewValue(outputs[0].Type, outputs[0].Shape)
			var err error
			switch {
			case x.Type.IsFloat():
				err = unaryKernel(ctx, x, out, func(v float64) (float64, error) { return op.float(v), nil })
			case x.Type.IsUnsigned():
				err = unaryKernel(ctx, x, out, func(v uint64) (uint64, error) { return op.uint(v), nil })
			default:
				err = unaryKernel(ctx, x, out, func(v int64) (int64, error) { return op.int(v), nil })
			}
			if err != nil {
				return nil, err
			}
			return []*Value{out}, nil
		},
	}
}
