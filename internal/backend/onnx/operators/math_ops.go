package operators

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/singleshot/internal/tensor"
)

var errDivByZero = errors.New("integer division by zero")

// binaryOp holds one element function per compute domain.
type binaryOp struct {
	float func(x, y float64) float64
	int   func(x, y int64) (int64, error)
	uint  func(x, y uint64) (uint64, error)
}

func (op binaryOp) apply(ctx *Context, a, b, out *Value) error {
	switch {
	case out.Type.IsFloat():
		return binaryKernel(ctx, a, b, out, func(x, y float64) (float64, error) { return op.float(x, y), nil })
	case out.Type.IsUnsigned():
		return binaryKernel(ctx, a, b, out, op.uint)
	default:
		return binaryKernel(ctx, a, b, out, op.int)
	}
}

var (
	opAdd = binaryOp{
		float: func(x, y float64) float64 { return x + y },
		int:   func(x, y int64) (int64, error) { return x + y, nil },
		uint:  func(x, y uint64) (uint64, error) { return x + y, nil },
	}
	opSub = binaryOp{
		float: func(x, y float64) float64 { return x - y },
		int:   func(x, y int64) (int64, error) { return x - y, nil },
		uint:  func(x, y uint64) (uint64, error) { return x - y, nil },
	}
	opMul = binaryOp{
		float: func(x, y float64) float64 { return x * y },
		int:   func(x, y int64) (int64, error) { return x * y, nil },
		uint:  func(x, y uint64) (uint64, error) { return x * y, nil },
	}
	opDiv = binaryOp{
		float: func(x, y float64) float64 { return x / y },
		int: func(x, y int64) (int64, error) {
			if y == 0 {
				return 0, errDivByZero
			}
			return x / y, nil
		},
		uint: func(x, y uint64) (uint64, error) {
			if y == 0 {
				return 0, errDivByZero
			}
			return x / y, nil
		},
	}
	opMax = binaryOp{
		float: math.Max,
		int:   func(x, y int64) (int64, error) { return max(x, y), nil },
		uint:  func(x, y uint64) (uint64, error) { return max(x, y), nil },
	}
	opMin = binaryOp{
		float: math.Min,
		int:   func(x, y int64) (int64, error) { return min(x, y), nil },
		uint:  func(x, y uint64) (uint64, error) { return min(x, y), nil },
	}
)

func (r *Registry) registerMathOps() {
	r.Register("Add", binaryOperator(opAdd))
	r.Register("Sub", binaryOperator(opSub))
	r.Register("Mul", binaryOperator(opMul))
	r.Register("Div", binaryOperator(opDiv))
	r.Register("Sum", variadic(opAdd))
	r.Register("Max", variadic(opMax))
	r.Register("Min", variadic(opMin))
}

// inferBroadcast checks that all present inputs share one type and
// broadcasts their shapes.
func inferBroadcast(node *Node, inputs []*ValueInfo) ([]*ValueInfo, error) {
	t := inputs[0].Type
	shape := inputs[0].Shape
	for i, in := range inputs[1:] {
		if in == nil {
			return nil, errors.Errorf("%s: input %d is required", node.OpType, i+1)
		}
		if in.Type != t {
			return nil, errors.Errorf("%s: input types differ (%s vs %s)", node.OpType, t, in.Type)
		}
		s, err := tensor.BroadcastShapes(shape, in.Shape)
		if err != nil {
			return nil, errors.Wrap(err, node.OpType)
		}
		shape = s
	}
	return []*ValueInfo{{Type: t, Shape: shape}}, nil
}

func binaryOperator(op binaryOp) Operator {
	return Operator{
		Infer: func(node *Node, inputs []*ValueInfo) ([]*ValueInfo, error) {
			if err := arity(node, inputs, 2, 2); err != nil {
				return nil, err
			}
			return inferBroadcast(node, inputs)
		},
		Run: func(ctx *Context, _ *Node, inputs []*Value, outputs []*ValueInfo) ([]*Value, error) {
			out := NewValue(outputs[0].Type, outputs[0].Shape)
			if err := op.apply(ctx, inputs[0], inputs[1], out); err != nil {
				return nil, err
			}
			return []*Value{out}, nil
		},
	}
}

// variadic folds op over one or more inputs.
func variadic(op binaryOp) Operator {
	return Operator{
		Infer: func(node *Node, inputs []*ValueInfo) ([]*ValueInfo, error) {
			if len(inputs) == 0 || inputs[0] == nil {
				return nil, errors.Errorf("%s expects at least one input", node.OpType)
			}
			return inferBroadcast(node, inputs)
		},
		Run: func(ctx *Context, _ *Node, inputs []*Value, outputs []*ValueInfo) ([]*Value, error) {
			acc := inputs[0]
			if len(inputs) == 1 {
				out := NewValue(acc.Type, acc.Shape)
				copy(out.Data, acc.Data)
				return []*Value{out}, nil
			}
			for i, in := range inputs[1:] {
				shape := outputs[0].Shape
				if i < len(inputs)-2 {
					s, err := tensor.BroadcastShapes(acc.Shape, in.Shape)
					if err != nil {
						return nil, err
					}
					shape = s
				}
				out := NewValue(acc.Type, shape)
				if err := op.apply(ctx, acc, in, out); err != nil {
					return nil, err
				}
				acc = out
			}
			return []*Value{acc}, nil
		},
	}
}
