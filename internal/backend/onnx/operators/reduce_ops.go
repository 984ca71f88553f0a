package operators

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/singleshot/internal/tensor"
)

type reducer[T scalar] struct {
	init    T
	combine func(acc, v T) T
	finish  func(acc T, n int) T
}

// reduceOp holds one reducer per compute domain.
type reduceOp struct {
	float reducer[float64]
	int   reducer[int64]
	uint  reducer[uint64]
}

func keep[T scalar](acc T, _ int) T { return acc }

func sum[T scalar](acc, v T) T { return acc + v }

func mean[T scalar](acc T, n int) T { return acc / T(n) }

func (r *Registry) registerReduceOps() {
	r.Register("ReduceSum", reduce(reduceOp{
		float: reducer[float64]{0, sum[float64], keep[float64]},
		int:   reducer[int64]{0, sum[int64], keep[int64]},
		uint:  reducer[uint64]{0, sum[uint64], keep[uint64]},
	}))
	r.Register("ReduceMean", reduce(reduceOp{
		float: reducer[float64]{0, sum[float64], mean[float64]},
		int:   reducer[int64]{0, sum[int64], mean[int64]},
		uint:  reducer[uint64]{0, sum[uint64], mean[uint64]},
	}))
	r.Register("ReduceMax", reduce(reduceOp{
		float: reducer[float64]{math.Inf(-1), math.Max, keep[float64]},
		int:   reducer[int64]{math.MinInt64, func(a, v int64) int64 { return max(a, v) }, keep[int64]},
		uint:  reducer[uint64]{0, func(a, v uint64) uint64 { return max(a, v) }, keep[uint64]},
	}))
}

// reduceAxes returns a per-axis mask of the axes to reduce, or nil when
// the node is a no-op.
func reduceAxes(node *Node, inputs []*ValueInfo) ([]bool, error) {
	rank := len(inputs[0].Shape)

	var axes []int64
	if len(inputs) > 1 && inputs[1] != nil {
		if inputs[1].Const == nil {
			return nil, errors.Errorf("%s: axes must be a constant", node.OpType)
		}
		a, err := inputs[1].Const.Int64s()
		if err != nil {
			return nil, errors.Wrap(err, node.OpType)
		}
		axes = a
	} else {
		axes = GetAttrInts(node, "axes")
	}

	mask := make([]bool, rank)
	if len(axes) == 0 {
		if GetAttrInt(node, "noop_with_empty_axes", 0) != 0 {
			return nil, nil
		}
		for i := range mask {
			mask[i] = true
		}
		return mask, nil
	}
	for _, a := range axes {
		axis := int(a)
		if axis < 0 {
			axis += rank
		}
		if axis < 0 || axis >= rank {
			return nil, errors.Errorf("%s: axis %d out of range for rank %d", node.OpType, a, rank)
		}
		if mask[axis] {
			return nil, errors.Errorf("%s: axis %d repeated", node.OpType, a)
		}
		mask[axis] = true
	}
	return mask, nil
}

func inferReduce(node *Node, inputs []*ValueInfo) ([]*ValueInfo, error) {
	if err := arity(node, inputs, 1, 2); err != nil {
		return nil, err
	}
	in := inputs[0]
	mask, err := reduceAxes(node, inputs)
	if err != nil {
		return nil, err
	}
	if mask == nil {
		return []*ValueInfo{{Type: in.Type, Shape: in.Shape.Clone()}}, nil
	}

	keepDims := GetAttrInt(node, "keepdims", 1) != 0
	shape := tensor.Shape{}
	for d, extent := range in.Shape {
		switch {
		case !mask[d]:
			shape = append(shape, extent)
		case keepDims:
			shape = append(shape, 1)
		}
	}
	return []*ValueInfo{{Type: in.Type, Shape: shape}}, nil
}

func reduce(op reduceOp) Operator {
	return Operator{
		Infer: inferReduce,
		Run: func(ctx *Context, node *Node, inputs []*Value, outputs []*ValueInfo) ([]*Value, error) {
			x := inputs[0]
			infos := make([]*ValueInfo, len(inputs))
			for i, in := range inputs {
				if in != nil {
					infos[i] = in.Info()
				}
			}
			mask, err := reduceAxes(node, infos)
			if err != nil {
				return nil, err
			}
			out := NewValue(outputs[0].Type, outputs[0].Shape)
			if mask == nil {
				copy(out.Data, x.Data)
				return []*Value{out}, nil
			}

			switch {
			case x.Type.IsFloat():
				err = reduceKernel(ctx, x, mask, out, op.float)
			case x.Type.IsUnsigned():
				err = reduceKernel(ctx, x, mask, out, op.uint)
			default:
				err = reduceKernel(ctx, x, mask, out, op.int)
			}
			if err != nil {
				return nil, err
			}
			return []*Value{out}, nil
		},
	}
}

func reduceKernel[T scalar](ctx *Context, x *Value, mask []bool, out *Value, r reducer[T]) error {
	xs := decode[T](x)
	res := make([]T, out.Len())
	for i := range res {
		res[i] = r.init
	}

	// Strides of the kept-dims output layout, zero on reduced axes.
	kept := make(tensor.Shape, len(x.Shape))
	for d, extent := range x.Shape {
		kept[d] = extent
		if mask[d] {
			kept[d] = 1
		}
	}
	strides := kept.ComputeStrides()
	for d := range strides {
		if mask[d] {
			strides[d] = 0
		}
	}

	for i, v := range xs {
		if i%checkEvery == checkEvery-1 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		o, rem := 0, i
		for d := len(x.Shape) - 1; d >= 0; d-- {
			o += (rem % x.Shape[d]) * strides[d]
			rem /= x.Shape[d]
		}
		res[o] = r.combine(res[o], v)
	}

	n := len(xs) / max(len(res), 1)
	for i := range res {
		res[i] = r.finish(res[i], n)
	}
	store(out, res, 0, len(res))
	return nil
}
