package operators

import (
	"github.com/born-ml/singleshot/internal/tensor"
)

// checkEvery is how many elements a kernel processes between
// cancellation checks.
const checkEvery = 1 << 16

// broadcastStrides returns the strides of shape aligned to out, with zero
// strides on broadcast axes.
func broadcastStrides(shape, out tensor.Shape) []int {
	strides := make([]int, len(out))
	s := shape.ComputeStrides()
	off := len(out) - len(shape)
	for i := range shape {
		if shape[i] != 1 {
			strides[off+i] = s[i]
		}
	}
	return strides
}

// binaryKernel evaluates f element-wise over a and b broadcast to out.
func binaryKernel[T scalar](ctx *Context, a, b, out *Value, f func(x, y T) (T, error)) error {
	xs, ys := decode[T](a), decode[T](b)
	res := make([]T, out.Len())

	same := a.Shape.Equal(out.Shape) && b.Shape.Equal(out.Shape)
	aStr := broadcastStrides(a.Shape, out.Shape)
	bStr := broadcastStrides(b.Shape, out.Shape)

	return ctx.For(len(res), func(start, end int) error {
		for i := start; i < end; i++ {
			if (i-start)%checkEvery == checkEvery-1 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			ai, bi := i, i
			if !same {
				ai, bi = 0, 0
				rem := i
				for d := len(out.Shape) - 1; d >= 0; d-- {
					c := rem % out.Shape[d]
					rem /= out.Shape[d]
					ai += c * aStr[d]
					bi += c * bStr[d]
				}
			}
			r, err := f(xs[ai], ys[bi])
			if err != nil {
				return err
			}
			res[i] = r
		}
		store(out, res, start, end)
		return nil
	})
}

// unaryKernel evaluates f element-wise over x into out of the same shape.
func unaryKernel[T scalar](ctx *Context, x, out *Value, f func(v T) (T, error)) error {
	xs := decode[T](x)
	res := make([]T, len(xs))

	return ctx.For(len(res), func(start, end int) error {
		for i := start; i < end; i++ {
			if (i-start)%checkEvery == checkEvery-1 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			r, err := f(xs[i])
			if err != nil {
				return err
			}
			res[i] = r
		}
		store(out, res, start, end)
		return nil
	})
}
