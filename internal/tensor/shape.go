package tensor

import (
	"math"
	"math/bits"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/singleshot/internal/errdefs"
)

// Rank is the number of dimensions every tensor schema carries.
const Rank = 4

// Dimension holds the four extents of a tensor, innermost first.
// For an image batch [3,224,224,1] means channel, width, height, batch.
type Dimension [Rank]uint32

// NewDimension builds a Dimension from up to Rank extents.
// Missing trailing extents are padded with 1.
func NewDimension(dims ...int) (Dimension, error) {
	var d Dimension
	if len(dims) == 0 {
		return d, errdefs.InvalidArgument("dimension is empty")
	}
	if len(dims) > Rank {
		return d, errdefs.InvalidArgument("dimension has %d extents, at most %d allowed", len(dims), Rank)
	}
	for i := range d {
		d[i] = 1
	}
	for i, v := range dims {
		if v < 1 || uint64(v) > math.MaxUint32 {
			return Dimension{}, errdefs.InvalidArgument("invalid extent at index %d: %d (must be in [1, %d])", i, v, uint32(math.MaxUint32))
		}
		d[i] = uint32(v)
	}
	return d, nil
}

// ParseDimension parses the colon notation "3:224:224:1".
func ParseDimension(s string) (Dimension, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Dimension{}, errdefs.InvalidArgument("dimension is empty")
	}
	parts := strings.Split(s, ":")
	dims := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Dimension{}, errdefs.InvalidArgument("invalid extent %q in dimension %q", p, s)
		}
		dims[i] = v
	}
	return NewDimension(dims...)
}

// Valid reports whether every extent is at least 1.
func (d Dimension) Valid() bool {
	for _, v := range d {
		if v < 1 {
			return false
		}
	}
	return true
}

// Elements returns the product of all extents.
func (d Dimension) Elements() (uint64, error) {
	n := uint64(1)
	for _, v := range d {
		hi, lo := bits.Mul64(n, uint64(v))
		if hi != 0 {
			return 0, errdefs.InvalidArgument("dimension %s overflows", d)
		}
		n = lo
	}
	return n, nil
}

// Ints returns the extents as ints.
func (d Dimension) Ints() []int {
	out := make([]int, Rank)
	for i, v := range d {
		out[i] = int(v)
	}
	return out
}

// String returns the colon notation of d.
func (d Dimension) String() string {
	parts := make([]string, Rank)
	for i, v := range d {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ":")
}

// Shape converts d into an outermost-first shape of the given rank.
// Extents beyond rank must be 1.
func (d Dimension) Shape(rank int) (Shape, error) {
	if rank < 0 || rank > Rank {
		return nil, errdefs.InvalidArgument("rank %d out of range", rank)
	}
	for i := rank; i < Rank; i++ {
		if d[i] != 1 {
			return nil, errdefs.InvalidArgument("dimension %s does not fit rank %d", d, rank)
		}
	}
	s := make(Shape, rank)
	for j := 0; j < rank; j++ {
		s[j] = int(d[rank-1-j])
	}
	return s, nil
}

// DimensionOf converts an outermost-first shape of rank at most Rank.
func DimensionOf(s Shape) (Dimension, error) {
	if len(s) > Rank {
		return Dimension{}, errdefs.InvalidArgument("shape %v has rank %d, at most %d supported", s, len(s), Rank)
	}
	if len(s) == 0 {
		return NewDimension(1)
	}
	dims := make([]int, len(s))
	for j, v := range s {
		dims[len(s)-1-j] = v
	}
	return NewDimension(dims...)
}

// ByteSize returns t.Size() times the element count of d.
func ByteSize(t Type, d Dimension) (int, error) {
	if !t.Valid() {
		return 0, errdefs.InvalidArgument("tensor type is %s", t)
	}
	if !d.Valid() {
		return 0, errdefs.InvalidArgument("dimension %s has a zero extent", d)
	}
	n, err := d.Elements()
	if err != nil {
		return 0, err
	}
	hi, size := bits.Mul64(n, uint64(t.Size()))
	if hi != 0 || size > math.MaxInt {
		return 0, errdefs.InvalidArgument("byte size of %s %s overflows", t, d)
	}
	return int(size), nil
}

// Shape is an outermost-first list of extents of arbitrary rank.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// BroadcastShapes implements NumPy-style broadcasting rules.
//
// Shapes are compared from the right; extents are compatible when equal or
// when one of them is 1. Missing extents are treated as 1.
//
//	(3, 1) + (3, 5) → (3, 5)
//	(3, 4) + (3, 5) → error
func BroadcastShapes(a, b Shape) (Shape, error) {
	n := max(len(a), len(b))
	result := make(Shape, n)

	for i := 0; i < n; i++ {
		aDim, bDim := 1, 1
		if j := len(a) - 1 - i; j >= 0 {
			aDim = a[j]
		}
		if j := len(b) - 1 - i; j >= 0 {
			bDim = b[j]
		}

		switch {
		case aDim == bDim:
			result[n-1-i] = aDim
		case aDim == 1:
			result[n-1-i] = bDim
		case bDim == 1:
			result[n-1-i] = aDim
		default:
			return nil, errors.Errorf("shapes not compatible for broadcasting: %v vs %v (dimension %d: %d vs %d)",
				a, b, n-1-i, aDim, bDim)
		}
	}

	return result, nil
}
