package tensor

import (
	"github.com/born-ml/singleshot/internal/errdefs"
)

// Data pairs a schema with one fixed-capacity buffer per tensor.
//
// Buffer contents are mutable; buffer sizes are fixed for the lifetime of
// the Data and always equal the schema's byte sizes.
type Data struct {
	info    *Info
	buffers [][]byte
}

// Allocate is equivalent to info.Allocate().
func Allocate(info *Info) (*Data, error) {
	if info == nil {
		return nil, errdefs.InvalidArgument("tensor schema is nil")
	}
	return info.Allocate()
}

// newData allocates zeroed buffers for a validated schema it takes ownership of.
func newData(info *Info) (*Data, error) {
	buffers := make([][]byte, info.Count())
	for i := range buffers {
		size, err := info.ByteSize(i)
		if err != nil {
			return nil, err
		}
		buffers[i] = make([]byte, size)
	}
	return &Data{info: info, buffers: buffers}, nil
}

// Count returns the number of tensors.
func (d *Data) Count() int {
	if d == nil {
		return 0
	}
	return len(d.buffers)
}

// Info returns a copy of the schema.
func (d *Data) Info() *Info {
	return d.info.Clone()
}

// Tensor returns the live buffer of tensor i. Writes are visible to the next
// consumer of d. The returned slice has len == cap, so append never writes
// into d.
func (d *Data) Tensor(i int) ([]byte, error) {
	if i < 0 || i >= d.Count() {
		return nil, errdefs.InvalidArgument("tensor index %d out of range [0, %d)", i, d.Count())
	}
	b := d.buffers[i]
	return b[:len(b):len(b)], nil
}

// SetTensor copies src into the buffer of tensor i.
// src must be exactly as long as the buffer.
func (d *Data) SetTensor(i int, src []byte) error {
	dst, err := d.Tensor(i)
	if err != nil {
		return err
	}
	if len(src) != len(dst) {
		return errdefs.InvalidArgument("tensor %d holds %d bytes, got %d", i, len(dst), len(src))
	}
	copy(dst, src)
	return nil
}

// Clone returns a deep copy.
func (d *Data) Clone() *Data {
	buffers := make([][]byte, len(d.buffers))
	for i, b := range d.buffers {
		buffers[i] = append([]byte(nil), b...)
	}
	return &Data{info: d.info.Clone(), buffers: buffers}
}

// Matches reports nil when d carries exactly the schema info, comparing
// count, per-tensor type, extents and byte size.
func (d *Data) Matches(info *Info) error {
	if d.Count() != info.Count() {
		return errdefs.InvalidArgument("data holds %d tensors, schema expects %d", d.Count(), info.Count())
	}
	for i := range d.Count() {
		want, err := info.entry(i)
		if err != nil {
			return err
		}
		got := d.info.entries[i]
		if got.Type != want.Type {
			return errdefs.InvalidArgument("tensor %d has type %s, schema expects %s", i, got.Type, want.Type)
		}
		if got.Dim != want.Dim {
			return errdefs.InvalidArgument("tensor %d has dimension %s, schema expects %s", i, got.Dim, want.Dim)
		}
		size, err := ByteSize(want.Type, want.Dim)
		if err != nil {
			return err
		}
		if len(d.buffers[i]) != size {
			return errdefs.InvalidArgument("tensor %d holds %d bytes, schema expects %d", i, len(d.buffers[i]), size)
		}
	}
	return nil
}
