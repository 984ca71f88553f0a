package tensor

import (
	"strings"

	"github.com/born-ml/singleshot/internal/errdefs"
)

// MaxTensors is the largest number of tensors a schema may describe.
const MaxTensors = 16

// Entry describes a single tensor of a schema.
type Entry struct {
	Name string
	Type Type
	Dim  Dimension
}

// Complete reports whether the entry has a concrete type and non-zero extents.
func (e Entry) Complete() bool {
	return e.Type.Valid() && e.Dim.Valid()
}

// Info is an ordered schema of up to MaxTensors tensors.
//
// The zero value is an empty schema ready for Add. Info is a value type:
// Clone yields an independent copy and every consumer in this module keeps
// its own copy.
type Info struct {
	entries []Entry
}

// NewInfo returns a schema holding the given entries.
func NewInfo(entries ...Entry) (*Info, error) {
	info := &Info{}
	for _, e := range entries {
		if err := info.append(e); err != nil {
			return nil, err
		}
	}
	return info, nil
}

// Add appends a tensor of type t with the given extents, innermost first.
// Fewer than Rank extents are padded with 1.
func (info *Info) Add(t Type, dims ...int) error {
	return info.AddNamed("", t, dims...)
}

// AddNamed is Add with a tensor name.
func (info *Info) AddNamed(name string, t Type, dims ...int) error {
	d, err := NewDimension(dims...)
	if err != nil {
		return err
	}
	return info.append(Entry{Name: name, Type: t, Dim: d})
}

func (info *Info) append(e Entry) error {
	if len(info.entries) >= MaxTensors {
		return errdefs.InvalidArgument("schema already holds %d tensors", MaxTensors)
	}
	if !e.Type.Valid() {
		return errdefs.InvalidArgument("tensor type is %s", e.Type)
	}
	if !e.Dim.Valid() {
		return errdefs.InvalidArgument("dimension %s has a zero extent", e.Dim)
	}
	if _, err := ByteSize(e.Type, e.Dim); err != nil {
		return err
	}
	info.entries = append(info.entries, e)
	return nil
}

// Count returns the number of tensors.
func (info *Info) Count() int {
	if info == nil {
		return 0
	}
	return len(info.entries)
}

func (info *Info) entry(i int) (Entry, error) {
	if i < 0 || i >= info.Count() {
		return Entry{}, errdefs.InvalidArgument("tensor index %d out of range [0, %d)", i, info.Count())
	}
	return info.entries[i], nil
}

// Type returns the element type of tensor i.
func (info *Info) Type(i int) (Type, error) {
	e, err := info.entry(i)
	return e.Type, err
}

// Dimension returns the extents of tensor i.
func (info *Info) Dimension(i int) (Dimension, error) {
	e, err := info.entry(i)
	return e.Dim, err
}

// Name returns the name of tensor i, which may be empty.
func (info *Info) Name(i int) (string, error) {
	e, err := info.entry(i)
	return e.Name, err
}

// ByteSize returns the buffer size of tensor i.
func (info *Info) ByteSize(i int) (int, error) {
	e, err := info.entry(i)
	if err != nil {
		return 0, err
	}
	return ByteSize(e.Type, e.Dim)
}

// Entries returns a copy of all entries.
func (info *Info) Entries() []Entry {
	if info == nil {
		return nil
	}
	out := make([]Entry, len(info.entries))
	copy(out, info.entries)
	return out
}

// Clone returns an independent copy.
func (info *Info) Clone() *Info {
	return &Info{entries: info.Entries()}
}

// Validate reports ErrInvalidArgument for an empty or incomplete schema.
func (info *Info) Validate() error {
	if info.Count() == 0 {
		return errdefs.InvalidArgument("tensor schema is empty")
	}
	for i, e := range info.entries {
		if !e.Complete() {
			return errdefs.InvalidArgument("tensor %d is incomplete (%s %s)", i, e.Type, e.Dim)
		}
		if _, err := ByteSize(e.Type, e.Dim); err != nil {
			return err
		}
	}
	return nil
}

// Equal reports whether both schemas describe the same tensors by count,
// type and extents. Names do not take part.
func (info *Info) Equal(other *Info) bool {
	if info.Count() != other.Count() {
		return false
	}
	for i := range info.Count() {
		a, b := info.entries[i], other.entries[i]
		if a.Type != b.Type || a.Dim != b.Dim {
			return false
		}
	}
	return true
}

// Allocate returns zeroed buffers for the schema.
// It fails with ErrInvalidState when the schema is empty or incomplete.
func (info *Info) Allocate() (*Data, error) {
	if info.Count() == 0 {
		return nil, errdefs.InvalidState("cannot allocate an empty tensor schema")
	}
	for i, e := range info.entries {
		if !e.Complete() {
			return nil, errdefs.InvalidState("cannot allocate incomplete tensor %d (%s %s)", i, e.Type, e.Dim)
		}
	}
	return newData(info.Clone())
}

// String returns a compact description such as "uint8[3:224:224:1]".
func (info *Info) String() string {
	parts := make([]string, info.Count())
	for i, e := range info.Entries() {
		parts[i] = e.Type.String() + "[" + e.Dim.String() + "]"
		if e.Name != "" {
			parts[i] = e.Name + ":" + parts[i]
		}
	}
	return strings.Join(parts, ",")
}

// ParseInfo parses the comma-separated NNStreamer notation, for example
// ParseInfo("uint8,float32", "3:224:224:1,10"). Both lists must have the
// same length.
func ParseInfo(types, dims string) (*Info, error) {
	typeList := strings.Split(types, ",")
	dimList := strings.Split(dims, ",")
	if len(typeList) != len(dimList) {
		return nil, errdefs.InvalidArgument("%d types but %d dimensions", len(typeList), len(dimList))
	}
	info := &Info{}
	for i := range typeList {
		t, err := ParseType(typeList[i])
		if err != nil {
			return nil, err
		}
		d, err := ParseDimension(dimList[i])
		if err != nil {
			return nil, err
		}
		if err := info.append(Entry{Type: t, Dim: d}); err != nil {
			return nil, err
		}
	}
	return info, nil
}
