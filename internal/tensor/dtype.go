// Package tensor provides the tensor schema and buffer types of the single-shot library.
package tensor

import (
	"strings"

	"github.com/born-ml/singleshot/internal/errdefs"
)

// Type is the element type of a tensor.
//
// The numbering follows the NNStreamer tensor type enumeration so values
// written by the codecs stay stable.
type Type int

// Supported element types.
const (
	Int32 Type = iota
	Uint32
	Int16
	Uint16
	Int8
	Uint8
	Float64
	Float32
	Int64
	Uint64
	Float16
	Unknown
)

var typeNames = [...]string{
	Int32:   "int32",
	Uint32:  "uint32",
	Int16:   "int16",
	Uint16:  "uint16",
	Int8:    "int8",
	Uint8:   "uint8",
	Float64: "float64",
	Float32: "float32",
	Int64:   "int64",
	Uint64:  "uint64",
	Float16: "float16",
	Unknown: "unknown",
}

// Size returns the byte size of one element, or 0 for Unknown.
func (t Type) Size() int {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16, Float16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

// Valid reports whether t is a concrete element type.
func (t Type) Valid() bool {
	return t >= Int32 && t < Unknown
}

// IsFloat reports whether t is a floating-point type.
func (t Type) IsFloat() bool {
	return t == Float16 || t == Float32 || t == Float64
}

// IsUnsigned reports whether t is an unsigned integer type.
func (t Type) IsUnsigned() bool {
	return t == Uint8 || t == Uint16 || t == Uint32 || t == Uint64
}

// String returns the lower-case name of the type.
func (t Type) String() string {
	if t < Int32 || t > Unknown {
		return "unknown"
	}
	return typeNames[t]
}

// ParseType converts a type name such as "uint8" into a Type.
func ParseType(s string) (Type, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t := Int32; t < Unknown; t++ {
		if typeNames[t] == name {
			return t, nil
		}
	}
	return Unknown, errdefs.InvalidArgument("unknown tensor type %q", s)
}
