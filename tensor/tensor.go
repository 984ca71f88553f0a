// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"io"

	"github.com/born-ml/singleshot/internal/tensor"
)

// Type is a tensor element type.
type Type = tensor.Type

// Element types.
const (
	Int32   Type = tensor.Int32
	Uint32  Type = tensor.Uint32
	Int16   Type = tensor.Int16
	Uint16  Type = tensor.Uint16
	Int8    Type = tensor.Int8
	Uint8   Type = tensor.Uint8
	Float64 Type = tensor.Float64
	Float32 Type = tensor.Float32
	Int64   Type = tensor.Int64
	Uint64  Type = tensor.Uint64
	Float16 Type = tensor.Float16
	Unknown Type = tensor.Unknown
)

// Rank is the number of extents of every Dimension.
const Rank = tensor.Rank

// MaxTensors bounds the tensors of one Info.
const MaxTensors = tensor.MaxTensors

// Dimension holds four extents, innermost first.
type Dimension = tensor.Dimension

// Shape is an outermost-first shape of any rank.
type Shape = tensor.Shape

// Entry describes one tensor of an Info.
type Entry = tensor.Entry

// Info is an ordered tensor schema. The zero value is empty.
type Info = tensor.Info

// Data is a schema with one fixed-size buffer per tensor.
type Data = tensor.Data

// ParseType parses a type name such as "float32".
func ParseType(s string) (Type, error) {
	return tensor.ParseType(s)
}

// NewDimension pads dims with 1 up to Rank.
func NewDimension(dims ...int) (Dimension, error) {
	return tensor.NewDimension(dims...)
}

// ParseDimension parses "3:224:224:1" notation.
func ParseDimension(s string) (Dimension, error) {
	return tensor.ParseDimension(s)
}

// DimensionOf converts an outermost-first shape of rank at most Rank.
func DimensionOf(s Shape) (Dimension, error) {
	return tensor.DimensionOf(s)
}

// ByteSize returns the buffer size of a tensor.
func ByteSize(t Type, d Dimension) (int, error) {
	return tensor.ByteSize(t, d)
}

// NewInfo builds a schema from entries.
func NewInfo(entries ...Entry) (*Info, error) {
	return tensor.NewInfo(entries...)
}

// ParseInfo parses comma-separated types and dimensions.
func ParseInfo(types, dims string) (*Info, error) {
	return tensor.ParseInfo(types, dims)
}

// Allocate is equivalent to info.Allocate().
func Allocate(info *Info) (*Data, error) {
	return tensor.Allocate(info)
}

// EncodeData writes d to w as msgpack.
func EncodeData(w io.Writer, d *Data) error {
	return tensor.EncodeData(w, d)
}

// DecodeData reads msgpack written by EncodeData.
func DecodeData(r io.Reader) (*Data, error) {
	return tensor.DecodeData(r)
}
