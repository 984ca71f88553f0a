// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package onnx exposes the pure-Go ONNX runtime behind single.Open.
//
// Importing package single registers the runtime for ".onnx" files. This
// package adds model encoding and the sample models used by the nnshot
// command.
package onnx

import (
	"github.com/born-ml/singleshot/internal/backend/onnx"
)

// Name is the backend name.
const Name = onnx.Name

// ModelProto is a decoded ONNX model.
type ModelProto = onnx.ModelProto

// Model is a loaded model.
type Model = onnx.Model

// LoadOptions configures Load.
type LoadOptions = onnx.LoadOptions

// Parse decodes an ONNX model.
func Parse(data []byte) (*ModelProto, error) {
	return onnx.Parse(data)
}

// Marshal encodes an ONNX model.
func Marshal(m *ModelProto) []byte {
	return onnx.Marshal(m)
}

// Load loads a model for direct use, bypassing single.Shot.
func Load(path string, opts ...LoadOptions) (*Model, error) {
	return onnx.Load(path, opts...)
}

// SupportedOps lists the operators the runtime executes.
func SupportedOps() []string {
	return onnx.ListSupportedOps()
}

// SampleNames lists the sample models.
func SampleNames() []string {
	return append([]string(nil), onnx.SampleNames...)
}

// SampleModel builds a sample model by name.
func SampleModel(name string, static bool) (*ModelProto, error) {
	return onnx.SampleModel(name, static)
}

// AddModel computes input + 2 over float32.
func AddModel(static bool) *ModelProto {
	return onnx.AddModel(static)
}

// ReluModel computes min(max(input, 0), 6) over float32 rows of four.
func ReluModel(static bool) *ModelProto {
	return onnx.ReluModel(static)
}
