// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package single invokes one model at a time, synchronously.
//
// Example:
//
//	s, err := single.Open("add.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	in, _ := s.InputInfo()
//	data, _ := in.Allocate()
//	out, err := s.Invoke(data)
//
// ONNX models (.onnx) are served by the built-in pure-Go runtime. Other
// runtimes plug in through package backend.
package single

import (
	"github.com/born-ml/singleshot/internal/errdefs"
	"github.com/born-ml/singleshot/internal/single"

	// Registers the ONNX backend.
	_ "github.com/born-ml/singleshot/internal/backend/onnx"
)

// Shot is an opened model.
type Shot = single.Shot

// Options configures Open.
type Options = single.Options

// Error kinds. Every error returned by this module matches one of them
// with errors.Is.
var (
	ErrInvalidArgument = errdefs.ErrInvalidArgument
	ErrInvalidState    = errdefs.ErrInvalidState
	ErrNotSupported    = errdefs.ErrNotSupported
	ErrTimeout         = errdefs.ErrTimeout
	ErrBackend         = errdefs.ErrBackend
)

// Open loads the model at path.
func Open(path string, opts ...Options) (*Shot, error) {
	return single.Open(path, opts...)
}

// DefaultOptions returns options filled from NNSHOT_* variables.
func DefaultOptions() Options {
	return single.DefaultOptions()
}

// Kind names the kind of err, such as "Timeout", or returns "".
func Kind(err error) string {
	return errdefs.Kind(err)
}
