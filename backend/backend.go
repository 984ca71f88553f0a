// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package backend lets other runtimes serve single-shot models.
//
// A runtime implements Backend and Handle and registers itself, usually
// from an init function:
//
//	func init() {
//	    backend.Register(myBackend{}, ".tflite")
//	}
//
// single.Open then picks it by name (Options.Backend, NNSHOT_BACKEND) or
// by the model file extension. A Handle is never called concurrently.
package backend

import (
	"github.com/born-ml/singleshot/internal/backend"
)

// Backend opens model files of one runtime.
type Backend = backend.Backend

// Handle is one opened model.
type Handle = backend.Handle

// Initializer is implemented by backends needing one-time setup.
type Initializer = backend.Initializer

// Options configures Backend.Open.
type Options = backend.Options

// Which selects the input or the output side of a model.
type Which = backend.Which

// Model sides.
const (
	Input  = backend.Input
	Output = backend.Output
)

// Register makes b available by name and for the given file extensions.
// It panics if the name or an extension is taken.
func Register(b Backend, exts ...string) {
	backend.Register(b, exts...)
}

// Unregister removes a backend.
func Unregister(name string) {
	backend.Unregister(name)
}

// Lookup returns a registered backend, running its Init once.
func Lookup(name string) (Backend, error) {
	return backend.Lookup(name)
}

// Names lists the registered backends.
func Names() []string {
	return backend.Names()
}
