// Package backend defines the seam between the single-shot core and the
// runtimes that execute models.
package backend

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/born-ml/singleshot/internal/tensor"
)

// Which selects the input or the output side of a model.
type Which int

// Model sides.
const (
	Input Which = iota
	Output
)

func (w Which) String() string {
	if w == Output {
		return "output"
	}
	return "input"
}

// Options configures Backend.Open.
type Options struct {
	// Logger receives backend diagnostics. The zero value discards them.
	Logger logr.Logger

	// Threads bounds the worker goroutines a backend may use per run.
	// Zero means one per CPU.
	Threads int

	// Input and Output are optional schema hints supplied by the caller.
	// Backends may use them to pick a model variant; the core still
	// validates them against the declared schema after Open.
	Input  *tensor.Info
	Output *tensor.Info
}

// Backend opens model files of one runtime.
type Backend interface {
	// Name returns the registry name, for example "onnx".
	Name() string

	// Open loads the model at path.
	Open(path string, opts Options) (Handle, error)
}

// Handle is one opened model. Calls on a Handle are never concurrent.
type Handle interface {
	// Info returns the current schema of one side of the model.
	Info(which Which) (*tensor.Info, error)

	// SetInputInfo changes the input schema and recomputes the output
	// schema. It is atomic: on error the previous schemas stay in force.
	// Static models report ErrNotSupported.
	SetInputInfo(info *tensor.Info) error

	// Run computes out from in. in and out match the current schemas.
	// Run should return promptly once ctx is done.
	Run(ctx context.Context, in, out *tensor.Data) error

	// Close releases the model.
	Close() error
}

// Describer is implemented by handles that carry model metadata, such as
// the producer of the file.
type Describer interface {
	Metadata() map[string]string
}

// Initializer is implemented by backends that need process-wide setup.
// Init runs exactly once per backend, before its first Open.
type Initializer interface {
	Init() error
}
