package single

import (
	"time"

	"github.com/go-logr/logr"

	"github.com/born-ml/singleshot/internal/envconfig"
	"github.com/born-ml/singleshot/internal/tensor"
)

// Options configures Open. The zero value is valid.
type Options struct {
	// Input and Output optionally constrain the model schemas. A nil
	// schema accepts what the backend reports.
	Input  *tensor.Info
	Output *tensor.Info

	// Backend selects a backend by name. Empty means NNSHOT_BACKEND, and
	// then the backend registered for the file extension.
	Backend string

	// Timeout bounds each Invoke. Zero means NNSHOT_TIMEOUT.
	Timeout time.Duration

	// Threads bounds backend workers per run. Zero means NNSHOT_THREADS.
	Threads int

	// Logger receives diagnostics. The zero value discards them.
	Logger logr.Logger
}

// DefaultOptions returns options filled from the environment.
func DefaultOptions() Options {
	return Options{
		Backend: envconfig.Backend(),
		Timeout: envconfig.Timeout(),
		Threads: envconfig.Threads(),
		Logger:  logr.Discard(),
	}
}

// withDefaults fills unset fields from the environment.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Backend == "" {
		o.Backend = def.Backend
	}
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	if o.Threads <= 0 {
		o.Threads = def.Threads
	}
	return o
}
