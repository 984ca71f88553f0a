// Package single runs one model synchronously: open it, describe its
// tensors, optionally reshape its input, and invoke it under a timeout.
package single

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/born-ml/singleshot/internal/backend"
	"github.com/born-ml/singleshot/internal/errdefs"
	"github.com/born-ml/singleshot/internal/tensor"
)

// Shot is an opened model.
//
// Invoke, SetInputInfo, SetTimeout and Close are serialized. InputInfo,
// OutputInfo, Timeout and Backend may be called at any time and observe
// the last committed state.
type Shot struct {
	// op serializes mutating operations and Invoke.
	op sync.Mutex

	// mu guards the committed state below.
	mu      sync.RWMutex
	input   *tensor.Info
	output  *tensor.Info
	timeout time.Duration
	closed  bool

	meta map[string]string

	backend string
	w       *worker
	log     logr.Logger
}

// Open loads the model at path.
func Open(path string, opts ...Options) (*Shot, error) {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}
	opt = opt.withDefaults()

	if err := checkModelFile(path); err != nil {
		return nil, err
	}
	if opt.Input != nil {
		if err := opt.Input.Validate(); err != nil {
			return nil, errors.WithMessage(err, "input schema")
		}
	}
	if opt.Output != nil {
		if err := opt.Output.Validate(); err != nil {
			return nil, errors.WithMessage(err, "output schema")
		}
	}

	b, err := selectBackend(path, opt.Backend)
	if err != nil {
		return nil, err
	}

	log := opt.Logger.WithName("single").WithValues("shot", uuid.NewString()[:8], "backend", b.Name())
	h, err := b.Open(path, backend.Options{
		Logger:  log,
		Threads: opt.Threads,
		Input:   cloneInfo(opt.Input),
		Output:  cloneInfo(opt.Output),
	})
	if err != nil {
		return nil, errdefs.Backend(err)
	}

	s := &Shot{
		timeout: opt.Timeout,
		backend: b.Name(),
		w:       newWorker(h, log),
		log:     log,
	}
	if err := s.negotiate(opt.Input, opt.Output); err != nil {
		s.w.stop()
		if cerr := h.Close(); cerr != nil {
			log.Error(cerr, "close after failed open")
		}
		return nil, err
	}

	log.V(1).Info("model opened", "path", path, "input", s.input.String(), "output", s.output.String(), "timeout", s.timeout)
	return s, nil
}

func checkModelFile(path string) error {
	if path == "" {
		return errdefs.InvalidArgument("model path is empty")
	}
	st, err := os.Stat(path)
	if err != nil {
		return errdefs.InvalidArgument("model file: %v", err)
	}
	if st.IsDir() {
		return errdefs.InvalidArgument("model file %s is a directory", path)
	}
	f, err := os.Open(path) //nolint:gosec // G304: opening the caller's model is the point.
	if err != nil {
		return errdefs.InvalidArgument("model file: %v", err)
	}
	return errors.Wrap(f.Close(), "close model file")
}

func selectBackend(path, name string) (backend.Backend, error) {
	if name != "" {
		return backend.Lookup(name)
	}
	return backend.ForPath(path)
}

func cloneInfo(info *tensor.Info) *tensor.Info {
	if info == nil {
		return nil
	}
	return info.Clone()
}

// negotiate applies the optional schemas and commits the backend's view.
func (s *Shot) negotiate(wantIn, wantOut *tensor.Info) error {
	return s.w.do(context.Background(), "open", func(_ context.Context, h backend.Handle) error {
		in, err := h.Info(backend.Input)
		if err != nil {
			return errdefs.Backend(err)
		}

		if wantIn != nil && !wantIn.Equal(in) {
			if err := compatible(wantIn, in); err != nil {
				return err
			}
			if err := h.SetInputInfo(wantIn.Clone()); err != nil {
				if errors.Is(err, errdefs.ErrNotSupported) {
					return errdefs.InvalidArgument("model input is fixed to %s, got %s", in, wantIn)
				}
				return errdefs.Backend(err)
			}
			if in, err = h.Info(backend.Input); err != nil {
				return errdefs.Backend(err)
			}
		}

		out, err := h.Info(backend.Output)
		if err != nil {
			return errdefs.Backend(err)
		}
		if wantOut != nil && !wantOut.Equal(out) {
			return errdefs.InvalidArgument("model output is %s, got %s", out, wantOut)
		}

		s.commit(in, out)
		if d, ok := h.(backend.Describer); ok {
			s.meta = d.Metadata()
		}
		return nil
	})
}

// compatible checks what no reshape can change: the tensor count and the
// element types.
func compatible(want, have *tensor.Info) error {
	if want.Count() != have.Count() {
		return errdefs.InvalidArgument("model has %d tensors, schema describes %d", have.Count(), want.Count())
	}
	for i := range want.Count() {
		wt, _ := want.Type(i)
		ht, _ := have.Type(i)
		if wt != ht {
			return errdefs.InvalidArgument("tensor %d has type %s, schema says %s", i, ht, wt)
		}
	}
	return nil
}

func (s *Shot) commit(in, out *tensor.Info) {
	s.mu.Lock()
	s.input, s.output = in, out
	s.mu.Unlock()
}

func (s *Shot) state() (in, out *tensor.Info, timeout time.Duration, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, nil, 0, errdefs.InvalidState("single shot is closed")
	}
	return s.input, s.output, s.timeout, nil
}

// InputInfo returns a copy of the current input schema.
func (s *Shot) InputInfo() (*tensor.Info, error) {
	in, _, _, err := s.state()
	if err != nil {
		return nil, err
	}
	return in.Clone(), nil
}

// OutputInfo returns a copy of the current output schema.
func (s *Shot) OutputInfo() (*tensor.Info, error) {
	_, out, _, err := s.state()
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// Metadata returns a copy of the model's key-value metadata. It is empty
// when the backend exposes none.
func (s *Shot) Metadata() (map[string]string, error) {
	if _, _, _, err := s.state(); err != nil {
		return nil, err
	}
	meta := make(map[string]string, len(s.meta))
	for k, v := range s.meta {
		meta[k] = v
	}
	return meta, nil
}

// Backend returns the name of the backend running the model.
func (s *Shot) Backend() string {
	return s.backend
}

// Timeout returns the budget of the next Invoke.
func (s *Shot) Timeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timeout
}

// SetTimeout sets the budget for every Invoke that starts after it returns.
func (s *Shot) SetTimeout(d time.Duration) error {
	s.op.Lock()
	defer s.op.Unlock()

	if _, _, _, err := s.state(); err != nil {
		return err
	}
	if d <= 0 {
		return errdefs.InvalidArgument("timeout must be positive, got %s", d)
	}

	s.mu.Lock()
	s.timeout = d
	s.mu.Unlock()
	return nil
}

// SetInputInfo reshapes the model input. Both schemas are re-read from the
// backend on success, so the output may change too. On failure the
// schemas stay as they were.
func (s *Shot) SetInputInfo(info *tensor.Info) error {
	s.op.Lock()
	defer s.op.Unlock()

	cur, _, _, err := s.state()
	if err != nil {
		return err
	}
	if info == nil {
		return errdefs.InvalidArgument("input schema is nil")
	}
	if err := info.Validate(); err != nil {
		return err
	}
	if info.Equal(cur) {
		return nil
	}

	want := info.Clone()
	return s.w.do(context.Background(), "set input info", func(_ context.Context, h backend.Handle) error {
		if err := h.SetInputInfo(want); err != nil {
			return errdefs.Backend(err)
		}
		in, err := h.Info(backend.Input)
		if err != nil {
			return errdefs.Backend(err)
		}
		out, err := h.Info(backend.Output)
		if err != nil {
			return errdefs.Backend(err)
		}
		s.commit(in, out)
		s.log.V(1).Info("input reshaped", "input", in.String(), "output", out.String())
		return nil
	})
}

// Invoke runs the model on in and returns a freshly allocated output
// matching OutputInfo. in is copied before the backend sees it.
func (s *Shot) Invoke(in *tensor.Data) (*tensor.Data, error) {
	s.op.Lock()
	defer s.op.Unlock()

	inInfo, outInfo, timeout, err := s.state()
	if err != nil {
		return nil, err
	}
	if in == nil {
		return nil, errdefs.InvalidArgument("input data is nil")
	}
	if err := in.Matches(inInfo); err != nil {
		return nil, err
	}

	staged := in.Clone()
	out, err := outInfo.Allocate()
	if err != nil {
		return nil, errdefs.Backend(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	err = s.w.do(ctx, "invoke", func(ctx context.Context, h backend.Handle) error {
		return h.Run(ctx, staged, out)
	})
	switch {
	case err == nil:
		s.log.V(2).Info("invoke done", "elapsed", time.Since(start))
		return out, nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		s.log.Info("invoke timed out", "timeout", timeout)
		return nil, errdefs.Timeout("invoke did not finish within %s", timeout)
	default:
		return nil, errdefs.Backend(err)
	}
}

// Close stops the worker and releases the model. It waits for a backend
// call still running from a timed out Invoke. Close is idempotent.
func (s *Shot) Close() error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.w.stop()
	if err := s.w.h.Close(); err != nil {
		return errdefs.Backend(err)
	}
	s.log.V(1).Info("model closed", "dropped", s.w.dropped.Load())
	return nil
}
