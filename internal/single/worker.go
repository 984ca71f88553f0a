package single

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/born-ml/singleshot/internal/backend"
	"github.com/born-ml/singleshot/internal/errdefs"
)

// call is one unit of backend work.
type call func(ctx context.Context, h backend.Handle) error

type job struct {
	ctx  context.Context
	fn   call
	gen  uint64
	name string
	done chan error // buffered, the worker never blocks on delivery
}

// worker owns a backend handle and runs every call on it from a single
// goroutine, so a handle never sees concurrent calls. A caller that gives
// up on a job advances the generation; the worker then drops the job's
// result instead of delivering it.
type worker struct {
	h    backend.Handle
	log  logr.Logger
	jobs chan *job
	quit chan struct{}

	stopped  chan struct{}
	stopOnce sync.Once

	gen     atomic.Uint64
	dropped atomic.Uint64
}

func newWorker(h backend.Handle, log logr.Logger) *worker {
	w := &worker{
		h:       h,
		log:     log,
		jobs:    make(chan *job),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *worker) loop() {
	defer close(w.stopped)
	for {
		select {
		case j := <-w.jobs:
			w.exec(j)
		case <-w.quit:
			return
		}
	}
}

func (w *worker) exec(j *job) {
	var err error
	if err = j.ctx.Err(); err == nil {
		err = w.run(j)
	}
	if cur := w.gen.Load(); j.gen != cur {
		w.dropped.Add(1)
		w.log.Info("dropping late result", "call", j.name, "generation", j.gen, "current", cur, "error", err)
		return
	}
	j.done <- err
}

func (w *worker) run(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errdefs.Backendf("%s panicked: %v", j.name, r)
		}
	}()
	return j.fn(j.ctx, w.h)
}

// do runs fn on the worker and waits for its result until ctx is done.
// When ctx ends first, the job's result is fenced off and ctx.Err() is
// returned.
func (w *worker) do(ctx context.Context, name string, fn call) error {
	j := &job{ctx: ctx, fn: fn, gen: w.gen.Load(), name: name, done: make(chan error, 1)}

	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.stopped:
		return errdefs.InvalidState("worker stopped")
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		w.gen.Add(1)
		return ctx.Err()
	}
}

// stop waits for a running job to finish and ends the worker. The handle
// may be used from the calling goroutine afterwards.
func (w *worker) stop() {
	w.stopOnce.Do(func() { close(w.quit) })
	<-w.stopped
}
