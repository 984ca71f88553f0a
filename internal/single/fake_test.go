package single

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/singleshot/internal/backend"
	"github.com/born-ml/singleshot/internal/errdefs"
	"github.com/born-ml/singleshot/internal/tensor"
)

// fakeModel is a scriptable model shared by every handle its backend opens.
type fakeModel struct {
	mu         sync.Mutex
	in, out    *tensor.Info
	reshapable bool

	// The first slowRuns runs sleep for delay; ignoreCtx makes them
	// sleep through cancellation.
	slowRuns  int32
	delay     time.Duration
	ignoreCtx bool
	runErr    error
	panicRun  bool
	openErr   error

	runs       atomic.Int32
	active     atomic.Int32
	overlapped atomic.Bool
	closed     atomic.Bool
}

// imageModel mirrors a classifier: uint8 [3:224:224:1] in, uint8 [1001] out.
func imageModel(t *testing.T) *fakeModel {
	t.Helper()
	in := &tensor.Info{}
	require.NoError(t, in.Add(tensor.Uint8, 3, 224, 224, 1))
	out := &tensor.Info{}
	require.NoError(t, out.Add(tensor.Uint8, 1001))
	return &fakeModel{in: in, out: out}
}

var fakeSeq atomic.Int32

// register makes m available under a fresh backend name and returns the
// name and a model file to open.
func (m *fakeModel) register(t *testing.T) (string, string) {
	t.Helper()
	name := fmt.Sprintf("fake%d", fakeSeq.Add(1))
	backend.Register(&fakeBackend{name: name, model: m})
	t.Cleanup(func() { backend.Unregister(name) })

	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, os.WriteFile(path, []byte("fake"), 0o600))
	return name, path
}

type fakeBackend struct {
	name  string
	model *fakeModel
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Open(string, backend.Options) (backend.Handle, error) {
	if b.model.openErr != nil {
		return nil, b.model.openErr
	}
	return &fakeHandle{m: b.model}, nil
}

type fakeHandle struct {
	m *fakeModel
}

// enter records overlapping handle calls.
func (h *fakeHandle) enter() func() {
	if h.m.active.Add(1) > 1 {
		h.m.overlapped.Store(true)
	}
	return func() { h.m.active.Add(-1) }
}

func (h *fakeHandle) Info(which backend.Which) (*tensor.Info, error) {
	defer h.enter()()
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if which == backend.Output {
		return h.m.out.Clone(), nil
	}
	return h.m.in.Clone(), nil
}

func (h *fakeHandle) SetInputInfo(info *tensor.Info) error {
	defer h.enter()()
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if !h.m.reshapable {
		return errdefs.NotSupported("static model")
	}
	if info.Count() != 1 {
		return errdefs.InvalidArgument("one input expected")
	}
	// Output follows the input extents.
	dim, _ := info.Dimension(0)
	typ, _ := h.m.out.Type(0)
	out, err := tensor.NewInfo(tensor.Entry{Type: typ, Dim: dim})
	if err != nil {
		return err
	}
	h.m.in, h.m.out = info.Clone(), out
	return nil
}

func (h *fakeHandle) Run(ctx context.Context, in, out *tensor.Data) error {
	defer h.enter()()
	n := h.m.runs.Add(1)
	if h.m.panicRun {
		panic("kernel exploded")
	}
	if n <= h.m.slowRuns {
		if h.m.ignoreCtx {
			time.Sleep(h.m.delay)
		} else {
			select {
			case <-time.After(h.m.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if h.m.runErr != nil {
		return h.m.runErr
	}
	src, _ := in.Tensor(0)
	dst, _ := out.Tensor(0)
	for i := range dst {
		dst[i] = src[0] + 1
	}
	return nil
}

func (h *fakeHandle) Close() error {
	h.m.closed.Store(true)
	return nil
}
