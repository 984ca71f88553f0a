package single

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/singleshot/internal/backend/onnx"
	"github.com/born-ml/singleshot/internal/errdefs"
	"github.com/born-ml/singleshot/internal/tensor"
	"github.com/born-ml/singleshot/internal/testutil"
)

func openFake(t *testing.T, m *fakeModel, opt Options) *Shot {
	t.Helper()
	name, path := m.register(t)
	opt.Backend = name
	if opt.Logger.GetSink() == nil {
		opt.Logger = testutil.NewLogger(t)
	}
	s, err := Open(path, opt)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newInfo(t *testing.T, typ tensor.Type, dims ...int) *tensor.Info {
	t.Helper()
	info := &tensor.Info{}
	require.NoError(t, info.Add(typ, dims...))
	return info
}

func allocInput(t *testing.T, s *Shot) *tensor.Data {
	t.Helper()
	info, err := s.InputInfo()
	require.NoError(t, err)
	in, err := info.Allocate()
	require.NoError(t, err)
	return in
}

func assertKind(t *testing.T, want, err error) {
	t.Helper()
	assert.True(t, errors.Is(err, want), "want %v, got %v", want, err)
}

func TestStaticIntrospection(t *testing.T) {
	s := openFake(t, imageModel(t), Options{})

	in, err := s.InputInfo()
	require.NoError(t, err)
	out, err := s.OutputInfo()
	require.NoError(t, err)

	assert.Equal(t, 1, in.Count())
	assert.Equal(t, 1, out.Count())
	assert.Equal(t, "uint8[3:224:224:1]", in.String())
	assert.Equal(t, "uint8[1001:1:1:1]", out.String())
	assert.Equal(t, DefaultOptions().Timeout, s.Timeout())
	assert.NotEmpty(t, s.Backend())
}

func TestInfoAccessorsReturnCopies(t *testing.T) {
	s := openFake(t, imageModel(t), Options{})

	in, err := s.InputInfo()
	require.NoError(t, err)
	require.NoError(t, in.Add(tensor.Float32, 1))

	again, err := s.InputInfo()
	require.NoError(t, err)
	assert.Equal(t, 1, again.Count())
}

func TestRepeatedInvoke(t *testing.T) {
	s := openFake(t, imageModel(t), Options{})
	require.NoError(t, s.SetTimeout(10*time.Second))

	in := allocInput(t, s)
	var prev *tensor.Data
	for i := 0; i < 60; i++ {
		out, err := s.Invoke(in)
		require.NoError(t, err)
		require.Equal(t, 1, out.Count())

		buf, err := out.Tensor(0)
		require.NoError(t, err)
		require.Equal(t, 1001, cap(buf))
		require.Equal(t, byte(1), buf[0])
		require.NotSame(t, prev, out)
		prev = out

		time.Sleep(time.Millisecond)
	}
}

func TestInvokeCopiesInput(t *testing.T) {
	s := openFake(t, imageModel(t), Options{})
	in := allocInput(t, s)

	buf, err := in.Tensor(0)
	require.NoError(t, err)
	buf[0] = 41

	out, err := s.Invoke(in)
	require.NoError(t, err)
	got, _ := out.Tensor(0)
	assert.Equal(t, byte(42), got[1000])
	assert.Equal(t, byte(41), buf[0])
}

func writeOnnx(t *testing.T, m *onnx.ModelProto) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(path, onnx.Marshal(m), 0o600))
	return path
}

func TestMetadata(t *testing.T) {
	s, err := Open(writeOnnx(t, onnx.ReluModel(false)), Options{Logger: testutil.NewLogger(t)})
	require.NoError(t, err)
	defer s.Close()

	meta, err := s.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "relu", meta["sample"])
	assert.Equal(t, "nnshot", meta["producer_name"])
	_, ok := meta["domain"]
	assert.False(t, ok)

	meta["sample"] = "changed"
	again, _ := s.Metadata()
	assert.Equal(t, "relu", again["sample"])

	fake := openFake(t, imageModel(t), Options{})
	meta, err = fake.Metadata()
	require.NoError(t, err)
	assert.Empty(t, meta)
}

func TestDynamicReshape(t *testing.T) {
	s, err := Open(writeOnnx(t, onnx.AddModel(false)), Options{Logger: testutil.NewLogger(t)})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, onnx.Name, s.Backend())

	in, _ := s.InputInfo()
	out, _ := s.OutputInfo()
	assert.Equal(t, tensor.Dimension{1, 1, 1, 1}, in.Entries()[0].Dim)
	assert.Equal(t, tensor.Dimension{1, 1, 1, 1}, out.Entries()[0].Dim)

	require.NoError(t, s.SetInputInfo(newInfo(t, tensor.Float32, 10)))

	in, _ = s.InputInfo()
	out, _ = s.OutputInfo()
	want := newInfo(t, tensor.Float32, 10, 1, 1, 1)
	assert.True(t, want.Equal(in), "input %s", in)
	assert.True(t, want.Equal(out), "output %s", out)

	data, err := in.Allocate()
	require.NoError(t, err)
	result, err := s.Invoke(data)
	require.NoError(t, err)
	require.NoError(t, result.Matches(out))

	buf, _ := result.Tensor(0)
	require.Len(t, buf, 40)
	// float32(2) is 0x40000000.
	for i := 0; i < 10; i++ {
		assert.Equal(t, []byte{0, 0, 0, 0x40}, buf[4*i:4*i+4])
	}
}

func TestSetInputInfoSameIsNoop(t *testing.T) {
	m := imageModel(t)
	s := openFake(t, m, Options{})

	before, _ := s.OutputInfo()
	in, _ := s.InputInfo()
	require.NoError(t, s.SetInputInfo(in))

	after, _ := s.OutputInfo()
	if diff := cmp.Diff(before.Entries(), after.Entries()); diff != "" {
		t.Errorf("output schema changed (-before +after):\n%s", diff)
	}
}

func TestSetInputInfoRejects(t *testing.T) {
	s := openFake(t, imageModel(t), Options{})

	assertKind(t, errdefs.ErrInvalidArgument, s.SetInputInfo(nil))
	assertKind(t, errdefs.ErrInvalidArgument, s.SetInputInfo(&tensor.Info{}))
	assertKind(t, errdefs.ErrNotSupported, s.SetInputInfo(newInfo(t, tensor.Uint8, 3, 100, 100)))

	in, _ := s.InputInfo()
	assert.Equal(t, "uint8[3:224:224:1]", in.String())
}

func TestSetInputInfoBackendRejectionKeepsState(t *testing.T) {
	m := imageModel(t)
	m.reshapable = true
	s := openFake(t, m, Options{})

	two := newInfo(t, tensor.Uint8, 4)
	require.NoError(t, two.Add(tensor.Uint8, 4))
	assertKind(t, errdefs.ErrInvalidArgument, s.SetInputInfo(two))

	in, _ := s.InputInfo()
	out, _ := s.OutputInfo()
	assert.Equal(t, "uint8[3:224:224:1]", in.String())
	assert.Equal(t, "uint8[1001:1:1:1]", out.String())

	require.NoError(t, s.SetInputInfo(newInfo(t, tensor.Uint8, 7)))
	out, _ = s.OutputInfo()
	assert.Equal(t, "uint8[7:1:1:1]", out.String())

	// Old-shaped data is rejected after the reshape.
	old := newInfo(t, tensor.Uint8, 3, 224, 224, 1)
	data, err := old.Allocate()
	require.NoError(t, err)
	_, err = s.Invoke(data)
	assertKind(t, errdefs.ErrInvalidArgument, err)
}

func TestInvokeTimeout(t *testing.T) {
	m := imageModel(t)
	m.slowRuns, m.delay, m.ignoreCtx = 1, 100*time.Millisecond, true
	log, rec := testutil.NewRecordingLogger(t)
	s := openFake(t, m, Options{Logger: log})

	require.NoError(t, s.SetTimeout(5*time.Millisecond))
	in := allocInput(t, s)

	start := time.Now()
	out, err := s.Invoke(in)
	assertKind(t, errdefs.ErrTimeout, err)
	assert.Nil(t, out)
	assert.Less(t, time.Since(start), m.delay)

	require.NoError(t, s.SetTimeout(10*time.Second))
	out, err = s.Invoke(in)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count())

	assert.EqualValues(t, 1, s.w.dropped.Load())
	assert.True(t, rec.Contains("dropping late result"))
	assert.False(t, m.overlapped.Load())
}

func TestInvokeTimeoutCooperative(t *testing.T) {
	m := imageModel(t)
	m.slowRuns, m.delay = 1, time.Minute
	s := openFake(t, m, Options{Timeout: 10 * time.Millisecond})

	_, err := s.Invoke(allocInput(t, s))
	assertKind(t, errdefs.ErrTimeout, err)

	_, err = s.Invoke(allocInput(t, s))
	require.NoError(t, err)
}

func TestQueuedInvokeHonorsItsDeadline(t *testing.T) {
	m := imageModel(t)
	m.slowRuns, m.delay, m.ignoreCtx = 1, 300*time.Millisecond, true
	s := openFake(t, m, Options{Timeout: 5 * time.Millisecond})
	in := allocInput(t, s)

	_, err := s.Invoke(in)
	assertKind(t, errdefs.ErrTimeout, err)

	// The stale run still holds the worker.
	_, err = s.Invoke(in)
	assertKind(t, errdefs.ErrTimeout, err)
	assert.EqualValues(t, 1, m.runs.Load())

	require.NoError(t, s.SetTimeout(10*time.Second))
	_, err = s.Invoke(in)
	require.NoError(t, err)
}

func TestSetTimeoutRejects(t *testing.T) {
	s := openFake(t, imageModel(t), Options{Timeout: time.Second})

	assertKind(t, errdefs.ErrInvalidArgument, s.SetTimeout(0))
	assertKind(t, errdefs.ErrInvalidArgument, s.SetTimeout(-time.Millisecond))
	assert.Equal(t, time.Second, s.Timeout())
}

func TestTimeoutFromEnvironment(t *testing.T) {
	t.Setenv("NNSHOT_TIMEOUT", "250ms")
	s := openFake(t, imageModel(t), Options{})
	assert.Equal(t, 250*time.Millisecond, s.Timeout())

	s = openFake(t, imageModel(t), Options{Timeout: time.Second})
	assert.Equal(t, time.Second, s.Timeout())
}

func TestOpenRejects(t *testing.T) {
	m := imageModel(t)
	name, path := m.register(t)

	_, err := Open("")
	assertKind(t, errdefs.ErrInvalidArgument, err)
	_, err = Open(filepath.Join(t.TempDir(), "missing.bin"), Options{Backend: name})
	assertKind(t, errdefs.ErrInvalidArgument, err)
	_, err = Open(t.TempDir(), Options{Backend: name})
	assertKind(t, errdefs.ErrInvalidArgument, err)

	_, err = Open(path, Options{Backend: "nope"})
	assertKind(t, errdefs.ErrNotSupported, err)
	_, err = Open(path)
	assertKind(t, errdefs.ErrNotSupported, err)

	tests := []struct {
		name string
		opt  Options
	}{
		{"input type", Options{Input: newInfo(t, tensor.Uint16, 3, 224, 224, 1)}},
		{"input rank", Options{Input: newInfo(t, tensor.Uint8, 2, 224, 224)}},
		{"input count", Options{Input: func() *tensor.Info {
			info := newInfo(t, tensor.Uint8, 3, 224, 224, 1)
			require.NoError(t, info.Add(tensor.Uint8, 1))
			return info
		}()}},
		{"output type", Options{Output: newInfo(t, tensor.Int16, 1001)}},
		{"output dim", Options{Output: newInfo(t, tensor.Uint8, 1001, 2, 1, 1)}},
		{"empty input", Options{Input: &tensor.Info{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.closed.Store(false)
			opt := tt.opt
			opt.Backend = name
			_, err := Open(path, opt)
			assertKind(t, errdefs.ErrInvalidArgument, err)
		})
	}
}

func TestOpenClosesHandleOnFailure(t *testing.T) {
	m := imageModel(t)
	name, path := m.register(t)

	_, err := Open(path, Options{Backend: name, Output: newInfo(t, tensor.Int16, 1001)})
	assertKind(t, errdefs.ErrInvalidArgument, err)
	assert.True(t, m.closed.Load())
}

func TestOpenAcceptsMatchingHints(t *testing.T) {
	s := openFake(t, imageModel(t), Options{
		Input:  newInfo(t, tensor.Uint8, 3, 224, 224),
		Output: newInfo(t, tensor.Uint8, 1001),
	})
	in, _ := s.InputInfo()
	assert.Equal(t, "uint8[3:224:224:1]", in.String())
}

func TestOpenReshapesWithInputHint(t *testing.T) {
	s, err := Open(writeOnnx(t, onnx.AddModel(false)), Options{Input: newInfo(t, tensor.Float32, 5)})
	require.NoError(t, err)
	defer s.Close()

	out, _ := s.OutputInfo()
	assert.Equal(t, "output:float32[5:1:1:1]", out.String())

	_, err = Open(writeOnnx(t, onnx.AddModel(true)), Options{Input: newInfo(t, tensor.Float32, 5)})
	assertKind(t, errdefs.ErrInvalidArgument, err)
}

func TestOpenBackendFailure(t *testing.T) {
	m := imageModel(t)
	m.openErr = errors.New("corrupt model")
	name, path := m.register(t)

	_, err := Open(path, Options{Backend: name})
	assertKind(t, errdefs.ErrBackend, err)
	assert.Contains(t, err.Error(), "corrupt model")

	bad := filepath.Join(t.TempDir(), "bad.onnx")
	require.NoError(t, os.WriteFile(bad, []byte{0xff, 0xff}, 0o600))
	_, err = Open(bad)
	assertKind(t, errdefs.ErrBackend, err)
}

func TestInvokeRejects(t *testing.T) {
	m := imageModel(t)
	s := openFake(t, m, Options{})

	_, err := s.Invoke(nil)
	assertKind(t, errdefs.ErrInvalidArgument, err)

	small, err := newInfo(t, tensor.Uint8, 100).Allocate()
	require.NoError(t, err)
	_, err = s.Invoke(small)
	assertKind(t, errdefs.ErrInvalidArgument, err)
	assert.Zero(t, m.runs.Load())
}

func TestInvokeBackendError(t *testing.T) {
	m := imageModel(t)
	m.runErr = errors.New("tensor arena exhausted")
	s := openFake(t, m, Options{})

	_, err := s.Invoke(allocInput(t, s))
	assertKind(t, errdefs.ErrBackend, err)
	assert.Equal(t, "tensor arena exhausted", err.Error())
}

func TestInvokeBackendPanic(t *testing.T) {
	m := imageModel(t)
	m.panicRun = true
	s := openFake(t, m, Options{})

	_, err := s.Invoke(allocInput(t, s))
	assertKind(t, errdefs.ErrBackend, err)
	assert.Contains(t, err.Error(), "kernel exploded")

	// The worker survives.
	m.panicRun = false
	_, err = s.Invoke(allocInput(t, s))
	assert.NoError(t, err)
}

func TestPostClose(t *testing.T) {
	m := imageModel(t)
	name, path := m.register(t)
	s, err := Open(path, Options{Backend: name})
	require.NoError(t, err)
	in := allocInput(t, s)

	require.NoError(t, s.Close())
	assert.True(t, m.closed.Load())

	_, err = s.Invoke(in)
	assertKind(t, errdefs.ErrInvalidState, err)
	_, err = s.InputInfo()
	assertKind(t, errdefs.ErrInvalidState, err)
	_, err = s.OutputInfo()
	assertKind(t, errdefs.ErrInvalidState, err)
	_, err = s.Metadata()
	assertKind(t, errdefs.ErrInvalidState, err)
	assertKind(t, errdefs.ErrInvalidState, s.SetInputInfo(in.Info()))
	assertKind(t, errdefs.ErrInvalidState, s.SetTimeout(time.Second))
	assertKind(t, errdefs.ErrInvalidState, s.SetTimeout(0))

	assert.NoError(t, s.Close())
}

func TestCloseWaitsForStaleRun(t *testing.T) {
	m := imageModel(t)
	m.slowRuns, m.delay, m.ignoreCtx = 1, 50*time.Millisecond, true
	s := openFake(t, m, Options{Timeout: time.Millisecond})

	_, err := s.Invoke(allocInput(t, s))
	assertKind(t, errdefs.ErrTimeout, err)

	require.NoError(t, s.Close())
	assert.Zero(t, m.active.Load())
	assert.True(t, m.closed.Load())
}

func TestConcurrentUse(t *testing.T) {
	m := imageModel(t)
	m.reshapable = true
	s := openFake(t, m, Options{})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				switch (g + i) % 4 {
				case 0:
					in, err := s.InputInfo()
					if err != nil {
						t.Error(err)
						return
					}
					data, err := in.Allocate()
					if err != nil {
						t.Error(err)
						return
					}
					// The schema may change before the call; both outcomes are valid.
					if _, err := s.Invoke(data); err != nil && !errors.Is(err, errdefs.ErrInvalidArgument) {
						t.Error(err)
					}
				case 1:
					if err := s.SetInputInfo(newInfo(t, tensor.Uint8, 1+g)); err != nil {
						t.Error(err)
					}
				case 2:
					if err := s.SetTimeout(time.Duration(1+i) * time.Second); err != nil {
						t.Error(err)
					}
				default:
					if _, err := s.OutputInfo(); err != nil {
						t.Error(err)
					}
				}
			}
		}(g)
	}
	wg.Wait()
	assert.False(t, m.overlapped.Load())
}
