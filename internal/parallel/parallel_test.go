package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestFor(t *testing.T) {
	cfg := NewConfig(4)

	var counter int64
	n := 100000
	seen := make([]int32, n)

	err := For(context.Background(), n, func(start, end int) error {
		for i := start; i < end; i++ {
			atomic.AddInt64(&counter, 1)
			atomic.AddInt32(&seen[i], 1)
		}
		return nil
	}, cfg)
	if err != nil {
		t.Fatalf("For: %v", err)
	}

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
	for i, v := range seen {
		if v != 1 {
			t.Fatalf("index %d visited %d times", i, v)
		}
	}
}

func TestFor_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	calls := 0
	err := For(context.Background(), 100, func(start, end int) error {
		calls++
		if start != 0 || end != 100 {
			t.Errorf("Expected [0, 100), got [%d, %d)", start, end)
		}
		return nil
	}, cfg)
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestFor_SmallChunk(t *testing.T) {
	// Small work units fall back to a single call.
	cfg := NewConfig(8)

	var calls int64
	err := For(context.Background(), cfg.MinChunkSize, func(_, _ int) error {
		atomic.AddInt64(&calls, 1)
		return nil
	}, cfg)
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestFor_Error(t *testing.T) {
	boom := errors.New("boom")
	err := For(context.Background(), 100000, func(start, _ int) error {
		if start == 0 {
			return boom
		}
		return nil
	}, NewConfig(4))
	if !errors.Is(err, boom) {
		t.Errorf("Expected boom, got %v", err)
	}
}

func TestFor_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := For(ctx, 10, func(_, _ int) error {
		called = true
		return nil
	}, Config{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("f called after cancellation")
	}
}

func TestFor_Empty(t *testing.T) {
	err := For(context.Background(), 0, func(_, _ int) error {
		t.Error("f called for empty range")
		return nil
	}, DefaultConfig())
	if err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
}

func BenchmarkFor(b *testing.B) {
	ctx := context.Background()
	data := make([]float32, 1<<20)

	for _, threads := range []int{1, 4} {
		cfg := NewConfig(threads)
		b.Run(map[int]string{1: "sequential", 4: "parallel"}[threads], func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_ = For(ctx, len(data), func(start, end int) error {
					for j := start; j < end; j++ {
						data[j] = data[j]*0.5 + 1
					}
					return nil
				}, cfg)
			}
		})
	}
}
