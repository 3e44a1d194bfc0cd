package asyncmap

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition never became true")
}

func TestConsumeAfterKeysReadyComputesOnce(t *testing.T) {
	var calls int32
	pool := NewPool(4)
	m := New(func(ctx *ReadContext) {
		atomic.AddInt32(&calls, 1)
		ctx.Set(ctx.Key + "-value")
	}, pool)

	var got1, got2 map[string]any
	var wg sync.WaitGroup
	wg.Add(2)
	m.ConsumeAfterKeysReady("", []string{"a"}, func(values map[string]any) {
		got1 = values
		wg.Done()
	}, func(msg string, fatal bool) { t.Errorf("unexpected failure: %s", msg); wg.Done() })
	m.ConsumeAfterKeysReady("", []string{"a"}, func(values map[string]any) {
		got2 = values
		wg.Done()
	}, func(msg string, fatal bool) { t.Errorf("unexpected failure: %s", msg); wg.Done() })
	wg.Wait()
	pool.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly one computation, got %d", calls)
	}
	if got1["a"] != "a-value" || got2["a"] != "a-value" {
		t.Fatalf("expected both requesters to observe the shared value")
	}
}

func TestConsumeAfterKeysReadyWaitsForAllKeys(t *testing.T) {
	pool := NewPool(4)
	m := New(func(ctx *ReadContext) {
		ctx.Set(ctx.Key)
	}, pool)

	var got map[string]any
	var wg sync.WaitGroup
	wg.Add(1)
	m.ConsumeAfterKeysReady("", []string{"x", "y", "z"}, func(values map[string]any) {
		got = values
		wg.Done()
	}, func(msg string, fatal bool) { t.Errorf("unexpected failure: %s", msg); wg.Done() })
	wg.Wait()
	pool.Wait()

	if len(got) != 3 || got["x"] != "x" || got["y"] != "y" || got["z"] != "z" {
		t.Fatalf("expected all three keys resolved, got %v", got)
	}
}

func TestFailPropagatesToWaiters(t *testing.T) {
	pool := NewPool(4)
	m := New(func(ctx *ReadContext) {
		ctx.Fail("boom", false)
	}, pool)

	var msg string
	var fatal bool
	var wg sync.WaitGroup
	wg.Add(1)
	m.ConsumeAfterKeysReady("", []string{"k"}, func(values map[string]any) {
		t.Fatalf("expected failure, got values %v", values)
	}, func(m string, f bool) {
		msg, fatal = m, f
		wg.Done()
	})
	wg.Wait()
	pool.Wait()

	if msg != "boom" || fatal {
		t.Fatalf("expected non-fatal 'boom', got %q fatal=%v", msg, fatal)
	}
}

func TestSubcallerDetectsCycle(t *testing.T) {
	pool := NewPool(4)
	var m *Map
	m = New(func(ctx *ReadContext) {
		switch ctx.Key {
		case "a":
			ctx.Subcaller([]string{"b"}, func(values map[string]any) {
				ctx.Set("a-done")
			}, func(msg string, fatal bool) {
				ctx.Fail(msg, fatal)
			})
		case "b":
			ctx.Subcaller([]string{"a"}, func(values map[string]any) {
				ctx.Set("b-done")
			}, func(msg string, fatal bool) {
				ctx.Fail(msg, fatal)
			})
		}
	}, pool)

	var sawFatal int32
	var wg sync.WaitGroup
	wg.Add(1)
	m.ConsumeAfterKeysReady("", []string{"a"}, func(values map[string]any) {
		t.Fatalf("expected a cycle failure, got values %v", values)
	}, func(msg string, fatal bool) {
		if fatal {
			atomic.AddInt32(&sawFatal, 1)
		}
		wg.Done()
	})
	wg.Wait()
	pool.Wait()

	if atomic.LoadInt32(&sawFatal) == 0 {
		t.Fatalf("expected the cycle to be reported as a fatal error")
	}
}

func TestCriticalSectionRunsOnce(t *testing.T) {
	var calls int32
	pool := NewPool(4)
	cs := NewCriticalSection(pool, func(ctx *ReadContext) {
		atomic.AddInt32(&calls, 1)
		ctx.Set("done")
	})

	var wg sync.WaitGroup
	wg.Add(2)
	cs.Enter("repo", func(value any) { wg.Done() }, func(msg string, fatal bool) { t.Errorf("unexpected failure: %s", msg); wg.Done() })
	cs.Enter("repo", func(value any) { wg.Done() }, func(msg string, fatal bool) { t.Errorf("unexpected failure: %s", msg); wg.Done() })
	wg.Wait()
	pool.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected the critical section body to run exactly once, got %d", calls)
	}
}
