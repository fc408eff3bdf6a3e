package scripting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := NewRuntime(context.Background())
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestRuntime_Close(t *testing.T) {
	rt := newTestRuntime(t)
	if !rt.IsRunning() {
		t.Fatal("runtime should be running after creation")
	}
	if err := rt.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if rt.IsRunning() {
		t.Error("runtime should not be running after close")
	}
	if err := rt.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	select {
	case <-rt.Done():
	default:
		t.Error("Done should be closed after Close")
	}
	if rt.RunOnLoop(func(*goja.Runtime) {}) {
		t.Error("RunOnLoop should refuse work after Close")
	}
	if err := rt.RunOnLoopSync(func(*goja.Runtime) error { return nil }); !errors.Is(err, ErrNotRunning) {
		t.Errorf("RunOnLoopSync after Close: got %v", err)
	}
}

func TestRuntime_ContextCancelCloses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rt, err := NewRuntime(ctx)
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	cancel()
	select {
	case <-rt.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not close after context cancellation")
	}
}

func TestRuntime_GlobalsRoundTrip(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.SetGlobal("foo", 73); err != nil {
		t.Fatalf("SetGlobal: %v", err)
	}
	err := rt.RunOnLoopSync(func(vm *goja.Runtime) error {
		_, err := vm.RunString("foo = foo + 1")
		return err
	})
	if err != nil {
		t.Fatalf("RunOnLoopSync: %v", err)
	}
	v, err := rt.GetGlobal("foo")
	if err != nil {
		t.Fatalf("GetGlobal: %v", err)
	}
	if v != int64(74) {
		t.Errorf("foo = %#v, want 74", v)
	}
	v, err = rt.GetGlobal("missing")
	if err != nil || v != nil {
		t.Errorf("GetGlobal(missing) = %v, %v", v, err)
	}
}

func TestRuntime_OnLoop(t *testing.T) {
	rt := newTestRuntime(t)
	if rt.OnLoop() {
		t.Fatal("test goroutine reported as loop goroutine")
	}
	var onLoop bool
	err := rt.RunOnLoopSync(func(*goja.Runtime) error {
		onLoop = rt.OnLoop()
		// nested access must not deadlock
		return rt.SetGlobal("nested", true)
	})
	if err != nil {
		t.Fatalf("RunOnLoopSync: %v", err)
	}
	if !onLoop {
		t.Error("OnLoop should be true on the loop goroutine")
	}
	if v, _ := rt.GetGlobal("nested"); v != true {
		t.Errorf("nested = %v", v)
	}
}

func TestRuntime_RunOnLoopSyncTimeout(t *testing.T) {
	rt := newTestRuntime(t)
	rt.SetTimeout(50 * time.Millisecond)
	if rt.GetTimeout() != 50*time.Millisecond {
		t.Fatalf("GetTimeout = %v", rt.GetTimeout())
	}
	release := make(chan struct{})
	defer close(release)
	err := rt.RunOnLoopSync(func(*goja.Runtime) error {
		<-release
		return nil
	})
	if err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestRuntime_RunOnLoopWaitHasNoTimeout(t *testing.T) {
	rt := newTestRuntime(t)
	rt.SetTimeout(10 * time.Millisecond)
	err := rt.RunOnLoopWait(func(*goja.Runtime) error {
		time.Sleep(50 * time.Millisecond)
		return errors.New("done")
	})
	if err == nil || err.Error() != "done" {
		t.Fatalf("RunOnLoopWait = %v", err)
	}
}

func TestRuntime_NextScriptIDIsUnique(t *testing.T) {
	rt := newTestRuntime(t)
	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		wg   sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				id := rt.NextScriptID()
				mu.Lock()
				if seen[id] {
					t.Errorf("duplicate script id %q", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != 400 {
		t.Errorf("got %d ids, want 400", len(seen))
	}

	other := newTestRuntime(t)
	if id := other.NextScriptID(); id != "1" {
		t.Errorf("fresh runtime first id = %q, want 1", id)
	}
}
