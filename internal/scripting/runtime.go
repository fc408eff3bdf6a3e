package scripting

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/js-debug-bridge/internal/goroutineid"
)

// ErrNotRunning is returned when work is submitted to a runtime whose event
// loop has not started or has already been closed.
var ErrNotRunning = errors.New("event loop not running")

// Runtime is a host context: one goja runtime owned by one event loop
// goroutine. Every access to the goja.Runtime happens on that goroutine, which
// is also the execution goroutine of any debug session bound to the runtime.
//
// Runtimes are fully isolated from each other, so independent runtimes execute
// scripts in parallel.
//
// Usage:
//
//	rt, err := NewRuntime(ctx)
//	if err != nil { ... }
//	defer rt.Close()
//
//	_ = rt.SetGlobal("foo", 42)
//	err = rt.RunOnLoopSync(func(vm *goja.Runtime) error {
//	    _, err := vm.RunString("foo++")
//	    return err
//	})
type Runtime struct {
	loop     *eventloop.EventLoop
	registry *require.Registry

	// vm is only touched on the loop goroutine.
	vm *goja.Runtime

	// loopGoroutineID is captured once the loop is running.
	loopGoroutineID atomic.Int64

	// scriptSeq backs NextScriptID.
	scriptSeq atomic.Uint64

	mu      sync.RWMutex
	timeout time.Duration
	started bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
}

// DefaultSyncTimeout is the maximum duration RunOnLoopSync waits for a job.
const DefaultSyncTimeout = 5 * time.Second

// NewRuntime starts a new Runtime. The event loop runs in its own goroutine
// until Close is called or ctx is cancelled.
func NewRuntime(ctx context.Context) (*Runtime, error) {
	registry := require.NewRegistry()
	loop := eventloop.NewEventLoop(
		eventloop.WithRegistry(registry),
		eventloop.EnableConsole(true),
	)

	lifecycle, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		loop:     loop,
		registry: registry,
		timeout:  DefaultSyncTimeout,
		ctx:      lifecycle,
		cancel:   cancel,
	}

	loop.Start()
	rt.mu.Lock()
	rt.started = true
	rt.mu.Unlock()

	ready := make(chan struct{})
	if !loop.RunOnLoop(func(vm *goja.Runtime) {
		rt.vm = vm
		rt.loopGoroutineID.Store(goroutineid.Get())
		close(ready)
	}) {
		cancel()
		return nil, fmt.Errorf("failed to initialize runtime: %w", ErrNotRunning)
	}
	<-ready

	if ctx.Done() != nil {
		context.AfterFunc(ctx, func() {
			_ = rt.Close()
		})
	}

	return rt, nil
}

// Close stops the event loop. It is safe to call more than once.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.stopped {
		rt.mu.Unlock()
		return nil
	}
	rt.stopped = true
	rt.mu.Unlock()

	rt.cancel()
	rt.loop.Stop()
	return nil
}

// Done is closed once the runtime has been closed.
func (rt *Runtime) Done() <-chan struct{} {
	return rt.ctx.Done()
}

// IsRunning reports whether the loop is started and not yet closed.
func (rt *Runtime) IsRunning() bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.started && !rt.stopped
}

// SetTimeout sets the RunOnLoopSync timeout. Zero disables it.
func (rt *Runtime) SetTimeout(timeout time.Duration) {
	rt.mu.Lock()
	rt.timeout = timeout
	rt.mu.Unlock()
}

// GetTimeout returns the RunOnLoopSync timeout.
func (rt *Runtime) GetTimeout() time.Duration {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.timeout
}

// OnLoop reports whether the caller is running on the loop goroutine.
func (rt *Runtime) OnLoop() bool {
	id := rt.loopGoroutineID.Load()
	return id > 0 && goroutineid.Get() == id
}

// NextScriptID allocates the id of a newly parsed script. Ids are unique for
// the lifetime of the runtime and shared by every debug session bound to it.
func (rt *Runtime) NextScriptID() string {
	return strconv.FormatUint(rt.scriptSeq.Add(1), 10)
}

// RunOnLoop schedules fn on the loop goroutine without waiting for it.
func (rt *Runtime) RunOnLoop(fn func(*goja.Runtime)) bool {
	if !rt.IsRunning() {
		return false
	}
	return rt.loop.RunOnLoop(fn)
}

// RunOnLoopWait schedules fn and waits, without any timeout, for it to return
// or for the runtime to close. It is meant for jobs with an unbounded
// duration, such as a script executing under a debugger.
func (rt *Runtime) RunOnLoopWait(fn func(*goja.Runtime) error) error {
	errCh := make(chan error, 1)
	if !rt.RunOnLoop(func(vm *goja.Runtime) { errCh <- fn(vm) }) {
		return ErrNotRunning
	}
	select {
	case err := <-errCh:
		return err
	case <-rt.Done():
		return errors.New("runtime stopped before completion")
	}
}

// RunOnLoopSync schedules fn and waits for it, giving up after the configured
// timeout.
func (rt *Runtime) RunOnLoopSync(fn func(*goja.Runtime) error) error {
	timeout := rt.GetTimeout()
	errCh := make(chan error, 1)
	if !rt.RunOnLoop(func(vm *goja.Runtime) { errCh <- fn(vm) }) {
		return ErrNotRunning
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case err := <-errCh:
		return err
	case <-rt.Done():
		return errors.New("runtime stopped before completion")
	case <-expired:
		return fmt.Errorf("operation timed out after %v", timeout)
	}
}

// TryRunOnLoopSync runs fn inline when called from the loop goroutine (for
// example from a native callback or a notification handler), and otherwise
// behaves like RunOnLoopSync.
func (rt *Runtime) TryRunOnLoopSync(fn func(*goja.Runtime) error) error {
	if !rt.IsRunning() {
		return ErrNotRunning
	}
	if rt.OnLoop() {
		return fn(rt.vm)
	}
	return rt.RunOnLoopSync(fn)
}

// SetGlobal sets a host parameter visible to scripts as a global variable.
func (rt *Runtime) SetGlobal(name string, value any) error {
	return rt.TryRunOnLoopSync(func(vm *goja.Runtime) error {
		return vm.Set(name, value)
	})
}

// GetGlobal reads a global variable back into Go. Missing, undefined and null
// values are reported as nil.
func (rt *Runtime) GetGlobal(name string) (any, error) {
	var result any
	err := rt.TryRunOnLoopSync(func(vm *goja.Runtime) error {
		val := vm.Get(name)
		if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
			return nil
		}
		result = val.Export()
		return nil
	})
	return result, err
}
