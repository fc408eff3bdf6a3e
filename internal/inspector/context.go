// Package inspector bridges a Chrome DevTools style debugger protocol onto
// scripts run by a scripting.Runtime.
//
// A DebugContext runs one debug session at a time. Debug blocks the calling
// goroutine while the script executes on the runtime's event loop; protocol
// messages are delivered with SendProtocolMessage from any other goroutine,
// or from inside the notification handler, and are executed on the loop
// goroutine at the next breakable statement or while the script is paused.
package inspector

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/joeycumines/js-debug-bridge/internal/scripting"
)

// NotificationHandler receives every event, as an encoded JSON message,
// on the runtime's loop goroutine. It may call SendProtocolMessage.
type NotificationHandler func(message string)

// Option configures a DebugContext.
type Option func(*DebugContext)

// WithLogger sets the logger; the default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(c *DebugContext) {
		if logger != nil {
			c.log = logger
		}
	}
}

// WithPauseOnExceptions sets the initial pause-on-exceptions state of every
// session.
func WithPauseOnExceptions(state PauseOnExceptions) Option {
	return func(c *DebugContext) {
		c.exceptions = state
	}
}

// DebugContext debugs scripts on one runtime.
type DebugContext struct {
	rt         *scripting.Runtime
	log        *slog.Logger
	exceptions PauseOnExceptions

	ids      atomic.Uint64
	sessions atomic.Uint64

	mu      sync.Mutex
	current *session
	last    *session
}

// NewDebugContext creates a context bound to rt.
func NewDebugContext(rt *scripting.Runtime, opts ...Option) *DebugContext {
	c := &DebugContext{
		rt:         rt,
		log:        slog.New(slog.DiscardHandler),
		exceptions: PauseOnExceptionsNone,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Runtime returns the runtime scripts run on.
func (c *DebugContext) Runtime() *scripting.Runtime { return c.rt }

// GetNextMessageID reserves a protocol message id. Ids start at 1 and Debug
// restarts the sequence, consuming one id for its internal Debugger.enable
// and one for its internal Debugger.disable.
func (c *DebugContext) GetNextMessageID() uint64 {
	return c.ids.Add(1)
}

// Debug runs source under the debugger. See DebugNamed.
func (c *DebugContext) Debug(source string, handler NotificationHandler) (any, error) {
	return c.DebugNamed(source, "", handler)
}

// DebugNamed runs source as resourceName, blocking until the script
// completes, fails, or is terminated. Execution pauses before the first
// statement with reason "DebuggerStart:{uuid}".
//
// The result is the exported completion value of the script. A parse failure
// returns *SyntaxError, an uncaught exception *ScriptError, and a
// TerminateExecution ErrTerminated.
func (c *DebugContext) DebugNamed(source, resourceName string, handler NotificationHandler) (any, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if c.rt.OnLoop() {
		return nil, fmt.Errorf("debug: called from the runtime's loop goroutine: %w", ErrInvalidState)
	}
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("debug: session already active: %w", ErrInvalidState)
	}
	// ids restart before the session is visible to controllers
	c.ids.Store(0)
	c.GetNextMessageID()
	s := newSession(c, handler, c.sessions.Add(1))
	c.current = s
	c.last = s
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()
	}()

	var result any
	err := c.rt.RunOnLoopWait(func(vm *goja.Runtime) (err error) {
		s.enabled = true
		defer func() {
			s.enabled = false
			if r := recover(); r != nil {
				result, err = nil, fmt.Errorf("debug session panicked: %v", r)
			}
		}()
		result, err = s.run(vm, source, resourceName)
		return err
	})
	c.GetNextMessageID()
	s.finish(err)

	var serr *SyntaxError
	var scriptErr *ScriptError
	switch {
	case err == nil:
		s.log.Debug("script finished")
	case errors.Is(err, ErrTerminated):
		s.log.Info("script terminated")
	case errors.As(err, &serr), errors.As(err, &scriptErr):
		s.log.Info("script failed", "error", err)
	default:
		s.log.Error("debug session failed", "error", err)
	}
	return result, err
}

func (c *DebugContext) active() (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, fmt.Errorf("no active debug session: %w", ErrInvalidState)
	}
	return c.current, nil
}

// SendProtocolMessage executes one protocol command and returns its encoded
// response. Commands are accepted from the first pause until the script
// ends. A command that fails returns the encoded error response together
// with a *ProtocolError.
func (c *DebugContext) SendProtocolMessage(message string) (string, error) {
	if message == "" {
		return "", ErrNilMessage
	}
	s, err := c.active()
	if err != nil {
		return "", err
	}
	return s.send(message)
}

// TerminateExecution stops the running or paused script. Debug then returns
// ErrTerminated. The runtime stays usable.
func (c *DebugContext) TerminateExecution() error {
	s, err := c.active()
	if err != nil {
		return err
	}
	return s.terminate()
}

// State reports the state of the current session, or of the last one once
// it has ended.
func (c *DebugContext) State() SessionState {
	c.mu.Lock()
	s := c.last
	c.mu.Unlock()
	if s == nil {
		return StateNotStarted
	}
	return s.State()
}
