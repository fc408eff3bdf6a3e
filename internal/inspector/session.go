package inspector

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/joeycumines/js-debug-bridge/internal/scripting"
)

// SessionState is the lifecycle state of a debug session.
type SessionState int32

const (
	StateNotStarted SessionState = iota
	StateInitializing
	StateRunning
	StatePaused
	StateFinished
	StateTerminated
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	case StateTerminated:
		return "terminated"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("SessionState(%d)", int32(s))
}

// Terminal reports whether no further command is accepted in this state.
func (s SessionState) Terminal() bool {
	return s == StateFinished || s == StateTerminated || s == StateFailed
}

type stepMode int

const (
	stepNone stepMode = iota
	stepInto
	stepOver
	stepOut
)

type frame struct {
	token int
	// fn indexes program.functions; -1 is the top-level frame.
	fn int
	// entry evaluates in the function scope as it was on entry.
	entry goja.Callable
	// scope evaluates in the scope of the current statement, once a hook
	// for it has asked for a pause check.
	scope goja.Callable
	site  int
}

type pauseState struct {
	reason string
}

type queued struct {
	message string
	reply   chan reply
}

type reply struct {
	response string
	err      error
}

// session is one Debug call. Fields below the execution-goroutine marker are
// only touched on the runtime's loop goroutine.
type session struct {
	owner   *DebugContext
	rt      *scripting.Runtime
	log     *slog.Logger
	handler NotificationHandler

	startReason string
	debuggerID  string

	cmdMu   sync.Mutex
	mu      sync.Mutex
	cond    *sync.Cond
	inbox   []*queued
	state   SessionState
	started bool
	vm      *goja.Runtime
	done    chan struct{}
	killed  atomic.Bool
	pending atomic.Bool

	// execution goroutine
	script          *script
	prog            *program
	frames          []*frame
	lastToken       int
	suppress        int
	enabled         bool
	breakpoints     *BreakpointStore
	objects         *objectRegistry
	paused          *pauseState
	resumeRequested bool
	startPending    bool
	pauseRequested  bool
	step            stepMode
	stepDepth       int
	continueTo      int
	exceptions      PauseOnExceptions
	lastException   goja.Value
	exceptionSeq    int

	globalEval               goja.Callable
	jsonParse                goja.Callable
	getOwnPropertyNames      goja.Callable
	getOwnPropertyDescriptor goja.Callable
}

func newSession(owner *DebugContext, handler NotificationHandler, id uint64) *session {
	s := &session{
		owner:       owner,
		rt:          owner.rt,
		log:         owner.log.With("session", id),
		handler:     handler,
		startReason: reasonStartPrefix + "{" + uuid.NewString() + "}",
		debuggerID:  uuid.NewString(),
		state:       StateInitializing,
		done:        make(chan struct{}),
		breakpoints: NewBreakpointStore(),
		objects:     newObjectRegistry(),
		continueTo:  -1,
		exceptions:  owner.exceptions,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// run parses, instruments and executes source on the loop goroutine.
func (s *session) run(vm *goja.Runtime, source, resourceName string) (any, error) {
	s.mu.Lock()
	s.vm = vm
	s.mu.Unlock()
	defer vm.ClearInterrupt()

	s.script = newScript(s.rt.NextScriptID(), resourceName, source)
	s.log = s.log.With("script", s.script.id)

	ast, err := s.script.parse()
	if err != nil {
		s.log.Debug("script failed to parse", "error", err)
		s.emit(EventScriptFailedToParse, s.script.parsedParams(false))
		return nil, err
	}
	s.emit(EventScriptParsed, s.script.parsedParams(true))

	var compiled *goja.Program
	s.prog, err = instrument(s.script, ast)
	if err == nil {
		compiled, err = s.script.compile(s.prog.source)
	}
	if err != nil {
		s.log.Warn("script could not be instrumented, running without hooks", "error", err)
		s.prog = uninstrumented(s.script)
		if compiled, err = s.script.compile(s.prog.source); err != nil {
			return nil, &SyntaxError{Message: err.Error(), ScriptID: s.script.id}
		}
	}

	if err := s.install(); err != nil {
		return nil, fmt.Errorf("install debugger hooks: %w", err)
	}
	defer s.uninstall()

	s.frames = []*frame{{fn: -1, entry: s.globalEval, site: -1}}
	defer func() { s.frames = nil }()

	if !s.prog.hooksFirst {
		s.pause(s.startReason, nil, nil)
	} else {
		s.startPending = true
	}
	if s.killed.Load() {
		return nil, ErrTerminated
	}

	value, err := vm.RunProgram(compiled)
	if s.killed.Load() {
		return nil, ErrTerminated
	}
	if err != nil {
		var exc *goja.Exception
		if !errors.As(err, &exc) {
			return nil, err
		}
		s.exception(exc.Value(), true)
		if s.killed.Load() {
			return nil, ErrTerminated
		}
		msg := exc.Error()
		if v := exc.Value(); v != nil {
			msg = v.String()
		}
		return nil, &ScriptError{Message: msg, Exception: exc}
	}
	if value == nil {
		return nil, nil
	}
	return value.Export(), nil
}

func (s *session) install() error {
	hooks := s.vm.NewObject()
	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"s":      s.jsStatement,
		"p":      s.jsPause,
		"enter":  s.jsEnter,
		"leave":  s.jsLeave,
		"unwind": s.jsUnwind,
		"caught": s.jsCaught,
	} {
		if err := hooks.Set(name, fn); err != nil {
			return err
		}
	}
	if err := s.vm.GlobalObject().DefineDataProperty(hookGlobal, hooks, goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return err
	}
	for src, dst := range map[string]*goja.Callable{
		"(__e) => eval(__e)":              &s.globalEval,
		"JSON.parse":                      &s.jsonParse,
		"Object.getOwnPropertyNames":      &s.getOwnPropertyNames,
		"Object.getOwnPropertyDescriptor": &s.getOwnPropertyDescriptor,
	} {
		v, err := s.vm.RunString(src)
		if err != nil {
			return err
		}
		fn, ok := goja.AssertFunction(v)
		if !ok {
			return fmt.Errorf("%s is not a function", src)
		}
		*dst = fn
	}
	return nil
}

func (s *session) uninstall() {
	_ = s.vm.GlobalObject().Delete(hookGlobal)
}

// finish records the final state and fails every queued command.
func (s *session) finish(err error) {
	state := StateFinished
	switch {
	case errors.Is(err, ErrTerminated):
		state = StateTerminated
	case err != nil:
		state = StateFailed
	}
	s.mu.Lock()
	s.state = state
	inbox := s.inbox
	s.inbox = nil
	close(s.done)
	s.mu.Unlock()
	for _, q := range inbox {
		q.reply <- reply{err: ErrInvalidState}
	}
	s.log.Debug("session ended", "state", state)
}

// send is SendProtocolMessage for this session.
func (s *session) send(message string) (string, error) {
	if s.rt.OnLoop() {
		// from inside a notification handler
		if err := s.accepting(); err != nil {
			return "", err
		}
		return s.dispatch(message)
	}

	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	q := &queued{message: message, reply: make(chan reply, 1)}
	s.mu.Lock()
	if !s.started || s.state.Terminal() {
		s.mu.Unlock()
		return "", fmt.Errorf("send protocol message in state %s: %w", s.state, ErrInvalidState)
	}
	s.inbox = append(s.inbox, q)
	s.pending.Store(true)
	s.cond.Broadcast()
	s.mu.Unlock()

	select {
	case r := <-q.reply:
		return r.response, r.err
	case <-s.done:
		select {
		case r := <-q.reply:
			return r.response, r.err
		default:
			return "", fmt.Errorf("session ended: %w", ErrInvalidState)
		}
	}
}

func (s *session) accepting() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.state.Terminal() {
		return fmt.Errorf("send protocol message in state %s: %w", s.state, ErrInvalidState)
	}
	return nil
}

// terminate is TerminateExecution for this session.
func (s *session) terminate() error {
	s.mu.Lock()
	if s.state.Terminal() || s.killed.Load() {
		s.mu.Unlock()
		return fmt.Errorf("terminate in state %s: %w", s.state, ErrInvalidState)
	}
	s.killed.Store(true)
	vm := s.vm
	s.cond.Broadcast()
	s.mu.Unlock()
	if vm != nil {
		vm.Interrupt(ErrTerminated)
	}
	s.log.Debug("termination requested")
	return nil
}

// halted reports a pending termination, re-arming the interrupt in case an
// evaluation consumed it.
func (s *session) halted() bool {
	if !s.killed.Load() {
		return false
	}
	s.vm.Interrupt(ErrTerminated)
	return true
}

// next blocks until a command is queued or the session is terminated.
func (s *session) next() (*queued, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.inbox) == 0 && !s.killed.Load() {
		s.cond.Wait()
	}
	if s.killed.Load() {
		return nil, false
	}
	return s.pop(), true
}

// poll returns a queued command without waiting.
func (s *session) poll() (*queued, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inbox) == 0 {
		s.pending.Store(false)
		return nil, false
	}
	return s.pop(), true
}

func (s *session) pop() *queued {
	q := s.inbox[0]
	s.inbox[0] = nil
	s.inbox = s.inbox[1:]
	if len(s.inbox) == 0 {
		s.pending.Store(false)
	}
	return q
}

func (s *session) answer(q *queued) {
	response, err := s.dispatch(q.message)
	q.reply <- reply{response: response, err: err}
}

// serviceInbox answers commands that arrived while the script was running.
func (s *session) serviceInbox() {
	for !s.killed.Load() {
		q, ok := s.poll()
		if !ok {
			return
		}
		s.answer(q)
	}
}

// pause suspends execution on the loop goroutine and serves commands until
// one of them resumes or the session is terminated.
func (s *session) pause(reason string, data any, hits []string) {
	s.step = stepNone
	s.pauseRequested = false
	s.continueTo = -1
	s.resumeRequested = false
	if hits == nil {
		hits = []string{}
	}

	frames := s.callFrames()
	s.paused = &pauseState{reason: reason}
	s.mu.Lock()
	s.started = true
	s.state = StatePaused
	s.mu.Unlock()

	s.log.Debug("paused", "reason", reason, "hitBreakpoints", hits)
	s.emit(EventPaused, pausedParams{
		CallFrames:     frames,
		Reason:         reason,
		Data:           data,
		HitBreakpoints: hits,
	})

	for !s.resumeRequested {
		q, ok := s.next()
		if !ok {
			break
		}
		s.answer(q)
	}

	s.paused = nil
	s.objects.release(groupBacktrace)
	if s.halted() {
		return
	}
	s.setState(StateRunning)
	s.log.Debug("resumed")
	s.emit(EventResumed, empty{})
}

func (s *session) top() *frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// evaluate runs expression in the scope of f with hooks disabled.
func (s *session) evaluate(f *frame, expression string) (goja.Value, error) {
	fn := s.globalEval
	if f != nil {
		switch {
		case f.scope != nil:
			fn = f.scope
		case f.entry != nil:
			fn = f.entry
		}
	}
	return s.call(fn, s.vm.ToValue(expression))
}

func (s *session) call(fn goja.Callable, args ...goja.Value) (v goja.Value, err error) {
	s.suppress++
	defer func() {
		s.suppress--
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluation panicked: %v", r)
		}
		s.halted()
	}()
	return fn(goja.Undefined(), args...)
}

// protect runs fn, turning a JavaScript exception raised by a getter or proxy
// trap into a no-op.
func (s *session) protect(fn func()) {
	s.suppress++
	defer func() {
		s.suppress--
		if r := recover(); r != nil {
			s.log.Debug("inspection threw", "panic", r)
		}
	}()
	fn()
}
