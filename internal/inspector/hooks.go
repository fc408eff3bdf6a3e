package inspector

import (
	"cmp"
	"fmt"

	"github.com/dop251/goja"
)

// PauseOnExceptions selects which thrown values pause the script.
type PauseOnExceptions string

const (
	PauseOnExceptionsNone     PauseOnExceptions = "none"
	PauseOnExceptionsUncaught PauseOnExceptions = "uncaught"
	PauseOnExceptionsAll      PauseOnExceptions = "all"
)

// ParsePauseOnExceptions validates a pause-on-exceptions state name.
func ParsePauseOnExceptions(state string) (PauseOnExceptions, error) {
	switch p := PauseOnExceptions(state); p {
	case PauseOnExceptionsNone, PauseOnExceptionsUncaught, PauseOnExceptionsAll:
		return p, nil
	}
	return "", fmt.Errorf("unknown pause on exceptions state %q", state)
}

// jsStatement is __debugger$.s(site). It runs before every breakable
// statement and must stay cheap: it answers whether jsPause has anything to
// decide.
func (s *session) jsStatement(call goja.FunctionCall) goja.Value {
	return s.vm.ToValue(s.onStatement(int(call.Argument(0).ToInteger())))
}

func (s *session) onStatement(site int) bool {
	if s.suppress > 0 || s.halted() || site < 0 || site >= len(s.prog.sites) {
		return false
	}
	if top := s.top(); top != nil {
		top.site = site
		top.scope = nil
	}
	if s.pending.Load() || s.startPending {
		return true
	}
	if !s.enabled {
		return false
	}
	if s.pauseRequested || s.step != stepNone || s.continueTo >= 0 {
		return true
	}
	if s.prog.sites[site].debugger && s.breakpoints.Active() {
		return true
	}
	return len(s.breakpoints.At(site)) > 0
}

// jsPause is __debugger$.p(evaluator), called with an evaluator closed over
// the statement's scope.
func (s *session) jsPause(call goja.FunctionCall) goja.Value {
	top := s.top()
	if top == nil {
		return goja.Undefined()
	}
	if fn, ok := goja.AssertFunction(call.Argument(0)); ok {
		top.scope = fn
	}
	s.serviceInbox()
	if s.halted() {
		return goja.Undefined()
	}
	if reason, hits := s.pauseDecision(top.site); reason != "" {
		s.pause(reason, nil, hits)
	}
	return goja.Undefined()
}

func (s *session) pauseDecision(site int) (reason string, hits []string) {
	if s.startPending {
		s.startPending = false
		reason = s.startReason
	}
	if !s.enabled || site < 0 {
		return reason, nil
	}
	depth := len(s.frames)
	switch s.step {
	case stepInto:
		reason = cmp.Or(reason, ReasonOther)
	case stepOver:
		if depth <= s.stepDepth {
			reason = cmp.Or(reason, ReasonOther)
		}
	case stepOut:
		if depth < s.stepDepth {
			reason = cmp.Or(reason, ReasonOther)
		}
	}
	if s.pauseRequested || s.continueTo == site {
		reason = cmp.Or(reason, ReasonOther)
	}
	if s.prog.sites[site].debugger && s.breakpoints.Active() {
		reason = cmp.Or(reason, ReasonOther)
	}
	for _, bp := range s.breakpoints.At(site) {
		if bp.Condition == "" || s.truthy(bp.Condition) {
			hits = append(hits, bp.ID)
		}
	}
	if len(hits) > 0 {
		reason = cmp.Or(reason, ReasonOther)
	}
	return reason, hits
}

// truthy evaluates a breakpoint condition in the paused scope. A condition
// that throws is false.
func (s *session) truthy(condition string) bool {
	v, err := s.evaluate(s.top(), condition)
	if err != nil {
		s.log.Debug("breakpoint condition threw", "condition", condition, "error", err)
		return false
	}
	return v != nil && v.ToBoolean()
}

// jsEnter is __debugger$.enter(fn, evaluator). The returned token is handed
// back to jsLeave from the function's finally block.
func (s *session) jsEnter(call goja.FunctionCall) goja.Value {
	if s.suppress > 0 || s.halted() {
		return s.vm.ToValue(0)
	}
	fn := int(call.Argument(0).ToInteger())
	if fn < 0 || fn >= len(s.prog.functions) {
		return s.vm.ToValue(0)
	}
	entry, _ := goja.AssertFunction(call.Argument(1))
	s.lastToken++
	s.frames = append(s.frames, &frame{token: s.lastToken, fn: fn, entry: entry, site: -1})
	return s.vm.ToValue(s.lastToken)
}

// jsLeave pops the frame for token and anything left above it.
func (s *session) jsLeave(call goja.FunctionCall) goja.Value {
	token := int(call.Argument(0).ToInteger())
	if token <= 0 {
		return goja.Undefined()
	}
	for n := len(s.frames); n > 1 && s.frames[n-1].token >= token; n-- {
		s.frames[n-1] = nil
		s.frames = s.frames[:n-1]
	}
	return goja.Undefined()
}

// jsUnwind runs when an exception leaves a function body, before its frame
// is popped.
func (s *session) jsUnwind(call goja.FunctionCall) goja.Value {
	if s.suppress > 0 || s.halted() {
		return goja.Undefined()
	}
	uncaught := true
	for _, f := range s.frames[:max(len(s.frames)-1, 0)] {
		if f.site >= 0 && s.prog.sites[f.site].inTry {
			uncaught = false
			break
		}
	}
	s.exception(call.Argument(0), uncaught)
	return goja.Undefined()
}

// jsCaught is __debugger$.caught(e), the first statement of every catch
// clause.
func (s *session) jsCaught(call goja.FunctionCall) goja.Value {
	if s.suppress > 0 || s.halted() {
		return goja.Undefined()
	}
	v := call.Argument(0)
	seen := s.lastException != nil && v.SameAs(s.lastException)
	s.lastException = nil
	if !seen && s.enabled && s.exceptions == PauseOnExceptionsAll {
		s.exceptionPause(v, false)
	}
	return goja.Undefined()
}

// exception reports a value propagating out of a frame. The same value is
// reported once however many frames it unwinds.
func (s *session) exception(v goja.Value, uncaught bool) {
	if v == nil || !s.enabled {
		return
	}
	if s.lastException != nil && v.SameAs(s.lastException) {
		return
	}
	s.lastException = v
	switch s.exceptions {
	case PauseOnExceptionsAll:
	case PauseOnExceptionsUncaught:
		if !uncaught {
			return
		}
	default:
		return
	}
	s.exceptionPause(v, uncaught)
}

func (s *session) exceptionPause(v goja.Value, uncaught bool) {
	data := ExceptionData{
		RemoteObject: s.remoteObject(v, groupBacktrace, false),
		Uncaught:     uncaught,
	}
	s.pause(ReasonException, data, nil)
}
