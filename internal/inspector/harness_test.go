package inspector

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/joeycumines/js-debug-bridge/internal/scripting"
	"github.com/stretchr/testify/require"
)

var uuidPattern = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

func newTestRuntime(t *testing.T) *scripting.Runtime {
	t.Helper()
	rt, err := scripting.NewRuntime(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func newTestContext(t *testing.T, opts ...Option) *DebugContext {
	t.Helper()
	return NewDebugContext(newTestRuntime(t), opts...)
}

// paused is the decoded params of a Debugger.paused event.
type paused struct {
	Reason         string          `json:"reason"`
	Data           json.RawMessage `json:"data"`
	HitBreakpoints []string        `json:"hitBreakpoints"`
	CallFrames     []struct {
		CallFrameID  string   `json:"callFrameId"`
		FunctionName string   `json:"functionName"`
		Location     Location `json:"location"`
		ScopeChain   []Scope  `json:"scopeChain"`
	} `json:"callFrames"`
}

func (p paused) line() int {
	if len(p.CallFrames) == 0 {
		return -1
	}
	return p.CallFrames[0].Location.LineNumber
}

// harness drives a session from inside the notification handler, so every
// field is only touched on the loop goroutine until Debug returns.
type harness struct {
	dc        *DebugContext
	events    []string
	pauses    []paused
	responses []string
	errs      []error
	onPause   func(h *harness, p paused)
	onEvent   func(h *harness, method string)
}

func newHarness(dc *DebugContext, onPause func(h *harness, p paused)) *harness {
	return &harness{dc: dc, onPause: onPause}
}

func (h *harness) handle(message string) {
	h.events = append(h.events, message)
	var ev struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal([]byte(message), &ev); err != nil {
		panic(err)
	}
	if h.onEvent != nil {
		h.onEvent(h, ev.Method)
	}
	if ev.Method != EventPaused {
		return
	}
	var p paused
	if err := json.Unmarshal(ev.Params, &p); err != nil {
		panic(err)
	}
	h.pauses = append(h.pauses, p)
	if h.onPause == nil {
		h.send(MethodDebuggerResume, nil)
		return
	}
	h.onPause(h, p)
}

func (h *harness) run(source string) (any, error) {
	return h.dc.Debug(source, h.handle)
}

// send issues a command with the next message id and records the outcome.
func (h *harness) send(method Method, params any) string {
	msg := struct {
		ID     uint64 `json:"id"`
		Method string `json:"method"`
		Params any    `json:"params,omitempty"`
	}{h.dc.GetNextMessageID(), method.String(), params}
	resp, err := h.dc.SendProtocolMessage(mustEncode(msg))
	h.responses = append(h.responses, resp)
	if err != nil {
		h.errs = append(h.errs, err)
	}
	return resp
}

func (h *harness) lines() []int {
	out := make([]int, len(h.pauses))
	for i, p := range h.pauses {
		out[i] = p.line()
	}
	return out
}

func (h *harness) reasons() []string {
	out := make([]string, len(h.pauses))
	for i, p := range h.pauses {
		out[i] = p.Reason
		if uuidPattern.MatchString(p.Reason) {
			out[i] = "start"
		}
	}
	return out
}

func result[T any](t *testing.T, response string) T {
	t.Helper()
	var r struct {
		Result T `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(response), &r), response)
	return r.Result
}

type object = map[string]any

func location(scriptID string, line int) object {
	return object{"location": object{"scriptId": scriptID, "lineNumber": line}}
}
