package inspector

import (
	"encoding/json"
	"errors"
	"fmt"
)

type command struct {
	// paused commands fail with errNotPaused while the script runs.
	paused bool
	run    func(*session, json.RawMessage) (any, error)
}

var commands = [methodCount]command{
	MethodDebuggerEnable:                 {run: (*session).enable},
	MethodDebuggerDisable:                {run: (*session).disable},
	MethodDebuggerResume:                 {paused: true, run: (*session).resume},
	MethodDebuggerPause:                  {run: (*session).requestPause},
	MethodDebuggerStepOver:               {paused: true, run: stepper(stepOver)},
	MethodDebuggerStepInto:               {paused: true, run: stepper(stepInto)},
	MethodDebuggerStepOut:                {paused: true, run: stepper(stepOut)},
	MethodDebuggerSetBreakpoint:          {run: (*session).setBreakpoint},
	MethodDebuggerRemoveBreakpoint:       {run: (*session).removeBreakpoint},
	MethodDebuggerSetBreakpointsActive:   {run: (*session).setBreakpointsActive},
	MethodDebuggerGetPossibleBreakpoints: {run: (*session).getPossibleBreakpoints},
	MethodDebuggerContinueToLocation:     {paused: true, run: (*session).continueToLocation},
	MethodDebuggerGetScriptSource:        {run: (*session).getScriptSource},
	MethodDebuggerEvaluateOnCallFrame:    {paused: true, run: (*session).evaluateOnCallFrame},
	MethodDebuggerSetVariableValue:       {paused: true, run: (*session).setVariableValue},
	MethodDebuggerSetPauseOnExceptions:   {run: (*session).setPauseOnExceptions},
	MethodRuntimeEvaluate:                {run: (*session).evaluateGlobal},
	MethodRuntimeGetProperties:           {run: (*session).getProperties},
}

// dispatch decodes one request, runs it on the execution goroutine and
// encodes the response. A failed command returns the encoded error response
// together with a *ProtocolError.
func (s *session) dispatch(message string) (string, error) {
	var req request
	if err := json.Unmarshal([]byte(message), &req); err != nil {
		return s.fail(0, "", &ProtocolError{Code: CodeParseError, Message: "Message must be a valid JSON"})
	}
	var id uint64
	if req.ID != nil {
		id = *req.ID
	}
	if req.ID == nil {
		return s.fail(id, req.Method, &ProtocolError{Code: CodeInvalidRequest, Message: "Message must have integer 'id' property"})
	}
	if req.Method == "" {
		return s.fail(id, req.Method, &ProtocolError{Code: CodeInvalidRequest, Message: "Message must have string 'method' property"})
	}
	m, ok := ParseMethod(req.Method)
	if !ok {
		return s.fail(id, req.Method, &ProtocolError{Code: CodeMethodNotFound, Message: fmt.Sprintf("'%s' wasn't found", req.Method)})
	}
	cmd := commands[m]
	if cmd.paused && s.paused == nil {
		return s.fail(id, req.Method, errNotPaused)
	}

	s.log.Debug("dispatch", "id", id, "method", req.Method)
	result, err := cmd.run(s, req.Params)
	if err != nil {
		return s.fail(id, req.Method, err)
	}
	if result == nil {
		result = empty{}
	}
	return mustEncode(response{ID: id, Result: result}), nil
}

func (s *session) fail(id uint64, method string, err error) (string, error) {
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		pe = serverError("%v", err)
	}
	out := *pe
	out.ID = id
	out.Method = method
	s.log.Debug("command failed", "id", id, "method", method, "code", out.Code, "error", out.Message)
	return mustEncode(response{ID: id, Error: &responseError{Code: out.Code, Message: out.Message}}), &out
}

// decodeParams unmarshals params into T. Missing params decode as the zero
// value.
func decodeParams[T any](raw json.RawMessage) (T, error) {
	var p T
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, invalidParams("Invalid parameters: %v", err)
	}
	return p, nil
}
