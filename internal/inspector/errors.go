package inspector

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

var (
	// ErrInvalidState is returned when a call is not legal in the current
	// session state: a command before the first pause, any command after the
	// session ended, or a second concurrent Debug on one context.
	ErrInvalidState = errors.New("invalid operation for the current debug session state")

	// ErrTerminated is returned by Debug when TerminateExecution stopped the
	// script.
	//lint:ignore ST1005 wire-compatible message
	ErrTerminated = errors.New("Execution Terminated")

	// ErrNilHandler is returned by Debug when no notification handler is given.
	ErrNilHandler = errors.New("notification handler must not be nil")

	// ErrNilMessage is returned by SendProtocolMessage for an empty message.
	ErrNilMessage = errors.New("protocol message must not be empty")
)

// SyntaxError is returned by Debug when the source fails to parse.
type SyntaxError struct {
	// Message is the normalized parser message, without the "SyntaxError: "
	// prefix.
	Message  string
	ScriptID string
	// Line and Column are 0-based.
	Line   int
	Column int
}

func (e *SyntaxError) Error() string {
	return "SyntaxError: " + e.Message
}

// ScriptError is returned by Debug when the script throws. Message is the
// string form of the thrown value, e.g. "Error: Test".
type ScriptError struct {
	Message   string
	Exception *goja.Exception
}

func (e *ScriptError) Error() string {
	return e.Message
}

func (e *ScriptError) Unwrap() error {
	if e.Exception == nil {
		return nil
	}
	return e.Exception
}

// JSON-RPC style error codes used in protocol error responses.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeServerError    = -32000
)

// ProtocolError is returned by SendProtocolMessage, alongside the encoded
// error response, when a command fails.
type ProtocolError struct {
	ID      uint64
	Method  string
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("protocol error %d in %s: %s", e.Code, e.Method, e.Message)
}

func invalidParams(format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: CodeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func serverError(format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: CodeServerError, Message: fmt.Sprintf(format, args...)}
}

var errNotPaused = serverError("Can only perform operation while paused.")
