package inspector

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Method is the closed set of protocol commands the bridge understands.
type Method int

const (
	methodUnknown Method = iota
	MethodDebuggerEnable
	MethodDebuggerDisable
	MethodDebuggerResume
	MethodDebuggerPause
	MethodDebuggerStepOver
	MethodDebuggerStepInto
	MethodDebuggerStepOut
	MethodDebuggerSetBreakpoint
	MethodDebuggerRemoveBreakpoint
	MethodDebuggerSetBreakpointsActive
	MethodDebuggerGetPossibleBreakpoints
	MethodDebuggerContinueToLocation
	MethodDebuggerGetScriptSource
	MethodDebuggerEvaluateOnCallFrame
	MethodDebuggerSetVariableValue
	MethodDebuggerSetPauseOnExceptions
	MethodRuntimeEvaluate
	MethodRuntimeGetProperties
	methodCount
)

var methodNames = [methodCount]string{
	methodUnknown:                        "",
	MethodDebuggerEnable:                 "Debugger.enable",
	MethodDebuggerDisable:                "Debugger.disable",
	MethodDebuggerResume:                 "Debugger.resume",
	MethodDebuggerPause:                  "Debugger.pause",
	MethodDebuggerStepOver:               "Debugger.stepOver",
	MethodDebuggerStepInto:               "Debugger.stepInto",
	MethodDebuggerStepOut:                "Debugger.stepOut",
	MethodDebuggerSetBreakpoint:          "Debugger.setBreakpoint",
	MethodDebuggerRemoveBreakpoint:       "Debugger.removeBreakpoint",
	MethodDebuggerSetBreakpointsActive:   "Debugger.setBreakpointsActive",
	MethodDebuggerGetPossibleBreakpoints: "Debugger.getPossibleBreakpoints",
	MethodDebuggerContinueToLocation:     "Debugger.continueToLocation",
	MethodDebuggerGetScriptSource:        "Debugger.getScriptSource",
	MethodDebuggerEvaluateOnCallFrame:    "Debugger.evaluateOnCallFrame",
	MethodDebuggerSetVariableValue:       "Debugger.setVariableValue",
	MethodDebuggerSetPauseOnExceptions:   "Debugger.setPauseOnExceptions",
	MethodRuntimeEvaluate:                "Runtime.evaluate",
	MethodRuntimeGetProperties:           "Runtime.getProperties",
}

var methodsByName = func() map[string]Method {
	m := make(map[string]Method, methodCount)
	for i := methodUnknown + 1; i < methodCount; i++ {
		m[methodNames[i]] = i
	}
	return m
}()

// ParseMethod maps a wire method name onto a Method.
func ParseMethod(name string) (Method, bool) {
	m, ok := methodsByName[name]
	return m, ok
}

func (m Method) String() string {
	if m <= methodUnknown || m >= methodCount {
		return "Method(" + strconv.Itoa(int(m)) + ")"
	}
	return methodNames[m]
}

// Event names.
const (
	EventScriptParsed        = "Debugger.scriptParsed"
	EventScriptFailedToParse = "Debugger.scriptFailedToParse"
	EventPaused              = "Debugger.paused"
	EventResumed             = "Debugger.resumed"
)

// Pause reasons.
const (
	ReasonOther     = "other"
	ReasonException = "exception"
	// reasonStartPrefix is followed by a brace-wrapped uuid.
	reasonStartPrefix = "DebuggerStart:"
)

type request struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type response struct {
	ID     uint64         `json:"id"`
	Result any            `json:"result,omitempty"`
	Error  *responseError `json:"error,omitempty"`
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type event struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type empty struct{}

// Location is a 0-based position in a script. Columns count UTF-16 units.
type Location struct {
	ScriptID     string `json:"scriptId"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber int    `json:"columnNumber"`
}

type scriptParsedParams struct {
	ScriptID           string `json:"scriptId"`
	URL                string `json:"url"`
	StartLine          int    `json:"startLine"`
	StartColumn        int    `json:"startColumn"`
	EndLine            int    `json:"endLine"`
	EndColumn          int    `json:"endColumn"`
	ExecutionContextID int    `json:"executionContextId"`
	Hash               string `json:"hash"`
	// IsLiveEdit is nil for scriptFailedToParse.
	IsLiveEdit   *bool  `json:"isLiveEdit,omitempty"`
	SourceMapURL string `json:"sourceMapURL"`
	HasSourceURL bool   `json:"hasSourceURL"`
	IsModule     bool   `json:"isModule"`
	Length       int    `json:"length"`
}

// RemoteObject mirrors a JavaScript value for the controller.
type RemoteObject struct {
	Type                string          `json:"type"`
	Subtype             string          `json:"subtype,omitempty"`
	ClassName           string          `json:"className,omitempty"`
	Value               json.RawMessage `json:"value,omitempty"`
	UnserializableValue string          `json:"unserializableValue,omitempty"`
	Description         string          `json:"description,omitempty"`
	ObjectID            string          `json:"objectId,omitempty"`
}

// ExceptionData is the data of an exception pause.
type ExceptionData struct {
	RemoteObject
	Uncaught bool `json:"uncaught"`
}

type Scope struct {
	Type   string       `json:"type"`
	Object RemoteObject `json:"object"`
}

type CallFrame struct {
	CallFrameID      string       `json:"callFrameId"`
	FunctionName     string       `json:"functionName"`
	FunctionLocation Location     `json:"functionLocation"`
	Location         Location     `json:"location"`
	URL              string       `json:"url"`
	ScopeChain       []Scope      `json:"scopeChain"`
	This             RemoteObject `json:"this"`
}

type pausedParams struct {
	CallFrames     []CallFrame `json:"callFrames"`
	Reason         string      `json:"reason"`
	Data           any         `json:"data,omitempty"`
	HitBreakpoints []string    `json:"hitBreakpoints"`
}

type exceptionDetails struct {
	ExceptionID  int          `json:"exceptionId"`
	Text         string       `json:"text"`
	LineNumber   int          `json:"lineNumber"`
	ColumnNumber int          `json:"columnNumber"`
	ScriptID     string       `json:"scriptId,omitempty"`
	Exception    RemoteObject `json:"exception"`
}

type evaluateResult struct {
	Result           RemoteObject      `json:"result"`
	ExceptionDetails *exceptionDetails `json:"exceptionDetails,omitempty"`
}

type propertyDescriptor struct {
	Name         string        `json:"name"`
	Value        *RemoteObject `json:"value,omitempty"`
	Writable     *bool         `json:"writable,omitempty"`
	Get          *RemoteObject `json:"get,omitempty"`
	Set          *RemoteObject `json:"set,omitempty"`
	Configurable bool          `json:"configurable"`
	Enumerable   bool          `json:"enumerable"`
	IsOwn        bool          `json:"isOwn"`
}

// callArgument is the newValue of setVariableValue.
type callArgument struct {
	Value               json.RawMessage `json:"value,omitempty"`
	UnserializableValue string          `json:"unserializableValue,omitempty"`
	ObjectID            string          `json:"objectId,omitempty"`
}

type callFrameID struct {
	Ordinal          int `json:"ordinal"`
	InjectedScriptID int `json:"injectedScriptId"`
}

type remoteObjectID struct {
	InjectedScriptID int `json:"injectedScriptId"`
	ID               int `json:"id"`
}

// injectedScriptID is the single execution context every session reports.
const injectedScriptID = 1

// encode marshals v without HTML escaping and without a trailing newline.
func encode(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})), nil
}

func mustEncode(v any) string {
	s, err := encode(v)
	if err != nil {
		panic(err)
	}
	return s
}
