package inspector

import (
	"encoding/json"

	"github.com/dop251/goja"
)

// callFrames describes the current stack, innermost first. Object ids are
// allocated in output order, each frame's scopes before its this.
func (s *session) callFrames() []CallFrame {
	out := make([]CallFrame, 0, len(s.frames))
	for i := len(s.frames) - 1; i >= 0; i-- {
		f := s.frames[i]
		cf := CallFrame{
			CallFrameID:      mustEncode(callFrameID{Ordinal: len(out), InjectedScriptID: injectedScriptID}),
			FunctionLocation: Location{ScriptID: s.script.id},
			Location:         s.frameLocation(f),
			URL:              s.script.url,
			ScopeChain:       []Scope{},
		}
		if f.fn >= 0 {
			fn := s.prog.functions[f.fn]
			cf.FunctionName = fn.name
			cf.FunctionLocation = fn.loc
			cf.ScopeChain = append(cf.ScopeChain, Scope{Type: "local", Object: s.localScopeObject(f)})
		}
		cf.ScopeChain = append(cf.ScopeChain, Scope{Type: "global", Object: s.globalScopeObject()})
		cf.This = s.thisObject(f)
		out = append(out, cf)
	}
	return out
}

func (s *session) frameLocation(f *frame) Location {
	switch {
	case f.site >= 0:
		return s.prog.sites[f.site].loc
	case f.fn >= 0:
		return s.prog.functions[f.fn].loc
	}
	return Location{ScriptID: s.script.id}
}

func (s *session) thisObject(f *frame) RemoteObject {
	v, err := s.evaluate(f, "this")
	if err != nil {
		v = goja.Undefined()
	}
	return s.remoteObject(v, groupBacktrace, false)
}

// frameByID resolves a callFrameId issued by the current pause.
func (s *session) frameByID(id string) (*frame, error) {
	var cf callFrameID
	if err := json.Unmarshal([]byte(id), &cf); err != nil || cf.InjectedScriptID != injectedScriptID {
		return nil, invalidParams("Invalid call frame id")
	}
	if cf.Ordinal < 0 || cf.Ordinal >= len(s.frames) {
		return nil, serverError("Could not find call frame with given id")
	}
	return s.frames[len(s.frames)-1-cf.Ordinal], nil
}

// scopeKinds lists the scope chain of f in the order callFrames reports it.
func (s *session) scopeKinds(f *frame) []refKind {
	if f.fn >= 0 {
		return []refKind{refLocalScope, refGlobalScope}
	}
	return []refKind{refGlobalScope}
}
