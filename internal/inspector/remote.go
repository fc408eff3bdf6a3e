package inspector

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/dop251/goja"
)

const groupBacktrace = "backtrace"

type refKind int

const (
	refValue refKind = iota
	refGlobalScope
	refLocalScope
)

type remoteRef struct {
	kind  refKind
	value goja.Value
	frame *frame
	group string
}

// objectRegistry hands out objectIds. Ids are never reused within a session;
// releasing a group only forgets the references.
type objectRegistry struct {
	last int
	refs map[int]*remoteRef
}

func newObjectRegistry() *objectRegistry {
	return &objectRegistry{refs: make(map[int]*remoteRef)}
}

func (r *objectRegistry) add(ref *remoteRef) string {
	r.last++
	r.refs[r.last] = ref
	return mustEncode(remoteObjectID{InjectedScriptID: injectedScriptID, ID: r.last})
}

func (r *objectRegistry) lookup(objectID string) (*remoteRef, bool) {
	var id remoteObjectID
	if err := json.Unmarshal([]byte(objectID), &id); err != nil || id.InjectedScriptID != injectedScriptID {
		return nil, false
	}
	ref, ok := r.refs[id.ID]
	return ref, ok
}

func (r *objectRegistry) release(group string) {
	for id, ref := range r.refs {
		if ref.group == group {
			delete(r.refs, id)
		}
	}
}

func (s *session) globalScopeObject() RemoteObject {
	return RemoteObject{
		Type:        "object",
		ClassName:   "global",
		Description: "global",
		ObjectID:    s.objects.add(&remoteRef{kind: refGlobalScope, group: groupBacktrace}),
	}
}

func (s *session) localScopeObject(f *frame) RemoteObject {
	return RemoteObject{
		Type:        "object",
		ClassName:   "Object",
		Description: "Object",
		ObjectID:    s.objects.add(&remoteRef{kind: refLocalScope, frame: f, group: groupBacktrace}),
	}
}

// remoteObject describes v. Objects are registered under group; byValue
// additionally serializes them as JSON.
func (s *session) remoteObject(v goja.Value, group string, byValue bool) RemoteObject {
	switch {
	case v == nil || goja.IsUndefined(v):
		return RemoteObject{Type: "undefined"}
	case goja.IsNull(v):
		return RemoteObject{Type: "object", Subtype: "null", Value: json.RawMessage("null")}
	}

	if sym, ok := v.(*goja.Symbol); ok {
		return RemoteObject{Type: "symbol", Description: sym.String()}
	}

	obj, isObject := v.(*goja.Object)
	if !isObject {
		return s.primitive(v)
	}

	if obj.SameAs(s.vm.GlobalObject()) {
		return RemoteObject{
			Type:        "object",
			ClassName:   "global",
			Description: "global",
			ObjectID:    s.objects.add(&remoteRef{kind: refValue, value: v, group: group}),
		}
	}

	ro := RemoteObject{Type: "object"}
	s.protect(func() {
		className := obj.ClassName()
		ro.ClassName = constructorName(obj, className)
		if _, ok := goja.AssertFunction(obj); ok {
			ro.Type = "function"
			ro.ClassName = "Function"
			ro.Description = obj.String()
			return
		}
		ro.Subtype, ro.Description = describe(obj, className, ro.ClassName)
	})
	if byValue {
		if raw, err := json.Marshal(obj.Export()); err == nil {
			ro.Value = raw
		}
	}
	ro.ObjectID = s.objects.add(&remoteRef{kind: refValue, value: v, group: group})
	return ro
}

func (s *session) primitive(v goja.Value) RemoteObject {
	switch x := v.Export().(type) {
	case bool:
		return RemoteObject{Type: "boolean", Value: json.RawMessage(strconv.FormatBool(x))}
	case string:
		raw, _ := json.Marshal(x)
		return RemoteObject{Type: "string", Value: raw}
	case *big.Int:
		text := x.String() + "n"
		return RemoteObject{Type: "bigint", UnserializableValue: text, Description: text}
	case int64:
		return RemoteObject{Type: "number", Value: json.RawMessage(strconv.FormatInt(x, 10)), Description: v.String()}
	case float64:
		return number(x, v.String())
	}
	return RemoteObject{Type: "object", Description: v.String()}
}

func number(f float64, text string) RemoteObject {
	switch {
	case math.IsNaN(f):
		return RemoteObject{Type: "number", UnserializableValue: "NaN", Description: "NaN"}
	case math.IsInf(f, 1):
		return RemoteObject{Type: "number", UnserializableValue: "Infinity", Description: "Infinity"}
	case math.IsInf(f, -1):
		return RemoteObject{Type: "number", UnserializableValue: "-Infinity", Description: "-Infinity"}
	case f == 0 && math.Signbit(f):
		return RemoteObject{Type: "number", UnserializableValue: "-0", Description: "-0"}
	}
	raw, _ := json.Marshal(f)
	return RemoteObject{Type: "number", Value: raw, Description: text}
}

func constructorName(obj *goja.Object, fallback string) string {
	if ctor, ok := obj.Get("constructor").(*goja.Object); ok {
		if name := ctor.Get("name"); name != nil && !goja.IsUndefined(name) {
			if n := name.String(); n != "" {
				return n
			}
		}
	}
	return fallback
}

func describe(obj *goja.Object, className, ctor string) (subtype, description string) {
	switch className {
	case "Array":
		return "array", fmt.Sprintf("Array(%d)", obj.Get("length").ToInteger())
	case "Error":
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
			return "error", stack.String()
		}
		return "error", obj.String()
	case "Date":
		return "date", obj.String()
	case "RegExp":
		return "regexp", obj.String()
	case "Map", "Set":
		subtype = "map"
		if className == "Set" {
			subtype = "set"
		}
		return subtype, fmt.Sprintf("%s(%d)", className, obj.Get("size").ToInteger())
	case "Promise":
		return "promise", "Promise"
	}
	return "", ctor
}
