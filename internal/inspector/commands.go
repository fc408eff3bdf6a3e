package inspector

import (
	"encoding/json"
	"errors"
	"regexp"
	"slices"

	"github.com/dop251/goja"
)

var (
	identifierPattern = regexp.MustCompile(`^[\p{L}$_][\p{L}\p{N}$_]*$`)
	bigintPattern     = regexp.MustCompile(`^-?[0-9]+n$`)
)

// hidden globals created by instrumentation
var hiddenNames = map[string]bool{
	hookGlobal: true,
	"__hook$":  true,
	"__frame$": true,
}

type wireLocation struct {
	ScriptID     string `json:"scriptId"`
	LineNumber   *int   `json:"lineNumber"`
	ColumnNumber *int   `json:"columnNumber"`
}

func (l wireLocation) position() (line, column int, err error) {
	if l.LineNumber == nil {
		return 0, 0, invalidParams("location.lineNumber: integer value expected")
	}
	if l.ColumnNumber != nil {
		column = *l.ColumnNumber
	}
	return *l.LineNumber, column, nil
}

func (s *session) enable(json.RawMessage) (any, error) {
	s.enabled = true
	return struct {
		DebuggerID string `json:"debuggerId"`
	}{s.debuggerID}, nil
}

func (s *session) disable(json.RawMessage) (any, error) {
	s.enabled = false
	s.breakpoints.Clear()
	s.step = stepNone
	s.pauseRequested = false
	s.continueTo = -1
	if s.paused != nil {
		s.resumeRequested = true
	}
	return empty{}, nil
}

func (s *session) resume(json.RawMessage) (any, error) {
	s.resumeRequested = true
	return empty{}, nil
}

func (s *session) requestPause(json.RawMessage) (any, error) {
	s.pauseRequested = true
	return empty{}, nil
}

func stepper(mode stepMode) func(*session, json.RawMessage) (any, error) {
	return func(s *session, _ json.RawMessage) (any, error) {
		s.step = mode
		s.stepDepth = len(s.frames)
		s.resumeRequested = true
		return empty{}, nil
	}
}

// resolve finds the first breakable statement at or after line:column.
func (s *session) resolve(scriptID string, line, column int) (int, bool) {
	if s.script == nil || scriptID != s.script.id {
		return -1, false
	}
	best := -1
	for i, st := range s.prog.sites {
		if before(st.loc, line, column) {
			continue
		}
		if best < 0 || before(st.loc, s.prog.sites[best].loc.LineNumber, s.prog.sites[best].loc.ColumnNumber) {
			best = i
		}
	}
	return best, best >= 0
}

func before(l Location, line, column int) bool {
	return l.LineNumber < line || (l.LineNumber == line && l.ColumnNumber < column)
}

func (s *session) setBreakpoint(raw json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Location  wireLocation `json:"location"`
		Condition string       `json:"condition"`
	}](raw)
	if err != nil {
		return nil, err
	}
	line, column, err := p.Location.position()
	if err != nil {
		return nil, err
	}
	site, ok := s.resolve(p.Location.ScriptID, line, column)
	if !ok {
		return nil, serverError("Could not resolve breakpoint")
	}
	actual := s.prog.sites[site].loc
	bp := s.breakpoints.Add(p.Location.ScriptID, line, column, p.Condition, site, actual)
	s.log.Debug("breakpoint set", "id", bp.ID, "line", actual.LineNumber, "column", actual.ColumnNumber)
	return struct {
		BreakpointID   string   `json:"breakpointId"`
		ActualLocation Location `json:"actualLocation"`
	}{bp.ID, actual}, nil
}

func (s *session) removeBreakpoint(raw json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		BreakpointID *string `json:"breakpointId"`
	}](raw)
	if err != nil {
		return nil, err
	}
	if p.BreakpointID == nil {
		return nil, invalidParams("breakpointId: string value expected")
	}
	s.breakpoints.Remove(*p.BreakpointID)
	return empty{}, nil
}

func (s *session) setBreakpointsActive(raw json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Active *bool `json:"active"`
	}](raw)
	if err != nil {
		return nil, err
	}
	if p.Active == nil {
		return nil, invalidParams("active: boolean value expected")
	}
	s.breakpoints.SetActive(*p.Active)
	return empty{}, nil
}

func (s *session) getPossibleBreakpoints(raw json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Start *wireLocation `json:"start"`
		End   *wireLocation `json:"end"`
	}](raw)
	if err != nil {
		return nil, err
	}
	if p.Start == nil {
		return nil, invalidParams("start: object expected")
	}
	line, column, err := p.Start.position()
	if err != nil {
		return nil, err
	}
	if s.script == nil || p.Start.ScriptID != s.script.id {
		return nil, serverError("Script not found")
	}
	locations := []Location{}
	for _, st := range s.prog.sites {
		if before(st.loc, line, column) {
			continue
		}
		if p.End != nil {
			endLine, endColumn, err := p.End.position()
			if err != nil {
				return nil, err
			}
			if !before(st.loc, endLine, endColumn) {
				continue
			}
		}
		locations = append(locations, st.loc)
	}
	slices.SortFunc(locations, func(a, b Location) int {
		if a.LineNumber != b.LineNumber {
			return a.LineNumber - b.LineNumber
		}
		return a.ColumnNumber - b.ColumnNumber
	})
	locations = slices.Compact(locations)
	return struct {
		Locations []Location `json:"locations"`
	}{locations}, nil
}

func (s *session) continueToLocation(raw json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Location wireLocation `json:"location"`
	}](raw)
	if err != nil {
		return nil, err
	}
	line, column, err := p.Location.position()
	if err != nil {
		return nil, err
	}
	site, ok := s.resolve(p.Location.ScriptID, line, column)
	if !ok {
		return nil, serverError("Could not resolve location")
	}
	s.continueTo = site
	s.resumeRequested = true
	return empty{}, nil
}

func (s *session) getScriptSource(raw json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		ScriptID string `json:"scriptId"`
	}](raw)
	if err != nil {
		return nil, err
	}
	if s.script == nil || p.ScriptID != s.script.id {
		return nil, serverError("No script for id: %s", p.ScriptID)
	}
	return struct {
		ScriptSource string `json:"scriptSource"`
	}{s.script.source}, nil
}

type evaluateParams struct {
	CallFrameID   string `json:"callFrameId"`
	Expression    string `json:"expression"`
	ObjectGroup   string `json:"objectGroup"`
	ReturnByValue bool   `json:"returnByValue"`
}

func (s *session) evaluateOnCallFrame(raw json.RawMessage) (any, error) {
	p, err := decodeParams[evaluateParams](raw)
	if err != nil {
		return nil, err
	}
	f, err := s.frameByID(p.CallFrameID)
	if err != nil {
		return nil, err
	}
	v, err := s.evaluate(f, p.Expression)
	return s.evaluationResult(v, err, p.ObjectGroup, p.ReturnByValue)
}

func (s *session) evaluateGlobal(raw json.RawMessage) (any, error) {
	p, err := decodeParams[evaluateParams](raw)
	if err != nil {
		return nil, err
	}
	if s.globalEval == nil {
		return nil, serverError("Cannot find default execution context")
	}
	v, err := s.evaluate(nil, p.Expression)
	return s.evaluationResult(v, err, p.ObjectGroup, p.ReturnByValue)
}

func (s *session) evaluationResult(v goja.Value, err error, group string, byValue bool) (any, error) {
	if group == "" {
		group = groupBacktrace
	}
	if err != nil {
		var exc *goja.Exception
		if !errors.As(err, &exc) {
			return nil, serverError("%v", err)
		}
		s.exceptionSeq++
		thrown := s.remoteObject(exc.Value(), group, false)
		return evaluateResult{
			Result: thrown,
			ExceptionDetails: &exceptionDetails{
				ExceptionID: s.exceptionSeq,
				Text:        "Uncaught",
				ScriptID:    s.script.id,
				Exception:   thrown,
			},
		}, nil
	}
	return evaluateResult{Result: s.remoteObject(v, group, byValue)}, nil
}

func (s *session) setVariableValue(raw json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		ScopeNumber  *int         `json:"scopeNumber"`
		VariableName string       `json:"variableName"`
		NewValue     callArgument `json:"newValue"`
		CallFrameID  string       `json:"callFrameId"`
	}](raw)
	if err != nil {
		return nil, err
	}
	if p.ScopeNumber == nil {
		return nil, invalidParams("scopeNumber: integer value expected")
	}
	f, err := s.frameByID(p.CallFrameID)
	if err != nil {
		return nil, err
	}
	kinds := s.scopeKinds(f)
	if *p.ScopeNumber < 0 || *p.ScopeNumber >= len(kinds) {
		return nil, invalidParams("Invalid scope number")
	}
	value, err := s.argumentValue(p.NewValue)
	if err != nil {
		return nil, err
	}

	switch kinds[*p.ScopeNumber] {
	case refGlobalScope:
		if hiddenNames[p.VariableName] {
			return nil, serverError("Could not find variable with given name")
		}
		if err := s.vm.GlobalObject().Set(p.VariableName, value); err != nil {
			return nil, serverError("%v", err)
		}
	case refLocalScope:
		if !identifierPattern.MatchString(p.VariableName) || hiddenNames[p.VariableName] ||
			!slices.Contains(s.prog.functions[f.fn].locals, p.VariableName) {
			return nil, serverError("Could not find variable with given name")
		}
		setter, err := s.evaluate(f, "(function (__v$) { "+p.VariableName+" = __v$; })")
		if err != nil {
			return nil, serverError("%v", err)
		}
		fn, ok := goja.AssertFunction(setter)
		if !ok {
			return nil, serverError("Could not find variable with given name")
		}
		if _, err := s.call(fn, value); err != nil {
			return nil, serverError("%v", err)
		}
	}
	return empty{}, nil
}

// argumentValue converts a wire CallArgument into a JavaScript value.
func (s *session) argumentValue(arg callArgument) (goja.Value, error) {
	switch {
	case arg.ObjectID != "":
		ref, ok := s.objects.lookup(arg.ObjectID)
		if !ok || ref.kind != refValue {
			return nil, serverError("Could not find object with given id")
		}
		return ref.value, nil
	case arg.UnserializableValue != "":
		switch u := arg.UnserializableValue; {
		case u == "NaN", u == "Infinity", u == "-Infinity", u == "-0", bigintPattern.MatchString(u):
			v, err := s.call(s.globalEval, s.vm.ToValue(u))
			if err != nil {
				return nil, serverError("%v", err)
			}
			return v, nil
		default:
			return nil, invalidParams("Couldn't parse value object in call argument")
		}
	case len(arg.Value) > 0:
		v, err := s.call(s.jsonParse, s.vm.ToValue(string(arg.Value)))
		if err != nil {
			return nil, invalidParams("Couldn't parse value object in call argument")
		}
		return v, nil
	}
	return goja.Undefined(), nil
}

func (s *session) setPauseOnExceptions(raw json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		State string `json:"state"`
	}](raw)
	if err != nil {
		return nil, err
	}
	state, err := ParsePauseOnExceptions(p.State)
	if err != nil {
		return nil, invalidParams("Unknown pause on exceptions mode: %s", p.State)
	}
	s.exceptions = state
	return empty{}, nil
}

func (s *session) getProperties(raw json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		ObjectID string `json:"objectId"`
	}](raw)
	if err != nil {
		return nil, err
	}
	ref, ok := s.objects.lookup(p.ObjectID)
	if !ok {
		return nil, serverError("Could not find object with given id")
	}
	group := ref.group
	result := []propertyDescriptor{}

	switch ref.kind {
	case refGlobalScope:
		global := s.vm.GlobalObject()
		for _, name := range global.Keys() {
			if hiddenNames[name] {
				continue
			}
			value := s.remoteObject(global.Get(name), group, false)
			result = append(result, dataProperty(name, value, true, true))
		}
	case refLocalScope:
		for _, name := range s.prog.functions[ref.frame.fn].locals {
			if hiddenNames[name] {
				continue
			}
			v, err := s.evaluate(ref.frame, name)
			if err != nil {
				continue
			}
			result = append(result, dataProperty(name, s.remoteObject(v, group, false), true, true))
		}
	case refValue:
		obj, ok := ref.value.(*goja.Object)
		if !ok {
			break
		}
		result = s.ownProperties(obj, group)
	}
	return struct {
		Result []propertyDescriptor `json:"result"`
	}{result}, nil
}

func (s *session) ownProperties(obj *goja.Object, group string) []propertyDescriptor {
	result := []propertyDescriptor{}
	names, err := s.call(s.getOwnPropertyNames, obj)
	if err != nil {
		return result
	}
	list, _ := names.Export().([]any)
	for _, n := range list {
		name, ok := n.(string)
		if !ok {
			continue
		}
		dv, err := s.call(s.getOwnPropertyDescriptor, obj, s.vm.ToValue(name))
		if err != nil {
			continue
		}
		d, ok := dv.(*goja.Object)
		if !ok {
			continue
		}
		pd := propertyDescriptor{
			Name:         name,
			Configurable: d.Get("configurable").ToBoolean(),
			Enumerable:   d.Get("enumerable").ToBoolean(),
			IsOwn:        true,
		}
		if get := d.Get("get"); get != nil && !goja.IsUndefined(get) {
			ro := s.remoteObject(get, group, false)
			pd.Get = &ro
		}
		if set := d.Get("set"); set != nil && !goja.IsUndefined(set) {
			ro := s.remoteObject(set, group, false)
			pd.Set = &ro
		}
		if pd.Get == nil && pd.Set == nil {
			ro := s.remoteObject(d.Get("value"), group, false)
			writable := d.Get("writable").ToBoolean()
			pd.Value = &ro
			pd.Writable = &writable
		}
		result = append(result, pd)
	}
	return result
}

func dataProperty(name string, value RemoteObject, writable, enumerable bool) propertyDescriptor {
	return propertyDescriptor{
		Name:       name,
		Value:      &value,
		Writable:   &writable,
		Enumerable: enumerable,
		IsOwn:      true,
	}
}
