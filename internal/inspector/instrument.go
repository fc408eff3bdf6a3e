package inspector

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
)

// The instrumenter splices calls to the session's hook object into the
// source text. Nothing is removed and no newline is inserted, so every
// original statement keeps its line. Positions come from the parsed AST and
// always refer to the original source.
const (
	hookGlobal = "__debugger$"

	hookStmt   = "var __hook$ = __debugger$.s(%d) && __debugger$.p((__e) => eval(__e));"
	hookInline = "(__debugger$.s(%d) && __debugger$.p((__e) => eval(__e))), "
	hookEmpty  = "void (__debugger$.s(%d) && __debugger$.p((__e) => eval(__e)))"
	frameEnter = "try { var __frame$ = __debugger$.enter(%d, (__e) => eval(__e)); "
	frameLeave = " } catch (__exc$) { __debugger$.unwind(__exc$); throw __exc$; } finally { __debugger$.leave(__frame$); }"
	catchHook  = "var __hook$ = __debugger$.caught(%s); "
)

// site is a breakable statement.
type site struct {
	offset int
	loc    Location
	// fn indexes program.functions; -1 is top level.
	fn       int
	debugger bool
	// inTry marks statements inside a try block that has a catch clause in
	// the same function.
	inTry bool
}

type function struct {
	name   string
	loc    Location
	locals []string
}

// program is a script plus its hook tables.
type program struct {
	source    string
	sites     []site
	functions []function
	// hooksFirst is set when the first top-level statement to execute
	// starts with a hook, so the start pause can wait for it.
	hooksFirst bool
}

type insertion struct {
	offset int
	text   string
}

type scope struct {
	fn    int
	inTry bool
}

type instrumenter struct {
	script    *script
	src       string
	inserts   []insertion
	sites     []site
	functions []function
}

var (
	nodeType   = reflect.TypeFor[ast.Node]()
	astPkgPath = reflect.TypeFor[ast.Program]().PkgPath()
)

// instrument rewrites a parsed script. A node it cannot handle is reported
// as an error, and the caller runs the script without hooks.
func instrument(s *script, prg *ast.Program) (p *program, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("instrument %s: %v", s.url, r)
		}
	}()

	in := &instrumenter{script: s, src: s.source}
	in.statements(prg.Body, scope{fn: -1}, true)

	slices.SortStableFunc(in.inserts, func(a, b insertion) int { return a.offset - b.offset })
	var b strings.Builder
	b.Grow(len(in.src) + len(in.inserts)*len(hookStmt))
	last := 0
	for _, ins := range in.inserts {
		b.WriteString(in.src[last:ins.offset])
		b.WriteString(ins.text)
		last = ins.offset
	}
	b.WriteString(in.src[last:])

	return &program{
		source:      b.String(),
		sites:       in.sites,
		functions:   in.functions,
		hooksFirst: in.hooksFirst(prg.Body),
	}, nil
}

// hooksFirst reports whether the first top-level statement that executes
// got a statement hook. Hoisted function declarations and the directive
// prologue run nothing.
func (in *instrumenter) hooksFirst(body []ast.Statement) bool {
	prologue := true
	for _, st := range body {
		if prologue && isDirective(st) {
			continue
		}
		prologue = false
		switch st.(type) {
		case *ast.FunctionDeclaration, *ast.EmptyStatement:
			continue
		}
		off := in.stmtStart(st)
		return off >= 0 && slices.ContainsFunc(in.sites, func(s site) bool {
			return s.fn < 0 && s.offset == off
		})
	}
	return false
}

// uninstrumented is used when the rewritten source does not compile.
func uninstrumented(s *script) *program {
	return &program{source: s.source}
}

func offsetOf(idx file.Idx) int { return int(idx) - 1 }

// start returns the offset a statement really begins at. Expression nodes
// report the position of their first token inside any wrapping parentheses,
// so the parentheses in front are included. An unset position is -1.
func (in *instrumenter) start(idx file.Idx) int {
	off := offsetOf(idx)
	if off < 0 || off > len(in.src) {
		return -1
	}
	begin := off
	for i := off - 1; i >= 0; i-- {
		switch c := in.src[i]; {
		case c == '(':
			begin = i
		case isSpace(c):
		default:
			return begin
		}
	}
	return begin
}

// stmtStart is start for a statement. The parser leaves the position of an
// if statement unset, so the if keyword is found in front of its test.
func (in *instrumenter) stmtStart(st ast.Statement) int {
	if st, ok := st.(*ast.IfStatement); ok {
		return in.ifKeyword(st)
	}
	return in.start(st.Idx0())
}

func (in *instrumenter) ifKeyword(st *ast.IfStatement) int {
	if st.If > 0 {
		return offsetOf(st.If)
	}
	if st.Test == nil {
		return -1
	}
	i := in.start(st.Test.Idx0())
	for i > 0 && isSpace(in.src[i-1]) {
		i--
	}
	if i < 2 || in.src[i-2:i] != "if" || (i > 2 && isIdentByte(in.src[i-3])) {
		return -1
	}
	return i - 2
}

func (in *instrumenter) insert(off int, format string, args ...any) {
	in.inserts = append(in.inserts, insertion{offset: off, text: fmt.Sprintf(format, args...)})
}

func (in *instrumenter) addSite(off int, sc scope, debugger bool) int {
	in.sites = append(in.sites, site{
		offset:   off,
		loc:      in.script.location(off),
		fn:       sc.fn,
		debugger: debugger,
		inTry:    sc.inTry,
	})
	return len(in.sites) - 1
}

func (in *instrumenter) statements(list []ast.Statement, sc scope, directives bool) {
	for _, st := range list {
		if directives {
			if isDirective(st) {
				continue
			}
			directives = false
		}
		in.statement(st, sc, true)
	}
}

// statement instruments st. Statements of a statement list get a hook
// statement in front of them; other positions are handled by body.
func (in *instrumenter) statement(st ast.Statement, sc scope, listed bool) {
	switch st := st.(type) {
	case nil, *ast.EmptyStatement, *ast.BadStatement:
		return
	case *ast.FunctionDeclaration:
		in.declare(sc, st.Function.Name)
		in.visit(st.Function, sc, "")
		return
	}

	if listed {
		off := in.stmtStart(st)
		if in.hookable(off) {
			_, debugger := st.(*ast.DebuggerStatement)
			in.insert(off, hookStmt, in.addSite(off, sc, debugger))
		}
	}

	switch st := st.(type) {
	case *ast.BlockStatement:
		in.statements(st.List, sc, false)
	case *ast.IfStatement:
		in.walk(st.Test, sc)
		in.body(st.Consequent, sc, false)
		if st.Alternate != nil {
			in.body(st.Alternate, sc, false)
		}
	case *ast.ForStatement:
		in.walk(st.Initializer, sc)
		in.walk(st.Test, sc)
		in.walk(st.Update, sc)
		in.body(st.Body, sc, true)
	case *ast.ForInStatement:
		in.walk(st.Into, sc)
		in.walk(st.Source, sc)
		in.body(st.Body, sc, true)
	case *ast.ForOfStatement:
		in.walk(st.Into, sc)
		in.walk(st.Source, sc)
		in.body(st.Body, sc, true)
	case *ast.WhileStatement:
		in.walk(st.Test, sc)
		in.body(st.Body, sc, true)
	case *ast.DoWhileStatement:
		in.body(st.Body, sc, true)
		in.walk(st.Test, sc)
	case *ast.WithStatement:
		in.walk(st.Object, sc)
		in.body(st.Body, sc, false)
	case *ast.LabelledStatement:
		// a hook between the label and its statement would detach the label
		in.statement(st.Statement, sc, false)
	case *ast.TryStatement:
		inner := sc
		inner.inTry = inner.inTry || st.Catch != nil
		in.statements(st.Body.List, inner, false)
		if st.Catch != nil {
			in.catchClause(st.Catch, sc)
		}
		if st.Finally != nil {
			in.statements(st.Finally.List, sc, false)
		}
	case *ast.SwitchStatement:
		in.walk(st.Discriminant, sc)
		for _, c := range st.Body {
			in.walk(c.Test, sc)
			in.statements(c.Consequent, sc, false)
		}
	case *ast.VariableStatement:
		in.bindings(st.List, sc)
	case *ast.LexicalDeclaration:
		in.bindings(st.List, sc)
	case *ast.ClassDeclaration:
		in.declare(sc, st.Class.Name)
		in.visit(st.Class, sc, "")
	default:
		in.children(st, sc)
	}
}

// body instruments the single statement controlled by an if, loop or with.
// Only expression, return and throw statements and nested ifs can take an
// inline hook there; loops also hook an empty body so a running busy loop
// still reaches the session.
func (in *instrumenter) body(st ast.Statement, sc scope, loop bool) {
	switch b := st.(type) {
	case *ast.BlockStatement:
		if loop && len(b.List) == 0 {
			off := offsetOf(b.LeftBrace)
			in.inline(off+1, hookStmt, off, sc)
		}
	case *ast.EmptyStatement:
		if loop {
			off := offsetOf(b.Semicolon)
			in.inline(off, hookEmpty, off, sc)
		}
	case *ast.ExpressionStatement:
		off := in.start(b.Idx0())
		in.inline(off, hookInline, off, sc)
	case *ast.ReturnStatement:
		if b.Argument != nil {
			in.inline(in.start(b.Argument.Idx0()), hookInline, offsetOf(b.Return), sc)
		}
	case *ast.ThrowStatement:
		if b.Argument != nil {
			in.inline(in.start(b.Argument.Idx0()), hookInline, offsetOf(b.Throw), sc)
		}
	case *ast.IfStatement:
		at := offsetOf(b.Test.Idx0())
		loc := in.ifKeyword(b)
		if loc < 0 {
			loc = at
		}
		in.inline(at, hookInline, loc, sc)
	}
	in.statement(st, sc, false)
}

// inline inserts a hook for a site reported at loc. Nothing is inserted
// when either position is unknown.
func (in *instrumenter) inline(off int, format string, loc int, sc scope) {
	if off < 0 || loc < 0 || off > len(in.src) || loc > len(in.src) {
		return
	}
	in.insert(off, format, in.addSite(loc, sc, false))
}

func (in *instrumenter) catchClause(c *ast.CatchStatement, sc scope) {
	if id, ok := c.Parameter.(*ast.Identifier); ok && c.Body != nil {
		in.insert(offsetOf(c.Body.LeftBrace)+1, catchHook, id.Name.String())
	}
	if c.Body != nil {
		in.statements(c.Body.List, sc, false)
	}
}

func (in *instrumenter) hookable(off int) bool {
	if off < 0 || off > len(in.src) {
		return false
	}
	// the statement must start a token of its own
	return off == 0 || !isIdentByte(in.src[off-1])
}

// function instruments a function body with an enter/leave bracket and
// statement hooks. Generator and async bodies are left alone because
// their frames outlive a single call.
func (in *instrumenter) function(at file.Idx, name string, params *ast.ParameterList, body *ast.BlockStatement, sc scope) {
	if params != nil {
		in.children(params, sc)
	}
	if body == nil {
		return
	}
	first := slices.IndexFunc(body.List, func(st ast.Statement) bool { return !isDirective(st) })
	if first < 0 {
		return
	}
	if _, ok := body.List[first].(*ast.FunctionDeclaration); ok && first > 0 {
		return
	}

	fn := len(in.functions)
	in.functions = append(in.functions, function{
		name:   name,
		loc:    in.script.location(offsetOf(at)),
		locals: parameterNames(params),
	})
	inner := scope{fn: fn}

	enterAt := offsetOf(body.LeftBrace) + 1
	if first > 0 {
		enterAt = in.start(body.List[first].Idx0())
	}
	in.insert(enterAt, frameEnter, fn)
	in.statements(body.List, inner, true)
	in.insert(offsetOf(body.RightBrace), "%s", frameLeave)
}

// visit handles an expression-level node, instrumenting nested functions.
// hint names an anonymous function from its binding or property key.
func (in *instrumenter) visit(n ast.Node, sc scope, hint string) {
	if n == nil {
		return
	}
	if v := reflect.ValueOf(n); v.Kind() == reflect.Pointer && v.IsNil() {
		return
	}
	switch n := n.(type) {
	case *ast.FunctionLiteral:
		if n.Async || n.Generator {
			return
		}
		name := hint
		if n.Name != nil {
			name = n.Name.Name.String()
		}
		in.function(n.Idx0(), name, n.ParameterList, n.Body, sc)
	case *ast.ArrowFunctionLiteral:
		if n.Async {
			return
		}
		if body, ok := n.Body.(*ast.BlockStatement); ok {
			in.function(n.Idx0(), hint, n.ParameterList, body, sc)
			return
		}
		in.children(n, sc)
	case *ast.ClassStaticBlock:
	case *ast.MethodDefinition:
		if n.Computed {
			in.walk(n.Key, sc)
		}
		in.visit(n.Body, sc, propertyName(n.Key))
	case *ast.PropertyKeyed:
		if n.Computed {
			in.walk(n.Key, sc)
		}
		in.visit(n.Value, sc, propertyName(n.Key))
	case *ast.AssignExpression:
		in.walk(n.Left, sc)
		hint = ""
		if id, ok := n.Left.(*ast.Identifier); ok {
			hint = id.Name.String()
		}
		in.visit(n.Right, sc, hint)
	case ast.Statement:
		in.statement(n, sc, false)
	default:
		in.children(n, sc)
	}
}

// walk visits v when it is a node, or its fields when it is any other AST
// value such as a for-loop initializer.
func (in *instrumenter) walk(v any, sc scope) {
	if v == nil {
		return
	}
	in.walkValue(reflect.ValueOf(v), sc, false)
}

// children visits the fields of n without visiting n itself.
func (in *instrumenter) children(n any, sc scope) {
	in.walkValue(reflect.ValueOf(n), sc, true)
}

func (in *instrumenter) walkValue(v reflect.Value, sc scope, root bool) {
	switch v.Kind() {
	case reflect.Interface:
		if !v.IsNil() {
			in.walkValue(v.Elem(), sc, root)
		}
	case reflect.Pointer:
		if v.IsNil() {
			return
		}
		if !root && v.Type().Implements(nodeType) {
			in.visit(v.Interface().(ast.Node), sc, "")
			return
		}
		in.walkValue(v.Elem(), sc, false)
	case reflect.Struct:
		t := v.Type()
		if t.PkgPath() != astPkgPath {
			return
		}
		for i := range t.NumField() {
			f := t.Field(i)
			// declaration lists alias bindings already reachable from statements
			if !f.IsExported() || f.Name == "DeclarationList" {
				continue
			}
			in.walkValue(v.Field(i), sc, false)
		}
	case reflect.Slice:
		for i := range v.Len() {
			in.walkValue(v.Index(i), sc, false)
		}
	}
}

func (in *instrumenter) bindings(list []*ast.Binding, sc scope) {
	for _, b := range list {
		id, ok := b.Target.(*ast.Identifier)
		if !ok {
			in.walk(b.Target, sc)
			in.walk(b.Initializer, sc)
			continue
		}
		in.declare(sc, id)
		in.visit(b.Initializer, sc, id.Name.String())
	}
}

func (in *instrumenter) declare(sc scope, id *ast.Identifier) {
	if sc.fn < 0 || id == nil {
		return
	}
	name := id.Name.String()
	fn := &in.functions[sc.fn]
	if !slices.Contains(fn.locals, name) {
		fn.locals = append(fn.locals, name)
	}
}

func parameterNames(params *ast.ParameterList) []string {
	if params == nil {
		return nil
	}
	var names []string
	for _, b := range params.List {
		if id, ok := b.Target.(*ast.Identifier); ok {
			names = append(names, id.Name.String())
		}
	}
	if id, ok := params.Rest.(*ast.Identifier); ok {
		names = append(names, id.Name.String())
	}
	return names
}

func propertyName(key ast.Expression) string {
	switch k := key.(type) {
	case *ast.StringLiteral:
		return k.Value.String()
	case *ast.Identifier:
		return k.Name.String()
	case *ast.NumberLiteral:
		return k.Literal
	}
	return ""
}

func isDirective(st ast.Statement) bool {
	es, ok := st.(*ast.ExpressionStatement)
	if !ok {
		return false
	}
	_, ok = es.Expression.(*ast.StringLiteral)
	return ok
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
