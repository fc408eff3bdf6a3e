package command

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/js-debug-bridge/internal/config"
	"github.com/joeycumines/js-debug-bridge/internal/inspector"
)

// lineSink receives one protocol message per Write.
type lineSink chan string

func (l lineSink) Write(p []byte) (int, error) {
	l <- strings.TrimSuffix(string(p), "\n")
	return len(p), nil
}

type debugRun struct {
	t      *testing.T
	stdin  *io.PipeWriter
	out    lineSink
	stderr *bytes.Buffer
	done   chan error
	cancel context.CancelFunc
}

func newFlagSet(cmd Command) *flag.FlagSet {
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.SetupFlags(fs)
	return fs
}

func writeScript(t *testing.T, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.js")
	require.NoError(t, os.WriteFile(path, []byte(source), 0644))
	return path
}

func startDebug(t *testing.T, source string, flags ...string) *debugRun {
	t.Helper()
	cmd := NewDebugCommand(config.NewConfig())
	fs := newFlagSet(cmd)
	require.NoError(t, fs.Parse(append(append([]string{"-pretty", "never"}, flags...), writeScript(t, source))))

	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	r := &debugRun{
		t:      t,
		stdin:  pw,
		out:    make(lineSink, 256),
		stderr: &bytes.Buffer{},
		done:   make(chan error, 1),
		cancel: cancel,
	}
	t.Cleanup(func() {
		cancel()
		_ = pw.Close()
	})
	go func() {
		r.done <- cmd.Execute(ctx, fs.Args(), IO{In: pr, Out: r.out, Err: r.stderr})
	}()
	return r
}

// next returns the next stdout message, failing after a timeout.
func (r *debugRun) next() string {
	r.t.Helper()
	select {
	case line := <-r.out:
		return line
	case <-time.After(5 * time.Second):
		r.t.Fatal("timed out waiting for output")
		return ""
	}
}

// until skips messages until one contains substr.
func (r *debugRun) until(substr string) string {
	r.t.Helper()
	for {
		if line := r.next(); strings.Contains(line, substr) {
			return line
		}
	}
}

func (r *debugRun) send(id int, method string, params any) {
	r.t.Helper()
	msg, err := json.Marshal(map[string]any{"id": id, "method": method, "params": params})
	require.NoError(r.t, err)
	_, err = r.stdin.Write(append(msg, '\n'))
	require.NoError(r.t, err)
}

func (r *debugRun) wait() error {
	r.t.Helper()
	select {
	case err := <-r.done:
		return err
	case <-time.After(5 * time.Second):
		r.t.Fatal("timed out waiting for the debug command")
		return nil
	}
}

func TestDebugCommand_Session(t *testing.T) {
	r := startDebug(t, "var a = 1;\na + 1;")

	parsed := r.next()
	assert.Contains(t, parsed, `"method":"Debugger.scriptParsed"`)
	assert.Contains(t, parsed, `"scriptId":"1"`)
	assert.Contains(t, r.next(), `"reason":"DebuggerStart:`)

	r.send(10, "Debugger.setBreakpoint", map[string]any{"location": map[string]any{"scriptId": "1", "lineNumber": 1}})
	assert.Equal(t, `{"id":10,"result":{"breakpointId":"1:1:0:1","actualLocation":{"scriptId":"1","lineNumber":1,"columnNumber":0}}}`, r.next())

	r.send(11, "Debugger.resume", nil)
	hit := r.until(`"method":"Debugger.paused"`)
	assert.Contains(t, hit, `"hitBreakpoints":["1:1:0:1"]`)

	r.send(12, "Debugger.evaluateOnCallFrame", map[string]any{
		"callFrameId": `{"ordinal":0,"injectedScriptId":1}`,
		"expression":  "a * 10",
	})
	assert.Equal(t, `{"id":12,"result":{"result":{"type":"number","value":10,"description":"10"}}}`, r.until(`"id":12`))

	require.NoError(t, r.stdin.Close())
	require.NoError(t, r.wait())
	assert.Equal(t, "result: 2\n", r.stderr.String())
}

func TestDebugCommand_EndOfInputRunsToCompletion(t *testing.T) {
	r := startDebug(t, "debugger;\nvar x = 'done';\nx;")
	r.until(`"method":"Debugger.paused"`)
	require.NoError(t, r.stdin.Close())
	require.NoError(t, r.wait())
	assert.Equal(t, "result: \"done\"\n", r.stderr.String())
}

func TestDebugCommand_ProtocolErrors(t *testing.T) {
	r := startDebug(t, "1;")
	r.until(`"method":"Debugger.paused"`)

	_, err := r.stdin.Write([]byte("not json\n"))
	require.NoError(t, err)
	assert.Contains(t, r.until(`"error"`), `"code":-32700`)

	r.send(5, "Debugger.nope", nil)
	assert.Contains(t, r.until(`"id":5`), `'Debugger.nope' wasn't found`)

	require.NoError(t, r.stdin.Close())
	require.NoError(t, r.wait())
}

func TestDebugCommand_CancelTerminates(t *testing.T) {
	r := startDebug(t, "var n = 0;\nwhile (true) {\n  n++;\n}")
	r.until(`"method":"Debugger.paused"`)
	r.send(1, "Debugger.resume", nil)
	r.until(`"method":"Debugger.resumed"`)

	r.cancel()
	err := r.wait()
	assert.ErrorIs(t, err, inspector.ErrTerminated)
}

func TestDebugCommand_SyntaxError(t *testing.T) {
	r := startDebug(t, "var = ;")
	assert.Contains(t, r.next(), `"method":"Debugger.scriptFailedToParse"`)

	err := r.wait()
	var serr *inspector.SyntaxError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, err.Error(), "script.js:1:")
}

func TestDebugCommand_PauseOnExceptionsFlag(t *testing.T) {
	r := startDebug(t, "try {\n  throw new Error('boom');\n} catch (e) {\n  e;\n}\n0;", "-pause-on-exceptions", "all")
	r.until(`"method":"Debugger.paused"`)
	r.send(1, "Debugger.resume", nil)

	exc := r.until(`"method":"Debugger.paused"`)
	assert.Contains(t, exc, `"reason":"exception"`)
	assert.Contains(t, exc, `"uncaught":false`)

	require.NoError(t, r.stdin.Close())
	require.NoError(t, r.wait())
}

func TestDebugCommand_Usage(t *testing.T) {
	cmd := NewDebugCommand(nil)
	stdio, _, stderr := testIO()
	assert.ErrorIs(t, cmd.Execute(context.Background(), nil, stdio), errInvalidArgs)
	assert.Contains(t, stderr.String(), "Usage: jsdbg debug")

	err := cmd.Execute(context.Background(), []string{filepath.Join(t.TempDir(), "missing.js")}, stdio)
	assert.ErrorContains(t, err, "reading script")
}

func TestPrettyOutput(t *testing.T) {
	var buf bytes.Buffer
	for mode, want := range map[string]bool{"always": true, "never": false, "auto": false, "": false} {
		got, err := prettyOutput(mode, &buf)
		require.NoError(t, err)
		assert.Equal(t, want, got, mode)
	}
	_, err := prettyOutput("loud", &buf)
	assert.Error(t, err)

	w := &messageWriter{w: &buf, pretty: true}
	w.write(`{"id":1,"result":{}}`)
	w.write(`not json`)
	assert.Equal(t, "{\n  \"id\": 1,\n  \"result\": {}\n}\nnot json\n", buf.String())
}
