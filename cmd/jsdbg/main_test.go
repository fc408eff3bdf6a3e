package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joeycumines/js-debug-bridge/internal/command"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("JSDBG_CONFIG", filepath.Join(t.TempDir(), "config"))
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, command.IO{In: strings.NewReader(stdin), Out: &stdout, Err: &stderr})
	return stdout.String(), stderr.String(), err
}

func TestRun(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"--help"}, {"help"}} {
		out, _, err := runCLI(t, "", args...)
		if err != nil {
			t.Errorf("%v: %v", args, err)
		}
		if !strings.Contains(out, "Usage: jsdbg <command>") {
			t.Errorf("%v: output %q", args, out)
		}
	}

	out, _, err := runCLI(t, "", "version")
	if err != nil || out != "jsdbg version "+version+"\n" {
		t.Errorf("version: %q %v", out, err)
	}

	_, errOut, err := runCLI(t, "", "bogus")
	if err == nil || !strings.Contains(errOut, "Unknown command: bogus") {
		t.Errorf("bogus: %q %v", errOut, err)
	}

	_, _, err = runCLI(t, "", "debug", "-h")
	if !errors.Is(err, flag.ErrHelp) {
		t.Errorf("debug -h: %v", err)
	}
}

func TestRunDebug(t *testing.T) {
	script := filepath.Join(t.TempDir(), "main.js")
	if err := os.WriteFile(script, []byte("var n = 40;\nn + 2;"), 0644); err != nil {
		t.Fatal(err)
	}

	out, errOut, err := runCLI(t, `{"id":100,"method":"Debugger.getScriptSource","params":{"scriptId":"1"}}`+"\n", "debug", "-pretty", "never", script)
	if err != nil {
		t.Fatalf("debug: %v (%s)", err, errOut)
	}
	if errOut != "result: 42\n" {
		t.Errorf("stderr = %q", errOut)
	}
	for _, want := range []string{
		`"method":"Debugger.scriptParsed"`,
		`"url":"` + script + `"`,
		`"reason":"DebuggerStart:`,
		`{"id":100,"result":{"scriptSource":"var n = 40;\nn + 2;"}}`,
		`"method":"Debugger.resumed"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
