package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readConfig(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}
	return string(data)
}

func TestSetKeyInFile_NewKeyEmptyFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "config")

	if err := SetKeyInFile(path, "pretty", "always"); err != nil {
		t.Fatalf("SetKeyInFile returned error: %v", err)
	}
	if got := strings.TrimSpace(readConfig(t, path)); got != "pretty always" {
		t.Fatalf("expected 'pretty always', got %q", got)
	}
}

func TestSetKeyInFile_UpdateExistingKey(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config")
	initial := "# jsdbg\nlog.level info\n\n# exceptions\npause-on-exceptions none\n"
	if err := os.WriteFile(path, []byte(initial), 0644); err != nil {
		t.Fatal(err)
	}

	if err := SetKeyInFile(path, "pause-on-exceptions", "all"); err != nil {
		t.Fatalf("SetKeyInFile returned error: %v", err)
	}

	want := "# jsdbg\nlog.level info\n\n# exceptions\npause-on-exceptions all\n"
	if got := readConfig(t, path); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSetKeyInFile_InsertsBeforeFirstSection(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte("log.level info\n\n[debug]\npretty never\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := SetKeyInFile(path, "pretty", "always"); err != nil {
		t.Fatalf("SetKeyInFile returned error: %v", err)
	}

	content := readConfig(t, path)
	if strings.Index(content, "pretty always") > strings.Index(content, "[debug]") {
		t.Fatalf("expected global key before the first section, got %q", content)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath returned error: %v", err)
	}
	if v, _ := cfg.GetGlobalOption("pretty"); v != "always" {
		t.Fatalf("global pretty = %q", v)
	}
	if v, _ := cfg.GetCommandOption("debug", "pretty"); v != "never" {
		t.Fatalf("section pretty must be untouched, got %q", v)
	}
}

func TestSetKeyInFile_EmptyValue(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config")

	if err := SetKeyInFile(path, "log.file", ""); err != nil {
		t.Fatalf("SetKeyInFile returned error: %v", err)
	}
	if got := strings.TrimSpace(readConfig(t, path)); got != "log.file" {
		t.Fatalf("expected 'log.file', got %q", got)
	}
}

func TestSetKeyInFile_NoTempFilesLeft(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config")

	for _, kv := range [][2]string{{"log.level", "debug"}, {"sync-timeout", "2s"}, {"log.level", "warn"}} {
		if err := SetKeyInFile(path, kv[0], kv[1]); err != nil {
			t.Fatalf("SetKeyInFile(%q) returned error: %v", kv[0], err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-config-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if v := cfg.GetString("log.level"); v != "warn" {
		t.Fatalf("log.level = %q", v)
	}
	if d := cfg.GetDuration("sync-timeout"); d.Seconds() != 2 {
		t.Fatalf("sync-timeout = %v", d)
	}
}

func TestWriteFileAtomic_DirectoryFailure(t *testing.T) {
	t.Parallel()
	parent := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(parent, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := writeFileAtomic(filepath.Join(parent, "config"), []byte("x"), 0644); err == nil {
		t.Fatal("expected error when the parent is a file")
	}
}

func TestSetSectionKeyInFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config")
	initial := "log.level info\n\n[debug]\npretty never\n\n[other]\nx 1\n"
	if err := os.WriteFile(path, []byte(initial), 0644); err != nil {
		t.Fatal(err)
	}

	if err := SetSectionKeyInFile(path, "debug", "resource-name", "main.js"); err != nil {
		t.Fatal(err)
	}
	if err := SetSectionKeyInFile(path, "debug", "pretty", "always"); err != nil {
		t.Fatal(err)
	}
	if err := SetSectionKeyInFile(path, "help", "pretty", "never"); err != nil {
		t.Fatal(err)
	}

	want := "log.level info\n\n[debug]\npretty always\nresource-name main.js\n\n[other]\nx 1\n\n[help]\npretty never\n"
	if got := readConfig(t, path); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
