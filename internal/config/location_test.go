package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetConfigPathEnvOverride(t *testing.T) {
	want := filepath.Join(t.TempDir(), "custom")
	t.Setenv(EnvConfigPath, want)

	got, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath: %v", err)
	}
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestGetConfigPathDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvConfigPath, "")
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	got, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath: %v", err)
	}
	if want := filepath.Join(home, ".jsdbg", "config"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEnsureConfigDirCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	t.Setenv(EnvConfigPath, filepath.Join(dir, "config"))

	if err := EnsureConfigDir(); err != nil {
		t.Fatalf("EnsureConfigDir: %v", err)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Fatalf("expected directory %s: %v", dir, err)
	}
}

func TestEnsureConfigDirFailsWhenParentIsFile(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(parent, nil, 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigPath, filepath.Join(parent, "config"))

	if err := EnsureConfigDir(); err == nil {
		t.Fatal("expected error when parent is a file")
	}
}
