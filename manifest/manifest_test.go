package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "test-app"

[compiler]
verify = false
debug-lines = false

[driver]
workers = 8

[cache]
path = "build/programs.db"

[log]
verbosity = 2
file = "garnet.log"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Compiler.Verify {
		t.Error("compiler verify = true, want false")
	}
	if m.Compiler.DebugLines {
		t.Error("compiler debug-lines = true, want false")
	}
	if m.Driver.Workers != 8 {
		t.Errorf("driver workers = %d, want 8", m.Driver.Workers)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", m.Log.Verbosity)
	}
	if want := filepath.Join(m.Dir, "build", "programs.db"); m.CachePath() != want {
		t.Errorf("cache path = %q, want %q", m.CachePath(), want)
	}
	if want := filepath.Join(m.Dir, "garnet.log"); m.LogFile() != want {
		t.Errorf("log file = %q, want %q", m.LogFile(), want)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	opts := m.CompilerOptions()
	if !opts.Verify || !opts.DebugLines {
		t.Errorf("default options = %+v, want verify and debug lines", opts)
	}
	if m.Driver.Workers != DefaultWorkers {
		t.Errorf("default workers = %d, want %d", m.Driver.Workers, DefaultWorkers)
	}
	if m.CachePath() != "" {
		t.Errorf("default cache path = %q, want disabled", m.CachePath())
	}
	if m.LogFile() != "" {
		t.Errorf("default log file = %q, want stderr", m.LogFile())
	}
}

func TestLoadManifestInvalidWorkers(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[driver]
workers = 0
`)

	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "workers") {
		t.Fatalf("Load error = %v, want workers error", err)
	}
}

func TestLoadManifestParseError(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[project\nname = ")

	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "parse error") {
		t.Fatalf("Load error = %v, want parse error", err)
	}
}

func TestLoadManifestMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("expected error for missing garnet.toml")
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	writeManifest(t, dir, `[project]
name = "found-project"
`)

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no garnet.toml exists")
	}
}

func TestResolvePaths(t *testing.T) {
	m := &Manifest{
		Dir:   "/app",
		Cache: CacheConfig{Path: ":memory:"},
		Log:   LogConfig{File: "/var/log/garnet.log"},
	}

	if got := m.CachePath(); got != ":memory:" {
		t.Errorf("CachePath() = %q, want :memory:", got)
	}
	if got := m.LogFile(); got != "/var/log/garnet.log" {
		t.Errorf("LogFile() = %q, want absolute path unchanged", got)
	}
}
