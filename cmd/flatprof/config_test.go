package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mrproliu/flatprof/rewrite"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flatprof.yaml")
	err := os.WriteFile(path, []byte(`limit: 300ms
ignore_builtins: false
blacklist:
  - log.Printf
  - handlers[*]
log_level: debug
`), 0o644)
	if err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	t.Setenv("FLATPROF_WHITELIST", "load,store")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	expected := Config{
		Limit:     300 * time.Millisecond,
		Blacklist: []string{"log.Printf", "handlers[*]"},
		Whitelist: []string{"load", "store"},
		LogLevel:  "debug",
	}
	if diff := cmp.Diff(expected, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv(configEnv, "")
	t.Setenv("FLATPROF_LIMIT", "2s")

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	expected := defaultConfig()
	expected.Limit = 2 * time.Second
	if diff := cmp.Diff(expected, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestConfigDefaults(t *testing.T) {
	d := Config{Limit: time.Second, IgnoreBuiltins: true, Blacklist: []string{"a"}}.Defaults()
	expected := rewrite.Directive{Limit: time.Second, HasLimit: true, IgnoreBuiltins: true, Blacklist: []string{"a"}}
	if diff := cmp.Diff(expected, d); diff != "" {
		t.Fatalf("directive mismatch (-want +got):\n%s", diff)
	}

	if d := defaultConfig().Defaults(); d.HasLimit {
		t.Fatalf("expected no default limit but got %v", d.Limit)
	}
}
