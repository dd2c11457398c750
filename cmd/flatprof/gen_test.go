package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestEmit(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package demo\n")

	var stdout bytes.Buffer
	if err := emit(&genOptions{}, "demo.go", src, &stdout); err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	if stdout.String() != "// demo.go\npackage demo\n" {
		t.Fatalf("unexpected output %q", stdout.String())
	}

	out := filepath.Join(dir, "out")
	if err := emit(&genOptions{output: out}, "/src/demo.go", src, &stdout); err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	if got, err := os.ReadFile(filepath.Join(out, "demo.go")); err != nil || !bytes.Equal(got, src) {
		t.Fatalf("unexpected file %q, %v", got, err)
	}

	name := filepath.Join(dir, "demo.go")
	if err := emit(&genOptions{write: true}, name, src, &stdout); err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	if got, err := os.ReadFile(name); err != nil || !bytes.Equal(got, src) {
		t.Fatalf("unexpected file %q, %v", got, err)
	}
}
