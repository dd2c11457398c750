package main

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseCompileOption(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected *compileOptions
	}{
		{
			name: "compile",
			args: []string{
				"/usr/local/go/pkg/tool/linux_amd64/compile", "-o", "$WORK/b001/_pkg_.a", "-trimpath", "$WORK/b001=>",
				"-p", "main", "-lang=go1.21", "-complete", "-buildid", "abc/abc", "-goversion", "go1.21.0",
				"-c=4", "-nolocalimports", "-importcfg", "$WORK/b001/importcfg", "-pack", "./main.go", "./util.go",
			},
			expected: &compileOptions{Package: "main", Output: "$WORK/b001/_pkg_.a", ImportCfg: "$WORK/b001/importcfg"},
		},
		{
			name:     "equals form",
			args:     []string{"compile.exe", "-p=example.com/demo", "-o=out.a", "-importcfg=cfg", "a.go"},
			expected: &compileOptions{Package: "example.com/demo", Output: "out.a", ImportCfg: "cfg"},
		},
		{
			name:     "version query",
			args:     []string{"/usr/local/go/pkg/tool/linux_amd64/compile", "-V=full"},
			expected: &compileOptions{},
		},
		{
			name: "other tool",
			args: []string{"/usr/local/go/pkg/tool/linux_amd64/link", "-o", "a.out"},
		},
		{
			name: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCompileOption(tt.args)
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Fatalf("options mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseImportConfig(t *testing.T) {
	cfg, err := parseImportConfig(strings.NewReader(`# import config
packagefile fmt=/cache/fmt.a
packagefile github.com/mrproliu/flatprof=/cache/flatprof.a

importmap golang.org/x/net/http2=vendor/golang.org/x/net/http2
packagefile vendor/golang.org/x/net/http2=/cache/http2.a
modinfo "whatever"
`))
	if err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	if !cfg.has("fmt") || !cfg.has("github.com/mrproliu/flatprof") || !cfg.has("golang.org/x/net/http2") {
		t.Fatalf("missing packages in %+v", cfg)
	}
	if cfg.has("os") {
		t.Fatal("expected os to be missing")
	}
	if got := cfg.resolve("golang.org/x/net/http2"); got != "vendor/golang.org/x/net/http2" {
		t.Fatalf("unexpected resolved path %q", got)
	}
	if _, err := cfg.lookup("os"); err == nil {
		t.Fatal("expected an error for a missing import")
	}
}

func TestParseImportConfigErrors(t *testing.T) {
	for _, src := range []string{"packagefile fmt", "packagefile =/a.a", "importmap a="} {
		if _, err := parseImportConfig(strings.NewReader(src)); err == nil {
			t.Fatalf("expected an error for %q", src)
		}
	}
}

func TestToolexecPassesThroughWithoutDirectives(t *testing.T) {
	args := []string{"/usr/local/go/pkg/tool/linux_amd64/compile", "-p", "main", "-o", "out.a", "testdata/plain.go"}
	got, err := instrument(defaultConfig(), append([]string(nil), args...), parseCompileOption(args))
	if err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	if diff := cmp.Diff(args, got); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestToolexecSkipsPackagesWithoutRuntime(t *testing.T) {
	args := []string{"compile", "-p", "main", "-o", t.TempDir() + "/out.a", "-importcfg", "testdata/importcfg", "testdata/marked.go"}
	got, err := instrument(defaultConfig(), append([]string(nil), args...), parseCompileOption(args))
	if err != nil {
		t.Fatalf("expected no error: %v", err)
	}
	if diff := cmp.Diff(args, got); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}
