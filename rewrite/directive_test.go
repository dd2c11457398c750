package rewrite

import (
	"errors"
	"go/ast"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseDirective(t *testing.T) {
	tests := []struct {
		name     string
		options  string
		defaults Directive
		expected Directive
		err      error
	}{
		{
			name:     "limit only",
			options:  " limit=300ms",
			defaults: DefaultDirective(),
			expected: Directive{Limit: 300 * time.Millisecond, HasLimit: true, IgnoreBuiltins: true},
		},
		{
			name:     "limit in seconds",
			options:  " limit=0.3",
			defaults: DefaultDirective(),
			expected: Directive{Limit: 300 * time.Millisecond, HasLimit: true, IgnoreBuiltins: true},
		},
		{
			name:     "all options",
			options:  " limit=1s below=- above=report.Slow ignore_builtins=false blacklist=a[*],log.Printf whitelist=load",
			defaults: DefaultDirective(),
			expected: Directive{
				Limit:     time.Second,
				HasLimit:  true,
				Below:     NoCallback,
				Above:     "report.Slow",
				Blacklist: []string{"a[*]", "log.Printf"},
				Whitelist: []string{"load"},
			},
		},
		{
			name:     "limit from defaults",
			options:  "",
			defaults: Directive{Limit: time.Second, HasLimit: true, IgnoreBuiltins: true},
			expected: Directive{Limit: time.Second, HasLimit: true, IgnoreBuiltins: true},
		},
		{
			name:     "missing limit",
			options:  " ignore_builtins=false",
			defaults: DefaultDirective(),
			err:      ErrNoLimit,
		},
		{
			name:     "no callbacks",
			options:  " limit=1s below=- above=-",
			defaults: DefaultDirective(),
			err:      ErrNoCallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDirective(tt.options, tt.defaults)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected error %v but got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error: %v", err)
			}
			if diff := cmp.Diff(tt.expected, d); diff != "" {
				t.Fatalf("directive mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseDirectiveRejectsBadOptions(t *testing.T) {
	for _, options := range []string{
		"limit",
		"limit=",
		"limit=soon",
		"limit=-1s",
		"limit=1s color=red",
		"limit=1s ignore_builtins=maybe",
		"limit=1s above=report()",
		"limit=1s below=a.b.c",
	} {
		if _, err := ParseDirective(options, DefaultDirective()); err == nil {
			t.Fatalf("expected an error for %q", options)
		}
	}
}

func TestFindDirective(t *testing.T) {
	doc := &ast.CommentGroup{List: []*ast.Comment{
		{Text: "// run does things."},
		{Text: "//flatprof:profile limit=1s"},
	}}
	options, ok := findDirective(doc)
	if !ok || options != " limit=1s" {
		t.Fatalf("unexpected directive %q, %v", options, ok)
	}
	if _, ok := findDirective(&ast.CommentGroup{List: []*ast.Comment{{Text: "//flatprof:profiles"}}}); ok {
		t.Fatal("expected no directive")
	}
	if _, ok := findDirective(nil); ok {
		t.Fatal("expected no directive")
	}
}
