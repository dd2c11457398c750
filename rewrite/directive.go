package rewrite

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"strconv"
	"strings"
	"time"
)

const (
	// DirectivePrefix marks a function for instrumentation, e.g.
	//
	//	//flatprof:profile limit=300ms ignore_builtins=false blacklist=log.Printf,handlers[*]
	DirectivePrefix = "//flatprof:profile"

	// NoCallback disables the below or above callback.
	NoCallback = "-"
)

var (
	ErrNoLimit    = errors.New("time limit is required")
	ErrNoCallback = errors.New("at least one of below and above callback must be set")
)

// Directive holds the profiling options of one function.
type Directive struct {
	Limit    time.Duration
	HasLimit bool
	// Below and Above are Go expressions naming a flatprof.Callback. Empty
	// selects the default log callback, NoCallback disables the slot.
	Below          string
	Above          string
	IgnoreBuiltins bool
	Blacklist      []string
	Whitelist      []string
}

// DefaultDirective is used for options missing from a directive comment.
func DefaultDirective() Directive {
	return Directive{IgnoreBuiltins: true}
}

// findDirective returns the directive text of a function doc comment.
func findDirective(doc *ast.CommentGroup) (string, bool) {
	if doc == nil {
		return "", false
	}
	for _, c := range doc.List {
		if c.Text == DirectivePrefix || strings.HasPrefix(c.Text, DirectivePrefix+" ") {
			return strings.TrimPrefix(c.Text, DirectivePrefix), true
		}
	}
	return "", false
}

// ParseDirective parses the options following the directive prefix on top of
// the given defaults.
func ParseDirective(options string, defaults Directive) (Directive, error) {
	d := defaults
	for _, field := range strings.Fields(options) {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 || kv[1] == "" {
			return d, fmt.Errorf("option %q: expected key=value", field)
		}
		key, value := kv[0], kv[1]
		switch key {
		case "limit":
			limit, err := parseLimit(value)
			if err != nil {
				return d, fmt.Errorf("option limit: %w", err)
			}
			d.Limit, d.HasLimit = limit, true
		case "below", "above":
			if err := validateCallback(value); err != nil {
				return d, fmt.Errorf("option %s: %w", key, err)
			}
			if key == "below" {
				d.Below = value
			} else {
				d.Above = value
			}
		case "ignore_builtins":
			v, err := strconv.ParseBool(value)
			if err != nil {
				return d, fmt.Errorf("option ignore_builtins: %w", err)
			}
			d.IgnoreBuiltins = v
		case "blacklist":
			d.Blacklist = splitList(value)
		case "whitelist":
			d.Whitelist = splitList(value)
		default:
			return d, fmt.Errorf("unknown option %q", key)
		}
	}
	if !d.HasLimit {
		return d, ErrNoLimit
	}
	if d.Below == NoCallback && d.Above == NoCallback {
		return d, ErrNoCallback
	}
	return d, nil
}

// parseLimit accepts a Go duration ("300ms") or plain seconds ("0.3").
func parseLimit(s string) (time.Duration, error) {
	limit, err := time.ParseDuration(s)
	if err != nil {
		seconds, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		limit = time.Duration(seconds * float64(time.Second))
	}
	if limit < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return limit, nil
}

func validateCallback(s string) error {
	if s == NoCallback {
		return nil
	}
	expr, err := parser.ParseExpr(s)
	if err != nil {
		return fmt.Errorf("invalid callback %q", s)
	}
	switch e := expr.(type) {
	case *ast.Ident:
		return nil
	case *ast.SelectorExpr:
		if _, ok := e.X.(*ast.Ident); ok {
			return nil
		}
	}
	return fmt.Errorf("callback %q must be a function name", s)
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
