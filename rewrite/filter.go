package rewrite

import (
	"fmt"
	"strconv"
	"strings"
)

// Wildcard matches any single subscript key, e.g. "handlers[*]".
const Wildcard = "*"

// Pattern is a call name pattern. A pattern ending in a subscript is compared
// as (prefix, key) so that the wildcard only stands for that one key.
type Pattern struct {
	raw       string
	prefix    string
	key       string
	subscript bool
}

func ParsePattern(s string) (Pattern, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Pattern{}, fmt.Errorf("empty call pattern")
	}
	if strings.Count(s, "[") != strings.Count(s, "]") {
		return Pattern{}, fmt.Errorf("unbalanced subscript in call pattern %q", s)
	}
	p := Pattern{raw: s}
	if prefix, key, ok := splitSubscript(s); ok {
		p.prefix = prefix
		p.key = unquoteKey(key)
		p.subscript = true
		p.raw = prefix + "[" + p.key + "]"
	}
	return p, nil
}

func (p Pattern) String() string {
	return p.raw
}

// Match reports whether the call name matches the pattern.
func (p Pattern) Match(name string) bool {
	if !p.subscript {
		return name == p.raw
	}
	prefix, key, ok := splitSubscript(name)
	if !ok || prefix != p.prefix {
		return false
	}
	return p.key == Wildcard || p.key == key
}

// splitSubscript splits "a.b[c]" into "a.b" and "c". Only the trailing,
// balanced subscript is split off.
func splitSubscript(s string) (prefix, key string, ok bool) {
	if !strings.HasSuffix(s, "]") {
		return "", "", false
	}
	depth := 0
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ']':
			depth++
		case '[':
			depth--
			if depth == 0 {
				if i == 0 {
					return "", "", false
				}
				return s[:i], s[i+1 : len(s)-1], true
			}
		}
	}
	return "", "", false
}

func unquoteKey(key string) string {
	if len(key) >= 2 && (key[0] == '"' || key[0] == '\'' || key[0] == '`') {
		if v, err := strconv.Unquote(key); err == nil {
			return v
		}
	}
	return key
}

// Filter decides which call sites are instrumented.
//
// Builtins are dropped first when ignoreBuiltins is set. A whitelist, when
// given, is the only rule applied after that; otherwise calls matching the
// blacklist are left alone. Combining a whitelist with ignoreBuiltins is
// allowed but usually redundant: whitelisted builtins are still dropped.
type Filter struct {
	ignoreBuiltins bool
	blacklist      []Pattern
	whitelist      []Pattern
}

func NewFilter(ignoreBuiltins bool, blacklist, whitelist []string) (*Filter, error) {
	f := &Filter{ignoreBuiltins: ignoreBuiltins}
	var err error
	if f.blacklist, err = parsePatterns(blacklist); err != nil {
		return nil, fmt.Errorf("blacklist: %w", err)
	}
	if f.whitelist, err = parsePatterns(whitelist); err != nil {
		return nil, fmt.Errorf("whitelist: %w", err)
	}
	return f, nil
}

func parsePatterns(raw []string) ([]Pattern, error) {
	patterns := make([]Pattern, 0, len(raw))
	for _, s := range raw {
		p, err := ParsePattern(s)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

func (f *Filter) ShouldWrap(name string, builtin bool) bool {
	if f.ignoreBuiltins && builtin {
		return false
	}
	if len(f.whitelist) > 0 {
		return matchAny(f.whitelist, name)
	}
	if len(f.blacklist) > 0 {
		return !matchAny(f.blacklist, name)
	}
	return true
}

func matchAny(patterns []Pattern, name string) bool {
	for _, p := range patterns {
		if p.Match(name) {
			return true
		}
	}
	return false
}
