package flatprof

import "testing"

func plainFunc() {}

type qualified struct{}

func (qualified) QualifiedName() string { return "pkg.Qualified" }

type simple struct{}

func (simple) Name() string { return "simple" }

type wrapper struct {
	inner interface{}
}

func (w wrapper) Unwrap() interface{} { return w.inner }

type opaque struct{}

type selfWrapping struct{}

func (s *selfWrapping) Unwrap() interface{} { return s }

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		expected string
	}{
		{name: "plain function", value: plainFunc, expected: "flatprof.plainFunc"},
		{name: "method value", value: (&counter{}).add, expected: "flatprof.(*counter).add"},
		{name: "qualified name", value: qualified{}, expected: "pkg.Qualified"},
		{name: "simple name", value: simple{}, expected: "simple"},
		{name: "wrapped function", value: wrapper{inner: plainFunc}, expected: "flatprof.plainFunc"},
		{name: "wrapped twice", value: wrapper{inner: wrapper{inner: simple{}}}, expected: "simple"},
		{name: "wrapped nothing", value: wrapper{}, expected: "wrapper"},
		{name: "opaque", value: opaque{}, expected: "opaque"},
		{name: "unnamed type", value: []int{1}, expected: "[]int"},
		{name: "nil", value: nil, expected: "nil"},
		{name: "wrapping cycle", value: &selfWrapping{}, expected: "*flatprof.selfWrapping"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if name := Resolve(tt.value); name != tt.expected {
				t.Fatalf("expected %q but was %q", tt.expected, name)
			}
		})
	}
}

type countingNamer struct {
	calls int
}

func (c *countingNamer) Name() string {
	c.calls++
	return "counting"
}

func TestNameCacheByIdentity(t *testing.T) {
	cache := newNameCache()
	first := &countingNamer{}
	for i := 0; i < 3; i++ {
		if name := cache.resolve(first); name != "counting" {
			t.Fatalf("expected counting but was %q", name)
		}
	}
	if first.calls != 1 {
		t.Fatalf("expected one resolution but got %d", first.calls)
	}

	second := &countingNamer{}
	cache.resolve(second)
	if second.calls != 1 {
		t.Fatalf("expected a new callable to be resolved, got %d resolutions", second.calls)
	}

	if name := cache.resolve(plainFunc); name != "flatprof.plainFunc" {
		t.Fatalf("expected flatprof.plainFunc but was %q", name)
	}
}
