package flatprof

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// QualifiedNamer is implemented by callables that know their qualified name.
type QualifiedNamer interface {
	QualifiedName() string
}

// Namer is implemented by callables that only know a simple name.
type Namer interface {
	Name() string
}

// Unwrapper is implemented by callables that decorate another callable.
type Unwrapper interface {
	Unwrap() interface{}
}

const maxUnwrapDepth = 32

// Resolve returns a display name for a callable. It checks, in order, for a
// qualified name, the runtime symbol of a function value, a simple name and a
// wrapped callable, and falls back to the type name.
func Resolve(v interface{}) string {
	return resolve(v, 0)
}

func resolve(v interface{}, depth int) string {
	if n, ok := v.(QualifiedNamer); ok {
		if name := n.QualifiedName(); name != "" {
			return name
		}
	}
	if name := funcName(v); name != "" {
		return name
	}
	if n, ok := v.(Namer); ok {
		if name := n.Name(); name != "" {
			return name
		}
	}
	if u, ok := v.(Unwrapper); ok && depth < maxUnwrapDepth {
		if inner := u.Unwrap(); inner != nil {
			return resolve(inner, depth+1)
		}
	}
	return typeName(v)
}

// funcName returns the runtime symbol of a function value without its import
// path directory, e.g. "main.load" or "cache.(*LRU).Get".
func funcName(v interface{}) string {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return ""
	}
	f := runtime.FuncForPC(rv.Pointer())
	if f == nil {
		return ""
	}
	name := strings.TrimSuffix(f.Name(), "-fm")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func typeName(v interface{}) string {
	if v == nil {
		return "nil"
	}
	t := reflect.TypeOf(v)
	if t.Name() != "" {
		return t.Name()
	}
	return fmt.Sprintf("%T", v)
}

type nameKey struct {
	typ reflect.Type
	ptr uintptr
}

// nameCache remembers resolved names by callable identity: the dynamic type and
// the code or data pointer. It only grows.
type nameCache struct {
	names sync.Map
}

func newNameCache() *nameCache {
	return &nameCache{}
}

func (c *nameCache) resolve(v interface{}) string {
	key, ok := identity(v)
	if !ok {
		return Resolve(v)
	}
	if name, ok := c.names.Load(key); ok {
		return name.(string)
	}
	name := Resolve(v)
	c.names.Store(key, name)
	return name
}

func identity(v interface{}) (nameKey, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		if rv.IsNil() {
			return nameKey{}, false
		}
		return nameKey{typ: rv.Type(), ptr: rv.Pointer()}, true
	}
	return nameKey{}, false
}
