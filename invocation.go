package flatprof

import (
	"reflect"
	"strconv"
	"time"
)

// Site describes one call expression of an instrumented function. Sites are
// emitted by the rewriter as package level data and never change.
type Site struct {
	FirstLine int
	LastLine  int
	// Source is the call expression as written.
	Source string
	// Builtin is set for calls of predeclared functions, which have no
	// function value to resolve a name from.
	Builtin string
}

// CallSiteKey identifies a call site together with the callee that was
// actually invoked there.
type CallSiteKey struct {
	FirstLine int
	LastLine  int
	Source    string
	Callee    string
}

// Lines returns every source line spanned by the call.
func (k CallSiteKey) Lines() []int {
	lines := make([]int, 0, k.LastLine-k.FirstLine+1)
	for l := k.FirstLine; l <= k.LastLine; l++ {
		lines = append(lines, l)
	}
	return lines
}

// LineSpan renders the lines as "12" or "12-14".
func (k CallSiteKey) LineSpan() string {
	if k.LastLine <= k.FirstLine {
		return strconv.Itoa(k.FirstLine)
	}
	return strconv.Itoa(k.FirstLine) + "-" + strconv.Itoa(k.LastLine)
}

// Times maps call sites to their durations in call order.
type Times map[CallSiteKey][]time.Duration

// Invocation collects the call timings of a single run of an instrumented
// function. It is created by Profiler.Begin and is not safe for concurrent use;
// every run, including recursive and concurrent ones, owns its Invocation.
type Invocation struct {
	p     *Profiler
	start time.Time
	times Times
}

// End stops the invocation timer, runs the callback selected by the total
// duration and drops the collected timings. Generated code defers it, so it
// also runs while a panic unwinds.
func (inv *Invocation) End() {
	total := inv.p.now().Sub(inv.start)
	times := inv.times
	inv.times = nil

	conf := inv.p.conf
	if total < conf.Limit {
		if conf.Below != nil {
			conf.Below(total, conf.Limit, times, inv.p)
		}
	} else if conf.Above != nil {
		conf.Above(total, conf.Limit, times, inv.p)
	}
}

func (inv *Invocation) record(site *Site, fn interface{}, start time.Time) {
	elapsed := inv.p.now().Sub(start)
	callee := site.Builtin
	if callee == "" {
		callee = inv.p.names.resolve(fn)
	}
	key := CallSiteKey{
		FirstLine: site.FirstLine,
		LastLine:  site.LastLine,
		Source:    site.Source,
		Callee:    callee,
	}
	inv.times[key] = append(inv.times[key], elapsed)
}

// Wrap returns a function of the same type as fn that records the duration of
// every call into inv. Arguments are evaluated by the caller before the
// returned function runs, so only the call itself is timed. Results and panics
// of fn pass through unchanged.
func Wrap[F any](inv *Invocation, site *Site, fn F) F {
	v := reflect.ValueOf(fn)
	if inv == nil || v.Kind() != reflect.Func || v.IsNil() {
		return fn
	}
	variadic := v.Type().IsVariadic()
	wrapped := reflect.MakeFunc(v.Type(), func(args []reflect.Value) []reflect.Value {
		defer inv.record(site, fn, inv.p.now())
		if variadic {
			return v.CallSlice(args)
		}
		return v.Call(args)
	})
	return wrapped.Interface().(F)
}

// Stamp is the start of a builtin call. Generated code wraps the builtin in a
// function literal taking the evaluated arguments and defers
// inv.Start(site).Stop() in it, so a builtin that panics is recorded too.
type Stamp struct {
	inv   *Invocation
	site  *Site
	start time.Time
}

// Start marks the beginning of a builtin call at site.
func (inv *Invocation) Start(site *Site) Stamp {
	return Stamp{inv: inv, site: site, start: inv.p.now()}
}

// Stop records the builtin call started by the stamp.
func (s Stamp) Stop() {
	s.inv.record(s.site, nil, s.start)
}
