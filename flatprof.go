// Package flatprof is the runtime side of flat call profiling.
//
// Functions marked with a //flatprof:profile directive are rewritten by the
// flatprof command so that every selected call expression in their body goes
// through Wrap, Stop or Void. The rewritten function opens an Invocation with
// Profiler.Begin and closes it with a deferred Invocation.End, which measures
// the total duration and hands the recorded call timings to the below or above
// callback.
package flatprof

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoCallback    = errors.New("flatprof: at least one of below and above callback must be set")
	ErrNegativeLimit = errors.New("flatprof: time limit must not be negative")
)

// Callback receives the total duration of one invocation, the configured
// limit, the call timings recorded during that invocation and the profiler of
// the instrumented function.
type Callback func(total, limit time.Duration, times Times, p *Profiler)

// Config is fixed when the profiler is created.
type Config struct {
	// Limit selects the callback: Below when the total is under it, Above
	// when the total is equal or over it.
	Limit time.Duration
	Below Callback
	Above Callback
	// Logger used by LogBelow and LogAbove. Defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

// Profiler belongs to one instrumented function and is shared by all of its
// invocations.
type Profiler struct {
	name  string
	conf  Config
	names *nameCache
	now   func() time.Time
}

// New creates the profiler for the function with the given qualified name.
func New(name string, conf Config) (*Profiler, error) {
	if conf.Below == nil && conf.Above == nil {
		return nil, ErrNoCallback
	}
	if conf.Limit < 0 {
		return nil, ErrNegativeLimit
	}
	return &Profiler{
		name:  name,
		conf:  conf,
		names: newNameCache(),
		now:   time.Now,
	}, nil
}

// MustNew is like New but panics on error. Generated code declares profilers
// with it so a bad configuration fails during package initialization.
func MustNew(name string, conf Config) *Profiler {
	p, err := New(name, conf)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}
	return p
}

// Name is the qualified name of the instrumented function, e.g. "main.handle"
// or "store.(*DB).Get".
func (p *Profiler) Name() string {
	return p.name
}

func (p *Profiler) Limit() time.Duration {
	return p.conf.Limit
}

func (p *Profiler) Logger() *zerolog.Logger {
	if p.conf.Logger != nil {
		return p.conf.Logger
	}
	return &log.Logger
}

// Begin starts timing one invocation of the instrumented function. The
// returned Invocation must be closed with End.
func (p *Profiler) Begin() *Invocation {
	return &Invocation{
		p:     p,
		times: make(Times),
		start: p.now(),
	}
}
