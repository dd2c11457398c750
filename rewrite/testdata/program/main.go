package main

import (
	"fmt"
	"time"

	"github.com/mrproliu/flatprof"
)

func fast() {}

func slow() {
	time.Sleep(100 * time.Millisecond)
}

func items() []int {
	time.Sleep(100 * time.Millisecond)
	return []int{1, 2, 3}
}

// report prints one line per dispatch: callback, function, site count and
// callee/calls/slow for every site, slowest first.
func report(kind string, times flatprof.Times, p *flatprof.Profiler) {
	fmt.Printf("%s %s sites=%d", kind, p.Name(), len(times))
	for _, s := range flatprof.Summarize(times) {
		fmt.Printf(" %s/%d/%v", s.Key.Callee, s.Calls, s.Total >= 80*time.Millisecond)
	}
	fmt.Println()
}

func below(total, limit time.Duration, times flatprof.Times, p *flatprof.Profiler) {
	report("below", times, p)
}

func above(total, limit time.Duration, times flatprof.Times, p *flatprof.Profiler) {
	report("above", times, p)
}

//flatprof:profile limit=50ms below=below above=above
func tight() {
	fast()
	slow()
}

//flatprof:profile limit=1s below=below above=above
func loose() {
	fast()
	slow()
}

//flatprof:profile limit=1s below=below above=above whitelist=missing
func empty() {
	fast()
}

//flatprof:profile limit=1s below=below above=above ignore_builtins=false
func counted() int {
	return len(items())
}

//flatprof:profile limit=1s below=below above=above ignore_builtins=false
func negative(n int) (recovered bool) {
	defer func() {
		recovered = recover() != nil
	}()
	_ = make([]int, n)
	return false
}

func main() {
	tight()
	loose()
	empty()
	fmt.Println("len", counted())
	fmt.Println("recovered", negative(-1))
}
