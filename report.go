package flatprof

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// LogBelow logs the total duration of an invocation at info level.
func LogBelow(total, limit time.Duration, times Times, p *Profiler) {
	p.Logger().Info().
		Str("func", p.Name()).
		Msgf("%s finished in %.3gs, below limit of %.3gs", p.Name(), total.Seconds(), limit.Seconds())
}

// LogAbove logs the total duration of an invocation at warn level together
// with the timing of every call site, slowest first.
func LogAbove(total, limit time.Duration, times Times, p *Profiler) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s finished in %.3gs, above limit of %.3gs", p.Name(), total.Seconds(), limit.Seconds())
	for _, line := range ReportLines(times) {
		b.WriteByte('\n')
		b.WriteString(line)
	}
	p.Logger().Warn().
		Str("func", p.Name()).
		Int("sites", len(times)).
		Msg(b.String())
}

// SiteSummary aggregates the durations of one call site.
type SiteSummary struct {
	Key   CallSiteKey
	Total time.Duration
	Calls int
}

func (s SiteSummary) Mean() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Calls)
}

// Summarize sums the durations per site, ordered by total time descending.
// Sites with equal totals keep source order.
func Summarize(times Times) []SiteSummary {
	summaries := make([]SiteSummary, 0, len(times))
	for key, durations := range times {
		s := SiteSummary{Key: key, Calls: len(durations)}
		for _, d := range durations {
			s.Total += d
		}
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		if a.Key.FirstLine != b.Key.FirstLine {
			return a.Key.FirstLine < b.Key.FirstLine
		}
		if a.Key.Source != b.Key.Source {
			return a.Key.Source < b.Key.Source
		}
		return a.Key.Callee < b.Key.Callee
	})
	return summaries
}

// ReportLines renders one two-line block per call site:
//
//	slow(123.45) | main.slow | L12
//	  ↪ 0.501s total, 0.501s avg, 1 calls
func ReportLines(times Times) []string {
	summaries := Summarize(times)
	lines := make([]string, 0, len(summaries))
	for _, s := range summaries {
		lines = append(lines, fmt.Sprintf("%s | %s | L%s\n  ↪ %.3gs total, %.3gs avg, %d calls",
			s.Key.Source, s.Key.Callee, s.Key.LineSpan(),
			s.Total.Seconds(), s.Mean().Seconds(), s.Calls))
	}
	return lines
}
