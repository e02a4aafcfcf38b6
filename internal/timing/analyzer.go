// Package timing stretches animation scripts to the length of their
// narration: it measures a script's declared timeline, plans a speed factor
// and rewrites the timed directives to match.
package timing

import (
	"strings"

	"github.com/xiaot623/manimate/internal/script"
)

// FallbackSecondsPerLine is the per-line allowance used when a script cannot
// be parsed.
const FallbackSecondsPerLine = 0.5

// Tolerance below which a timing residue is treated as zero.
const Tolerance = 1e-9

// Analysis is the result of measuring a script.
type Analysis struct {
	Duration   float64 `json:"duration"`
	Directives int     `json:"directives"`
	Fallback   bool    `json:"fallback"`
}

// Analyze returns the declared duration of src. Unparsable scripts get a
// size-based estimate instead of an error.
func Analyze(src string) Analysis {
	s, err := script.Parse(src)
	if err != nil {
		return Analysis{Duration: fallbackEstimate(src), Fallback: true}
	}
	return Analysis{
		Duration:   AnalyzeScript(s),
		Directives: len(s.Directives()),
	}
}

// AnalyzeScript sums the effective duration of every wait and play in s,
// including those inside branches and loops.
func AnalyzeScript(s *script.Script) float64 {
	total := 0.0
	for _, d := range s.Directives() {
		total += d.Effective()
	}
	return total
}

func fallbackEstimate(src string) float64 {
	n := 0
	for _, l := range strings.Split(src, "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		n++
	}
	return float64(n) * FallbackSecondsPerLine
}
