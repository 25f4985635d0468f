package agent

import (
	"math"

	"github.com/hupe1980/invoicemesh/core"
)

const (
	criticalWeight = 80
	bonusPerField  = 5
	heuristicCap   = 98
)

// ClampConfidence bounds c to [0,100].
func ClampConfidence(c int) int {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return c
	}
}

// HeuristicConfidence scores data by the fraction of critical fields present
// (worth up to 80) plus 5 per present bonus field, capped at 98. When critical
// is empty the package-wide critical field set is used.
func HeuristicConfidence(data core.ExtractedData, critical, bonus []string) int {
	if len(critical) == 0 {
		critical = core.CriticalFields
	}

	present := 0
	for _, f := range critical {
		if data.Has(f) {
			present++
		}
	}
	score := float64(present) / float64(len(critical)) * criticalWeight

	for _, f := range bonus {
		if data.Has(f) {
			score += bonusPerField
		}
	}

	return int(math.Min(math.Round(score), heuristicCap))
}
