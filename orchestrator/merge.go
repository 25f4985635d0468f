package orchestrator

import (
	"fmt"
	"math"
	"strings"

	"github.com/hupe1980/invoicemesh/core"
)

// Merge folds results into a copy of base, in order. A non-empty field of a
// result is written when base lacks the field or the result's confidence
// exceeds threshold; empty values never erase existing ones.
func Merge(base core.ExtractedData, results []core.AgentResult, threshold int) core.ExtractedData {
	out := base.Clone()
	for _, r := range results {
		data := r.Data.Clone()
		for k, v := range data {
			if core.IsEmptyValue(v) {
				continue
			}
			if !out.Has(k) || r.Confidence > threshold {
				out[k] = v
			}
		}
	}
	return out
}

// OverallConfidence is the mean of the result confidences weighted by the
// number of specialization tags times the descriptor weight, rounded to the
// nearest integer. ok is false when results is empty.
func OverallConfidence(results []core.AgentResult) (confidence int, ok bool) {
	if len(results) == 0 {
		return 0, false
	}

	var num, den float64
	for _, r := range results {
		w := float64(len(r.Specializations)) * weightOf(r)
		num += float64(r.Confidence) * w
		den += w
	}

	// no tags anywhere: plain mean
	if den == 0 {
		for _, r := range results {
			num += float64(r.Confidence)
		}
		den = float64(len(results))
	}

	c := int(math.Round(num / den))
	switch {
	case c < 0:
		c = 0
	case c > 100:
		c = 100
	}
	return c, true
}

func weightOf(r core.AgentResult) float64 {
	if r.Weight <= 0 {
		return 1.0
	}
	return r.Weight
}

// continueAfterBase decides whether Stage 1 hands over to Stage 2.
func continueAfterBase(confidence int, conflicts bool, threshold int) (bool, string) {
	switch {
	case confidence < threshold && conflicts:
		return true, fmt.Sprintf("confidence %d below %d and conflicts reported", confidence, threshold)
	case confidence < threshold:
		return true, fmt.Sprintf("confidence %d below %d", confidence, threshold)
	case conflicts:
		return true, "conflicts reported"
	default:
		return false, fmt.Sprintf("confidence %d meets %d without conflicts", confidence, threshold)
	}
}

// continueAfterRefinement decides whether Stage 2 hands over to Stage 3.
func continueAfterRefinement(confidence int, missing []string, threshold int) (bool, string) {
	switch {
	case confidence >= threshold:
		return false, fmt.Sprintf("confidence %d meets %d", confidence, threshold)
	case len(missing) == 0:
		return false, "all critical fields present"
	default:
		return true, fmt.Sprintf("confidence %d below %d, missing %s", confidence, threshold, strings.Join(missing, ", "))
	}
}
