package stats

import (
	"errors"
	"fmt"
)

// VariantStats are the aggregate counts for one arm of a test.
type VariantStats struct {
	ID          string
	IsControl   bool
	Visitors    int
	Conversions int
}

// Winner is the outcome of a winner determination. An empty VariantID
// means no winner could be declared; Reason says why.
type Winner struct {
	VariantID      string  `json:"winner_id,omitempty"`
	Reason         string  `json:"reason"`
	Confidence     float64 `json:"confidence"`
	Recommendation string  `json:"recommendation"`
}

var errNoControl = errors.New("exactly one control variant required")

// DetermineWinner evaluates each non-control variant against control
// using the chi-squared test. A variant becomes the leading candidate
// only if its observed rate beats the best rate so far and its
// confidence meets the threshold. Below the minimum total sample size
// no winner is ever declared, regardless of observed rates.
func DetermineWinner(variants []VariantStats, confidenceThreshold float64, minSampleSize int) (Winner, error) {
	var control *VariantStats
	total := 0
	for i := range variants {
		total += variants[i].Visitors
		if variants[i].IsControl {
			if control != nil {
				return Winner{}, errNoControl
			}
			control = &variants[i]
		}
	}
	if control == nil {
		return Winner{}, errNoControl
	}

	if total < minSampleSize {
		return Winner{
			Reason:         "insufficient sample size",
			Recommendation: fmt.Sprintf("continue collecting data until at least %d visitors", minSampleSize),
		}, nil
	}

	bestID := ""
	bestRate := ConversionRate(control.Conversions, control.Visitors)
	bestConfidence := 0.0

	for _, v := range variants {
		if v.IsControl {
			continue
		}
		rate := ConversionRate(v.Conversions, v.Visitors)
		res := ChiSquaredTest(control.Conversions, control.Visitors, v.Conversions, v.Visitors)
		if rate > bestRate && res.Confidence >= confidenceThreshold {
			bestID = v.ID
			bestRate = rate
			bestConfidence = res.Confidence
		}
	}

	if bestID == "" {
		return Winner{
			Reason:         "no variant reaches statistical significance",
			Recommendation: "keep the test running or adjust variants",
		}, nil
	}

	return Winner{
		VariantID:      bestID,
		Reason:         fmt.Sprintf("variant %s outperforms control at %.1f%% confidence", bestID, bestConfidence),
		Confidence:     bestConfidence,
		Recommendation: fmt.Sprintf("roll out variant %s", bestID),
	}, nil
}
