package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pagesplit/pagesplit/internal/bucket"
	"github.com/pagesplit/pagesplit/internal/stats"
)

// Traffic reallocation policy: one 10-point step per call toward the
// winning variant, and the winning variant's share never exceeds 80%.
const (
	optimizeStep     = 10
	maxWinningShare  = 80
	minLiftToRealloc = 10.0
)

// OptimizeResult reports what AutoOptimize did, or why it did nothing.
type OptimizeResult struct {
	Success     bool    `json:"success"`
	Message     string  `json:"message"`
	NewSplit    int     `json:"new_split,omitempty"`
	Improvement float64 `json:"improvement,omitempty"`
}

// AutoOptimize shifts traffic toward the better-performing variant
// when the gap heuristic reports significance and the winner's lift
// exceeds 10%. The split only ever moves toward the winner, by a
// fixed step, and stops at the cap; it is safe to call repeatedly.
func (e *Engine) AutoOptimize(ctx context.Context, testID string) OptimizeResult {
	test, err := e.store.GetTest(ctx, testID)
	if err != nil {
		return OptimizeResult{Message: "test not found"}
	}
	if !test.IsRunning(e.clock.Now()) {
		return OptimizeResult{Message: "test is not running"}
	}

	counts, err := e.store.VariantCounts(ctx, testID)
	if err != nil {
		e.log.Warn("failed to load variant counts", zap.String("test", testID), zap.Error(err))
		return OptimizeResult{Message: "failed to load test data"}
	}

	var control, treatment int
	var controlConv, treatmentConv int
	for _, c := range counts {
		switch c.Variant {
		case bucket.VariantControl:
			control, controlConv = c.Visitors, c.Conversions
		case bucket.VariantTreatment:
			treatment, treatmentConv = c.Visitors, c.Conversions
		}
	}

	controlRate := stats.ConversionRate(controlConv, control)
	treatmentRate := stats.ConversionRate(treatmentConv, treatment)

	if !stats.SignificantByGap(control, treatment, test.MinSampleSize, controlRate, treatmentRate) {
		return OptimizeResult{Message: "no statistically significant difference yet"}
	}

	winner := bucket.VariantControl
	lift := stats.Lift(treatmentRate, controlRate)
	if treatmentRate > controlRate {
		winner = bucket.VariantTreatment
		lift = stats.Lift(controlRate, treatmentRate)
	}

	if lift <= minLiftToRealloc {
		return OptimizeResult{Message: "improvement below optimization threshold"}
	}

	// traffic_split is the treatment share; moving toward control
	// means moving the split down. Either direction stops where the
	// winning share would pass the cap.
	newSplit := test.TrafficSplit
	if winner == bucket.VariantTreatment {
		newSplit += optimizeStep
		if newSplit > maxWinningShare {
			newSplit = maxWinningShare
		}
	} else {
		newSplit -= optimizeStep
		if newSplit < 100-maxWinningShare {
			newSplit = 100 - maxWinningShare
		}
	}

	if newSplit == test.TrafficSplit {
		return OptimizeResult{Message: "traffic split already at cap", Improvement: lift}
	}

	if err := e.store.UpdateTrafficSplit(ctx, testID, newSplit); err != nil {
		e.log.Warn("failed to update traffic split", zap.String("test", testID), zap.Error(err))
		return OptimizeResult{Message: "failed to update traffic split"}
	}

	e.log.Info("traffic split optimized",
		zap.String("test", testID),
		zap.String("winner", winner),
		zap.Int("old_split", test.TrafficSplit),
		zap.Int("new_split", newSplit),
		zap.Float64("lift", lift))

	return OptimizeResult{
		Success:     true,
		Message:     fmt.Sprintf("shifted traffic toward variant %s", winner),
		NewSplit:    newSplit,
		Improvement: lift,
	}
}
