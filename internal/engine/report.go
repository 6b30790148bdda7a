package engine

import (
	"context"

	"github.com/pagesplit/pagesplit/internal/bucket"
	"github.com/pagesplit/pagesplit/internal/stats"
	"github.com/pagesplit/pagesplit/internal/store"
)

// VariantReport is one arm's line in a report.
type VariantReport struct {
	Variant        string  `json:"variant"`
	Visitors       int     `json:"visitors"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
	CILower        float64 `json:"ci_lower"`
	CIUpper        float64 `json:"ci_upper"`
}

// Statistics carries both significance verdicts side by side. The gap
// heuristic and the chi-squared test disagree in general; readers pick
// which one they trust.
type Statistics struct {
	ControlRate      float64                `json:"control_rate"`
	TreatmentRate    float64                `json:"treatment_rate"`
	Lift             float64                `json:"lift"`
	ChiSquared       stats.ChiSquaredResult `json:"chi_squared"`
	SignificantByGap bool                   `json:"significant_by_gap"`
	Winner           stats.Winner           `json:"winner"`
}

// PerformanceSummary aggregates raw visitor and conversion counts.
type PerformanceSummary struct {
	TotalVisitors    int             `json:"total_visitors"`
	TotalConversions int             `json:"total_conversions"`
	Variants         []VariantReport `json:"variants"`
}

type Report struct {
	TestID       string             `json:"test_id"`
	Name         string             `json:"name"`
	Status       store.TestStatus   `json:"status"`
	DurationDays int                `json:"duration_days"`
	Statistics   Statistics         `json:"statistical_results"`
	Performance  PerformanceSummary `json:"performance_summary"`
}

// Results assembles a full report from the raw ledger counts. The
// cached performance snapshot is never consulted; everything here is
// recomputed from the visitor rows.
func (e *Engine) Results(ctx context.Context, testID string) (*Report, error) {
	test, err := e.getTest(ctx, testID)
	if err != nil {
		return nil, err
	}

	counts, err := e.store.VariantCounts(ctx, testID)
	if err != nil {
		return nil, err
	}

	var control, treatment store.VariantCount
	control.Variant = bucket.VariantControl
	treatment.Variant = bucket.VariantTreatment
	for _, c := range counts {
		switch c.Variant {
		case bucket.VariantControl:
			control = c
		case bucket.VariantTreatment:
			treatment = c
		}
	}

	controlRate := stats.ConversionRate(control.Conversions, control.Visitors)
	treatmentRate := stats.ConversionRate(treatment.Conversions, treatment.Visitors)

	winner, err := stats.DetermineWinner([]stats.VariantStats{
		{ID: control.Variant, IsControl: true, Visitors: control.Visitors, Conversions: control.Conversions},
		{ID: treatment.Variant, Visitors: treatment.Visitors, Conversions: treatment.Conversions},
	}, test.ConfidenceLevel, test.MinSampleSize)
	if err != nil {
		return nil, err
	}

	report := &Report{
		TestID:       test.Name,
		Name:         test.Name,
		Status:       test.Status,
		DurationDays: test.DurationDays(e.clock.Now()),
		Statistics: Statistics{
			ControlRate:   controlRate,
			TreatmentRate: treatmentRate,
			Lift:          stats.Lift(controlRate, treatmentRate),
			ChiSquared: stats.ChiSquaredTest(
				control.Conversions, control.Visitors,
				treatment.Conversions, treatment.Visitors),
			SignificantByGap: stats.SignificantByGap(
				control.Visitors, treatment.Visitors, test.MinSampleSize,
				controlRate, treatmentRate),
			Winner: winner,
		},
	}

	for _, c := range []store.VariantCount{control, treatment} {
		ciLower, ciUpper := stats.WilsonInterval(c.Conversions, c.Visitors, test.ConfidenceLevel)
		report.Performance.TotalVisitors += c.Visitors
		report.Performance.TotalConversions += c.Conversions
		report.Performance.Variants = append(report.Performance.Variants, VariantReport{
			Variant:        c.Variant,
			Visitors:       c.Visitors,
			Conversions:    c.Conversions,
			ConversionRate: stats.ConversionRate(c.Conversions, c.Visitors),
			CILower:        ciLower,
			CIUpper:        ciUpper,
		})
	}

	return report, nil
}
