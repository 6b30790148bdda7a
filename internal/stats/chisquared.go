// Package stats evaluates experiment results. Every function is pure:
// the inputs are aggregate counts from the visitor ledger and nothing
// here reads or mutates state.
package stats

// ConversionRate returns conversions/visitors as a percentage.
// Zero visitors yields a rate of zero rather than NaN.
func ConversionRate(conversions, visitors int) float64 {
	if visitors == 0 {
		return 0
	}
	return float64(conversions) / float64(visitors) * 100
}

// Lift returns the relative improvement of a variant's conversion rate
// over control, as a percentage. Zero control rate yields zero.
func Lift(controlRate, variantRate float64) float64 {
	if controlRate == 0 {
		return 0
	}
	return (variantRate - controlRate) / controlRate * 100
}

// ChiSquaredResult is the outcome of a two-arm chi-squared comparison.
type ChiSquaredResult struct {
	ChiSquared  float64 `json:"chi_squared"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
	Confidence  float64 `json:"confidence"` // (1 - p) * 100
}

// pValueTable maps chi-squared breakpoints (1 degree of freedom) to
// approximate p-values. This is a deliberately coarse approximation,
// not an exact chi-squared CDF: results only change when the statistic
// crosses one of these breakpoints, and downstream pass/fail behavior
// depends on exactly these thresholds.
var pValueTable = []struct {
	chi float64
	p   float64
}{
	{0.004, 0.95},
	{0.016, 0.90},
	{0.064, 0.80},
	{0.148, 0.70},
	{0.275, 0.60},
	{0.455, 0.50},
	{0.708, 0.40},
	{1.074, 0.30},
	{1.642, 0.20},
	{2.706, 0.10},
	{3.841, 0.05},
	{5.024, 0.025},
	{6.635, 0.01},
	{7.879, 0.005},
}

func chiSquaredPValue(chi float64) float64 {
	for _, e := range pValueTable {
		if chi <= e.chi {
			return e.p
		}
	}
	return 0.001
}

// ChiSquaredTest compares a control arm against a variant arm using a
// 2x2 chi-squared test (1 degree of freedom) with expected counts from
// the pooled conversion rate. Arms without visitors, or pooled rates
// of exactly 0 or 1, produce a non-significant result.
func ChiSquaredTest(controlConv, controlVisitors, variantConv, variantVisitors int) ChiSquaredResult {
	if controlVisitors == 0 || variantVisitors == 0 {
		return ChiSquaredResult{PValue: 1, Confidence: 0}
	}

	pooled := float64(controlConv+variantConv) / float64(controlVisitors+variantVisitors)
	if pooled == 0 || pooled == 1 {
		return ChiSquaredResult{PValue: 1, Confidence: 0}
	}

	// Observed and expected counts for the four cells:
	// converted and not-converted, per arm.
	observed := []float64{
		float64(controlConv),
		float64(controlVisitors - controlConv),
		float64(variantConv),
		float64(variantVisitors - variantConv),
	}
	expected := []float64{
		float64(controlVisitors) * pooled,
		float64(controlVisitors) * (1 - pooled),
		float64(variantVisitors) * pooled,
		float64(variantVisitors) * (1 - pooled),
	}

	var chi float64
	for i := range observed {
		d := observed[i] - expected[i]
		chi += d * d / expected[i]
	}

	p := chiSquaredPValue(chi)
	return ChiSquaredResult{
		ChiSquared:  chi,
		PValue:      p,
		Significant: p < 0.05,
		Confidence:  (1 - p) * 100,
	}
}

// SignificantByGap is the flat-threshold significance heuristic: both
// arms must reach the minimum sample size and the conversion rates
// must differ by more than two percentage points.
//
// This rule and ChiSquaredTest disagree in general and are both kept
// on purpose; callers choose which verdict they act on.
func SignificantByGap(visitorsA, visitorsB, minSampleSize int, rateA, rateB float64) bool {
	if visitorsA < minSampleSize || visitorsB < minSampleSize {
		return false
	}
	gap := rateA - rateB
	if gap < 0 {
		gap = -gap
	}
	return gap > 2
}
