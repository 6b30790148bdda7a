package stats

import "math"

// zTable holds z-scores for the common cumulative probabilities.
var zTable = []struct {
	p, z float64
}{
	{0.5, 0},
	{0.8, 0.842},
	{0.9, 1.282},
	{0.95, 1.645},
	{0.975, 1.96},
	{0.99, 2.326},
}

// zScore returns the z-score for a cumulative probability. Values not
// in the table fall back to 1.96. The tolerance absorbs float noise
// from expressions like 1 - significance/2.
func zScore(p float64) float64 {
	for _, e := range zTable {
		if math.Abs(p-e.p) < 1e-9 {
			return e.z
		}
	}
	return 1.96
}

// MinimumSampleSize returns the visitors required per arm to detect a
// relative lift of minDetectableEffect percent over a baseline
// conversion rate (both in percent), using the standard two-proportion
// z-test formula. power and significance follow the usual defaults of
// 0.8 and 0.05.
func MinimumSampleSize(baselineRate, minDetectableEffect, power, significance float64) int {
	if baselineRate <= 0 || minDetectableEffect <= 0 {
		return 0
	}

	p1 := baselineRate / 100
	delta := p1 * minDetectableEffect / 100
	p2 := p1 + delta

	zAlpha := zScore(1 - significance/2)
	zBeta := zScore(power)

	num := math.Pow(zAlpha+zBeta, 2) * (p1*(1-p1) + p2*(1-p2))
	return int(math.Ceil(num / (delta * delta)))
}
