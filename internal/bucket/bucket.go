// Package bucket implements deterministic visitor bucketing: traffic
// inclusion and variant assignment as pure functions of the visitor
// and test identifiers. Inclusion and assignment hash differently
// salted inputs so the two decisions are uncorrelated.
package bucket

// Canonical two-arm variant identifiers.
const (
	VariantControl   = "a"
	VariantTreatment = "b"
)

// Variant is one arm of a generalized N-variant split.
type Variant struct {
	ID         string
	TrafficPct int
}

// Included reports whether a visitor participates in a test at all,
// given a traffic-allocation percentage. Callers must not assign a
// variant to excluded visitors.
func Included(visitorID, testID string, allocationPct int) bool {
	return int(Hash(visitorID+"_"+testID)%100) < allocationPct
}

// Assign picks a variant for a visitor by walking variants in the
// caller-supplied order and accumulating traffic percentages. The
// returned bool is false when the percentages sum to less than 100
// and the visitor's bucket lands in the uncovered region; the caller
// decides the fallback (typically the first variant).
func Assign(visitorID, testID string, variants []Variant) (string, bool) {
	b := int(Hash(visitorID+"_"+testID+"_variant") % 100)

	cum := 0
	for _, v := range variants {
		cum += v.TrafficPct
		if b < cum {
			return v.ID, true
		}
	}
	return "", false
}

// VariantFor is the two-arm specialization of Assign used by the test
// lifecycle: trafficSplit is the percentage of traffic sent to the
// treatment variant "b"; everyone else sees control "a".
func VariantFor(visitorID, testID string, trafficSplit int) string {
	if int(Hash(visitorID+testID)%100) < trafficSplit {
		return VariantTreatment
	}
	return VariantControl
}
