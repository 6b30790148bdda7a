package bucket

import "math"

// Hash maps a key to a stable bucket value using the classic
// multiply-by-31 rolling hash, wrapped to 32-bit signed and taken
// as an absolute value.
//
// The algorithm is intentionally fixed: every running test's variant
// assignments are derived from it, so changing it (even to a "better"
// hash) reshuffles every visitor mid-experiment. Treat it as part of
// the stored data format.
func Hash(key string) uint32 {
	var h int32
	for _, r := range key {
		h = h*31 + int32(r)
	}
	if h == math.MinInt32 {
		return 0
	}
	if h < 0 {
		h = -h
	}
	return uint32(h)
}
