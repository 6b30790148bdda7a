package engine

import "time"

// Clock abstracts wall-clock reads. Test lifecycle predicates compare
// against it on every call, so tests inject a fixed clock instead of
// sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real-time clock.
func SystemClock() Clock { return systemClock{} }
