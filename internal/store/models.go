package store

import (
	"fmt"
	"time"
)

type TestStatus string

const (
	StatusDraft     TestStatus = "draft"
	StatusRunning   TestStatus = "running"
	StatusPaused    TestStatus = "paused"
	StatusCompleted TestStatus = "completed"
	StatusArchived  TestStatus = "archived"
)

// Goal describes one conversion goal attached to a test.
type Goal struct {
	Type   string  `json:"type"`
	Target string  `json:"target"`
	Value  float64 `json:"value"`
}

// Test is a two-arm experiment. TrafficSplit is the integer percentage
// of traffic sent to the treatment variant "b"; the remainder sees
// control "a". PerformanceData is a denormalized snapshot refreshed on
// conversion — advisory only, never the source of truth; the visitor
// rows are.
type Test struct {
	ID              int64
	Name            string
	Description     string
	Subject         string // owning page or subject reference
	Status          TestStatus
	TrafficSplit    int
	MinSampleSize   int
	ConfidenceLevel float64
	Goals           []Goal
	PerformanceData []byte // raw JSON snapshot, may be nil
	StartedAt       *time.Time
	EndedAt         *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsRunning reports whether the test is live at the given instant.
// Status alone is not enough: the start time must have passed and the
// end time, if set, must not have.
func (t *Test) IsRunning(now time.Time) bool {
	if t.Status != StatusRunning {
		return false
	}
	if t.StartedAt == nil || t.StartedAt.After(now) {
		return false
	}
	return t.EndedAt == nil || t.EndedAt.After(now)
}

// IsScheduled reports whether the test has a start time in the future.
func (t *Test) IsScheduled(now time.Time) bool {
	return t.Status == StatusRunning && t.StartedAt != nil && t.StartedAt.After(now)
}

// DurationDays is the number of whole days the test has been running,
// up to now or to its end time if it already ended.
func (t *Test) DurationDays(now time.Time) int {
	if t.StartedAt == nil {
		return 0
	}
	end := now
	if t.EndedAt != nil && t.EndedAt.Before(now) {
		end = *t.EndedAt
	}
	if end.Before(*t.StartedAt) {
		return 0
	}
	return int(end.Sub(*t.StartedAt).Hours() / 24)
}

// VisitorRecord is one visitor's participation in one test. At most
// one record exists per (test, visitor); conversion is a one-way
// transition recorded by the store.
type VisitorRecord struct {
	ID             int64
	TestName       string
	VisitorID      string
	VariantShown   string
	Converted      bool
	ConversionData []byte // raw JSON, may be nil
	IPAddress      string
	UserAgent      string
	Referrer       string
	VisitedAt      time.Time
	ConvertedAt    *time.Time
}

// VisitorMeta is the optional request metadata captured when a
// visitor record is created.
type VisitorMeta struct {
	IPAddress string
	UserAgent string
	Referrer  string
}

// VariantCount aggregates one variant's visitor and conversion totals.
type VariantCount struct {
	Variant     string
	Visitors    int
	Conversions int
}

// Defaults and bounds for test configuration.
const (
	DefaultTrafficSplit    = 50
	DefaultMinSampleSize   = 1000
	DefaultConfidenceLevel = 95.0

	MinTrafficSplit    = 10
	MaxTrafficSplit    = 90
	MinSampleSizeLower = 100
	MinSampleSizeUpper = 100000
	MinConfidenceLevel = 80.0
	MaxConfidenceLevel = 99.9
)

// TestConfig carries the tunable fields for a new test. Zero values
// take the documented defaults; out-of-bounds values are rejected.
type TestConfig struct {
	Description     string
	Subject         string
	TrafficSplit    int
	MinSampleSize   int
	ConfidenceLevel float64
	Goals           []Goal
}

func (c *TestConfig) applyDefaults() {
	if c.TrafficSplit == 0 {
		c.TrafficSplit = DefaultTrafficSplit
	}
	if c.MinSampleSize == 0 {
		c.MinSampleSize = DefaultMinSampleSize
	}
	if c.ConfidenceLevel == 0 {
		c.ConfidenceLevel = DefaultConfidenceLevel
	}
}

func (c *TestConfig) validate() error {
	if c.TrafficSplit < MinTrafficSplit || c.TrafficSplit > MaxTrafficSplit {
		return fmt.Errorf("traffic split must be between %d and %d, got %d", MinTrafficSplit, MaxTrafficSplit, c.TrafficSplit)
	}
	if c.MinSampleSize < MinSampleSizeLower || c.MinSampleSize > MinSampleSizeUpper {
		return fmt.Errorf("min sample size must be between %d and %d, got %d", MinSampleSizeLower, MinSampleSizeUpper, c.MinSampleSize)
	}
	if c.ConfidenceLevel < MinConfidenceLevel || c.ConfidenceLevel > MaxConfidenceLevel {
		return fmt.Errorf("confidence level must be between %.1f and %.1f, got %.1f", MinConfidenceLevel, MaxConfidenceLevel, c.ConfidenceLevel)
	}
	return nil
}
