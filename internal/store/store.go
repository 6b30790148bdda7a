package store

import (
	"context"
	"time"
)

// Store defines the persistence operations for tests and their
// visitor/conversion ledger.
type Store interface {
	// Test operations
	CreateTest(ctx context.Context, name string, cfg TestConfig) (*Test, error)
	GetTest(ctx context.Context, name string) (*Test, error)
	ListTests(ctx context.Context) ([]*Test, error)
	DeleteTest(ctx context.Context, name string) error

	// Lifecycle transitions
	StartTest(ctx context.Context, name string, now time.Time) error
	PauseTest(ctx context.Context, name string) error
	ResumeTest(ctx context.Context, name string) error
	CompleteTest(ctx context.Context, name string, now time.Time) error
	ArchiveTest(ctx context.Context, name string) error

	// Traffic and cache
	UpdateTrafficSplit(ctx context.Context, name string, split int) error
	SavePerformanceData(ctx context.Context, name string, data []byte) error

	// Visitor ledger
	InsertVisitor(ctx context.Context, testName, visitorID, variant string, meta VisitorMeta, now time.Time) (*VisitorRecord, bool, error)
	GetVisitor(ctx context.Context, testName, visitorID string) (*VisitorRecord, error)
	MarkConverted(ctx context.Context, testName, visitorID string, data []byte, now time.Time) (bool, error)
	VariantCounts(ctx context.Context, testName string) ([]VariantCount, error)
	ListVisitors(ctx context.Context, testName string) ([]*VisitorRecord, error)

	Close() error
}
