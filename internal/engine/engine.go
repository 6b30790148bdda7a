// Package engine orchestrates test lifecycle, variant assignment,
// conversion recording, and traffic optimization on top of the
// bucketing and stats packages and the visitor ledger.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pagesplit/pagesplit/internal/bucket"
	"github.com/pagesplit/pagesplit/internal/stats"
	"github.com/pagesplit/pagesplit/internal/store"
)

var (
	ErrTestNotFound      = errors.New("test not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Engine struct {
	store store.Store
	clock Clock
	log   *zap.Logger
}

type Option func(*Engine)

// WithClock overrides the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store: s,
		clock: SystemClock(),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

// VariantForVisitor returns the variant a visitor should see. Missing
// or non-running tests fail safe to control. Visitors already in the
// ledger keep their stored assignment even if the traffic split
// changed since; new visitors are bucketed deterministically.
func (e *Engine) VariantForVisitor(ctx context.Context, testID, visitorID string) string {
	test, err := e.store.GetTest(ctx, testID)
	if err != nil || !test.IsRunning(e.clock.Now()) {
		return bucket.VariantControl
	}

	if record, err := e.store.GetVisitor(ctx, testID, visitorID); err == nil {
		return record.VariantShown
	}

	return bucket.VariantFor(visitorID, testID, test.TrafficSplit)
}

// RecordVisitor creates the visitor's ledger entry, assigning a
// variant if this is their first visit. A nil record with a nil error
// means the test is missing or not running; the caller should serve
// the default experience. Repeated calls return the same record.
func (e *Engine) RecordVisitor(ctx context.Context, testID, visitorID string, meta store.VisitorMeta) (*store.VisitorRecord, error) {
	test, err := e.store.GetTest(ctx, testID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !test.IsRunning(e.clock.Now()) {
		return nil, nil
	}

	variant := bucket.VariantFor(visitorID, testID, test.TrafficSplit)
	record, created, err := e.store.InsertVisitor(ctx, testID, visitorID, variant, meta, e.clock.Now())
	if err != nil {
		return nil, err
	}
	if created {
		e.log.Debug("visitor recorded",
			zap.String("test", testID),
			zap.String("visitor", visitorID),
			zap.String("variant", record.VariantShown))
	}
	return record, nil
}

// RecordConversion flips a visitor to converted. It returns false for
// a missing record or an already-converted visitor; both are expected
// conditions, not errors. On success the denormalized performance
// snapshot is refreshed; a snapshot failure is logged and swallowed so
// it can never fail the conversion itself.
func (e *Engine) RecordConversion(ctx context.Context, testID, visitorID string, conversionData map[string]any) (bool, error) {
	var data []byte
	if len(conversionData) > 0 {
		var err error
		data, err = json.Marshal(conversionData)
		if err != nil {
			return false, fmt.Errorf("failed to marshal conversion data: %w", err)
		}
	}

	converted, err := e.store.MarkConverted(ctx, testID, visitorID, data, e.clock.Now())
	if err != nil {
		return false, err
	}
	if !converted {
		return false, nil
	}

	if err := e.refreshPerformance(ctx, testID); err != nil {
		e.log.Warn("failed to refresh performance snapshot",
			zap.String("test", testID), zap.Error(err))
	}

	return true, nil
}

// performanceSnapshot is the advisory cache written into the test row.
// It is recomputable from the ledger at any time and nothing reads it
// as a source of truth.
type performanceSnapshot struct {
	LastConversion   time.Time          `json:"last_conversion"`
	TotalConversions int                `json:"total_conversions"`
	ConversionRates  map[string]float64 `json:"conversion_rates"`
}

func (e *Engine) refreshPerformance(ctx context.Context, testID string) error {
	counts, err := e.store.VariantCounts(ctx, testID)
	if err != nil {
		return err
	}

	snapshot := performanceSnapshot{
		LastConversion:  e.clock.Now(),
		ConversionRates: make(map[string]float64, len(counts)),
	}
	for _, c := range counts {
		snapshot.TotalConversions += c.Conversions
		snapshot.ConversionRates[c.Variant] = stats.ConversionRate(c.Conversions, c.Visitors)
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return e.store.SavePerformanceData(ctx, testID, data)
}
