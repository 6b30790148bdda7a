package store_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagesplit/pagesplit/internal/store"
)

func setupStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateTestDefaults(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	test, err := s.CreateTest(ctx, "hero", store.TestConfig{})
	require.NoError(t, err)

	assert.Equal(t, "hero", test.Name)
	assert.Equal(t, store.StatusDraft, test.Status)
	assert.Equal(t, store.DefaultTrafficSplit, test.TrafficSplit)
	assert.Equal(t, store.DefaultMinSampleSize, test.MinSampleSize)
	assert.Equal(t, store.DefaultConfidenceLevel, test.ConfidenceLevel)
	assert.Nil(t, test.StartedAt)
	assert.Nil(t, test.EndedAt)
}

func TestCreateTestExplicitConfig(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	test, err := s.CreateTest(ctx, "pricing", store.TestConfig{
		Description:     "pricing page headline",
		Subject:         "/pricing",
		TrafficSplit:    30,
		MinSampleSize:   2000,
		ConfidenceLevel: 99,
		Goals:           []store.Goal{{Type: "click", Target: "button.buy", Value: 1}},
	})
	require.NoError(t, err)

	got, err := s.GetTest(ctx, "pricing")
	require.NoError(t, err)

	assert.Equal(t, test.ID, got.ID)
	assert.Equal(t, "pricing page headline", got.Description)
	assert.Equal(t, "/pricing", got.Subject)
	assert.Equal(t, 30, got.TrafficSplit)
	assert.Equal(t, 2000, got.MinSampleSize)
	assert.Equal(t, 99.0, got.ConfidenceLevel)
	require.Len(t, got.Goals, 1)
	assert.Equal(t, "click", got.Goals[0].Type)
}

func TestCreateTestValidation(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	cases := []store.TestConfig{
		{TrafficSplit: 5},
		{TrafficSplit: 95},
		{MinSampleSize: 50},
		{MinSampleSize: 200000},
		{ConfidenceLevel: 70},
		{ConfidenceLevel: 99.95},
	}
	for _, cfg := range cases {
		_, err := s.CreateTest(ctx, "bad", cfg)
		assert.Error(t, err, "config %+v should be rejected", cfg)
	}
}

func TestCreateTestDuplicateName(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.CreateTest(ctx, "hero", store.TestConfig{})
	require.NoError(t, err)

	_, err = s.CreateTest(ctx, "hero", store.TestConfig{})
	assert.Error(t, err, "test names are unique")
}

func TestGetTestNotFound(t *testing.T) {
	s := setupStore(t)

	_, err := s.GetTest(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLifecycleTransitions(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	_, err := s.CreateTest(ctx, "hero", store.TestConfig{})
	require.NoError(t, err)

	require.NoError(t, s.StartTest(ctx, "hero", now))
	test, err := s.GetTest(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, store.StatusRunning, test.Status)
	require.NotNil(t, test.StartedAt)
	startedAt := *test.StartedAt

	// Pause and resume keep the original start time.
	require.NoError(t, s.PauseTest(ctx, "hero"))
	test, err = s.GetTest(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPaused, test.Status)

	require.NoError(t, s.ResumeTest(ctx, "hero"))
	test, err = s.GetTest(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, store.StatusRunning, test.Status)
	require.NotNil(t, test.StartedAt)
	assert.Equal(t, startedAt.Unix(), test.StartedAt.Unix())

	require.NoError(t, s.CompleteTest(ctx, "hero", now.Add(time.Hour)))
	test, err = s.GetTest(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, test.Status)
	assert.NotNil(t, test.EndedAt)

	require.NoError(t, s.ArchiveTest(ctx, "hero"))
	test, err = s.GetTest(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, store.StatusArchived, test.Status)
}

func TestLifecycleNotFound(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.StartTest(ctx, "missing", time.Now()), store.ErrNotFound)
	assert.ErrorIs(t, s.PauseTest(ctx, "missing"), store.ErrNotFound)
	assert.ErrorIs(t, s.CompleteTest(ctx, "missing", time.Now()), store.ErrNotFound)
}

func TestInsertVisitorIdempotent(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	_, err := s.CreateTest(ctx, "hero", store.TestConfig{})
	require.NoError(t, err)

	visitor := uuid.NewString()
	first, created, err := s.InsertVisitor(ctx, "hero", visitor, "b", store.VisitorMeta{UserAgent: "ua"}, now)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "b", first.VariantShown)
	assert.False(t, first.Converted)

	// Second insert returns the existing record, even with a
	// different variant argument: the stored assignment wins.
	second, created, err := s.InsertVisitor(ctx, "hero", visitor, "a", store.VisitorMeta{}, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "b", second.VariantShown)
	assert.Equal(t, first.VisitedAt.Unix(), second.VisitedAt.Unix())
}

func TestMarkConvertedMonotonic(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	_, err := s.CreateTest(ctx, "hero", store.TestConfig{})
	require.NoError(t, err)
	_, _, err = s.InsertVisitor(ctx, "hero", "visitor-1", "a", store.VisitorMeta{}, now)
	require.NoError(t, err)

	data, _ := json.Marshal(map[string]any{"revenue": 19.99})

	ok, err := s.MarkConverted(ctx, "hero", "visitor-1", data, now)
	require.NoError(t, err)
	assert.True(t, ok)

	record, err := s.GetVisitor(ctx, "hero", "visitor-1")
	require.NoError(t, err)
	assert.True(t, record.Converted)
	assert.NotNil(t, record.ConvertedAt)
	assert.JSONEq(t, string(data), string(record.ConversionData))

	// Converting again is a no-op returning false, not an error.
	ok, err = s.MarkConverted(ctx, "hero", "visitor-1", nil, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	record, err = s.GetVisitor(ctx, "hero", "visitor-1")
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(record.ConversionData), "failed re-conversion must not clobber data")
}

func TestMarkConvertedMissingVisitor(t *testing.T) {
	s := setupStore(t)

	ok, err := s.MarkConverted(context.Background(), "hero", "ghost", nil, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVariantCounts(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	_, err := s.CreateTest(ctx, "hero", store.TestConfig{})
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		_, _, err := s.InsertVisitor(ctx, "hero", visitorID("a", i), "a", store.VisitorMeta{}, now)
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, _, err := s.InsertVisitor(ctx, "hero", visitorID("b", i), "b", store.VisitorMeta{}, now)
		require.NoError(t, err)
	}

	for i := 0; i < 2; i++ {
		_, err := s.MarkConverted(ctx, "hero", visitorID("a", i), nil, now)
		require.NoError(t, err)
	}
	_, err = s.MarkConverted(ctx, "hero", visitorID("b", 0), nil, now)
	require.NoError(t, err)

	counts, err := s.VariantCounts(ctx, "hero")
	require.NoError(t, err)
	require.Len(t, counts, 2)

	assert.Equal(t, store.VariantCount{Variant: "a", Visitors: 7, Conversions: 2}, counts[0])
	assert.Equal(t, store.VariantCount{Variant: "b", Visitors: 3, Conversions: 1}, counts[1])
}

func TestUpdateTrafficSplit(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.CreateTest(ctx, "hero", store.TestConfig{})
	require.NoError(t, err)

	require.NoError(t, s.UpdateTrafficSplit(ctx, "hero", 60))
	test, err := s.GetTest(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, 60, test.TrafficSplit)

	assert.Error(t, s.UpdateTrafficSplit(ctx, "hero", 95), "out-of-bounds split rejected")
	assert.ErrorIs(t, s.UpdateTrafficSplit(ctx, "missing", 60), store.ErrNotFound)
}

func TestSavePerformanceData(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.CreateTest(ctx, "hero", store.TestConfig{})
	require.NoError(t, err)

	blob := []byte(`{"total_conversions":3}`)
	require.NoError(t, s.SavePerformanceData(ctx, "hero", blob))

	test, err := s.GetTest(ctx, "hero")
	require.NoError(t, err)
	assert.JSONEq(t, string(blob), string(test.PerformanceData))
}

func TestDeleteTestRemovesVisitors(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	_, err := s.CreateTest(ctx, "hero", store.TestConfig{})
	require.NoError(t, err)
	_, _, err = s.InsertVisitor(ctx, "hero", "visitor-1", "a", store.VisitorMeta{}, now)
	require.NoError(t, err)

	require.NoError(t, s.DeleteTest(ctx, "hero"))

	_, err = s.GetTest(ctx, "hero")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetVisitor(ctx, "hero", "visitor-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListVisitors(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	_, err := s.CreateTest(ctx, "hero", store.TestConfig{})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _, err := s.InsertVisitor(ctx, "hero", visitorID("v", i), "a", store.VisitorMeta{}, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	records, err := s.ListVisitors(ctx, "hero")
	require.NoError(t, err)
	require.Len(t, records, 5)
	// Newest first.
	assert.Equal(t, visitorID("v", 4), records[0].VisitorID)
}

func visitorID(prefix string, i int) string {
	return fmt.Sprintf("%s-visitor-%d", prefix, i)
}
