package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS tests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'draft',
    traffic_split INTEGER NOT NULL DEFAULT 50,
    min_sample_size INTEGER NOT NULL DEFAULT 1000,
    confidence_level REAL NOT NULL DEFAULT 95.0,
    goals TEXT,
    performance_data TEXT,
    started_at INTEGER,
    ended_at INTEGER,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_tests_name ON tests(name);
CREATE INDEX IF NOT EXISTS idx_tests_status ON tests(status);

CREATE TABLE IF NOT EXISTS visitors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    test_name TEXT NOT NULL,
    visitor_id TEXT NOT NULL,
    variant_shown TEXT NOT NULL,
    converted INTEGER NOT NULL DEFAULT 0,
    conversion_data TEXT,
    ip_address TEXT NOT NULL DEFAULT '',
    user_agent TEXT NOT NULL DEFAULT '',
    referrer TEXT NOT NULL DEFAULT '',
    visited_at INTEGER NOT NULL,
    converted_at INTEGER,
    FOREIGN KEY (test_name) REFERENCES tests(name)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_visitors_dedup ON visitors(test_name, visitor_id);
CREATE INDEX IF NOT EXISTS idx_visitors_variant ON visitors(test_name, variant_shown);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateTest(ctx context.Context, name string, cfg TestConfig) (*Test, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var goalsJSON []byte
	if len(cfg.Goals) > 0 {
		var err error
		goalsJSON, err = json.Marshal(cfg.Goals)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal goals: %w", err)
		}
	}

	now := time.Now().Unix()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO tests (name, description, subject, status, traffic_split, min_sample_size, confidence_level, goals, created_at, updated_at)
		 VALUES (?, ?, ?, 'draft', ?, ?, ?, ?, ?, ?)`,
		name, cfg.Description, cfg.Subject, cfg.TrafficSplit, cfg.MinSampleSize, cfg.ConfidenceLevel,
		nullableString(goalsJSON), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert test: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return &Test{
		ID:              id,
		Name:            name,
		Description:     cfg.Description,
		Subject:         cfg.Subject,
		Status:          StatusDraft,
		TrafficSplit:    cfg.TrafficSplit,
		MinSampleSize:   cfg.MinSampleSize,
		ConfidenceLevel: cfg.ConfidenceLevel,
		Goals:           cfg.Goals,
		CreatedAt:       time.Unix(now, 0),
		UpdatedAt:       time.Unix(now, 0),
	}, nil
}

const testColumns = `id, name, description, subject, status, traffic_split, min_sample_size, confidence_level, goals, performance_data, started_at, ended_at, created_at, updated_at`

func scanTest(row interface{ Scan(...any) error }) (*Test, error) {
	var test Test
	var goalsJSON, perfJSON sql.NullString
	var startedAt, endedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&test.ID, &test.Name, &test.Description, &test.Subject, &test.Status,
		&test.TrafficSplit, &test.MinSampleSize, &test.ConfidenceLevel,
		&goalsJSON, &perfJSON, &startedAt, &endedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if goalsJSON.Valid && goalsJSON.String != "" {
		if err := json.Unmarshal([]byte(goalsJSON.String), &test.Goals); err != nil {
			return nil, fmt.Errorf("failed to unmarshal goals: %w", err)
		}
	}
	if perfJSON.Valid && perfJSON.String != "" {
		test.PerformanceData = []byte(perfJSON.String)
	}
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0)
		test.StartedAt = &t
	}
	if endedAt.Valid {
		t := time.Unix(endedAt.Int64, 0)
		test.EndedAt = &t
	}
	test.CreatedAt = time.Unix(createdAt, 0)
	test.UpdatedAt = time.Unix(updatedAt, 0)

	return &test, nil
}

func (s *SQLiteStore) GetTest(ctx context.Context, name string) (*Test, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+testColumns+` FROM tests WHERE name = ?`, name)

	test, err := scanTest(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	return test, nil
}

func (s *SQLiteStore) ListTests(ctx context.Context) ([]*Test, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+testColumns+` FROM tests ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	defer rows.Close()

	var tests []*Test
	for rows.Next() {
		test, err := scanTest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan test: %w", err)
		}
		tests = append(tests, test)
	}

	return tests, rows.Err()
}

func (s *SQLiteStore) DeleteTest(ctx context.Context, name string) error {
	// Delete child rows first; no FK cascade.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM visitors WHERE test_name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete visitors: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM tests WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete test: %w", err)
	}

	return checkAffected(result)
}

// StartTest moves a test into the running state. The start time is
// only set on first start so that pause/resume cycles keep the
// original window.
func (s *SQLiteStore) StartTest(ctx context.Context, name string, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tests SET status = 'running', started_at = COALESCE(started_at, ?), updated_at = ? WHERE name = ?`,
		now.Unix(), now.Unix(), name)
	if err != nil {
		return fmt.Errorf("failed to start test: %w", err)
	}
	return checkAffected(result)
}

func (s *SQLiteStore) PauseTest(ctx context.Context, name string) error {
	return s.setStatus(ctx, name, StatusPaused)
}

func (s *SQLiteStore) ResumeTest(ctx context.Context, name string) error {
	return s.setStatus(ctx, name, StatusRunning)
}

func (s *SQLiteStore) CompleteTest(ctx context.Context, name string, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tests SET status = 'completed', ended_at = ?, updated_at = ? WHERE name = ?`,
		now.Unix(), now.Unix(), name)
	if err != nil {
		return fmt.Errorf("failed to complete test: %w", err)
	}
	return checkAffected(result)
}

func (s *SQLiteStore) ArchiveTest(ctx context.Context, name string) error {
	return s.setStatus(ctx, name, StatusArchived)
}

func (s *SQLiteStore) setStatus(ctx context.Context, name string, status TestStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tests SET status = ?, updated_at = ? WHERE name = ?`,
		string(status), time.Now().Unix(), name)
	if err != nil {
		return fmt.Errorf("failed to update test status: %w", err)
	}
	return checkAffected(result)
}

// UpdateTrafficSplit applies the new split in a single UPDATE so
// concurrent readers see either the old or the new value, never a
// partial state.
func (s *SQLiteStore) UpdateTrafficSplit(ctx context.Context, name string, split int) error {
	if split < MinTrafficSplit || split > MaxTrafficSplit {
		return fmt.Errorf("traffic split must be between %d and %d, got %d", MinTrafficSplit, MaxTrafficSplit, split)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE tests SET traffic_split = ?, updated_at = ? WHERE name = ?`,
		split, time.Now().Unix(), name)
	if err != nil {
		return fmt.Errorf("failed to update traffic split: %w", err)
	}
	return checkAffected(result)
}

func (s *SQLiteStore) SavePerformanceData(ctx context.Context, name string, data []byte) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tests SET performance_data = ?, updated_at = ? WHERE name = ?`,
		nullableString(data), time.Now().Unix(), name)
	if err != nil {
		return fmt.Errorf("failed to save performance data: %w", err)
	}
	return checkAffected(result)
}

// InsertVisitor records a visitor's assignment, or returns the
// existing record when one is already present. The unique index plus
// INSERT OR IGNORE makes this safe under concurrent requests for the
// same (test, visitor); there is no check-then-insert window.
func (s *SQLiteStore) InsertVisitor(ctx context.Context, testName, visitorID, variant string, meta VisitorMeta, now time.Time) (*VisitorRecord, bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO visitors (test_name, visitor_id, variant_shown, ip_address, user_agent, referrer, visited_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		testName, visitorID, variant, meta.IPAddress, meta.UserAgent, meta.Referrer, now.Unix())
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert visitor: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	record, err := s.GetVisitor(ctx, testName, visitorID)
	if err != nil {
		return nil, false, err
	}
	return record, affected == 1, nil
}

func (s *SQLiteStore) GetVisitor(ctx context.Context, testName, visitorID string) (*VisitorRecord, error) {
	var r VisitorRecord
	var converted int
	var conversionData sql.NullString
	var visitedAt int64
	var convertedAt sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, test_name, visitor_id, variant_shown, converted, conversion_data, ip_address, user_agent, referrer, visited_at, converted_at
		 FROM visitors WHERE test_name = ? AND visitor_id = ?`,
		testName, visitorID,
	).Scan(&r.ID, &r.TestName, &r.VisitorID, &r.VariantShown, &converted, &conversionData,
		&r.IPAddress, &r.UserAgent, &r.Referrer, &visitedAt, &convertedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get visitor: %w", err)
	}

	r.Converted = converted == 1
	if conversionData.Valid && conversionData.String != "" {
		r.ConversionData = []byte(conversionData.String)
	}
	r.VisitedAt = time.Unix(visitedAt, 0)
	if convertedAt.Valid {
		t := time.Unix(convertedAt.Int64, 0)
		r.ConvertedAt = &t
	}

	return &r, nil
}

// MarkConverted flips a visitor to converted. The WHERE clause is the
// compare-and-set: an already-converted or missing visitor affects
// zero rows and returns false, never an error.
func (s *SQLiteStore) MarkConverted(ctx context.Context, testName, visitorID string, data []byte, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE visitors SET converted = 1, conversion_data = ?, converted_at = ?
		 WHERE test_name = ? AND visitor_id = ? AND converted = 0`,
		nullableString(data), now.Unix(), testName, visitorID)
	if err != nil {
		return false, fmt.Errorf("failed to mark converted: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

func (s *SQLiteStore) VariantCounts(ctx context.Context, testName string) ([]VariantCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			variant_shown,
			COUNT(*) as visitors,
			SUM(converted) as conversions
		FROM visitors
		WHERE test_name = ?
		GROUP BY variant_shown
		ORDER BY variant_shown
	`, testName)
	if err != nil {
		return nil, fmt.Errorf("failed to get variant counts: %w", err)
	}
	defer rows.Close()

	var counts []VariantCount
	for rows.Next() {
		var c VariantCount
		if err := rows.Scan(&c.Variant, &c.Visitors, &c.Conversions); err != nil {
			return nil, fmt.Errorf("failed to scan counts: %w", err)
		}
		counts = append(counts, c)
	}

	return counts, rows.Err()
}

func (s *SQLiteStore) ListVisitors(ctx context.Context, testName string) ([]*VisitorRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, test_name, visitor_id, variant_shown, converted, conversion_data, ip_address, user_agent, referrer, visited_at, converted_at
		 FROM visitors WHERE test_name = ? ORDER BY visited_at DESC, id DESC`,
		testName)
	if err != nil {
		return nil, fmt.Errorf("failed to list visitors: %w", err)
	}
	defer rows.Close()

	var records []*VisitorRecord
	for rows.Next() {
		var r VisitorRecord
		var converted int
		var conversionData sql.NullString
		var visitedAt int64
		var convertedAt sql.NullInt64

		err := rows.Scan(&r.ID, &r.TestName, &r.VisitorID, &r.VariantShown, &converted, &conversionData,
			&r.IPAddress, &r.UserAgent, &r.Referrer, &visitedAt, &convertedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visitor: %w", err)
		}

		r.Converted = converted == 1
		if conversionData.Valid && conversionData.String != "" {
			r.ConversionData = []byte(conversionData.String)
		}
		r.VisitedAt = time.Unix(visitedAt, 0)
		if convertedAt.Valid {
			t := time.Unix(convertedAt.Int64, 0)
			r.ConvertedAt = &t
		}

		records = append(records, &r)
	}

	return records, rows.Err()
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func checkAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
