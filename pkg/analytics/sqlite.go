package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS daily_snapshots (
	date             TEXT PRIMARY KEY,
	total_customers  INTEGER NOT NULL,
	active_licenses  INTEGER NOT NULL,
	paying_customers INTEGER NOT NULL,
	mrr              REAL NOT NULL,
	arr              REAL NOT NULL,
	one_time_revenue REAL NOT NULL,
	revenue_by_plan  TEXT NOT NULL,
	requests         INTEGER NOT NULL,
	tokens           INTEGER NOT NULL,
	cost             REAL NOT NULL,
	generated_at     INTEGER NOT NULL
);
`

const upsertSnapshot = `
INSERT INTO daily_snapshots (
	date, total_customers, active_licenses, paying_customers,
	mrr, arr, one_time_revenue, revenue_by_plan,
	requests, tokens, cost, generated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(date) DO UPDATE SET
	total_customers  = excluded.total_customers,
	active_licenses  = excluded.active_licenses,
	paying_customers = excluded.paying_customers,
	mrr              = excluded.mrr,
	arr              = excluded.arr,
	one_time_revenue = excluded.one_time_revenue,
	revenue_by_plan  = excluded.revenue_by_plan,
	requests         = excluded.requests,
	tokens           = excluded.tokens,
	cost             = excluded.cost,
	generated_at     = excluded.generated_at
`

const selectSnapshot = `
SELECT date, total_customers, active_licenses, paying_customers,
	mrr, arr, one_time_revenue, revenue_by_plan,
	requests, tokens, cost, generated_at
FROM daily_snapshots
`

// SQLiteStore keeps snapshots in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewSQLiteStore opens (creating if needed) the snapshot database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("analytics database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create analytics directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open analytics database: %w", err)
	}
	// A single writer keeps upserts from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(snapshotSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create analytics schema: %w", err)
	}

	logger := slog.Default().With("component", "analytics.storage.sqlite")
	logger.Debug("analytics store opened", "path", path)

	return &SQLiteStore{db: db, logger: logger}, nil
}

// SaveSnapshot implements SnapshotStore.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *DailySnapshot) error {
	byPlan, err := json.Marshal(snap.RevenueByPlan)
	if err != nil {
		return fmt.Errorf("failed to encode revenue by plan: %w", err)
	}

	_, err = s.db.ExecContext(ctx, upsertSnapshot,
		snap.Date,
		snap.TotalCustomers,
		snap.ActiveLicenses,
		snap.PayingCustomers,
		snap.MRR,
		snap.ARR,
		snap.OneTimeRevenue,
		string(byPlan),
		snap.Requests,
		snap.Tokens,
		snap.Cost,
		snap.GeneratedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// GetSnapshot implements SnapshotStore.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, date string) (*DailySnapshot, error) {
	row := s.db.QueryRowContext(ctx, selectSnapshot+" WHERE date = ?", date)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots implements SnapshotStore.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, from, to string) ([]*DailySnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		selectSnapshot+" WHERE date >= ? AND date <= ? ORDER BY date DESC", from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []*DailySnapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// PruneSnapshots implements SnapshotStore.
func (s *SQLiteStore) PruneSnapshots(ctx context.Context, before string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM daily_snapshots WHERE date < ?", before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

// Close implements SnapshotStore. Close is idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*DailySnapshot, error) {
	var (
		snap        DailySnapshot
		byPlan      string
		generatedAt int64
	)
	err := row.Scan(
		&snap.Date,
		&snap.TotalCustomers,
		&snap.ActiveLicenses,
		&snap.PayingCustomers,
		&snap.MRR,
		&snap.ARR,
		&snap.OneTimeRevenue,
		&byPlan,
		&snap.Requests,
		&snap.Tokens,
		&snap.Cost,
		&generatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(byPlan), &snap.RevenueByPlan); err != nil {
		return nil, fmt.Errorf("failed to decode revenue by plan: %w", err)
	}
	snap.GeneratedAt = time.UnixMilli(generatedAt).UTC()
	return &snap, nil
}
