package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chatello/gateway/pkg/config"
	"chatello/gateway/pkg/licensing"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore implements Store on a SQLite database file.
//
// Writes are serialized through a mutex and the database runs in WAL mode so
// readers do not block the writer. A background loop checkpoints the WAL.
type SQLiteStore struct {
	db        *sql.DB
	path      string
	mu        sync.RWMutex
	done      chan struct{}
	closeOnce sync.Once

	// hot-path statements
	appendStmt   *sql.Stmt
	countStmt    *sql.Stmt
	byKeyStmt    *sql.Stmt
	touchStmt    *sql.Stmt
	planByIDStmt *sql.Stmt
}

// checkpointInterval is how often the WAL is checkpointed.
const checkpointInterval = 5 * time.Minute

// NewSQLiteStore opens (creating if needed) the database at cfg.Path and
// initializes the schema.
func NewSQLiteStore(cfg config.SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = config.DefaultSQLiteBusyTimeout
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = config.DefaultSQLiteMaxOpenConns
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	pragmas := []string{
		fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()),
		"foreign_keys(1)",
		"synchronous(NORMAL)",
	}
	if cfg.WALMode {
		pragmas = append(pragmas, "journal_mode(WAL)")
	}
	params := make([]string, len(pragmas))
	for i, p := range pragmas {
		params[i] = "_pragma=" + p
	}
	dsn := cfg.Path + "?" + strings.Join(params, "&")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{
		db:   db,
		path: cfg.Path,
		done: make(chan struct{}),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	if cfg.WALMode {
		go s.checkpointLoop()
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		price REAL NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'EUR',
		monthly_request_limit INTEGER NOT NULL DEFAULT 0,
		requests_per_minute INTEGER NOT NULL DEFAULT 0,
		requests_per_hour INTEGER NOT NULL DEFAULT 0,
		monthly_budget REAL NOT NULL DEFAULT 0,
		cost_per_1k_tokens REAL NOT NULL DEFAULT 0,
		features TEXT NOT NULL DEFAULT '[]',
		is_lifetime INTEGER NOT NULL DEFAULT 0,
		lifetime_seat_limit INTEGER NOT NULL DEFAULT 0,
		max_sites INTEGER NOT NULL DEFAULT 1,
		is_active INTEGER NOT NULL DEFAULT 1,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		name TEXT NOT NULL DEFAULT '',
		company TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS licenses (
		id TEXT PRIMARY KEY,
		license_key TEXT NOT NULL UNIQUE,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		plan_id TEXT NOT NULL REFERENCES plans(id),
		domain TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		activated_at INTEGER NOT NULL,
		expires_at INTEGER,
		last_check INTEGER,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_licenses_plan_status ON licenses(plan_id, status);
	CREATE INDEX IF NOT EXISTS idx_licenses_customer ON licenses(customer_id);

	CREATE TABLE IF NOT EXISTS usage_logs (
		id TEXT PRIMARY KEY,
		license_id TEXT NOT NULL,
		endpoint TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		tokens_used INTEGER NOT NULL DEFAULT 0,
		estimated INTEGER NOT NULL DEFAULT 0,
		response_time_ms INTEGER NOT NULL DEFAULT 0,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_usage_license_time ON usage_logs(license_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_usage_time ON usage_logs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

const planColumns = `id, name, display_name, price, currency, monthly_request_limit,
	requests_per_minute, requests_per_hour, monthly_budget, cost_per_1k_tokens,
	features, is_lifetime, lifetime_seat_limit, max_sites, is_active, metadata,
	created_at, updated_at`

const licenseColumns = `id, license_key, customer_id, plan_id, domain, status,
	activated_at, expires_at, last_check, metadata, created_at, updated_at`

const customerColumns = `id, email, name, company, phone, country, notes, status,
	created_at, updated_at`

const usageColumns = `id, license_id, endpoint, provider, model, tokens_used,
	estimated, response_time_ms, ip_address, user_agent, created_at`

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.appendStmt, err = s.db.Prepare(`INSERT INTO usage_logs (` + usageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare append statement: %w", err)
	}

	s.countStmt, err = s.db.Prepare(`SELECT COUNT(*) FROM usage_logs
		WHERE license_id = ? AND created_at >= ? AND created_at <= ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare count statement: %w", err)
	}

	s.byKeyStmt, err = s.db.Prepare(`SELECT ` + licenseColumns + ` FROM licenses WHERE license_key = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare license lookup statement: %w", err)
	}

	s.touchStmt, err = s.db.Prepare(`UPDATE licenses SET last_check = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare touch statement: %w", err)
	}

	s.planByIDStmt, err = s.db.Prepare(`SELECT ` + planColumns + ` FROM plans WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare plan lookup statement: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*licensing.Plan, error) {
	var (
		p                    licensing.Plan
		features, metadata   string
		isLifetime, isActive bool
		createdAt, updatedAt int64
	)
	err := row.Scan(&p.ID, &p.Name, &p.DisplayName, &p.Price, &p.Currency,
		&p.MonthlyRequestLimit, &p.RequestsPerMinute, &p.RequestsPerHour,
		&p.MonthlyBudget, &p.CostPer1KTokens, &features, &isLifetime,
		&p.LifetimeSeatLimit, &p.MaxSites, &isActive, &metadata,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan features: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &p.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan metadata: %w", err)
	}
	p.IsLifetime = isLifetime
	p.IsActive = isActive
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

func scanLicense(row rowScanner) (*licensing.License, error) {
	var (
		l                    licensing.License
		status, metadata     string
		activatedAt          int64
		expiresAt, lastCheck sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(&l.ID, &l.Key, &l.CustomerID, &l.PlanID, &l.Domain, &status,
		&activatedAt, &expiresAt, &lastCheck, &metadata, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadata), &l.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal license metadata: %w", err)
	}
	l.Status = licensing.Status(status)
	l.ActivatedAt = fromMillis(activatedAt)
	if expiresAt.Valid {
		t := fromMillis(expiresAt.Int64)
		l.ExpiresAt = &t
	}
	if lastCheck.Valid {
		t := fromMillis(lastCheck.Int64)
		l.LastCheck = &t
	}
	l.CreatedAt = fromMillis(createdAt)
	l.UpdatedAt = fromMillis(updatedAt)
	return &l, nil
}

func scanCustomer(row rowScanner) (*licensing.Customer, error) {
	var (
		c                    licensing.Customer
		createdAt, updatedAt int64
	)
	err := row.Scan(&c.ID, &c.Email, &c.Name, &c.Company, &c.Phone, &c.Country,
		&c.Notes, &c.Status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return &c, nil
}

func scanUsage(row rowScanner) (*licensing.UsageRecord, error) {
	var (
		r         licensing.UsageRecord
		createdAt int64
	)
	err := row.Scan(&r.ID, &r.LicenseID, &r.Endpoint, &r.Provider, &r.Model,
		&r.TokensUsed, &r.Estimated, &r.ResponseTimeMS, &r.IPAddress,
		&r.UserAgent, &createdAt)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = fromMillis(createdAt)
	return &r, nil
}

func nullableMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func marshalMap(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// rangeBounds maps a TimeRange onto inclusive millisecond bounds.
func rangeBounds(r TimeRange) (int64, int64) {
	from := int64(0)
	to := int64(1<<63 - 1)
	if !r.From.IsZero() {
		from = toMillis(r.From)
	}
	if !r.To.IsZero() {
		to = toMillis(r.To)
	}
	return from, to
}

// UpsertPlan implements Store.
func (s *SQLiteStore) UpsertPlan(ctx context.Context, p *licensing.Plan) error {
	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal plan features: %w", err)
	}
	if p.Features == nil {
		features = []byte("[]")
	}
	metadata, err := marshalMap(p.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal plan metadata: %w", err)
	}

	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `INSERT INTO plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			display_name = excluded.display_name,
			price = excluded.price,
			currency = excluded.currency,
			monthly_request_limit = excluded.monthly_request_limit,
			requests_per_minute = excluded.requests_per_minute,
			requests_per_hour = excluded.requests_per_hour,
			monthly_budget = excluded.monthly_budget,
			cost_per_1k_tokens = excluded.cost_per_1k_tokens,
			features = excluded.features,
			is_lifetime = excluded.is_lifetime,
			lifetime_seat_limit = excluded.lifetime_seat_limit,
			max_sites = excluded.max_sites,
			is_active = excluded.is_active,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.DisplayName, p.Price, p.Currency, p.MonthlyRequestLimit,
		p.RequestsPerMinute, p.RequestsPerHour, p.MonthlyBudget, p.CostPer1KTokens,
		string(features), p.IsLifetime, p.LifetimeSeatLimit, p.MaxSites, p.IsActive,
		metadata, toMillis(p.CreatedAt), toMillis(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert plan: %w", err)
	}

	var createdAt int64
	err = s.db.QueryRowContext(ctx, `SELECT id, created_at FROM plans WHERE name = ?`, p.Name).Scan(&p.ID, &createdAt)
	if err != nil {
		return fmt.Errorf("failed to read back plan: %w", err)
	}
	p.CreatedAt = fromMillis(createdAt)
	return nil
}

// GetPlan implements licensing.PlanStore.
func (s *SQLiteStore) GetPlan(ctx context.Context, id string) (*licensing.Plan, error) {
	p, err := scanPlan(s.planByIDStmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, licensing.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	return p, nil
}

// GetPlanByName implements licensing.PlanStore.
func (s *SQLiteStore) GetPlanByName(ctx context.Context, name string) (*licensing.Plan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE name = ?`, name)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, licensing.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	return p, nil
}

// ListPlans implements licensing.PlanStore. Plans are ordered by price.
func (s *SQLiteStore) ListPlans(ctx context.Context) ([]*licensing.Plan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+planColumns+` FROM plans ORDER BY price, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []*licensing.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return plans, nil
}

// CreateCustomer implements Store.
func (s *SQLiteStore) CreateCustomer(ctx context.Context, c *licensing.Customer) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	if c.Status == "" {
		c.Status = "active"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO customers (`+customerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Email, c.Name, c.Company, c.Phone, c.Country, c.Notes, c.Status,
		toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return licensing.ErrCustomerExists
	}
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// GetCustomer implements licensing.CustomerStore.
func (s *SQLiteStore) GetCustomer(ctx context.Context, id string) (*licensing.Customer, error) {
	return s.getCustomer(ctx, `id = ?`, id)
}

// GetCustomerByEmail implements Store.
func (s *SQLiteStore) GetCustomerByEmail(ctx context.Context, email string) (*licensing.Customer, error) {
	return s.getCustomer(ctx, `email = ?`, email)
}

func (s *SQLiteStore) getCustomer(ctx context.Context, where string, arg any) (*licensing.Customer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE `+where, arg)
	c, err := scanCustomer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, licensing.ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}
	return c, nil
}

func licenseArgs(l *licensing.License) ([]any, error) {
	metadata, err := marshalMap(l.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal license metadata: %w", err)
	}
	return []any{
		l.ID, l.Key, l.CustomerID, l.PlanID, l.Domain, string(l.Status),
		toMillis(l.ActivatedAt), nullableMillis(l.ExpiresAt), nullableMillis(l.LastCheck),
		metadata, toMillis(l.CreatedAt), toMillis(l.UpdatedAt),
	}, nil
}

func prepareLicense(l *licensing.License) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = now
	}
	if l.ActivatedAt.IsZero() {
		l.ActivatedAt = now
	}
}

// CreateLicense implements licensing.LicenseStore.
func (s *SQLiteStore) CreateLicense(ctx context.Context, l *licensing.License) error {
	prepareLicense(l)
	args, err := licenseArgs(l)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `INSERT INTO licenses (`+licenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if isUniqueViolation(err) {
		return licensing.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to create license: %w", err)
	}
	return nil
}

// CreateLicenseWithinSeatLimit implements licensing.LicenseStore. The seat
// count and the insert run as one statement, so the check cannot be raced
// by another connection.
func (s *SQLiteStore) CreateLicenseWithinSeatLimit(ctx context.Context, l *licensing.License, limit int64) error {
	prepareLicense(l)
	args, err := licenseArgs(l)
	if err != nil {
		return err
	}
	args = append(args, l.PlanID, string(licensing.StatusCancelled), limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `INSERT INTO licenses (`+licenseColumns+`)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE (SELECT COUNT(*) FROM licenses WHERE plan_id = ? AND status != ?) < ?`, args...)
	if isUniqueViolation(err) {
		return licensing.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to create license: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return licensing.ErrSeatsExhausted
	}
	return nil
}

// CountSeats implements licensing.LicenseStore.
func (s *SQLiteStore) CountSeats(ctx context.Context, planID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM licenses WHERE plan_id = ? AND status != ?`,
		planID, string(licensing.StatusCancelled)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count seats: %w", err)
	}
	return n, nil
}

// GetLicense implements Store.
func (s *SQLiteStore) GetLicense(ctx context.Context, id string) (*licensing.License, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE id = ?`, id)
	l, err := scanLicense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, licensing.ErrInvalidLicense
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load license: %w", err)
	}
	return l, nil
}

// GetLicenseByKey implements licensing.LicenseStore.
func (s *SQLiteStore) GetLicenseByKey(ctx context.Context, key string) (*licensing.License, error) {
	l, err := scanLicense(s.byKeyStmt.QueryRowContext(ctx, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, licensing.ErrInvalidLicense
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load license: %w", err)
	}
	return l, nil
}

// ListLicenses implements Store.
func (s *SQLiteStore) ListLicenses(ctx context.Context, f LicenseFilter) ([]*licensing.License, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.PlanID != "" {
		where = append(where, "plan_id = ?")
		args = append(args, f.PlanID)
	}
	if f.CustomerID != "" {
		where = append(where, "customer_id = ?")
		args = append(args, f.CustomerID)
	}

	query := `SELECT ` + licenseColumns + ` FROM licenses`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}
	defer rows.Close()

	var out []*licensing.License
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// UpdateLicenseStatus implements licensing.LicenseStore.
func (s *SQLiteStore) UpdateLicenseStatus(ctx context.Context, id string, from, to licensing.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE licenses SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), toMillis(at), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update license status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM licenses WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return licensing.ErrInvalidLicense
	}
	if err != nil {
		return fmt.Errorf("failed to check license: %w", err)
	}
	return licensing.ErrStatusConflict
}

// TouchLastCheck implements licensing.LicenseStore.
func (s *SQLiteStore) TouchLastCheck(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.touchStmt.ExecContext(ctx, toMillis(at), id); err != nil {
		return fmt.Errorf("failed to update last check: %w", err)
	}
	return nil
}

// AppendUsage implements Ledger.
func (s *SQLiteStore) AppendUsage(ctx context.Context, rec *licensing.UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.appendStmt.ExecContext(ctx,
		rec.ID, rec.LicenseID, rec.Endpoint, rec.Provider, rec.Model,
		rec.TokensUsed, rec.Estimated, rec.ResponseTimeMS, rec.IPAddress,
		rec.UserAgent, toMillis(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append usage: %w", err)
	}
	return nil
}

// PatchTokens implements Ledger.
func (s *SQLiteStore) PatchTokens(ctx context.Context, id string, tokens int64, estimated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE usage_logs SET tokens_used = ?, estimated = ? WHERE id = ?`,
		tokens, estimated, id)
	if err != nil {
		return fmt.Errorf("failed to patch tokens: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return licensing.ErrUsageNotFound
	}
	return nil
}

// CountRequests implements Ledger.
func (s *SQLiteStore) CountRequests(ctx context.Context, licenseID string, r TimeRange) (int64, error) {
	from, to := rangeBounds(r)
	var n int64
	if err := s.countStmt.QueryRowContext(ctx, licenseID, from, to).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count requests: %w", err)
	}
	return n, nil
}

// SumUsage implements Ledger.
func (s *SQLiteStore) SumUsage(ctx context.Context, licenseID string, r TimeRange) (UsageTotals, error) {
	from, to := rangeBounds(r)
	return s.sum(ctx, `WHERE license_id = ? AND created_at >= ? AND created_at <= ?`, licenseID, from, to)
}

// SumUsageAll implements Ledger.
func (s *SQLiteStore) SumUsageAll(ctx context.Context, r TimeRange) (UsageTotals, error) {
	from, to := rangeBounds(r)
	return s.sum(ctx, `WHERE created_at >= ? AND created_at <= ?`, from, to)
}

func (s *SQLiteStore) sum(ctx context.Context, where string, args ...any) (UsageTotals, error) {
	var t UsageTotals
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(tokens_used), 0),
		COALESCE(AVG(response_time_ms), 0) FROM usage_logs `+where, args...).
		Scan(&t.Requests, &t.Tokens, &t.AvgResponseTimeMS)
	if err != nil {
		return UsageTotals{}, fmt.Errorf("failed to sum usage: %w", err)
	}
	return t, nil
}

// ListUsage implements Ledger.
func (s *SQLiteStore) ListUsage(ctx context.Context, q UsageQuery) ([]*licensing.UsageRecord, error) {
	from, to := rangeBounds(q.Range)
	query := `SELECT ` + usageColumns + ` FROM usage_logs WHERE created_at >= ? AND created_at <= ?`
	args := []any{from, to}
	if q.LicenseID != "" {
		query += " AND license_id = ?"
		args = append(args, q.LicenseID)
	}
	if q.Provider != "" {
		query += " AND provider = ?"
		args = append(args, q.Provider)
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	defer rows.Close()

	var out []*licensing.UsageRecord
	for rows.Next() {
		rec, err := scanUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// DailyUsage implements Ledger.
func (s *SQLiteStore) DailyUsage(ctx context.Context, licenseID string, r TimeRange, provider string) ([]DailyBucket, error) {
	from, to := rangeBounds(r)
	query := `SELECT strftime('%Y-%m-%d', created_at / 1000, 'unixepoch') AS day, provider,
		COUNT(*), COALESCE(SUM(tokens_used), 0), COALESCE(AVG(response_time_ms), 0)
		FROM usage_logs
		WHERE license_id = ? AND created_at >= ? AND created_at <= ?`
	args := []any{licenseID, from, to}
	if provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}
	query += " GROUP BY day, provider ORDER BY day DESC, provider"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group usage: %w", err)
	}
	defer rows.Close()

	var out []DailyBucket
	for rows.Next() {
		var b DailyBucket
		if err := rows.Scan(&b.Date, &b.Provider, &b.Requests, &b.Tokens, &b.AvgResponseTimeMS); err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// PruneUsage implements Ledger.
func (s *SQLiteStore) PruneUsage(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM usage_logs WHERE created_at < ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// Counts implements Store.
func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM plans),
		(SELECT COUNT(*) FROM customers),
		(SELECT COUNT(*) FROM licenses),
		(SELECT COUNT(*) FROM licenses WHERE status = 'active'),
		(SELECT COUNT(*) FROM usage_logs)`).
		Scan(&c.Plans, &c.Customers, &c.Licenses, &c.ActiveLicenses, &c.UsageRecords)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count records: %w", err)
	}
	return c, nil
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store. Close is idempotent.
func (s *SQLiteStore) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)

		for _, stmt := range []*sql.Stmt{s.appendStmt, s.countStmt, s.byKeyStmt, s.touchStmt, s.planByIDStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}

		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteStore) checkpointLoop() {
	ticker := time.NewTicker(checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}
