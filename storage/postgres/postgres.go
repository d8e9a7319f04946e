// Package postgres provides the PostgreSQL store of record for the featured
// engine. Fulfillment runs in one transaction that locks the purchase row by
// external session id, so concurrent duplicate deliveries serialize on it.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/gofeatured/pkg/featured"
)

// Storage implements featured.Store using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config

	// stopCleanup cancels the background cleanup goroutine
	stopCleanup func()
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// Cleanup configuration
	CleanupEnabled  bool
	CleanupInterval time.Duration // How often to run cleanup
	OutboxRetention time.Duration // How long delivered outbox events are kept
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		CleanupEnabled:  true,
		CleanupInterval: time.Hour,
		OutboxRetention: 7 * 24 * time.Hour,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cleanupCtx, cancel := context.WithCancel(context.Background())
	s := &Storage{
		pool:        pool,
		config:      config,
		stopCleanup: cancel,
	}

	if config.CleanupEnabled && config.CleanupInterval > 0 {
		go s.startCleanup(cleanupCtx)
	}

	return s, nil
}

// Close closes the PostgreSQL connection pool and stops background cleanup
func (s *Storage) Close() {
	if s.stopCleanup != nil {
		s.stopCleanup()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks database connectivity
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const jobColumns = `id, employer_id, title, company_name, location, is_active, is_verified, featured_override, created_at`

func scanJob(row pgx.Row) (*featured.Job, error) {
	var job featured.Job
	err := row.Scan(
		&job.ID,
		&job.EmployerID,
		&job.Title,
		&job.CompanyName,
		&job.Location,
		&job.IsActive,
		&job.IsVerified,
		&job.FeaturedOverride,
		&job.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob implements featured.JobReader
func (s *Storage) GetJob(ctx context.Context, jobID string) (*featured.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, featured.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListActiveJobs implements featured.JobReader using keyset pagination on id.
func (s *Storage) ListActiveJobs(ctx context.Context, afterID string, limit int) ([]featured.Job, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE is_active AND id > $1 ORDER BY id LIMIT $2`,
		afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []featured.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// PutJob inserts or replaces a job row. Jobs are owned by the CRUD
// subsystem; this exists for seeding and tests.
func (s *Storage) PutJob(ctx context.Context, job featured.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				employer_id = EXCLUDED.employer_id,
				title = EXCLUDED.title,
				company_name = EXCLUDED.company_name,
				location = EXCLUDED.location,
				is_active = EXCLUDED.is_active,
				is_verified = EXCLUDED.is_verified,
				featured_override = EXCLUDED.featured_override`,
		job.ID, job.EmployerID, job.Title, job.CompanyName, job.Location,
		job.IsActive, job.IsVerified, job.FeaturedOverride, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to put job: %w", err)
	}
	return nil
}

// ActiveFeatured implements featured.FeaturedReader with one query.
func (s *Storage) ActiveFeatured(ctx context.Context, jobIDs []string, now time.Time) (map[string]featured.FeaturedRecord, error) {
	out := make(map[string]featured.FeaturedRecord, len(jobIDs))
	if len(jobIDs) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT job_id, featured_until, tier, updated_at
			FROM featured_jobs WHERE job_id = ANY($1) AND featured_until > $2`,
		jobIDs, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query featured jobs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec featured.FeaturedRecord
		if err := rows.Scan(&rec.JobID, &rec.FeaturedUntil, &rec.Tier, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan featured job: %w", err)
		}
		out[rec.JobID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query featured jobs: %w", err)
	}
	return out, nil
}

const purchaseColumns = `id::text, employer_id, job_id, type, external_session_id, status, created_at, paid_at`

func scanPurchase(row pgx.Row) (*featured.Purchase, error) {
	var p featured.Purchase
	var status string
	if err := row.Scan(&p.ID, &p.EmployerID, &p.JobID, &p.Type, &p.ExternalSessionID, &status, &p.CreatedAt, &p.PaidAt); err != nil {
		return nil, err
	}
	p.Status = featured.PurchaseStatus(status)
	return &p, nil
}

// CreatePurchase implements featured.PurchaseStore
func (s *Storage) CreatePurchase(ctx context.Context, p *featured.Purchase) error {
	if p == nil || p.ExternalSessionID == "" {
		return fmt.Errorf("invalid purchase")
	}
	id := uuid.New()
	if p.ID != "" {
		parsed, err := uuid.Parse(p.ID)
		if err != nil {
			return fmt.Errorf("invalid purchase id: %w", err)
		}
		id = parsed
	}
	if p.Status == "" {
		p.Status = featured.PurchaseStatusPending
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO purchases (id, employer_id, job_id, type, external_session_id, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, p.EmployerID, p.JobID, p.Type, p.ExternalSessionID, string(p.Status), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create purchase: %w", err)
	}
	p.ID = id.String()
	return nil
}

// GetPurchaseBySession implements featured.PurchaseStore
func (s *Storage) GetPurchaseBySession(ctx context.Context, externalSessionID string) (*featured.Purchase, error) {
	p, err := scanPurchase(s.pool.QueryRow(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE external_session_id = $1`, externalSessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, featured.ErrPurchaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	return p, nil
}

// MarkPurchaseFailed implements featured.FulfillmentStore
func (s *Storage) MarkPurchaseFailed(ctx context.Context, externalSessionID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE purchases SET status = 'failed'
			WHERE external_session_id = $1 AND status = 'pending'`,
		externalSessionID)
	if err != nil {
		return false, fmt.Errorf("failed to mark purchase failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ApplyFulfillment implements featured.FulfillmentStore
func (s *Storage) ApplyFulfillment(ctx context.Context, req featured.FulfillmentRequest) (*featured.FulfillmentResult, error) {
	if req.ExternalSessionID == "" || req.JobID == "" {
		return nil, fmt.Errorf("session id and job id are required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Sessions whose pending row was never written are recorded here.
	_, err = tx.Exec(ctx,
		`INSERT INTO purchases (id, employer_id, job_id, type, external_session_id, status, created_at)
			VALUES ($1, $2, $3, $4, $5, 'pending', $6)
			ON CONFLICT (external_session_id) DO NOTHING`,
		uuid.New(), req.EmployerID, req.JobID, featured.PurchaseTypeFeatured, req.ExternalSessionID, req.Now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert purchase: %w", err)
	}

	p, err := scanPurchase(tx.QueryRow(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE external_session_id = $1 FOR UPDATE`,
		req.ExternalSessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock purchase: %w", err)
	}

	if p.Status == featured.PurchaseStatusPaid {
		res := &featured.FulfillmentResult{Purchase: *p}
		err := tx.QueryRow(ctx,
			`SELECT job_id, featured_until, tier, updated_at FROM featured_jobs WHERE job_id = $1`,
			p.JobID).Scan(&res.Record.JobID, &res.Record.FeaturedUntil, &res.Record.Tier, &res.Record.UpdatedAt)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to get featured job: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return res, nil
	}

	// EXCLUDED.featured_until carries now + duration; the window becomes
	// max(existing, now + duration).
	rec := featured.FeaturedRecord{JobID: p.JobID}
	err = tx.QueryRow(ctx,
		`INSERT INTO featured_jobs (job_id, featured_until, tier, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (job_id) DO UPDATE SET
				featured_until = GREATEST(featured_jobs.featured_until, EXCLUDED.featured_until),
				tier = CASE WHEN EXCLUDED.tier > 0 THEN EXCLUDED.tier ELSE featured_jobs.tier END,
				updated_at = EXCLUDED.updated_at
			RETURNING featured_until, tier, updated_at`,
		p.JobID, req.Now.Add(req.Duration), req.Tier, req.Now).Scan(&rec.FeaturedUntil, &rec.Tier, &rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to extend featured job: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE purchases SET status = 'paid', paid_at = $2
			WHERE external_session_id = $1 AND status <> 'paid'`,
		req.ExternalSessionID, req.Now)
	if err != nil {
		return nil, fmt.Errorf("failed to mark purchase paid: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, fmt.Errorf("failed to mark purchase paid: %d rows affected", tag.RowsAffected())
	}

	event := featured.StateChanged{
		ID:            uuid.NewString(),
		JobID:         p.JobID,
		Reason:        featured.ReasonFulfilled,
		FeaturedUntil: rec.FeaturedUntil,
		CreatedAt:     req.Now,
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO outbox_events (id, job_id, reason, featured_until, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
		uuid.MustParse(event.ID), event.JobID, event.Reason, event.FeaturedUntil, event.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to write outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	paidAt := req.Now
	p.Status = featured.PurchaseStatusPaid
	p.PaidAt = &paidAt
	return &featured.FulfillmentResult{
		Purchase: *p,
		Record:   rec,
		Applied:  true,
		Event:    &event,
	}, nil
}

// PendingEvents implements featured.OutboxStore
func (s *Storage) PendingEvents(ctx context.Context, limit, maxAttempts int) ([]featured.StateChanged, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, job_id, reason, featured_until, created_at, attempts, last_error
			FROM outbox_events
			WHERE delivered_at IS NULL AND ($2::int <= 0 OR attempts < $2::int)
			ORDER BY created_at
			LIMIT $1`,
		limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	events := []featured.StateChanged{}
	for rows.Next() {
		var e featured.StateChanged
		if err := rows.Scan(&e.ID, &e.JobID, &e.Reason, &e.FeaturedUntil, &e.CreatedAt, &e.Attempts, &e.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	return events, nil
}

// MarkEventDelivered implements featured.OutboxStore
func (s *Storage) MarkEventDelivered(ctx context.Context, eventID string, at time.Time) error {
	id, err := uuid.Parse(eventID)
	if err != nil {
		return fmt.Errorf("invalid event id: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `UPDATE outbox_events SET delivered_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("failed to mark event delivered: %w", err)
	}
	return nil
}

// MarkEventFailed implements featured.OutboxStore
func (s *Storage) MarkEventFailed(ctx context.Context, eventID string, reason string) error {
	id, err := uuid.Parse(eventID)
	if err != nil {
		return fmt.Errorf("invalid event id: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE outbox_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1`, id, reason)
	if err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}
	return nil
}

// startCleanup periodically drops delivered outbox events past retention
func (s *Storage) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.cleanupDelivered(ctx)
		}
	}
}

func (s *Storage) cleanupDelivered(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.config.OutboxRetention)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM outbox_events WHERE delivered_at IS NOT NULL AND delivered_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up outbox: %w", err)
	}
	return tag.RowsAffected(), nil
}
