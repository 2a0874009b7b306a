package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"earnwatch/internal/domain"
)

// listingSelectList is the column list for SELECT on listings_seen
// (single source for schema changes).
const listingSelectList = `id, tab, title, url, region, is_global,
			first_seen_at, last_seen_at, notified_at`

const createTableSQL = `
CREATE TABLE IF NOT EXISTS listings_seen (
	id              TEXT PRIMARY KEY,
	tab             TEXT NOT NULL,
	title           TEXT,
	url             TEXT,
	region          TEXT,
	is_global       BOOLEAN NOT NULL DEFAULT TRUE,
	first_seen_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	notified_at     TIMESTAMPTZ
)`

// Repository manages the listings_seen table. Rows are created on the
// first upsert of an id and never deleted; notified_at moves from NULL
// to a timestamp exactly once.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new repository instance.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Init creates the listings_seen table if it does not exist.
// Safe to call on every startup.
func (r *Repository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create listings_seen table: %w", err)
	}
	return nil
}

// Upsert inserts the listing if its id is unseen, or refreshes the
// display fields and last_seen_at if it exists. The returned flag is
// true iff this call performed the insert branch: `xmax = 0` holds
// only for a freshly inserted row, so newness is decided atomically in
// the same statement without a second query.
func (r *Repository) Upsert(ctx context.Context, listing domain.Listing) (bool, error) {
	query := `
		INSERT INTO listings_seen (id, tab, title, url, region, is_global)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
			SET last_seen_at = NOW(),
			    tab          = EXCLUDED.tab,
			    title        = EXCLUDED.title,
			    url          = EXCLUDED.url,
			    region       = EXCLUDED.region,
			    is_global    = EXCLUDED.is_global
		RETURNING (xmax = 0) AS is_new`

	var isNew bool
	err := r.db.QueryRowContext(ctx, query,
		listing.ID, listing.Tab, listing.Title, listing.URL, listing.Region, listing.IsGlobal,
	).Scan(&isNew)
	if err != nil {
		return false, fmt.Errorf("upsert listing %s: %w", listing.ID, err)
	}
	return isNew, nil
}

// NeedsNotification reports whether the row exists and has not been
// notified yet. A missing row yields false: an id that was never
// upserted has nothing pending.
func (r *Repository) NeedsNotification(ctx context.Context, id string) (bool, error) {
	var notifiedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT notified_at FROM listings_seen WHERE id = $1`, id,
	).Scan(&notifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check notification state for %s: %w", id, err)
	}
	return !notifiedAt.Valid, nil
}

// MarkNotified records a confirmed successful send. COALESCE keeps the
// first timestamp on repeated calls, so the transition is monotonic:
// once set, notified_at never changes and never reverts to NULL.
func (r *Repository) MarkNotified(ctx context.Context, id string) error {
	query := `
		UPDATE listings_seen
		SET notified_at = COALESCE(notified_at, NOW())
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark notified %s: %w", id, err)
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetStats returns aggregate numbers plus a summary of the most
// recently discovered listing.
func (r *Repository) GetStats(ctx context.Context) (*domain.StoreStats, error) {
	stats := &domain.StoreStats{}

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*)           AS total,
			COUNT(notified_at) AS notified,
			MAX(first_seen_at) AS last_first_seen
		FROM listings_seen`,
	).Scan(&stats.Total, &stats.Notified, &stats.LastFirstSeen)
	if err != nil {
		return nil, fmt.Errorf("get listing stats: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
		SELECT title, tab, region, url
		FROM listings_seen
		ORDER BY first_seen_at DESC
		LIMIT 1`,
	).Scan(&stats.LastTitle, &stats.LastTab, &stats.LastRegion, &stats.LastURL)
	if errors.Is(err, sql.ErrNoRows) {
		return stats, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get newest listing: %w", err)
	}

	return stats, nil
}

// GetLatest returns the most recently discovered listings, newest
// first.
func (r *Repository) GetLatest(ctx context.Context, limit int) ([]domain.StoredListing, error) {
	query := `SELECT ` + listingSelectList + `
		FROM listings_seen
		ORDER BY first_seen_at DESC
		LIMIT $1`

	listings := []domain.StoredListing{}
	if err := r.db.SelectContext(ctx, &listings, query, limit); err != nil {
		return nil, fmt.Errorf("get latest listings: %w", err)
	}
	return listings, nil
}
