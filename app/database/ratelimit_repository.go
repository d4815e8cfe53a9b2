package database

import (
	"context"
	"fmt"
	"time"
)

var _ RateLimitRepository = (*RateLimitRepositoryImpl)(nil)

// RateLimitRepositoryImpl handles database operations for the sliding-window
// request log
type RateLimitRepositoryImpl struct {
	db *DB
}

// NewRateLimitRepository creates a new rate limit repository
func NewRateLimitRepository(db *DB) *RateLimitRepositoryImpl {
	return &RateLimitRepositoryImpl{db: db}
}

// ReserveSlot counts the client's requests since windowStart and appends a
// new record when the count is below limit. The connection opens transactions
// with an immediate write lock, so two concurrent reservations cannot observe
// the same count.
func (r *RateLimitRepositoryImpl) ReserveSlot(ctx context.Context, ipAddress, endpoint string, windowStart time.Time, limit int) (RateLimitDecision, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return RateLimitDecision{}, fmt.Errorf("failed to begin rate limit transaction: %w", err)
	}
	defer tx.Rollback()

	windowStart = windowStart.UTC()

	var count int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM rate_limits
		WHERE ip_address = ? AND endpoint = ? AND requested_at >= ?
	`, ipAddress, endpoint, windowStart).Scan(&count)
	if err != nil {
		return RateLimitDecision{}, fmt.Errorf("failed to count rate limit records: %w", err)
	}

	if count >= limit {
		// Select the column directly instead of MIN(): the driver only maps
		// TIMESTAMP columns to time.Time when the declared type survives, and
		// aggregates strip it.
		var oldest time.Time
		err = tx.QueryRowContext(ctx, `
			SELECT requested_at FROM rate_limits
			WHERE ip_address = ? AND endpoint = ? AND requested_at >= ?
			ORDER BY requested_at ASC LIMIT 1
		`, ipAddress, endpoint, windowStart).Scan(&oldest)
		if err != nil {
			return RateLimitDecision{}, fmt.Errorf("failed to find oldest rate limit record: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return RateLimitDecision{}, fmt.Errorf("failed to commit rate limit check: %w", err)
		}

		return RateLimitDecision{Allowed: false, Count: count, OldestInWindow: &oldest}, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rate_limits (ip_address, endpoint, requested_at)
		VALUES (?, ?, ?)
	`, ipAddress, endpoint, time.Now().UTC())
	if err != nil {
		return RateLimitDecision{}, fmt.Errorf("failed to append rate limit record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return RateLimitDecision{}, fmt.Errorf("failed to commit rate limit reservation: %w", err)
	}

	return RateLimitDecision{Allowed: true, Count: count + 1}, nil
}

// SweepOlderThan deletes rate limit records older than maxAge
func (r *RateLimitRepositoryImpl) SweepOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	result, err := r.db.ExecContext(ctx, "DELETE FROM rate_limits WHERE requested_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep rate limit records: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept rate limit records: %w", err)
	}

	return deleted, nil
}
