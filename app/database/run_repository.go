package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunActive is returned by StartRun while a previous run is still marked
// running and has not exceeded the stale threshold
var ErrRunActive = errors.New("an ingestion run is already active")

// staleRunThreshold is how long a run may stay in the running state before a
// new run is allowed to supersede it
const staleRunThreshold = 10 * time.Minute

var _ RunRepository = (*RunRepositoryImpl)(nil)

// RunRepositoryImpl handles database operations for ingestion runs
type RunRepositoryImpl struct {
	db *DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB) *RunRepositoryImpl {
	return &RunRepositoryImpl{db: db}
}

// StartRun records a new running cycle and returns its ID. A run younger than
// staleRunThreshold that is still marked running blocks new runs; older ones
// are marked failed and superseded.
func (r *RunRepositoryImpl) StartRun(ctx context.Context, totalFeeds int) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin run transaction: %w", err)
	}
	defer tx.Rollback()

	var activeID string
	var startedAt time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT id, started_at FROM runs
		WHERE status = ?
		ORDER BY started_at DESC
		LIMIT 1
	`, RunStatusRunning).Scan(&activeID, &startedAt)

	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to check for active run: %w", err)
	}

	if err == nil {
		if time.Since(startedAt) < staleRunThreshold {
			return "", ErrRunActive
		}
		now := time.Now().UTC()
		_, err = tx.ExecContext(ctx,
			"UPDATE runs SET status = ?, finished_at = ? WHERE id = ?",
			RunStatusFailed, now, activeID)
		if err != nil {
			return "", fmt.Errorf("failed to supersede stale run %s: %w", activeID, err)
		}
	}

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, status, total_feeds)
		VALUES (?, ?, ?, ?)
	`, id, time.Now().UTC(), RunStatusRunning, totalFeeds)
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run start: %w", err)
	}

	return id, nil
}

// FinishRun writes the final status and counters for a run
func (r *RunRepositoryImpl) FinishRun(ctx context.Context, run Run) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, status = ?, total_feeds = ?,
		    feeds_succeeded = ?, feeds_failed = ?,
		    items_inserted = ?, items_updated = ?
		WHERE id = ?
	`, time.Now().UTC(), run.Status, run.TotalFeeds,
		run.FeedsSucceeded, run.FeedsFailed,
		run.ItemsInserted, run.ItemsUpdated, run.ID)

	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", run.ID, err)
	}

	return nil
}

// RecordFeedError stores one per-feed failure for a run
func (r *RunRepositoryImpl) RecordFeedError(ctx context.Context, runID string, fe FeedRunError) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO feed_run_errors (id, run_id, feed_id, error_type, error_message, http_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), runID, fe.FeedID, fe.ErrorType, fe.ErrorMessage, fe.HTTPStatus, time.Now().UTC())

	if err != nil {
		return fmt.Errorf("failed to record feed error for run %s: %w", runID, err)
	}

	return nil
}

// GetRun retrieves a run by ID
func (r *RunRepositoryImpl) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	err := r.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, status, total_feeds,
		       feeds_succeeded, feeds_failed, items_inserted, items_updated
		FROM runs
		WHERE id = ?
	`, runID).Scan(
		&run.ID, &run.StartedAt, &run.FinishedAt, &run.Status, &run.TotalFeeds,
		&run.FeedsSucceeded, &run.FeedsFailed, &run.ItemsInserted, &run.ItemsUpdated,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}

	return &run, nil
}

// SweepRunsOlderThan deletes runs (and, via cascade, their errors) started
// before the cutoff
func (r *RunRepositoryImpl) SweepRunsOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	result, err := r.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep runs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept runs: %w", err)
	}

	return deleted, nil
}

// SweepErrorsOlderThan deletes feed run errors recorded before the cutoff
func (r *RunRepositoryImpl) SweepErrorsOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	result, err := r.db.ExecContext(ctx, "DELETE FROM feed_run_errors WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep feed run errors: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept feed run errors: %w", err)
	}

	return deleted, nil
}
