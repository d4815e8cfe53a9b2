package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/toonfeed/toonfeed/app/database"
)

// Retention periods per table
const (
	ItemRetention      = 7 * 24 * time.Hour
	RunRetention       = 30 * 24 * time.Hour
	ErrorRetention     = 30 * 24 * time.Hour
	RateLimitRetention = 1 * time.Hour
)

// SweepReport counts the rows removed per table during one sweep
type SweepReport struct {
	Items      int64
	Runs       int64
	Errors     int64
	RateLimits int64
}

// Sweeper removes expired rows after each ingestion cycle. Each table is
// swept independently so one failure does not block the others.
type Sweeper struct {
	itemRepo database.ItemRepository
	runRepo  database.RunRepository
	rateRepo database.RateLimitRepository
}

// NewSweeper creates a new retention sweeper
func NewSweeper(itemRepo database.ItemRepository, runRepo database.RunRepository, rateRepo database.RateLimitRepository) *Sweeper {
	return &Sweeper{
		itemRepo: itemRepo,
		runRepo:  runRepo,
		rateRepo: rateRepo,
	}
}

// Sweep applies every retention policy and reports what was removed. Errors
// are logged per table; the sweep itself never fails.
func (s *Sweeper) Sweep(ctx context.Context) SweepReport {
	var report SweepReport
	var err error

	report.Items, err = s.itemRepo.SweepOlderThan(ctx, ItemRetention)
	if err != nil {
		slog.Error("Failed to sweep items", "error", err)
	}

	report.Errors, err = s.runRepo.SweepErrorsOlderThan(ctx, ErrorRetention)
	if err != nil {
		slog.Error("Failed to sweep feed run errors", "error", err)
	}

	report.Runs, err = s.runRepo.SweepRunsOlderThan(ctx, RunRetention)
	if err != nil {
		slog.Error("Failed to sweep runs", "error", err)
	}

	report.RateLimits, err = s.rateRepo.SweepOlderThan(ctx, RateLimitRetention)
	if err != nil {
		slog.Error("Failed to sweep rate limit records", "error", err)
	}

	if report.Items > 0 || report.Runs > 0 || report.Errors > 0 || report.RateLimits > 0 {
		slog.Info("Retention sweep completed",
			"items", report.Items,
			"runs", report.Runs,
			"errors", report.Errors,
			"rate_limits", report.RateLimits)
	}

	return report
}
