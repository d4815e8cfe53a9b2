package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/toonfeed/toonfeed/app/config"
	"github.com/toonfeed/toonfeed/app/database"
	"github.com/toonfeed/toonfeed/app/feed"
)

// Summary reports one completed ingestion cycle
type Summary struct {
	RunID          string
	Status         string
	TotalFeeds     int
	FeedsSucceeded int
	FeedsFailed    int
	NotModified    int
	ItemsInserted  int
	ItemsUpdated   int
	FeedsPruned    int64
	Errors         []FeedFailure
	Swept          SweepReport
	Duration       time.Duration
}

// FeedFailure describes one feed that could not be ingested during a cycle
type FeedFailure struct {
	FeedID    string
	ErrorType string
	Message   string
}

// Options carries the tunables for an orchestrator
type Options struct {
	Concurrency     int
	FetchTimeout    time.Duration
	MaxItemsPerFeed int
	FeedDump        bool
	FeedDumpDir     string
}

// Orchestrator runs one full ingestion cycle: sync configured feeds into the
// store, fetch and parse each enabled feed with bounded concurrency, upsert
// the classified items, and finish with a retention sweep.
type Orchestrator struct {
	feedsFile  *config.FeedsFile
	fetcher    *feed.Fetcher
	parser     *feed.Parser
	classifier *feed.Classifier
	feedRepo   database.FeedRepository
	itemRepo   database.ItemRepository
	runRepo    database.RunRepository
	sweeper    *Sweeper
	opts       Options
}

// NewOrchestrator creates a new ingestion orchestrator
func NewOrchestrator(feedsFile *config.FeedsFile, fetcher *feed.Fetcher, parser *feed.Parser,
	classifier *feed.Classifier, feedRepo database.FeedRepository, itemRepo database.ItemRepository,
	runRepo database.RunRepository, sweeper *Sweeper, opts Options) *Orchestrator {

	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	return &Orchestrator{
		feedsFile:  feedsFile,
		fetcher:    fetcher,
		parser:     parser,
		classifier: classifier,
		feedRepo:   feedRepo,
		itemRepo:   itemRepo,
		runRepo:    runRepo,
		sweeper:    sweeper,
		opts:       opts,
	}
}

type feedOutcome struct {
	feedID      string
	inserted    int
	updated     int
	notModified bool
	err         error
}

// Run executes one ingestion cycle. It returns database.ErrRunActive when a
// previous cycle is still running.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()

	enabled := o.enabledSources()

	runID, err := o.runRepo.StartRun(ctx, len(enabled))
	if err != nil {
		return nil, err
	}

	slog.Info("Ingestion run started", "run_id", runID, "feeds", len(enabled))

	pruned, err := o.syncFeeds(ctx)
	if err != nil {
		o.finishFailed(ctx, runID, len(enabled))
		return nil, fmt.Errorf("failed to sync feeds: %w", err)
	}

	outcomes := o.processFeeds(ctx, enabled)

	summary := &Summary{
		RunID:       runID,
		TotalFeeds:  len(enabled),
		FeedsPruned: pruned,
	}

	for _, outcome := range outcomes {
		if outcome.err != nil {
			summary.FeedsFailed++
			fe := o.recordError(ctx, runID, outcome)
			summary.Errors = append(summary.Errors, FeedFailure{
				FeedID:    fe.FeedID,
				ErrorType: fe.ErrorType,
				Message:   fe.ErrorMessage,
			})
			continue
		}
		summary.FeedsSucceeded++
		if outcome.notModified {
			summary.NotModified++
		}
		summary.ItemsInserted += outcome.inserted
		summary.ItemsUpdated += outcome.updated
	}

	switch {
	case summary.TotalFeeds == 0 || summary.FeedsFailed == 0:
		summary.Status = database.RunStatusSuccess
	case summary.FeedsSucceeded == 0:
		summary.Status = database.RunStatusFailed
	default:
		summary.Status = database.RunStatusPartial
	}

	err = o.runRepo.FinishRun(ctx, database.Run{
		ID:             runID,
		Status:         summary.Status,
		TotalFeeds:     summary.TotalFeeds,
		FeedsSucceeded: summary.FeedsSucceeded,
		FeedsFailed:    summary.FeedsFailed,
		ItemsInserted:  summary.ItemsInserted,
		ItemsUpdated:   summary.ItemsUpdated,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to finish run: %w", err)
	}

	summary.Swept = o.sweeper.Sweep(ctx)
	summary.Duration = time.Since(started)

	slog.Info("Ingestion run completed",
		"run_id", runID,
		"status", summary.Status,
		"succeeded", summary.FeedsSucceeded,
		"failed", summary.FeedsFailed,
		"not_modified", summary.NotModified,
		"inserted", summary.ItemsInserted,
		"updated", summary.ItemsUpdated,
		"duration", summary.Duration)

	return summary, nil
}

func (o *Orchestrator) enabledSources() []config.Source {
	var enabled []config.Source
	for _, source := range o.feedsFile.Feeds {
		if source.IsEnabled(o.feedsFile.Defaults) {
			enabled = append(enabled, source)
		}
	}
	return enabled
}

// syncFeeds mirrors the configuration into the feeds table and prunes feeds
// that were removed from it
func (o *Orchestrator) syncFeeds(ctx context.Context) (int64, error) {
	keepIDs := make([]string, 0, len(o.feedsFile.Feeds))
	for _, source := range o.feedsFile.Feeds {
		keepIDs = append(keepIDs, source.ID)

		err := o.feedRepo.UpsertFeed(ctx, database.Feed{
			ID:       source.ID,
			Name:     source.Name,
			URL:      source.URL,
			Category: source.Category,
			Language: source.Language,
			Enabled:  source.IsEnabled(o.feedsFile.Defaults),
		})
		if err != nil {
			return 0, err
		}
	}

	pruned, err := o.feedRepo.PruneFeedsNotIn(ctx, keepIDs)
	if err != nil {
		return 0, err
	}

	if pruned > 0 {
		slog.Info("Pruned feeds removed from configuration", "count", pruned)
	}

	return pruned, nil
}

// processFeeds fetches and ingests all enabled feeds with bounded concurrency
func (o *Orchestrator) processFeeds(ctx context.Context, sources []config.Source) []feedOutcome {
	outcomes := make([]feedOutcome, len(sources))
	semaphore := make(chan struct{}, o.opts.Concurrency)
	var wg sync.WaitGroup

	for i, source := range sources {
		wg.Add(1)
		go func(i int, source config.Source) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			outcomes[i] = o.processFeed(ctx, source)
		}(i, source)
	}

	wg.Wait()
	return outcomes
}

func (o *Orchestrator) processFeed(ctx context.Context, source config.Source) feedOutcome {
	outcome := feedOutcome{feedID: source.ID}

	var etag, lastModified string
	stored, err := o.feedRepo.GetFeed(ctx, source.ID)
	if err != nil {
		outcome.err = err
		return outcome
	}
	if stored != nil {
		etag = stored.ETag
		lastModified = stored.LastModified
	}

	result, err := o.fetcher.Fetch(ctx, source.ID, source.URL, etag, lastModified, o.opts.FetchTimeout)
	if err != nil {
		outcome.err = err
		return outcome
	}

	if result.NotModified {
		outcome.notModified = true
		slog.Debug("Feed not modified", "feed", source.ID)
		if err := o.feedRepo.UpdateFetchMetadata(ctx, source.ID, etag, lastModified); err != nil {
			outcome.err = err
		}
		return outcome
	}

	candidates, err := o.parser.Parse(result.Data, o.opts.MaxItemsPerFeed)
	if err != nil {
		if o.opts.FeedDump {
			if path, dumpErr := feed.DumpRaw(o.opts.FeedDumpDir, source.ID, result.Data); dumpErr == nil {
				slog.Debug("Dumped unparseable feed", "feed", source.ID, "path", path)
			}
		}
		outcome.err = &feed.FetchError{FeedID: source.ID, Type: feed.ErrorTypeParse, Err: err}
		return outcome
	}

	category := o.classifier.Classify(source.ID)
	for _, candidate := range candidates {
		inserted, err := o.itemRepo.UpsertItem(ctx, database.Item{
			FeedID:      source.ID,
			Title:       candidate.Title,
			Summary:     candidate.Summary,
			URL:         candidate.URL,
			PublishedAt: candidate.PublishedAt,
			Category:    category,
		})
		if err != nil {
			outcome.err = err
			return outcome
		}
		if inserted {
			outcome.inserted++
		} else {
			outcome.updated++
		}
	}

	if err := o.feedRepo.UpdateFetchMetadata(ctx, source.ID, result.ETag, result.LastModified); err != nil {
		outcome.err = err
		return outcome
	}

	slog.Debug("Feed processed",
		"feed", source.ID,
		"inserted", outcome.inserted,
		"updated", outcome.updated)

	return outcome
}

func (o *Orchestrator) recordError(ctx context.Context, runID string, outcome feedOutcome) database.FeedRunError {
	fe := database.FeedRunError{
		FeedID:       outcome.feedID,
		ErrorType:    feed.ErrorTypeNetwork,
		ErrorMessage: outcome.err.Error(),
	}

	var fetchErr *feed.FetchError
	if errors.As(outcome.err, &fetchErr) {
		fe.ErrorType = fetchErr.Type
		fe.HTTPStatus = fetchErr.HTTPStatus
	}

	slog.Warn("Feed failed", "feed", outcome.feedID, "type", fe.ErrorType, "error", outcome.err)

	if err := o.runRepo.RecordFeedError(ctx, runID, fe); err != nil {
		slog.Error("Failed to record feed error", "feed", outcome.feedID, "error", err)
	}

	return fe
}

func (o *Orchestrator) finishFailed(ctx context.Context, runID string, totalFeeds int) {
	err := o.runRepo.FinishRun(ctx, database.Run{
		ID:         runID,
		Status:     database.RunStatusFailed,
		TotalFeeds: totalFeeds,
	})
	if err != nil {
		slog.Error("Failed to mark run as failed", "run_id", runID, "error", err)
	}
}
