package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ ItemRepository = (*ItemRepositoryImpl)(nil)

// ItemRepositoryImpl handles database operations for stored headlines
type ItemRepositoryImpl struct {
	db *DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *DB) *ItemRepositoryImpl {
	return &ItemRepositoryImpl{db: db}
}

// UpsertItem inserts a new item or refreshes the existing row with the same
// (feed_id, url). Both paths set fetched_at to now so re-fetched items count
// as "today". Returns true when a new row was created.
func (r *ItemRepositoryImpl) UpsertItem(ctx context.Context, item Item) (bool, error) {
	now := time.Now().UTC()

	var existingID string
	err := r.db.QueryRowContext(ctx,
		"SELECT id FROM items WHERE feed_id = ? AND url = ?",
		item.FeedID, item.URL).Scan(&existingID)

	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("failed to check existing item: %w", err)
	}

	if err == nil {
		_, err = r.db.ExecContext(ctx, `
			UPDATE items
			SET title = ?, summary = ?, category = ?,
			    published_at = COALESCE(?, published_at),
			    fetched_at = ?
			WHERE id = ?
		`, item.Title, item.Summary, item.Category, item.PublishedAt, now, existingID)
		if err != nil {
			return false, fmt.Errorf("failed to update item: %w", err)
		}
		return false, nil
	}

	id := item.ID
	if id == "" {
		id = uuid.NewString()
	}

	// ON CONFLICT closes the race with a concurrent insert of the same key
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO items (id, feed_id, title, summary, url, published_at, category, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (feed_id, url) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			category = excluded.category,
			published_at = COALESCE(excluded.published_at, items.published_at),
			fetched_at = excluded.fetched_at
	`, id, item.FeedID, item.Title, item.Summary, item.URL, item.PublishedAt, item.Category, now)

	if err != nil {
		return false, fmt.Errorf("failed to insert item: %w", err)
	}

	return true, nil
}

// GetItem retrieves a single item by ID, with its feed name joined in
func (r *ItemRepositoryImpl) GetItem(ctx context.Context, itemID string) (*Item, error) {
	var item Item
	err := r.db.QueryRowContext(ctx, `
		SELECT i.id, i.feed_id, i.title, COALESCE(i.summary, ''), i.url,
		       i.published_at, COALESCE(i.category, ''), i.fetched_at,
		       COALESCE(f.name, '')
		FROM items i
		LEFT JOIN feeds f ON i.feed_id = f.id
		WHERE i.id = ?
	`, itemID).Scan(
		&item.ID, &item.FeedID, &item.Title, &item.Summary, &item.URL,
		&item.PublishedAt, &item.Category, &item.FetchedAt, &item.FeedName,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", itemID, err)
	}

	return &item, nil
}

// QueryToday returns items fetched within the current local day of the given
// timezone, grouped by feed and newest first within each feed. The window is
// computed in the reference timezone and compared in UTC.
func (r *ItemRepositoryImpl) QueryToday(ctx context.Context, loc *time.Location, limit int) ([]Item, error) {
	now := time.Now().In(loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := r.db.QueryContext(ctx, `
		SELECT i.id, i.feed_id, i.title, COALESCE(i.summary, ''), i.url,
		       i.published_at, COALESCE(i.category, ''), i.fetched_at,
		       COALESCE(f.name, '')
		FROM items i
		JOIN feeds f ON i.feed_id = f.id
		WHERE i.fetched_at >= ? AND i.fetched_at < ?
		ORDER BY i.feed_id ASC, i.published_at DESC, i.fetched_at DESC
		LIMIT ?
	`, dayStart.UTC(), dayEnd.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query today's items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		err := rows.Scan(
			&item.ID, &item.FeedID, &item.Title, &item.Summary, &item.URL,
			&item.PublishedAt, &item.Category, &item.FetchedAt, &item.FeedName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

// GetItemCount returns the total number of stored items
func (r *ItemRepositoryImpl) GetItemCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get item count: %w", err)
	}
	return count, nil
}

// SweepOlderThan deletes items whose fetched_at is older than maxAge and
// returns the number of rows removed
func (r *ItemRepositoryImpl) SweepOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	result, err := r.db.ExecContext(ctx, "DELETE FROM items WHERE fetched_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep items: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept items: %w", err)
	}

	return deleted, nil
}
