package database

import (
	"database/sql"
	"fmt"
	"time"
)

type feedRepository struct {
	db *DB
}

var _ FeedRepository = (*feedRepository)(nil)

func NewFeedRepository(db *DB) FeedRepository {
	return &feedRepository{db: db}
}

// UpsertFeed registers a feed definition, keyed by URL. Operator-owned
// settings (name, interval, retention) follow the definition file;
// poller-owned fields (error counter, timestamps) are left untouched.
func (r *feedRepository) UpsertFeed(url, name string, pollInterval, maxArticles int) (int64, error) {
	_, err := r.db.Exec(`
		INSERT INTO feeds (url, name, poll_interval_minutes, max_articles)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			name = excluded.name,
			poll_interval_minutes = excluded.poll_interval_minutes,
			max_articles = excluded.max_articles,
			updated_at = datetime('now')
	`, url, name, pollInterval, maxArticles)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert feed: %w", err)
	}

	var id int64
	if err := r.db.QueryRow("SELECT id FROM feeds WHERE url = ?", url).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to look up feed id: %w", err)
	}
	return id, nil
}

const feedColumns = `
	id, url, name, enabled, poll_interval_minutes, max_articles,
	error_count, last_poll_at, COALESCE(last_item_guid, ''), created_at, updated_at`

func scanFeed(row rowScanner) (*Feed, error) {
	var f Feed
	var lastPollAt sql.NullTime
	var enabled int

	err := row.Scan(&f.ID, &f.URL, &f.Name, &enabled, &f.PollIntervalMinutes,
		&f.MaxArticles, &f.ErrorCount, &lastPollAt, &f.LastItemGUID,
		&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}

	f.Enabled = enabled == 1
	f.LastPollAt = nullTimePtr(lastPollAt)
	return &f, nil
}

func (r *feedRepository) GetFeed(id int64) (*Feed, error) {
	row := r.db.QueryRow("SELECT "+feedColumns+" FROM feeds WHERE id = ?", id)

	feed, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed %d: %w", id, err)
	}
	return feed, nil
}

func (r *feedRepository) GetEnabledFeeds() ([]Feed, error) {
	return r.queryFeeds("SELECT " + feedColumns + " FROM feeds WHERE enabled = 1 ORDER BY id")
}

func (r *feedRepository) ListFeeds() ([]Feed, error) {
	return r.queryFeeds("SELECT " + feedColumns + " FROM feeds ORDER BY id")
}

func (r *feedRepository) queryFeeds(query string) ([]Feed, error) {
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, *feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}
	return feeds, nil
}

func (r *feedRepository) SetFeedEnabled(id int64, enabled bool) error {
	_, err := r.db.Exec(`
		UPDATE feeds SET enabled = ?, updated_at = datetime('now') WHERE id = ?
	`, boolToInt(enabled), id)
	if err != nil {
		return fmt.Errorf("failed to set feed enabled: %w", err)
	}
	return nil
}

func (r *feedRepository) MarkPollSuccess(id int64, lastGUID string, at time.Time) error {
	_, err := r.db.Exec(`
		UPDATE feeds
		SET last_poll_at = ?, last_item_guid = ?, error_count = 0, updated_at = datetime('now')
		WHERE id = ?
	`, at.UTC(), lastGUID, id)
	if err != nil {
		return fmt.Errorf("failed to mark poll success: %w", err)
	}
	return nil
}

func (r *feedRepository) IncrementErrorCount(id int64) error {
	_, err := r.db.Exec(`
		UPDATE feeds SET error_count = error_count + 1, updated_at = datetime('now') WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to increment feed error count: %w", err)
	}
	return nil
}
