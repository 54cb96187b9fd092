package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ddrozdov/paperstream/app/config"
	"github.com/ddrozdov/paperstream/app/database"
)

// SyncFeedTask reconciles one feed definition file with the feeds table.
type SyncFeedTask struct {
	Task
	Definition *config.FeedDefinition
	feedRepo   database.FeedRepository
}

func NewSyncFeedTask(definition *config.FeedDefinition, feedRepo database.FeedRepository) *SyncFeedTask {
	return &SyncFeedTask{
		Task:       NewTask(TaskTypeSyncFeeds, definition.Feed.URL),
		Definition: definition,
		feedRepo:   feedRepo,
	}
}

func (t *SyncFeedTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	id, err := t.feedRepo.UpsertFeed(t.Definition.Feed.URL, t.Definition.Feed.Name,
		t.Definition.Settings.PollIntervalMinutes, t.Definition.Settings.MaxArticles)
	if err != nil {
		return fmt.Errorf("failed to upsert feed: %w", err)
	}

	if err := t.feedRepo.SetFeedEnabled(id, t.Definition.Settings.Enabled); err != nil {
		return fmt.Errorf("failed to set feed enabled state: %w", err)
	}

	slog.Debug("Synced feed definition", "feed", t.Definition.Feed.Name,
		"feed_id", id, "enabled", t.Definition.Settings.Enabled)

	return nil
}
