package database

import (
	"testing"
	"time"
)

func TestUpsertFeedUpdatesSettingsOnly(t *testing.T) {
	db := newTestDB(t)
	feeds := NewFeedRepository(db)

	id, err := feeds.UpsertFeed("https://export.arxiv.org/rss/cs.AI", "arXiv cs.AI", 60, 100)
	if err != nil {
		t.Fatal(err)
	}

	if err := feeds.MarkPollSuccess(id, "item-guid", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := feeds.IncrementErrorCount(id); err != nil {
		t.Fatal(err)
	}

	// Re-syncing the definition must not clobber poller-owned state
	sameID, err := feeds.UpsertFeed("https://export.arxiv.org/rss/cs.AI", "renamed", 30, 50)
	if err != nil {
		t.Fatal(err)
	}
	if sameID != id {
		t.Fatalf("Expected upsert to reuse id %d, got %d", id, sameID)
	}

	feed, err := feeds.GetFeed(id)
	if err != nil {
		t.Fatal(err)
	}
	if feed.Name != "renamed" || feed.PollIntervalMinutes != 30 || feed.MaxArticles != 50 {
		t.Errorf("Expected updated settings, got %+v", feed)
	}
	if feed.LastPollAt == nil {
		t.Error("Expected last poll timestamp to survive the upsert")
	}
	if feed.LastItemGUID != "item-guid" {
		t.Errorf("Expected last item GUID to survive, got %q", feed.LastItemGUID)
	}
	if feed.ErrorCount != 1 {
		t.Errorf("Expected error count to survive, got %d", feed.ErrorCount)
	}
}

func TestMarkPollSuccessResetsErrorCount(t *testing.T) {
	db := newTestDB(t)
	feeds := NewFeedRepository(db)

	id, err := feeds.UpsertFeed("https://example.com/feed.xml", "Example", 60, 100)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := feeds.IncrementErrorCount(id); err != nil {
			t.Fatal(err)
		}
	}
	if err := feeds.MarkPollSuccess(id, "guid", time.Now()); err != nil {
		t.Fatal(err)
	}

	feed, _ := feeds.GetFeed(id)
	if feed.ErrorCount != 0 {
		t.Errorf("Expected error count reset to 0, got %d", feed.ErrorCount)
	}
}

func TestGetEnabledFeedsFiltersDisabled(t *testing.T) {
	db := newTestDB(t)
	feeds := NewFeedRepository(db)

	enabledID, err := feeds.UpsertFeed("https://a.example.com/feed", "A", 60, 100)
	if err != nil {
		t.Fatal(err)
	}
	disabledID, err := feeds.UpsertFeed("https://b.example.com/feed", "B", 60, 100)
	if err != nil {
		t.Fatal(err)
	}
	if err := feeds.SetFeedEnabled(disabledID, false); err != nil {
		t.Fatal(err)
	}

	enabled, err := feeds.GetEnabledFeeds()
	if err != nil {
		t.Fatal(err)
	}
	if len(enabled) != 1 || enabled[0].ID != enabledID {
		t.Errorf("Expected only feed %d enabled, got %+v", enabledID, enabled)
	}

	all, err := feeds.ListFeeds()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("Expected ListFeeds to return both feeds, got %d", len(all))
	}
}

func TestGetFeedMissing(t *testing.T) {
	db := newTestDB(t)
	feeds := NewFeedRepository(db)

	feed, err := feeds.GetFeed(12345)
	if err != nil {
		t.Fatal(err)
	}
	if feed != nil {
		t.Errorf("Expected nil for missing feed, got %+v", feed)
	}
}
