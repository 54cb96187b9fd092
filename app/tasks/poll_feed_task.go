package tasks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ddrozdov/paperstream/app/database"
	"github.com/ddrozdov/paperstream/app/feed"
)

type PollFeedTask struct {
	Task
	Feed       database.Feed
	httpClient *http.Client
	parser     *feed.Parser
	ingester   *feed.Ingester
	feedRepo   database.FeedRepository
	articles   database.ArticleRepository
	userAgent  string
}

func NewPollFeedTask(f database.Feed, httpClient *http.Client, parser *feed.Parser,
	ingester *feed.Ingester, feedRepo database.FeedRepository,
	articles database.ArticleRepository, userAgent string) *PollFeedTask {
	return &PollFeedTask{
		Task:       NewTask(TaskTypePollFeed, f.URL),
		Feed:       f,
		httpClient: httpClient,
		parser:     parser,
		ingester:   ingester,
		feedRepo:   feedRepo,
		articles:   articles,
		userAgent:  userAgent,
	}
}

func (t *PollFeedTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := t.fetchFeed(ctx, t.Feed.URL)
	if err != nil {
		t.recordError()
		return fmt.Errorf("failed to fetch feed: %w", err)
	}

	_, items, err := t.parser.Run(data)
	if err != nil {
		t.recordError()
		return fmt.Errorf("failed to parse feed: %w", err)
	}

	created, err := t.ingester.Run(t.Feed.ID, items)
	if err != nil {
		t.recordError()
		return fmt.Errorf("failed to ingest items: %w", err)
	}

	pruned := 0
	if t.Feed.MaxArticles > 0 {
		pruned, err = t.articles.PruneFeedArticles(t.Feed.ID, t.Feed.MaxArticles)
		if err != nil {
			return fmt.Errorf("failed to prune old articles: %w", err)
		}
	}

	lastGUID := t.Feed.LastItemGUID
	if len(items) > 0 {
		lastGUID = items[0].GUID
	}
	if err := t.feedRepo.MarkPollSuccess(t.Feed.ID, lastGUID, time.Now()); err != nil {
		return fmt.Errorf("failed to record poll success: %w", err)
	}

	slog.Info("Task completed",
		"type", "PollFeed",
		"feed", t.Feed.Name,
		"duration", t.GetDuration(),
		"total", len(items),
		"new", created,
		"pruned", pruned)

	return nil
}

func (t *PollFeedTask) fetchFeed(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned HTTP %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func (t *PollFeedTask) recordError() {
	if err := t.feedRepo.IncrementErrorCount(t.Feed.ID); err != nil {
		slog.Warn("Failed to increment feed error count", "feed", t.Feed.Name, "error", err)
	}
}
