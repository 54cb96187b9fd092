package feed

import (
	"fmt"
	"log/slog"

	"github.com/ddrozdov/paperstream/app/classify"
	"github.com/ddrozdov/paperstream/app/database"
)

// ArticleStore is the slice of the article repository ingestion needs.
type ArticleStore interface {
	Ingest(draft database.ArticleDraft) (int64, bool, error)
	MarkContentReady(articleID int64, content string) error
}

// Ingester writes parsed feed items into the ledger. Classification
// happens exactly once, here: the verdict decides whether the article
// enters the extraction pipeline, and it never changes afterwards.
type Ingester struct {
	articles ArticleStore
	excerpts *ExcerptBuilder
}

func NewIngester(articles ArticleStore) *Ingester {
	return &Ingester{
		articles: articles,
		excerpts: NewExcerptBuilder(),
	}
}

// Run ingests items for a feed and returns the number of newly created
// articles. Duplicate GUIDs are skipped silently; feeds re-serve old items
// on every poll.
func (i *Ingester) Run(feedID int64, items []Item) (int, error) {
	created := 0

	for _, item := range items {
		if item.GUID == "" {
			slog.Warn("Skipping feed item without GUID", "feed_id", feedID, "title", item.Title)
			continue
		}

		draft := database.ArticleDraft{
			FeedID:      feedID,
			GUID:        item.GUID,
			Link:        item.Link,
			Title:       item.Title,
			PublishedAt: item.PublishedAt,
			ArxivID:     classify.Classify(item.Link, item.GUID),
		}

		articleID, isNew, err := i.articles.Ingest(draft)
		if err != nil {
			return created, fmt.Errorf("failed to ingest item %q: %w", item.GUID, err)
		}
		if !isNew {
			continue
		}
		created++

		excerpt := i.excerpts.Run(item)
		if err := i.articles.MarkContentReady(articleID, excerpt); err != nil {
			return created, fmt.Errorf("failed to store content for article %d: %w", articleID, err)
		}

		slog.Debug("Ingested article", "article_id", articleID,
			"guid", item.GUID, "arxiv_id", draft.ArxivID)
	}

	return created, nil
}
