package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ddrozdov/paperstream/app/database"
	"github.com/ddrozdov/paperstream/app/pipeline"
)

// Processor runs the extraction stage for one claimed article: fetch the
// paper, classify its shape, record the outcome in the ledger.
type Processor struct {
	articles              database.ArticleLedger
	fetcher               DocumentFetcher
	fullDocumentThreshold int
	callTimeout           time.Duration
}

func NewProcessor(articles database.ArticleLedger, fetcher DocumentFetcher, fullDocumentThreshold int, callTimeout time.Duration) *Processor {
	return &Processor{
		articles:              articles,
		fetcher:               fetcher,
		fullDocumentThreshold: fullDocumentThreshold,
		callTimeout:           callTimeout,
	}
}

// Process expects the article to already be claimed for extraction. The
// returned error reflects the stage outcome; ledger write failures are
// wrapped so callers can tell them apart from fetch failures.
func (p *Processor) Process(ctx context.Context, articleID int64) error {
	article, err := p.articles.GetArticle(articleID)
	if err != nil {
		return fmt.Errorf("failed to load article %d: %w", articleID, err)
	}
	if article == nil {
		return fmt.Errorf("article %d not found", articleID)
	}

	if article.ArxivID == "" {
		// Should not happen: ingestion only marks extraction pending for
		// recognized papers. Record it as permanent rather than looping.
		if failErr := p.fail(articleID, "article has no arXiv identifier", false); failErr != nil {
			return failErr
		}
		return fmt.Errorf("article %d has no arXiv identifier", articleID)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	content, err := p.fetcher.Fetch(callCtx, article.ArxivID)
	if err != nil {
		retryable := !errors.Is(err, ErrNotFound)
		if failErr := p.fail(articleID, err.Error(), retryable); failErr != nil {
			return failErr
		}
		return fmt.Errorf("extraction failed for article %d: %w", articleID, err)
	}

	shape, confidence := DetectShape(content, p.fullDocumentThreshold)

	if err := p.articles.CompleteExtraction(articleID, content, shape, confidence); err != nil {
		return fmt.Errorf("failed to record extraction for article %d: %w", articleID, err)
	}

	slog.Debug("Extracted paper content", "article_id", articleID,
		"arxiv_id", article.ArxivID, "chars", len(content),
		"shape", shape, "confidence", confidence)

	return nil
}

func (p *Processor) fail(articleID int64, reason string, retryable bool) error {
	if err := p.articles.Fail(articleID, pipeline.StageExtraction, reason, retryable); err != nil {
		return fmt.Errorf("failed to record extraction failure for article %d: %w", articleID, err)
	}
	return nil
}
