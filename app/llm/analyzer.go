package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ddrozdov/paperstream/app/database"
	"github.com/ddrozdov/paperstream/app/pipeline"
)

// Analyzer runs the deep-analysis stage for one claimed article. The stage
// is gated on a completed extraction; the prompt variant follows the shape
// recorded by that extraction.
type Analyzer struct {
	articles    database.ArticleLedger
	cache       database.CacheRepository
	generator   Generator
	model       string
	maxTokens   int
	callTimeout time.Duration
}

func NewAnalyzer(articles database.ArticleLedger, cache database.CacheRepository,
	generator Generator, model string, maxTokens int, callTimeout time.Duration) *Analyzer {
	return &Analyzer{
		articles:    articles,
		cache:       cache,
		generator:   generator,
		model:       model,
		maxTokens:   maxTokens,
		callTimeout: callTimeout,
	}
}

func (a *Analyzer) Process(ctx context.Context, articleID int64) error {
	article, err := a.articles.GetArticle(articleID)
	if err != nil {
		return fmt.Errorf("failed to load article %d: %w", articleID, err)
	}
	if article == nil {
		return fmt.Errorf("article %d not found", articleID)
	}

	if !article.HasFullText() {
		// Eligibility gating should prevent this; record it as permanent
		// rather than retrying into the same wall.
		if failErr := a.fail(articleID, "no extracted content for analysis", false); failErr != nil {
			return failErr
		}
		return fmt.Errorf("article %d has no extracted content", articleID)
	}

	variant := article.ContentShape
	systemPrompt := analysisAbstractPrompt
	if variant == pipeline.ShapeFullDocument {
		systemPrompt = analysisFullPaperPrompt
	}

	input := truncateForPrompt(article.Title+"\n\n"+article.ExtractedContent,
		maxInputTokens*approxCharsPerToken)
	fingerprint := Fingerprint(input, opAnalyze, a.model, a.maxTokens)

	if entry := a.cachedAnalysis(fingerprint); entry != "" {
		slog.Debug("Analysis cache hit", "article_id", articleID, "fingerprint", fingerprint[:12])
		return a.record(articleID, entry, variant)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	analysis, err := a.generate(callCtx, systemPrompt, input)
	if err != nil {
		if failErr := a.fail(articleID, err.Error(), true); failErr != nil {
			return failErr
		}
		return fmt.Errorf("analysis failed for article %d: %w", articleID, err)
	}

	if cacheErr := a.cache.Put(database.CacheEntry{
		Fingerprint: fingerprint,
		Operation:   opAnalyze,
		Model:       a.model,
		Output:      analysis,
	}); cacheErr != nil {
		slog.Warn("Failed to cache analysis", "article_id", articleID, "error", cacheErr)
	}

	return a.record(articleID, analysis, variant)
}

// generate calls the model, retrying once on an unusable response, or
// once after a backoff on a throttle.
func (a *Analyzer) generate(ctx context.Context, systemPrompt, input string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < 2; attempt++ {
		analysis, err := a.generator.Generate(ctx, systemPrompt, input, a.maxTokens)
		if err != nil {
			if isRateLimited(err) {
				lastErr = err
				if waitErr := waitForRetry(ctx, rateLimitBackoff); waitErr != nil {
					return "", lastErr
				}
				continue
			}
			if isInvalidResponse(err) {
				lastErr = err
				continue
			}
			return "", err
		}
		return analysis, nil
	}

	return "", lastErr
}

func (a *Analyzer) record(articleID int64, analysis string, variant pipeline.ContentShape) error {
	if err := a.articles.CompleteAnalysis(articleID, analysis, variant); err != nil {
		return fmt.Errorf("failed to record analysis for article %d: %w", articleID, err)
	}
	return nil
}

func (a *Analyzer) cachedAnalysis(fingerprint string) string {
	entry, err := a.cache.Get(fingerprint)
	if err != nil {
		slog.Warn("Cache lookup failed", "fingerprint", fingerprint[:12], "error", err)
		return ""
	}
	if entry == nil {
		return ""
	}
	return entry.Output
}

func (a *Analyzer) fail(articleID int64, reason string, retryable bool) error {
	if err := a.articles.Fail(articleID, pipeline.StageDeepAnalysis, reason, retryable); err != nil {
		return fmt.Errorf("failed to record analysis failure for article %d: %w", articleID, err)
	}
	return nil
}
