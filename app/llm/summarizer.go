package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ddrozdov/paperstream/app/database"
	"github.com/ddrozdov/paperstream/app/pipeline"
)

const (
	// approxCharsPerToken sizes prompt truncation without a tokenizer.
	approxCharsPerToken = 4
	// maxInputTokens bounds the article content portion of a prompt.
	maxInputTokens = 3000
	// minContentLength is the point below which summarization cannot
	// produce anything the title does not already say.
	minContentLength = 100

	opSummarize = "summarize"
	opAnalyze   = "deep_analysis"
)

// Summarizer runs the summarization stage for one claimed article.
type Summarizer struct {
	articles    database.ArticleLedger
	keywords    database.KeywordRepository
	cache       database.CacheRepository
	generator   Generator
	model       string
	maxTokens   int
	callTimeout time.Duration
}

func NewSummarizer(articles database.ArticleLedger, keywords database.KeywordRepository,
	cache database.CacheRepository, generator Generator, model string,
	maxTokens int, callTimeout time.Duration) *Summarizer {
	return &Summarizer{
		articles:    articles,
		keywords:    keywords,
		cache:       cache,
		generator:   generator,
		model:       model,
		maxTokens:   maxTokens,
		callTimeout: callTimeout,
	}
}

type summaryResult struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

func (s *Summarizer) Process(ctx context.Context, articleID int64) error {
	article, err := s.articles.GetArticle(articleID)
	if err != nil {
		return fmt.Errorf("failed to load article %d: %w", articleID, err)
	}
	if article == nil {
		return fmt.Errorf("article %d not found", articleID)
	}

	// Prefer the extracted paper body; fall back to whatever the feed
	// item carried.
	content := article.RawContent
	if article.HasFullText() {
		content = article.ExtractedContent
	}

	if len(strings.TrimSpace(content)) < minContentLength {
		if failErr := s.fail(articleID, "insufficient content for summarization", false); failErr != nil {
			return failErr
		}
		return fmt.Errorf("article %d has insufficient content", articleID)
	}

	input := truncateForPrompt(article.Title+"\n\n"+content, maxInputTokens*approxCharsPerToken)
	fingerprint := Fingerprint(input, opSummarize, s.model, s.maxTokens)

	if cached := s.cachedResult(fingerprint); cached != nil {
		slog.Debug("Summary cache hit", "article_id", articleID, "fingerprint", fingerprint[:12])
		return s.record(articleID, cached)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	raw, result, err := s.generate(callCtx, input)
	if err != nil {
		if failErr := s.fail(articleID, err.Error(), true); failErr != nil {
			return failErr
		}
		return fmt.Errorf("summarization failed for article %d: %w", articleID, err)
	}

	if cacheErr := s.cache.Put(database.CacheEntry{
		Fingerprint: fingerprint,
		Operation:   opSummarize,
		Model:       s.model,
		Output:      raw,
	}); cacheErr != nil {
		slog.Warn("Failed to cache summary", "article_id", articleID, "error", cacheErr)
	}

	return s.record(articleID, result)
}

// generate calls the model and parses the JSON envelope, retrying once on
// an unusable response, or once after a backoff on a throttle, before
// giving up.
func (s *Summarizer) generate(ctx context.Context, input string) (string, *summaryResult, error) {
	var lastErr error

	for attempt := 0; attempt < 2; attempt++ {
		raw, err := s.generator.Generate(ctx, summarySystemPrompt, input, s.maxTokens)
		if err != nil {
			if isRateLimited(err) {
				lastErr = err
				if waitErr := waitForRetry(ctx, rateLimitBackoff); waitErr != nil {
					return "", nil, lastErr
				}
				continue
			}
			if isInvalidResponse(err) {
				lastErr = err
				continue
			}
			return "", nil, err
		}

		cleaned := cleanJSONResponse(raw)
		var result summaryResult
		if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrInvalidResponse, err)
			continue
		}
		if strings.TrimSpace(result.Summary) == "" {
			lastErr = fmt.Errorf("%w: empty summary field", ErrInvalidResponse)
			continue
		}

		return cleaned, &result, nil
	}

	return "", nil, lastErr
}

func (s *Summarizer) record(articleID int64, result *summaryResult) error {
	if err := s.articles.CompleteSummary(articleID, result.Summary, s.model); err != nil {
		return fmt.Errorf("failed to record summary for article %d: %w", articleID, err)
	}

	// The summary is already committed; a keyword hiccup is not a stage
	// failure.
	if err := s.keywords.AttachKeywords(articleID, result.Keywords); err != nil {
		slog.Warn("Failed to attach keywords", "article_id", articleID, "error", err)
	}

	return nil
}

func (s *Summarizer) cachedResult(fingerprint string) *summaryResult {
	entry, err := s.cache.Get(fingerprint)
	if err != nil {
		slog.Warn("Cache lookup failed", "fingerprint", fingerprint[:12], "error", err)
		return nil
	}
	if entry == nil {
		return nil
	}

	var result summaryResult
	if err := json.Unmarshal([]byte(entry.Output), &result); err != nil {
		slog.Warn("Discarding unparseable cache entry", "fingerprint", fingerprint[:12], "error", err)
		return nil
	}
	return &result
}

func (s *Summarizer) fail(articleID int64, reason string, retryable bool) error {
	if err := s.articles.Fail(articleID, pipeline.StageSummarization, reason, retryable); err != nil {
		return fmt.Errorf("failed to record summarization failure for article %d: %w", articleID, err)
	}
	return nil
}
