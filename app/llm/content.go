package llm

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// rateLimitBackoff is how long a stage waits before retrying a throttled
// call. A var so tests can shorten it.
var rateLimitBackoff = 5 * time.Second

// waitForRetry sleeps out a backoff period, returning early when the
// context ends first.
func waitForRetry(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// truncateForPrompt cuts content to a byte budget at a rune boundary.
func truncateForPrompt(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	cut := s[:maxChars]
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

// cleanJSONResponse strips markdown code fences and surrounding prose that
// models sometimes wrap around JSON output.
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}

func isInvalidResponse(err error) bool {
	return errors.Is(err, ErrInvalidResponse)
}

func isRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
