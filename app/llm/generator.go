package llm

import (
	"context"
	"errors"
)

// ErrRateLimited reports a provider-side throttle. The stage backs off and
// retries once; if the provider is still throttling, the failure is
// recorded retryable and a later batch picks the article up again.
var ErrRateLimited = errors.New("llm provider rate limited the request")

// ErrInvalidResponse reports a completion that came back empty or
// unparseable. Worth one immediate retry before recording a failure.
var ErrInvalidResponse = errors.New("llm returned an unusable response")

// Generator produces a completion for a prompt pair within a token budget.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}
