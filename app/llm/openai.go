package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIGenerator implements Generator over the OpenAI chat completions API.
type OpenAIGenerator struct {
	client *openai.Client
	model  openai.ChatModel
}

var _ Generator = (*OpenAIGenerator)(nil)

func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIGenerator{
		client: &client,
		model:  openai.ChatModel(model),
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		MaxTokens: openai.Int(int64(maxTokens)),
	})

	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) && apierr.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return "", fmt.Errorf("openai API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in completion", ErrInvalidResponse)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty completion", ErrInvalidResponse)
	}

	return content, nil
}
