package feed

import (
	"strings"

	"github.com/go-shiori/go-readability"
)

// ExcerptBuilder turns the HTML payload of a feed item into plain text
// suitable for the summarization prompt.
type ExcerptBuilder struct{}

func NewExcerptBuilder() *ExcerptBuilder {
	return &ExcerptBuilder{}
}

// Run prefers the item's full content block over its description, strips
// markup through readability, and falls back to the raw payload when the
// snippet is too small for readability to work with.
func (e *ExcerptBuilder) Run(item Item) string {
	payload := preferredPayload(item)
	if payload == "" {
		return ""
	}

	article, err := readability.FromReader(strings.NewReader(payload), nil)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return strings.TrimSpace(article.TextContent)
	}

	return strings.TrimSpace(stripTags(payload))
}

func preferredPayload(item Item) string {
	if strings.TrimSpace(item.Content) != "" {
		return item.Content
	}
	return item.Description
}

// stripTags is the crude fallback for snippets readability rejects: drop
// everything between angle brackets.
func stripTags(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
