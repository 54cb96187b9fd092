package extract

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Base URLs are declared as vars so tests can substitute an httptest server.
var (
	arxivHTMLBase = "https://arxiv.org/html"
	arxivAPIBase  = "https://export.arxiv.org/api/query"
)

// ErrNotFound reports that arXiv has no paper for the requested identifier.
// Callers treat it as permanent: retrying the same identifier cannot succeed.
var ErrNotFound = errors.New("paper not found on arxiv")

// minHTMLContentLength guards against HTML pages that parse but carry no
// real body (placeholder pages, "HTML not available" stubs).
const minHTMLContentLength = 500

// DocumentFetcher retrieves the text of a paper by its arXiv identifier.
type DocumentFetcher interface {
	Fetch(ctx context.Context, arxivID string) (string, error)
}

// ArxivClient fetches paper content from arXiv. It tries the rendered HTML
// route first, which carries the full paper body, and falls back to the
// export API, which only carries title and abstract.
type ArxivClient struct {
	client    *http.Client
	userAgent string
}

var _ DocumentFetcher = (*ArxivClient)(nil)

func NewArxivClient(userAgent string) *ArxivClient {
	return &ArxivClient{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: userAgent,
	}
}

func (c *ArxivClient) Fetch(ctx context.Context, arxivID string) (string, error) {
	content, err := c.fetchHTML(ctx, arxivID)
	if err == nil {
		return content, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}

	slog.Debug("HTML route unavailable, falling back to export API",
		"arxiv_id", arxivID, "reason", err)

	return c.fetchAbstract(ctx, arxivID)
}

// fetchHTML retrieves the rendered HTML version of a paper. Not every paper
// has one; older submissions and some formats only exist as PDF.
func (c *ArxivClient) fetchHTML(ctx context.Context, arxivID string) (string, error) {
	url := fmt.Sprintf("%s/%s", arxivHTMLBase, arxivID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTML request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTML route returned HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("nav, header, footer, aside, script, style").Remove()

	var parts []string
	if title := strings.TrimSpace(doc.Find("h1").First().Text()); title != "" {
		parts = append(parts, title)
	}

	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if len(text) > 20 {
			parts = append(parts, text)
		}
	})

	content := strings.Join(parts, "\n\n")
	if len(content) < minHTMLContentLength {
		return "", fmt.Errorf("HTML body too short (%d chars)", len(content))
	}

	return content, nil
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID      string `xml:"id"`
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
}

// fetchAbstract queries the export API for the paper's title and abstract.
func (c *ArxivClient) fetchAbstract(ctx context.Context, arxivID string) (string, error) {
	url := fmt.Sprintf("%s?id_list=%s&max_results=1", arxivAPIBase, arxivID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("export API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("export API returned HTTP %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return "", fmt.Errorf("failed to parse export API response: %w", err)
	}

	// The API answers unknown identifiers with an empty feed or an error
	// entry that has no abstract.
	if len(feed.Entries) == 0 {
		return "", ErrNotFound
	}

	entry := feed.Entries[0]
	title := strings.TrimSpace(entry.Title)
	summary := strings.TrimSpace(entry.Summary)
	if summary == "" || strings.EqualFold(title, "Error") {
		return "", ErrNotFound
	}

	if title != "" {
		return title + "\n\n" + summary, nil
	}
	return summary, nil
}
