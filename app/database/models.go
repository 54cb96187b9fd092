package database

import (
	"time"

	"github.com/ddrozdov/paperstream/app/pipeline"
)

type Feed struct {
	ID                  int64
	URL                 string
	Name                string
	Enabled             bool
	PollIntervalMinutes int
	MaxArticles         int
	ErrorCount          int
	LastPollAt          *time.Time
	LastItemGUID        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Article struct {
	ID          int64
	FeedID      int64
	GUID        string
	Link        string
	Title       string
	PublishedAt *time.Time
	IngestedAt  time.Time
	RawContent  string

	Summary          string
	LLMModel         string
	SummarizedAt     *time.Time
	SummaryStatus    pipeline.SummaryStatus
	SummaryAttempts  int
	SummaryError     string
	SummaryRetryable bool

	ArxivID             string
	ExtractionStatus    pipeline.ExtractionStatus
	ExtractionAttempts  int
	ExtractedContent    string
	ContentShape        pipeline.ContentShape
	ShapeConfidence     pipeline.ShapeConfidence
	ExtractedAt         *time.Time
	ExtractionError     string
	ExtractionRetryable bool

	AnalysisStatus    pipeline.AnalysisStatus
	AnalysisAttempts  int
	Analysis          string
	AnalysisVariant   pipeline.ContentShape
	AnalyzedAt        *time.Time
	AnalysisError     string
	AnalysisRetryable bool
}

// HasFullText reports whether the article carries extracted document
// content usable by the LLM stages.
func (a *Article) HasFullText() bool {
	return a.ExtractionStatus == pipeline.ExtractionExtracted && a.ExtractedContent != ""
}

// ArticleDraft is what the feed poller hands to Ingest: the normalized
// feed item plus the classifier result.
type ArticleDraft struct {
	FeedID      int64
	GUID        string
	Link        string
	Title       string
	PublishedAt *time.Time
	ArxivID     string
}

// StageCounts aggregates per-status article counts for one stage.
type StageCounts map[string]int

// PipelineStats is the ledger statistics snapshot exposed via the API.
type PipelineStats struct {
	TotalArticles int
	ArxivArticles int
	Extraction    StageCounts
	Summarization StageCounts
	DeepAnalysis  StageCounts
	FullDocuments int
	AbstractsOnly int
}

// ListOptions narrows article listing queries.
type ListOptions struct {
	FeedID  int64
	Keyword string
	Limit   int
	Offset  int
}

// Favorite marks an article the operator wants to keep around, with
// free-form notes and tags.
type Favorite struct {
	ArticleID int64
	Notes     string
	Tags      []string
	CreatedAt time.Time
}

// FavoriteArticle is one favorites listing row: the article joined with
// its favorite metadata.
type FavoriteArticle struct {
	Article
	Notes       string
	Tags        []string
	FavoritedAt time.Time
}

type CacheEntry struct {
	Fingerprint string
	Operation   string
	Model       string
	Output      string
	CreatedAt   time.Time
}
