package database

import (
	"errors"
	"time"

	"github.com/ddrozdov/paperstream/app/pipeline"
)

// ErrLostClaim is returned when Complete or Fail finds the article no
// longer in the processing state it was claimed into. It signals a
// coordination bug or an external reset; callers log it as an anomaly and
// continue with the rest of the batch.
var ErrLostClaim = errors.New("article is not processing for this stage")

type FeedRepository interface {
	UpsertFeed(url, name string, pollInterval, maxArticles int) (int64, error)
	GetFeed(id int64) (*Feed, error)
	GetEnabledFeeds() ([]Feed, error)
	ListFeeds() ([]Feed, error)
	SetFeedEnabled(id int64, enabled bool) error
	MarkPollSuccess(id int64, lastGUID string, at time.Time) error
	IncrementErrorCount(id int64) error
}

// ArticleLedger is the single source of truth for stage statuses. Stages
// propose transitions through Claim/Complete/Fail; direct status writes do
// not exist.
type ArticleLedger interface {
	// Claim atomically moves a pending or retry-eligible failed article
	// into processing for the stage. Exactly one of any number of
	// concurrent claims for the same (article, stage) succeeds.
	Claim(articleID int64, stage pipeline.Stage) (bool, error)

	// Eligible returns up to limit article ids claimable for the stage,
	// oldest-ingested-first.
	Eligible(stage pipeline.Stage, limit int) ([]int64, error)

	CompleteExtraction(articleID int64, content string, shape pipeline.ContentShape, confidence pipeline.ShapeConfidence) error
	CompleteSummary(articleID int64, summary, model string) error
	CompleteAnalysis(articleID int64, analysis string, variant pipeline.ContentShape) error

	// Fail moves processing to the stage's failed status, recording the
	// reason and retry eligibility and bumping the attempt counter.
	Fail(articleID int64, stage pipeline.Stage, reason string, retryable bool) error

	GetArticle(articleID int64) (*Article, error)
}

type ArticleRepository interface {
	ArticleLedger

	// Ingest inserts a draft article, deriving the initial extraction
	// status from the classifier result. Returns the article id and
	// whether a new row was created (false on duplicate GUID).
	Ingest(draft ArticleDraft) (int64, bool, error)

	// MarkContentReady stores the excerpt-level content and advances
	// pending_content to pending_llm.
	MarkContentReady(articleID int64, content string) error

	// RequestAnalysis moves not_requested to pending, only when the
	// extraction stage has completed.
	RequestAnalysis(articleID int64) (bool, error)

	// ResetStage is the operator escape hatch for terminal failures: it
	// returns a failed article to the stage's claimable pending state.
	ResetStage(articleID int64, stage pipeline.Stage) (bool, error)

	List(opts ListOptions) ([]Article, error)
	Search(query string, limit, offset int) ([]Article, error)
	Stats() (*PipelineStats, error)

	// PruneFeedArticles deletes the oldest articles beyond keep for the
	// feed. Returns the number of deleted rows.
	PruneFeedArticles(feedID int64, keep int) (int, error)
}

type KeywordRepository interface {
	AttachKeywords(articleID int64, keywords []string) error
	GetArticleKeywords(articleID int64) ([]string, error)
	CleanupOrphans() (int, error)
}

type FavoriteRepository interface {
	// AddFavorite marks an article as a favorite, replacing notes and
	// tags when it already is one. Returns false when the article does
	// not exist.
	AddFavorite(articleID int64, notes string, tags []string) (bool, error)

	// RemoveFavorite returns false when the article was not a favorite.
	RemoveFavorite(articleID int64) (bool, error)

	GetFavorite(articleID int64) (*Favorite, error)

	// ListFavorites returns favorited articles newest-favorited-first,
	// optionally narrowed to one tag.
	ListFavorites(tag string, limit, offset int) ([]FavoriteArticle, error)
}

type CacheRepository interface {
	Get(fingerprint string) (*CacheEntry, error)
	Put(entry CacheEntry) error
}
