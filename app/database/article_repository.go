package database

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/ddrozdov/paperstream/app/pipeline"
)

// articleRepository is the sole mutator of article stage fields. Every
// status transition is an optimistic compare-and-set: the UPDATE carries
// the expected current status in its WHERE clause and the affected row
// count decides whether the transition happened. SQLite serializes
// writers, so two concurrent claims for the same article resolve to
// exactly one winner.
type articleRepository struct {
	db          *DB
	maxAttempts int
}

var _ ArticleRepository = (*articleRepository)(nil)

func NewArticleRepository(db *DB, maxAttempts int) ArticleRepository {
	return &articleRepository{db: db, maxAttempts: maxAttempts}
}

// Per-stage column names. Keeping these in one table avoids fmt.Sprintf'd
// column names scattered through the queries below.
type stageColumns struct {
	status    string
	attempts  string
	errReason string
	retryable string
}

func columnsFor(stage pipeline.Stage) (stageColumns, error) {
	switch stage {
	case pipeline.StageExtraction:
		return stageColumns{"extraction_status", "extraction_attempts", "extraction_error", "extraction_retryable"}, nil
	case pipeline.StageSummarization:
		return stageColumns{"summary_status", "summary_attempts", "summary_error", "summary_retryable"}, nil
	case pipeline.StageDeepAnalysis:
		return stageColumns{"analysis_status", "analysis_attempts", "analysis_error", "analysis_retryable"}, nil
	}
	return stageColumns{}, fmt.Errorf("unknown stage: %q", stage)
}

func (r *articleRepository) Ingest(draft ArticleDraft) (int64, bool, error) {
	extractionStatus := pipeline.ExtractionNotApplicable
	var arxivID sql.NullString
	if draft.ArxivID != "" {
		extractionStatus = pipeline.ExtractionPending
		arxivID = sql.NullString{String: draft.ArxivID, Valid: true}
	}

	res, err := r.db.Exec(`
		INSERT INTO articles (feed_id, guid, link, title, published_at, arxiv_id, extraction_status, summary_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guid) DO NOTHING
	`, draft.FeedID, draft.GUID, draft.Link, draft.Title, draft.PublishedAt,
		arxivID, string(extractionStatus), string(pipeline.SummaryPendingContent))
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert article: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read insert result: %w", err)
	}

	if rows == 0 {
		var id int64
		err := r.db.QueryRow("SELECT id FROM articles WHERE guid = ?", draft.GUID).Scan(&id)
		if err != nil {
			return 0, false, fmt.Errorf("failed to look up existing article: %w", err)
		}
		return id, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read inserted article id: %w", err)
	}
	return id, true, nil
}

func (r *articleRepository) MarkContentReady(articleID int64, content string) error {
	_, err := r.db.Exec(`
		UPDATE articles
		SET raw_content = ?, summary_status = ?
		WHERE id = ? AND summary_status = ?
	`, content, string(pipeline.SummaryPendingLLM), articleID, string(pipeline.SummaryPendingContent))
	if err != nil {
		return fmt.Errorf("failed to mark content ready: %w", err)
	}
	return nil
}

func (r *articleRepository) Claim(articleID int64, stage pipeline.Stage) (bool, error) {
	cols, err := columnsFor(stage)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		UPDATE articles
		SET %[1]s = ?
		WHERE id = ?
		  AND (%[1]s = ? OR (%[1]s = ? AND %[2]s = 1 AND %[3]s < ?))
	`, cols.status, cols.retryable, cols.attempts)

	res, err := r.db.Exec(query, stage.ProcessingStatus(), articleID,
		stage.PendingStatus(), stage.FailedStatus(), r.maxAttempts)
	if err != nil {
		return false, fmt.Errorf("failed to claim article %d for %s: %w", articleID, stage, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return rows == 1, nil
}

func (r *articleRepository) Eligible(stage pipeline.Stage, limit int) ([]int64, error) {
	cols, err := columnsFor(stage)
	if err != nil {
		return nil, err
	}

	// Oldest-ingested-first so a large backlog cannot be starved by
	// newly arriving articles.
	query := fmt.Sprintf(`
		SELECT id FROM articles
		WHERE (%[1]s = ? OR (%[1]s = ? AND %[2]s = 1 AND %[3]s < ?))
	`, cols.status, cols.retryable, cols.attempts)
	if stage == pipeline.StageDeepAnalysis {
		query += fmt.Sprintf(" AND extraction_status = '%s'", pipeline.ExtractionExtracted)
	}
	query += " ORDER BY ingested_at ASC, id ASC LIMIT ?"

	rows, err := r.db.Query(query, stage.PendingStatus(), stage.FailedStatus(), r.maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible articles: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan eligible article id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating eligible articles: %w", err)
	}
	return ids, nil
}

func (r *articleRepository) CompleteExtraction(articleID int64, content string, shape pipeline.ContentShape, confidence pipeline.ShapeConfidence) error {
	res, err := r.db.Exec(`
		UPDATE articles
		SET extraction_status = ?, extracted_content = ?, content_shape = ?,
		    shape_confidence = ?, extracted_at = ?, extraction_error = ''
		WHERE id = ? AND extraction_status = ?
	`, string(pipeline.ExtractionExtracted), content, string(shape), string(confidence),
		time.Now().UTC(), articleID, string(pipeline.ExtractionProcessing))
	if err != nil {
		return fmt.Errorf("failed to complete extraction: %w", err)
	}
	return checkClaimed(res)
}

func (r *articleRepository) CompleteSummary(articleID int64, summary, model string) error {
	res, err := r.db.Exec(`
		UPDATE articles
		SET summary_status = ?, summary = ?, llm_model = ?, summarized_at = ?, summary_error = ''
		WHERE id = ? AND summary_status = ?
	`, string(pipeline.SummaryCompleted), summary, model,
		time.Now().UTC(), articleID, string(pipeline.SummaryProcessing))
	if err != nil {
		return fmt.Errorf("failed to complete summary: %w", err)
	}
	return checkClaimed(res)
}

func (r *articleRepository) CompleteAnalysis(articleID int64, analysis string, variant pipeline.ContentShape) error {
	res, err := r.db.Exec(`
		UPDATE articles
		SET analysis_status = ?, analysis = ?, analysis_variant = ?, analyzed_at = ?, analysis_error = ''
		WHERE id = ? AND analysis_status = ?
	`, string(pipeline.AnalysisCompleted), analysis, string(variant),
		time.Now().UTC(), articleID, string(pipeline.AnalysisProcessing))
	if err != nil {
		return fmt.Errorf("failed to complete analysis: %w", err)
	}
	return checkClaimed(res)
}

func (r *articleRepository) Fail(articleID int64, stage pipeline.Stage, reason string, retryable bool) error {
	if reason == "" {
		reason = "unknown failure"
	}

	cols, err := columnsFor(stage)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE articles
		SET %[1]s = ?, %[2]s = ?, %[3]s = ?, %[4]s = %[4]s + 1
		WHERE id = ? AND %[1]s = ?
	`, cols.status, cols.errReason, cols.retryable, cols.attempts)

	res, err := r.db.Exec(query, stage.FailedStatus(), reason, boolToInt(retryable),
		articleID, stage.ProcessingStatus())
	if err != nil {
		return fmt.Errorf("failed to record stage failure: %w", err)
	}
	return checkClaimed(res)
}

// checkClaimed maps a zero-row CAS update to ErrLostClaim.
func checkClaimed(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rows == 0 {
		return ErrLostClaim
	}
	return nil
}

func (r *articleRepository) RequestAnalysis(articleID int64) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE articles
		SET analysis_status = ?
		WHERE id = ? AND analysis_status = ? AND extraction_status = ?
	`, string(pipeline.AnalysisPending), articleID,
		string(pipeline.AnalysisNotRequested), string(pipeline.ExtractionExtracted))
	if err != nil {
		return false, fmt.Errorf("failed to request analysis: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read request result: %w", err)
	}
	return rows == 1, nil
}

func (r *articleRepository) ResetStage(articleID int64, stage pipeline.Stage) (bool, error) {
	cols, err := columnsFor(stage)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		UPDATE articles
		SET %[1]s = ?, %[2]s = 0, %[3]s = ''
		WHERE id = ? AND %[1]s = ?
	`, cols.status, cols.attempts, cols.errReason)

	res, err := r.db.Exec(query, stage.PendingStatus(), articleID, stage.FailedStatus())
	if err != nil {
		return false, fmt.Errorf("failed to reset stage: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read reset result: %w", err)
	}
	return rows == 1, nil
}

const articleColumns = `
	id, feed_id, guid, COALESCE(link, ''), COALESCE(title, ''), published_at, ingested_at,
	COALESCE(raw_content, ''),
	COALESCE(summary, ''), COALESCE(llm_model, ''), summarized_at,
	summary_status, summary_attempts, summary_error, summary_retryable,
	COALESCE(arxiv_id, ''),
	extraction_status, extraction_attempts, COALESCE(extracted_content, ''),
	COALESCE(content_shape, ''), COALESCE(shape_confidence, ''), extracted_at,
	extraction_error, extraction_retryable,
	analysis_status, analysis_attempts, COALESCE(analysis, ''),
	COALESCE(analysis_variant, ''), analyzed_at, analysis_error, analysis_retryable`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*Article, error) {
	var a Article
	var publishedAt, summarizedAt, extractedAt, analyzedAt sql.NullTime
	var summaryRetryable, extractionRetryable, analysisRetryable int

	err := row.Scan(
		&a.ID, &a.FeedID, &a.GUID, &a.Link, &a.Title, &publishedAt, &a.IngestedAt,
		&a.RawContent,
		&a.Summary, &a.LLMModel, &summarizedAt,
		&a.SummaryStatus, &a.SummaryAttempts, &a.SummaryError, &summaryRetryable,
		&a.ArxivID,
		&a.ExtractionStatus, &a.ExtractionAttempts, &a.ExtractedContent,
		&a.ContentShape, &a.ShapeConfidence, &extractedAt,
		&a.ExtractionError, &extractionRetryable,
		&a.AnalysisStatus, &a.AnalysisAttempts, &a.Analysis,
		&a.AnalysisVariant, &analyzedAt, &a.AnalysisError, &analysisRetryable,
	)
	if err != nil {
		return nil, err
	}

	a.PublishedAt = nullTimePtr(publishedAt)
	a.SummarizedAt = nullTimePtr(summarizedAt)
	a.ExtractedAt = nullTimePtr(extractedAt)
	a.AnalyzedAt = nullTimePtr(analyzedAt)
	a.SummaryRetryable = summaryRetryable == 1
	a.ExtractionRetryable = extractionRetryable == 1
	a.AnalysisRetryable = analysisRetryable == 1

	return &a, nil
}

func (r *articleRepository) GetArticle(articleID int64) (*Article, error) {
	row := r.db.QueryRow("SELECT "+articleColumns+" FROM articles WHERE id = ?", articleID)

	article, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article %d: %w", articleID, err)
	}
	return article, nil
}

func (r *articleRepository) List(opts ListOptions) ([]Article, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	builder := sq.Select(articleColumns).From("articles").
		OrderBy("COALESCE(published_at, ingested_at) DESC").
		Limit(uint64(opts.Limit)).Offset(uint64(opts.Offset))

	if opts.FeedID != 0 {
		builder = builder.Where(sq.Eq{"feed_id": opts.FeedID})
	}
	if opts.Keyword != "" {
		pattern := "%" + opts.Keyword + "%"
		builder = builder.Where(sq.Or{
			sq.Like{"title": pattern},
			sq.Like{"summary": pattern},
			sq.Like{"raw_content": pattern},
			sq.Expr(`id IN (
				SELECT ak.article_id FROM article_keywords ak
				JOIN keywords k ON ak.keyword_id = k.id
				WHERE k.keyword LIKE ?)`, pattern),
		})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}

	return r.queryArticles(query, args...)
}

func (r *articleRepository) Search(query string, limit, offset int) ([]Article, error) {
	if limit <= 0 {
		limit = 50
	}

	return r.queryArticles(`
		SELECT `+articleColumns+` FROM articles
		WHERE id IN (SELECT rowid FROM articles_fts WHERE articles_fts MATCH ?)
		ORDER BY COALESCE(published_at, ingested_at) DESC
		LIMIT ? OFFSET ?
	`, query, limit, offset)
}

func (r *articleRepository) queryArticles(query string, args ...any) ([]Article, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		articles = append(articles, *article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article rows: %w", err)
	}
	return articles, nil
}

func (r *articleRepository) Stats() (*PipelineStats, error) {
	stats := &PipelineStats{
		Extraction:    StageCounts{},
		Summarization: StageCounts{},
		DeepAnalysis:  StageCounts{},
	}

	err := r.db.QueryRow("SELECT COUNT(*), COUNT(arxiv_id) FROM articles").
		Scan(&stats.TotalArticles, &stats.ArxivArticles)
	if err != nil {
		return nil, fmt.Errorf("failed to count articles: %w", err)
	}

	for col, counts := range map[string]StageCounts{
		"extraction_status": stats.Extraction,
		"summary_status":    stats.Summarization,
		"analysis_status":   stats.DeepAnalysis,
	} {
		rows, err := r.db.Query(fmt.Sprintf("SELECT %s, COUNT(*) FROM articles GROUP BY %s", col, col))
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", col, err)
		}
		for rows.Next() {
			var status string
			var count int
			if err := rows.Scan(&status, &count); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan %s counts: %w", col, err)
			}
			counts[status] = count
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error iterating %s counts: %w", col, err)
		}
		rows.Close()
	}

	err = r.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN content_shape = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN content_shape = ? THEN 1 ELSE 0 END), 0)
		FROM articles WHERE extraction_status = ?
	`, string(pipeline.ShapeFullDocument), string(pipeline.ShapeAbstractOnly),
		string(pipeline.ExtractionExtracted)).
		Scan(&stats.FullDocuments, &stats.AbstractsOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to count content shapes: %w", err)
	}

	return stats, nil
}

func (r *articleRepository) PruneFeedArticles(feedID int64, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	res, err := r.db.Exec(`
		DELETE FROM articles
		WHERE feed_id = ?
		  AND id NOT IN (
			SELECT id FROM articles
			WHERE feed_id = ?
			ORDER BY ingested_at DESC, id DESC
			LIMIT ?)
	`, feedID, feedID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune feed articles: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read prune result: %w", err)
	}
	return int(rows), nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
