package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ddrozdov/paperstream/app/database"
	"github.com/ddrozdov/paperstream/app/pipeline"
	"github.com/ddrozdov/paperstream/app/tasks"
)

func NewHandler(feedRepo database.FeedRepository, articleRepo database.ArticleRepository,
	keywordRepo database.KeywordRepository, favoriteRepo database.FavoriteRepository,
	runner *tasks.BatchRunner, batchSize int, version string) *Handler {
	return &Handler{
		feedRepo:     feedRepo,
		articleRepo:  articleRepo,
		keywordRepo:  keywordRepo,
		favoriteRepo: favoriteRepo,
		runner:       runner,
		batchSize:    batchSize,
		version:      version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
	}

	if feeds, err := h.feedRepo.ListFeeds(); err == nil {
		health["feeds"] = len(feeds)
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.articleRepo.Stats()
	if err != nil {
		slog.Error("Database error", "operation", "stats", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_articles": stats.TotalArticles,
		"arxiv_articles": stats.ArxivArticles,
		"stages": gin.H{
			"extraction":    stats.Extraction,
			"summarization": stats.Summarization,
			"deep_analysis": stats.DeepAnalysis,
		},
		"content_shapes": gin.H{
			"full_document": stats.FullDocuments,
			"abstract_only": stats.AbstractsOnly,
		},
	})
}

func (h *Handler) APIListFeeds(c *gin.Context) {
	feeds, err := h.feedRepo.ListFeeds()
	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	response := make([]map[string]interface{}, 0, len(feeds))
	for _, f := range feeds {
		response = append(response, map[string]interface{}{
			"id":                    f.ID,
			"url":                   f.URL,
			"name":                  f.Name,
			"enabled":               f.Enabled,
			"poll_interval_minutes": f.PollIntervalMinutes,
			"max_articles":          f.MaxArticles,
			"error_count":           f.ErrorCount,
			"last_poll_at":          f.LastPollAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"feeds": response, "count": len(response)})
}

func (h *Handler) APIListArticles(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	var (
		articles []database.Article
		err      error
	)

	if query := c.Query("q"); query != "" {
		articles, err = h.articleRepo.Search(query, limit, offset)
	} else {
		articles, err = h.articleRepo.List(database.ListOptions{
			FeedID:  int64(intQuery(c, "feed_id", 0)),
			Keyword: c.Query("keyword"),
			Limit:   limit,
			Offset:  offset,
		})
	}
	if err != nil {
		slog.Error("Database error", "operation", "list_articles", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	response := make([]map[string]interface{}, 0, len(articles))
	for i := range articles {
		response = append(response, h.articleSummaryJSON(&articles[i]))
	}

	c.JSON(http.StatusOK, gin.H{"articles": response, "count": len(response)})
}

func (h *Handler) APIGetArticle(c *gin.Context) {
	articleID, ok := pathID(c)
	if !ok {
		return
	}

	article, err := h.articleRepo.GetArticle(articleID)
	if err != nil {
		slog.Error("Database error", "operation", "get_article", "article_id", articleID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if article == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "article not found"})
		return
	}

	response := h.articleSummaryJSON(article)
	response["raw_content"] = article.RawContent
	response["extracted_content"] = article.ExtractedContent
	response["analysis"] = article.Analysis

	if keywords, err := h.keywordRepo.GetArticleKeywords(articleID); err == nil {
		response["keywords"] = keywords
	}

	c.JSON(http.StatusOK, response)
}

// APIRunBatch triggers a stage batch synchronously and reports the result.
func (h *Handler) APIRunBatch(c *gin.Context) {
	stage, err := pipeline.ParseStage(c.Param("stage"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.runner.HasProcessor(stage) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "stage is not available (LLM stages require an API key)",
		})
		return
	}

	req := batchRequest{BatchSize: h.batchSize}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.BatchSize <= 0 {
			req.BatchSize = h.batchSize
		}
	}

	result, err := h.runner.Run(c.Request.Context(), stage, req.BatchSize, req.Continuous)
	if err != nil {
		if errors.Is(err, tasks.ErrBatchRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "a batch for this stage is already running"})
			return
		}
		slog.Error("Batch run failed", "stage", stage, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "batch run failed", "partial": result})
		return
	}

	c.JSON(http.StatusOK, result)
}

// APIRequestAnalysis queues deep analysis for an article with a completed
// extraction.
func (h *Handler) APIRequestAnalysis(c *gin.Context) {
	articleID, ok := pathID(c)
	if !ok {
		return
	}

	requested, err := h.articleRepo.RequestAnalysis(articleID)
	if err != nil {
		slog.Error("Database error", "operation", "request_analysis", "article_id", articleID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if !requested {
		c.JSON(http.StatusConflict, gin.H{
			"error": "analysis cannot be requested: extraction incomplete or analysis already requested",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"article_id": articleID, "status": "pending"})
}

// APIRetryStage returns a terminally failed stage to its claimable state.
func (h *Handler) APIRetryStage(c *gin.Context) {
	articleID, ok := pathID(c)
	if !ok {
		return
	}

	stage, err := pipeline.ParseStage(c.Param("stage"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reset, err := h.articleRepo.ResetStage(articleID, stage)
	if err != nil {
		slog.Error("Database error", "operation", "reset_stage", "article_id", articleID, "stage", stage, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if !reset {
		c.JSON(http.StatusConflict, gin.H{"error": "stage is not in a failed state"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"article_id": articleID, "stage": stage, "status": "pending"})
}

// APIAddFavorite bookmarks an article, replacing any existing notes and
// tags.
func (h *Handler) APIAddFavorite(c *gin.Context) {
	articleID, ok := pathID(c)
	if !ok {
		return
	}

	var req favoriteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	added, err := h.favoriteRepo.AddFavorite(articleID, req.Notes, req.Tags)
	if err != nil {
		slog.Error("Database error", "operation", "add_favorite", "article_id", articleID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if !added {
		c.JSON(http.StatusNotFound, gin.H{"error": "article not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"article_id": articleID, "favorited": true})
}

func (h *Handler) APIRemoveFavorite(c *gin.Context) {
	articleID, ok := pathID(c)
	if !ok {
		return
	}

	removed, err := h.favoriteRepo.RemoveFavorite(articleID)
	if err != nil {
		slog.Error("Database error", "operation", "remove_favorite", "article_id", articleID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "article is not a favorite"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"article_id": articleID, "favorited": false})
}

func (h *Handler) APIListFavorites(c *gin.Context) {
	favorites, err := h.favoriteRepo.ListFavorites(
		c.Query("tag"), intQuery(c, "limit", 50), intQuery(c, "offset", 0))
	if err != nil {
		slog.Error("Database error", "operation", "list_favorites", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	response := make([]map[string]interface{}, 0, len(favorites))
	for i := range favorites {
		row := h.articleSummaryJSON(&favorites[i].Article)
		row["notes"] = favorites[i].Notes
		row["tags"] = favorites[i].Tags
		row["favorited_at"] = favorites[i].FavoritedAt
		response = append(response, row)
	}

	c.JSON(http.StatusOK, gin.H{"favorites": response, "count": len(response)})
}

func (h *Handler) APICleanupKeywords(c *gin.Context) {
	removed, err := h.keywordRepo.CleanupOrphans()
	if err != nil {
		slog.Error("Database error", "operation", "cleanup_keywords", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (h *Handler) articleSummaryJSON(a *database.Article) map[string]interface{} {
	return map[string]interface{}{
		"id":                a.ID,
		"feed_id":           a.FeedID,
		"guid":              a.GUID,
		"link":              a.Link,
		"title":             a.Title,
		"published_at":      a.PublishedAt,
		"ingested_at":       a.IngestedAt,
		"arxiv_id":          a.ArxivID,
		"summary":           a.Summary,
		"summary_status":    a.SummaryStatus,
		"extraction_status": a.ExtractionStatus,
		"analysis_status":   a.AnalysisStatus,
		"content_shape":     a.ContentShape,
		"shape_confidence":  a.ShapeConfidence,
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid article id"})
		return 0, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	value := c.Query(name)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
