package api

import (
	"github.com/ddrozdov/paperstream/app/database"
	"github.com/ddrozdov/paperstream/app/tasks"
)

type Handler struct {
	feedRepo     database.FeedRepository
	articleRepo  database.ArticleRepository
	keywordRepo  database.KeywordRepository
	favoriteRepo database.FavoriteRepository
	runner       *tasks.BatchRunner
	batchSize    int
	version      string
}

// batchRequest is the optional body of POST /api/batches/:stage.
type batchRequest struct {
	BatchSize  int  `json:"batch_size"`
	Continuous bool `json:"continuous"`
}

// favoriteRequest is the optional body of POST /api/articles/:id/favorite.
type favoriteRequest struct {
	Notes string   `json:"notes"`
	Tags  []string `json:"tags"`
}
