package database

import (
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// favoriteRepository stores operator bookmarks. Tags are kept as a
// comma-joined list on the row; the repository is the only reader and
// writer of that encoding.
type favoriteRepository struct {
	db *DB
}

var _ FavoriteRepository = (*favoriteRepository)(nil)

func NewFavoriteRepository(db *DB) FavoriteRepository {
	return &favoriteRepository{db: db}
}

func (r *favoriteRepository) AddFavorite(articleID int64, notes string, tags []string) (bool, error) {
	var id int64
	err := r.db.QueryRow("SELECT id FROM articles WHERE id = ?", articleID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up article %d: %w", articleID, err)
	}

	_, err = r.db.Exec(`
		INSERT INTO favorites (article_id, notes, tags)
		VALUES (?, ?, ?)
		ON CONFLICT(article_id) DO UPDATE SET
			notes = excluded.notes,
			tags = excluded.tags
	`, articleID, notes, joinTags(tags))
	if err != nil {
		return false, fmt.Errorf("failed to add favorite: %w", err)
	}
	return true, nil
}

func (r *favoriteRepository) RemoveFavorite(articleID int64) (bool, error) {
	res, err := r.db.Exec("DELETE FROM favorites WHERE article_id = ?", articleID)
	if err != nil {
		return false, fmt.Errorf("failed to remove favorite: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read remove result: %w", err)
	}
	return rows > 0, nil
}

func (r *favoriteRepository) GetFavorite(articleID int64) (*Favorite, error) {
	var f Favorite
	var tags string
	err := r.db.QueryRow(`
		SELECT article_id, notes, tags, created_at FROM favorites WHERE article_id = ?
	`, articleID).Scan(&f.ArticleID, &f.Notes, &tags, &f.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get favorite %d: %w", articleID, err)
	}

	f.Tags = splitTags(tags)
	return &f, nil
}

func (r *favoriteRepository) ListFavorites(tag string, limit, offset int) ([]FavoriteArticle, error) {
	if limit <= 0 {
		limit = 50
	}

	builder := sq.Select("article_id", "notes", "tags", "created_at").
		From("favorites").
		OrderBy("created_at DESC, article_id DESC").
		Limit(uint64(limit)).Offset(uint64(offset))

	if tag != "" {
		builder = builder.Where(sq.Expr("(',' || tags || ',') LIKE ?", "%,"+tag+",%"))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build favorites query: %w", err)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query favorites: %w", err)
	}
	defer rows.Close()

	type favoriteRow struct {
		articleID int64
		notes     string
		tags      string
		createdAt sql.NullTime
	}

	var favoriteRows []favoriteRow
	for rows.Next() {
		var fr favoriteRow
		if err := rows.Scan(&fr.articleID, &fr.notes, &fr.tags, &fr.createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan favorite row: %w", err)
		}
		favoriteRows = append(favoriteRows, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating favorite rows: %w", err)
	}

	favorites := make([]FavoriteArticle, 0, len(favoriteRows))
	for _, fr := range favoriteRows {
		row := r.db.QueryRow("SELECT "+articleColumns+" FROM articles WHERE id = ?", fr.articleID)
		article, err := scanArticle(row)
		if err == sql.ErrNoRows {
			// Article pruned between the two reads; its favorite row is
			// gone too via the cascade.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load favorited article %d: %w", fr.articleID, err)
		}

		favorite := FavoriteArticle{
			Article: *article,
			Notes:   fr.notes,
			Tags:    splitTags(fr.tags),
		}
		if fr.createdAt.Valid {
			favorite.FavoritedAt = fr.createdAt.Time
		}
		favorites = append(favorites, favorite)
	}

	return favorites, nil
}

func joinTags(tags []string) string {
	cleaned := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[strings.ToLower(tag)] {
			continue
		}
		seen[strings.ToLower(tag)] = true
		cleaned = append(cleaned, tag)
	}
	return strings.Join(cleaned, ",")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
