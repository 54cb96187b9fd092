package database

import (
	"database/sql"
	"fmt"
	"strings"
)

type keywordRepository struct {
	db *DB
}

var _ KeywordRepository = (*keywordRepository)(nil)

func NewKeywordRepository(db *DB) KeywordRepository {
	return &keywordRepository{db: db}
}

// AttachKeywords associates keywords with an article, creating dictionary
// entries as needed. Keywords are deduplicated case-insensitively.
func (r *keywordRepository) AttachKeywords(articleID int64, keywords []string) error {
	seen := make(map[string]bool, len(keywords))

	for _, keyword := range keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" || seen[strings.ToLower(keyword)] {
			continue
		}
		seen[strings.ToLower(keyword)] = true

		var keywordID int64
		err := r.db.QueryRow("SELECT id FROM keywords WHERE keyword = ?", keyword).Scan(&keywordID)
		if err == sql.ErrNoRows {
			res, insertErr := r.db.Exec("INSERT INTO keywords (keyword) VALUES (?)", keyword)
			if insertErr != nil {
				return fmt.Errorf("failed to insert keyword: %w", insertErr)
			}
			keywordID, insertErr = res.LastInsertId()
			if insertErr != nil {
				return fmt.Errorf("failed to read keyword id: %w", insertErr)
			}
		} else if err != nil {
			return fmt.Errorf("failed to look up keyword: %w", err)
		}

		_, err = r.db.Exec(`
			INSERT OR IGNORE INTO article_keywords (article_id, keyword_id) VALUES (?, ?)
		`, articleID, keywordID)
		if err != nil {
			return fmt.Errorf("failed to associate keyword: %w", err)
		}
	}

	return nil
}

func (r *keywordRepository) GetArticleKeywords(articleID int64) ([]string, error) {
	rows, err := r.db.Query(`
		SELECT k.keyword FROM keywords k
		JOIN article_keywords ak ON ak.keyword_id = k.id
		WHERE ak.article_id = ?
		ORDER BY k.keyword
	`, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query article keywords: %w", err)
	}
	defer rows.Close()

	var keywords []string
	for rows.Next() {
		var keyword string
		if err := rows.Scan(&keyword); err != nil {
			return nil, fmt.Errorf("failed to scan keyword row: %w", err)
		}
		keywords = append(keywords, keyword)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keyword rows: %w", err)
	}
	return keywords, nil
}

// CleanupOrphans removes keywords with no article associations. Orphans
// are not reclaimed automatically on dissociation; this is an explicit
// maintenance action so bulk reprocessing does not churn the dictionary.
func (r *keywordRepository) CleanupOrphans() (int, error) {
	res, err := r.db.Exec(`
		DELETE FROM keywords
		WHERE id NOT IN (SELECT DISTINCT keyword_id FROM article_keywords)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up orphaned keywords: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read cleanup result: %w", err)
	}
	return int(rows), nil
}
