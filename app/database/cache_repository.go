package database

import (
	"database/sql"
	"fmt"
)

// cacheRepository stores previously computed AI outputs keyed by content
// fingerprint. A hit is purely an optimization; identical inputs produce
// equivalent outputs, so last-writer-wins on a fingerprint collision is
// acceptable.
type cacheRepository struct {
	db *DB
}

var _ CacheRepository = (*cacheRepository)(nil)

func NewCacheRepository(db *DB) CacheRepository {
	return &cacheRepository{db: db}
}

func (r *cacheRepository) Get(fingerprint string) (*CacheEntry, error) {
	var entry CacheEntry
	err := r.db.QueryRow(`
		SELECT fingerprint, operation, model, output, created_at
		FROM processing_cache WHERE fingerprint = ?
	`, fingerprint).Scan(&entry.Fingerprint, &entry.Operation, &entry.Model,
		&entry.Output, &entry.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return &entry, nil
}

func (r *cacheRepository) Put(entry CacheEntry) error {
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO processing_cache (fingerprint, operation, model, output)
		VALUES (?, ?, ?, ?)
	`, entry.Fingerprint, entry.Operation, entry.Model, entry.Output)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}
