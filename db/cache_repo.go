package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tfkr-ae/caravel/domain"
)

var _ domain.CacheStore = (*Repository)(nil)

// Load implements the domain.CacheStore interface.
// It retrieves the persisted configuration payload from the single-row
// 'cache' table, reporting domain.ErrNoCache when nothing has been persisted.
func (repo *Repository) Load(ctx context.Context) ([]byte, error) {
	var payload []byte
	query := `SELECT payload FROM cache WHERE id = 1`
	err := repo.dbConn.GetContext(ctx, &payload, query)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoCache
	}
	if err != nil {
		return nil, fmt.Errorf("loading cached payload: %w", err)
	}

	return payload, nil
}

// Persist implements the domain.CacheStore interface.
// It replaces the stored payload and stamps the fetch time.
func (repo *Repository) Persist(ctx context.Context, payload []byte) error {
	query := `INSERT INTO cache (id, payload, fetched_at) VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, fetched_at = CURRENT_TIMESTAMP`
	_, err := repo.dbConn.ExecContext(ctx, query, payload)

	if err != nil {
		return fmt.Errorf("persisting cached payload: %w", err)
	}

	return nil
}

// Clear implements the domain.CacheStore interface.
// It removes the stored payload so the next Load reports domain.ErrNoCache.
func (repo *Repository) Clear(ctx context.Context) error {
	query := `DELETE FROM cache`
	_, err := repo.dbConn.ExecContext(ctx, query)

	if err != nil {
		return fmt.Errorf("clearing cached payload: %w", err)
	}

	return nil
}
