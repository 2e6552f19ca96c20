package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// EncodingCache stores enrollment face encodings keyed by image content
// hash, so a restart skips re-encoding unchanged enrollment photos.
// Implements recognizer.EncodingCache.
type EncodingCache struct {
	pool *Pool
}

// NewEncodingCache creates the cache over the pool.
func NewEncodingCache(pool *Pool) *EncodingCache {
	return &EncodingCache{pool: pool}
}

// Get returns the cached encoding for a file hash, if present.
func (c *EncodingCache) Get(ctx context.Context, fileHash string) ([]float32, bool, error) {
	var vec pgvector.Vector
	err := c.pool.db.QueryRowContext(ctx, `
		SELECT encoding FROM enrollment_encodings WHERE file_hash = $1
	`, fileHash).Scan(&vec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying encoding cache: %w", err)
	}
	return vec.Slice(), true, nil
}

// Put stores an encoding, replacing any previous entry for the hash.
func (c *EncodingCache) Put(ctx context.Context, fileHash, identity string, encoding []float32) error {
	_, err := c.pool.db.ExecContext(ctx, `
		INSERT INTO enrollment_encodings (file_hash, identity, encoding)
		VALUES ($1, $2, $3)
		ON CONFLICT (file_hash) DO UPDATE SET identity = $2, encoding = $3
	`, fileHash, identity, pgvector.NewVector(encoding))
	if err != nil {
		return fmt.Errorf("storing encoding: %w", err)
	}
	return nil
}
