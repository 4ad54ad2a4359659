package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO
)

// EmbeddingCache persists chunk embeddings in SQLite so rebuilding the
// vector index after a restart does not re-embed unchanged content.
// Entries are keyed by a hash of (model, text): parent document IDs are
// stable across rebuilds, so unchanged recipes hit the cache even though
// chunk IDs are reminted every run.
type EmbeddingCache struct {
	db    *sql.DB
	model string
}

const embedCacheSchema = `
CREATE TABLE IF NOT EXISTS embeddings (
	key        TEXT PRIMARY KEY,
	dimensions INTEGER NOT NULL,
	vector     BLOB NOT NULL
);
`

// OpenEmbeddingCache opens (or creates) the cache database at path.
// The model name is folded into every cache key, so switching embedding
// models invalidates old entries without a schema change.
func OpenEmbeddingCache(path, model string) (*EmbeddingCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	if _, err := db.Exec(embedCacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init embedding cache schema: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	return &EmbeddingCache{db: db, model: model}, nil
}

// key hashes model and text into the cache key.
func (c *EmbeddingCache) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached embedding for text, or ok=false on a miss.
func (c *EmbeddingCache) Get(ctx context.Context, text string) ([]float32, bool, error) {
	var dims int
	var blob []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT dimensions, vector FROM embeddings WHERE key = ?", c.key(text),
	).Scan(&dims, &blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}
	if len(blob) != dims*4 {
		// Corrupt row. Treat as a miss; the caller will overwrite it.
		return nil, false, nil
	}

	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, true, nil
}

// Put stores the embedding for text, replacing any previous entry.
func (c *EmbeddingCache) Put(ctx context.Context, text string, vector []float32) error {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}

	_, err := c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO embeddings (key, dimensions, vector) VALUES (?, ?, ?)",
		c.key(text), len(vector), blob)
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}

// Len returns the number of cached embeddings.
func (c *EmbeddingCache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&n); err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return n, nil
}

// Close releases the database handle.
func (c *EmbeddingCache) Close() error {
	return c.db.Close()
}
