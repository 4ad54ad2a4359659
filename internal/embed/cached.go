package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tastelab/cookrag/internal/store"
)

// Cache configuration constants.
const (
	// DefaultEmbeddingCacheSize is the default number of embeddings to
	// keep in memory. At 1024 dimensions * 4 bytes * 2000 entries this
	// is about 8MB.
	DefaultEmbeddingCacheSize = 2000
)

// CachedEmbedder wraps an Embedder with an in-memory LRU and an optional
// persistent sqlite cache. Repeated queries hit the LRU; corpus rebuilds
// hit the sqlite layer and skip the embedding API entirely for unchanged
// chunks.
type CachedEmbedder struct {
	inner      Embedder
	memory     *lru.Cache[string, []float32]
	persistent *store.EmbeddingCache // may be nil
}

// NewCachedEmbedder creates a cached embedder wrapping the given embedder.
// The persistent cache is optional; pass nil for memory-only caching.
func NewCachedEmbedder(inner Embedder, cacheSize int, persistent *store.EmbeddingCache) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	memory, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedder{
		inner:      inner,
		memory:     memory,
		persistent: persistent,
	}
}

// Embed returns a cached embedding if available, otherwise computes and
// caches one.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.lookup(ctx, text); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.remember(ctx, text, vec)
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts, checking and
// filling both cache layers per text so partial hits still shrink the
// API call.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	missIndices := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.lookup(ctx, text); ok {
			results[i] = vec
			continue
		}
		missIndices = append(missIndices, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return results, nil
	}
	slog.Debug("embedding cache",
		slog.Int("hits", len(texts)-len(missTexts)),
		slog.Int("misses", len(missTexts)))

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIndices {
		results[idx] = fresh[j]
		c.remember(ctx, texts[idx], fresh[j])
	}
	return results, nil
}

// lookup checks the LRU, then the sqlite cache. A sqlite hit is promoted
// into the LRU.
func (c *CachedEmbedder) lookup(ctx context.Context, text string) ([]float32, bool) {
	key := c.cacheKey(text)
	if vec, ok := c.memory.Get(key); ok {
		return vec, true
	}
	if c.persistent == nil {
		return nil, false
	}
	vec, ok, err := c.persistent.Get(ctx, text)
	if err != nil {
		slog.Warn("persistent embedding cache read failed",
			slog.String("error", err.Error()))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	c.memory.Add(key, vec)
	return vec, true
}

// remember stores a vector in both cache layers.
func (c *CachedEmbedder) remember(ctx context.Context, text string, vec []float32) {
	c.memory.Add(c.cacheKey(text), vec)
	if c.persistent == nil {
		return
	}
	if err := c.persistent.Put(ctx, text, vec); err != nil {
		slog.Warn("persistent embedding cache write failed",
			slog.String("error", err.Error()))
	}
}

// cacheKey folds the model into the key so model switches do not serve
// stale vectors from the LRU.
func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + c.inner.ModelName()))
	return hex.EncodeToString(sum[:])
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName returns the model identifier (passthrough to inner).
func (c *CachedEmbedder) ModelName() string {
	return c.inner.ModelName()
}

// Available checks if the inner embedder is ready.
func (c *CachedEmbedder) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// Close releases the inner embedder. The persistent cache is owned by
// the caller and is not closed here.
func (c *CachedEmbedder) Close() error {
	return c.inner.Close()
}
