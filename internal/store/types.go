// Package store provides the read-only document store plus the lexical
// (Bleve) and vector (HNSW) indexes used by the retrieval pipeline.
package store

import (
	"context"
	"fmt"
)

// Metadata keys every chunk and parent document carries.
const (
	MetaCategory   = "category"
	MetaDishName   = "dish_name"
	MetaDifficulty = "difficulty"
	MetaSourcePath = "source_path"
)

// Recognized filter fields. A FilterSet entry with any other field name
// matches no chunk at all, so an unrecognized filter degrades to an
// empty result instead of an error.
var recognizedFilterFields = map[string]struct{}{
	MetaCategory:   {},
	MetaDifficulty: {},
}

// Header is one markdown heading on the path to a chunk.
type Header struct {
	Level int    // 1 for #, 2 for ##
	Text  string // heading text without the marker
}

// Chunk is a retrievable unit of a recipe, produced once by the chunker
// and immutable afterwards. ParentID references the owning ParentDocument;
// chunk IDs are unique for the lifetime of the process but not stable
// across rebuilds.
type Chunk struct {
	ID         string
	ParentID   string
	Content    string
	ChunkIndex int
	Headers    []Header
	Metadata   map[string]string
}

// ParentDocument is a full recipe file. Its ID is the MD5 hex digest of
// the relative source path, so the same file keeps the same ID across
// rebuilds and the embedding cache stays valid.
type ParentDocument struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// FilterSet holds exact-equality constraints over chunk metadata.
// An empty set matches every chunk.
type FilterSet map[string]string

// Matches reports whether the chunk satisfies every (field, value) pair.
// Unrecognized field names never match.
func (f FilterSet) Matches(c *Chunk) bool {
	for field, want := range f {
		if _, ok := recognizedFilterFields[field]; !ok {
			return false
		}
		if c.Metadata[field] != want {
			return false
		}
	}
	return true
}

// Recognized reports whether every field in the set is a known filter field.
func (f FilterSet) Recognized() bool {
	for field := range f {
		if _, ok := recognizedFilterFields[field]; !ok {
			return false
		}
	}
	return true
}

// LexicalResult is a single keyword-search hit.
type LexicalResult struct {
	Chunk *Chunk
	Score float64
}

// VectorResult is a single similarity-search hit.
type VectorResult struct {
	Chunk *Chunk
	Score float64
}

// LexicalIndex provides keyword search over chunk content.
type LexicalIndex interface {
	// Index adds chunks to the index.
	Index(ctx context.Context, chunks []*Chunk) error

	// Search returns up to k chunks matching the query, best first.
	Search(ctx context.Context, query string, k int) ([]*LexicalResult, error)

	// DocCount returns the number of indexed chunks.
	DocCount() (int, error)

	Close() error
}

// VectorIndex provides semantic nearest-neighbor search over chunk
// embeddings, optionally constrained by a metadata filter.
type VectorIndex interface {
	// Add inserts chunks with their embedding vectors.
	Add(ctx context.Context, chunks []*Chunk, vectors [][]float32) error

	// Search returns up to k chunks nearest to the query vector, best
	// first. A non-empty filter restricts results to chunks whose
	// metadata satisfies every pair.
	Search(ctx context.Context, query []float32, k int, filter FilterSet) ([]*VectorResult, error)

	// Count returns the number of indexed vectors.
	Count() int

	Close() error
}

// DimensionError indicates an embedding dimension mismatch.
type DimensionError struct {
	Expected int
	Got      int
}

func (e DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
