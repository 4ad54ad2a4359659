package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// Default HNSW parameters, tuned for corpora of a few thousand chunks.
const (
	defaultM        = 16
	defaultEfSearch = 40

	// filterOversample widens the graph search when a metadata filter is
	// applied, since filtering happens after the nearest-neighbor pass.
	filterOversample = 4
)

// HNSWVectorIndex implements VectorIndex on the pure-Go coder/hnsw graph.
type HNSWVectorIndex struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[uint64]
	dimensions int
	byKey      map[uint64]*Chunk
	nextKey    uint64
	closed     bool
}

// NewHNSWVectorIndex creates a vector index for embeddings of the given
// dimension, using cosine distance.
func NewHNSWVectorIndex(dimensions int) (*HNSWVectorIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %d", dimensions)
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = defaultM
	graph.EfSearch = defaultEfSearch
	graph.Ml = 0.25

	return &HNSWVectorIndex{
		graph:      graph,
		dimensions: dimensions,
		byKey:      make(map[uint64]*Chunk),
	}, nil
}

// Add inserts chunks with their embedding vectors.
func (s *HNSWVectorIndex) Add(ctx context.Context, chunks []*Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, v := range vectors {
		if len(v) != s.dimensions {
			return DimensionError{Expected: s.dimensions, Got: len(v)}
		}
	}

	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		key := s.nextKey
		s.nextKey++
		s.graph.Add(hnsw.MakeNode(key, vec))
		s.byKey[key] = c
	}
	return nil
}

// Search returns up to k chunks nearest to the query vector. A non-empty
// filter restricts results to matching chunks; the graph search is
// oversampled so that filtering still yields up to k hits when enough
// matching chunks exist near the query.
func (s *HNSWVectorIndex) Search(ctx context.Context, query []float32, k int, filter FilterSet) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(query) != s.dimensions {
		return nil, DimensionError{Expected: s.dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 || k <= 0 {
		return []*VectorResult{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	fetch := k
	if len(filter) > 0 {
		fetch = k * filterOversample
	}
	if fetch > s.graph.Len() {
		fetch = s.graph.Len()
	}

	results := s.collect(normalized, fetch, k, filter)

	// The oversampled window may still be too narrow when the filter is
	// selective. Retry once over the whole graph before giving up.
	if len(filter) > 0 && len(results) < k && fetch < s.graph.Len() {
		results = s.collect(normalized, s.graph.Len(), k, filter)
	}
	return results, nil
}

// collect runs one graph search and converts matching nodes to results.
func (s *HNSWVectorIndex) collect(query []float32, fetch, k int, filter FilterSet) []*VectorResult {
	nodes := s.graph.Search(query, fetch)

	results := make([]*VectorResult, 0, k)
	for _, node := range nodes {
		chunk, ok := s.byKey[node.Key]
		if !ok {
			continue
		}
		if len(filter) > 0 && !filter.Matches(chunk) {
			continue
		}

		distance := s.graph.Distance(query, node.Value)
		results = append(results, &VectorResult{
			Chunk: chunk,
			Score: float64(1.0 - distance/2.0), // cosine distance 0..2 -> similarity 0..1
		})
		if len(results) == k {
			break
		}
	}
	return results
}

// Count returns the number of indexed vectors.
func (s *HNSWVectorIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.byKey)
}

// Close releases the index.
func (s *HNSWVectorIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.byKey = nil
	return nil
}

// normalizeInPlace scales a vector to unit length for cosine distance.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

var _ VectorIndex = (*HNSWVectorIndex)(nil)
