// Package search implements the retrieval pipeline: Reciprocal Rank
// Fusion of the vector and lexical recall legs, cross-encoder reranking
// with threshold filtering, the filtered-search fallback policy, and
// parent document aggregation.
package search

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/tastelab/cookrag/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
// k=60 is empirically validated across domains (used by Azure AI Search,
// OpenSearch, etc.).
const DefaultRRFConstant = 60

// Fuser merges two rank-ordered candidate lists with Reciprocal Rank
// Fusion. The fusion score exists only to order and deduplicate the
// merged list; it is discarded afterwards and never surfaces as a
// relevance score.
type Fuser struct {
	K int
}

// NewFuser creates a Fuser with the default k=60.
func NewFuser() *Fuser {
	return &Fuser{K: DefaultRRFConstant}
}

// NewFuserWithK creates a Fuser with a custom k. Non-positive k falls
// back to the default.
func NewFuserWithK(k int) *Fuser {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &Fuser{K: k}
}

// fusedEntry tracks one distinct chunk across both input lists.
type fusedEntry struct {
	chunk     *store.Chunk
	score     float64
	firstList int // 0 = listA, 1 = listB
	firstRank int // rank of first appearance within that list
}

// Fuse merges listA and listB (both best-first) into a single
// deduplicated list of at most limit chunks. Each appearance at 0-based
// rank r contributes 1/(K+r+1). Ties are broken by first appearance:
// listA before listB, earlier rank first, which makes the output
// deterministic for identical inputs.
func (f *Fuser) Fuse(listA, listB []*store.Chunk, limit int) []*store.Chunk {
	if len(listA) == 0 && len(listB) == 0 {
		return []*store.Chunk{}
	}

	entries := make(map[string]*fusedEntry, len(listA)+len(listB))

	accumulate := func(list []*store.Chunk, listIdx int) {
		for rank, c := range list {
			id := dedupKey(c)
			e, ok := entries[id]
			if !ok {
				e = &fusedEntry{chunk: c, firstList: listIdx, firstRank: rank}
				entries[id] = e
			}
			e.score += 1.0 / float64(f.K+rank+1)
		}
	}
	accumulate(listA, 0)
	accumulate(listB, 1)

	merged := make([]*fusedEntry, 0, len(entries))
	for _, e := range entries {
		merged = append(merged, e)
	}
	sort.Slice(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.firstList != b.firstList {
			return a.firstList < b.firstList
		}
		return a.firstRank < b.firstRank
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}

	chunks := make([]*store.Chunk, len(merged))
	for i, e := range merged {
		chunks[i] = e.chunk
	}
	return chunks
}

// dedupKey returns the chunk ID, falling back to a content hash for a
// chunk that somehow arrives without one. The store never produces such
// chunks, but fusion must not break if one slips through.
func dedupKey(c *store.Chunk) string {
	if c.ID != "" {
		return c.ID
	}
	sum := sha256.Sum256([]byte(c.Content))
	return hex.EncodeToString(sum[:])
}
