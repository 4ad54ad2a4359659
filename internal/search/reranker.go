package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/tastelab/cookrag/internal/store"
)

// DefaultScoreThreshold is the minimum cross-encoder score a candidate
// must exceed (strictly) to survive reranking.
const DefaultScoreThreshold = 0.0

// Scorer is a cross-encoder relevance scorer. It jointly encodes
// (query, document) pairs, which is more accurate than embedding
// similarity but far more expensive, so all pairs of a request go out in
// ONE batched call.
type Scorer interface {
	// ScoreBatch returns one relevance score per document, same length
	// and order as docs.
	ScoreBatch(ctx context.Context, query string, docs []string) ([]float64, error)

	// Available reports whether the scorer can currently serve requests.
	Available(ctx context.Context) bool

	Close() error
}

// Candidate is a chunk with its cross-encoder score attached. It lives
// only within a single search call; the score is kept for observability,
// not for further ranking decisions outside the reranker.
type Candidate struct {
	Chunk *store.Chunk
	Score float64
}

// Reranker refines a fused candidate set with a cross-encoder scorer and
// drops everything at or below the score threshold.
type Reranker struct {
	scorer Scorer
}

// NewReranker creates a reranker around the given scorer. A nil scorer
// yields a reranker that is permanently degraded (bypass mode).
func NewReranker(scorer Scorer) *Reranker {
	return &Reranker{scorer: scorer}
}

// Rerank scores candidates against the query in a single batched scorer
// call, keeps those scoring strictly above threshold, and returns up to
// topK of them ordered by score descending (ties keep candidate order).
//
// When the scorer is nil or unavailable the reranker bypasses: it
// returns the first topK candidates unscored in input order and reports
// degraded=true so the caller can act on it.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []*store.Chunk, threshold float64, topK int) (results []Candidate, degraded bool, err error) {
	if len(candidates) == 0 {
		return []Candidate{}, false, nil
	}

	if r.scorer == nil || !r.scorer.Available(ctx) {
		slog.Warn("reranker unavailable, returning fused order",
			slog.Int("candidates", len(candidates)))
		return bypass(candidates, topK), true, nil
	}

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Content
	}

	scores, err := r.scorer.ScoreBatch(ctx, query, docs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		slog.Warn("rerank scoring failed, returning fused order",
			slog.String("error", err.Error()))
		return bypass(candidates, topK), true, nil
	}
	if len(scores) != len(candidates) {
		slog.Warn("scorer returned wrong score count, returning fused order",
			slog.Int("want", len(candidates)),
			slog.Int("got", len(scores)))
		return bypass(candidates, topK), true, nil
	}

	kept := make([]Candidate, 0, len(candidates))
	for i, c := range candidates {
		if scores[i] > threshold {
			kept = append(kept, Candidate{Chunk: c, Score: scores[i]})
		}
	}

	// Stable: equal scores keep their fused candidate order.
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})

	if topK > 0 && len(kept) > topK {
		kept = kept[:topK]
	}

	for i, c := range kept {
		if i >= 3 {
			break
		}
		slog.Debug("rerank top hit",
			slog.Int("rank", i+1),
			slog.String("dish", c.Chunk.Metadata[store.MetaDishName]),
			slog.Float64("score", c.Score))
	}
	return kept, false, nil
}

// bypass returns the first topK candidates unscored, in input order.
func bypass(candidates []*store.Chunk, topK int) []Candidate {
	n := len(candidates)
	if topK > 0 && n > topK {
		n = topK
	}
	results := make([]Candidate, n)
	for i := 0; i < n; i++ {
		results[i] = Candidate{Chunk: candidates[i]}
	}
	return results
}

// NoOpScorer scores every document 1.0 and is always available. Useful
// when no cross-encoder service is configured.
type NoOpScorer struct{}

// ScoreBatch returns 1.0 for every document.
func (NoOpScorer) ScoreBatch(_ context.Context, _ string, docs []string) ([]float64, error) {
	scores := make([]float64, len(docs))
	for i := range scores {
		scores[i] = 1.0
	}
	return scores, nil
}

// Available always returns true.
func (NoOpScorer) Available(context.Context) bool { return true }

// Close is a no-op.
func (NoOpScorer) Close() error { return nil }

var _ Scorer = NoOpScorer{}

// UnavailableScorer always reports unavailable, forcing bypass mode.
// Used when reranking is explicitly disabled.
type UnavailableScorer struct{}

// ScoreBatch always fails; it should never be reached.
func (UnavailableScorer) ScoreBatch(context.Context, string, []string) ([]float64, error) {
	return nil, fmt.Errorf("scorer disabled")
}

// Available always returns false.
func (UnavailableScorer) Available(context.Context) bool { return false }

// Close is a no-op.
func (UnavailableScorer) Close() error { return nil }

var _ Scorer = UnavailableScorer{}
