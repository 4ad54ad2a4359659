package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tastelab/cookrag/internal/embed"
	"github.com/tastelab/cookrag/internal/store"
)

// ErrNilDependency is returned when a required engine dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// EngineConfig holds the retrieval tuning knobs.
type EngineConfig struct {
	// RecallWindow is how many candidates each recall leg (vector,
	// lexical) requests before fusion.
	RecallWindow int

	// FilteredRecallWindow is the vector recall window when a metadata
	// filter is applied. Larger, because filtering shrinks the pool.
	FilteredRecallWindow int

	// FusionLimit caps the fused candidate set handed to the reranker.
	FusionLimit int

	// ScoreThreshold is the strict lower bound on rerank scores.
	ScoreThreshold float64

	// RRFConstant is the fusion smoothing parameter k.
	RRFConstant int

	// DefaultTopK is used when a caller passes topK <= 0.
	DefaultTopK int
}

// DefaultEngineConfig returns the recommended retrieval parameters.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		RecallWindow:         15,
		FilteredRecallWindow: 30,
		FusionLimit:          20,
		ScoreThreshold:       DefaultScoreThreshold,
		RRFConstant:          DefaultRRFConstant,
		DefaultTopK:          8,
	}
}

// Engine orchestrates the retrieval pipeline: parallel vector + lexical
// recall, RRF fusion, cross-encoder reranking, and the filtered-search
// fallback policy. All dependencies are injected; the engine owns no
// global state and is safe for concurrent use on the read-only store.
type Engine struct {
	vector   store.VectorIndex
	lexical  store.LexicalIndex
	embedder embed.Embedder
	fuser    *Fuser
	reranker *Reranker
	config   EngineConfig
}

// NewEngine builds an orchestrator from its collaborators. The scorer
// may be nil, in which case every search runs in reranker-bypass mode.
func NewEngine(
	vector store.VectorIndex,
	lexical store.LexicalIndex,
	embedder embed.Embedder,
	scorer Scorer,
	config EngineConfig,
) (*Engine, error) {
	if vector == nil {
		return nil, fmt.Errorf("%w: vector index is required", ErrNilDependency)
	}
	if lexical == nil {
		return nil, fmt.Errorf("%w: lexical index is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if config.RecallWindow <= 0 {
		config.RecallWindow = 15
	}
	if config.FilteredRecallWindow <= 0 {
		config.FilteredRecallWindow = 30
	}
	if config.FusionLimit <= 0 {
		config.FusionLimit = 20
	}
	if config.DefaultTopK <= 0 {
		config.DefaultTopK = 8
	}

	return &Engine{
		vector:   vector,
		lexical:  lexical,
		embedder: embedder,
		fuser:    NewFuserWithK(config.RRFConstant),
		reranker: NewReranker(scorer),
		config:   config,
	}, nil
}

// Retrieve is the combined entry point used by the application. With a
// non-empty filter set it runs the filtered search first; an empty
// filtered result falls back to an unfiltered hybrid search over the
// same query (filters fully dropped, not relaxed). Without filters it
// goes straight to hybrid search.
func (e *Engine) Retrieve(ctx context.Context, query string, filters store.FilterSet, topK int) ([]*store.Chunk, error) {
	if len(filters) == 0 {
		return e.HybridSearch(ctx, query, topK)
	}

	chunks, err := e.FilteredSearch(ctx, query, filters, topK)
	if err != nil {
		return nil, err
	}
	if len(chunks) > 0 {
		return chunks, nil
	}

	slog.Warn("filtered search returned no results, retrying unfiltered",
		slog.Any("filters", filters),
		slog.String("query", truncate(query, 80)))
	return e.HybridSearch(ctx, query, topK)
}

// HybridSearch runs both recall legs in parallel, fuses them with RRF,
// and reranks the fused set down to topK. An unreachable index degrades
// to an empty partial result; only when both legs come back empty is the
// outcome an empty list, which is a normal terminal state, not an error.
func (e *Engine) HybridSearch(ctx context.Context, query string, topK int) ([]*store.Chunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*store.Chunk{}, nil
	}
	if topK <= 0 {
		topK = e.config.DefaultTopK
	}

	start := time.Now()
	vecChunks, lexChunks, err := e.parallelRecall(ctx, query, e.config.RecallWindow)
	if err != nil {
		return nil, err
	}

	candidates := e.fuser.Fuse(vecChunks, lexChunks, e.config.FusionLimit)
	slog.Debug("recall complete",
		slog.Int("vector", len(vecChunks)),
		slog.Int("lexical", len(lexChunks)),
		slog.Int("fused", len(candidates)),
		slog.Duration("elapsed", time.Since(start)))

	if len(candidates) == 0 {
		return []*store.Chunk{}, nil
	}

	reranked, degraded, err := e.reranker.Rerank(ctx, query, candidates, e.config.ScoreThreshold, topK)
	if err != nil {
		return nil, err
	}
	if degraded {
		slog.Warn("hybrid search served in degraded mode (no reranking)")
	}
	return candidateChunks(reranked), nil
}

// FilteredSearch queries the vector index with the filter pre-applied
// and a widened recall window, then reranks. This operation never falls
// back by itself; Retrieve owns the fallback policy.
func (e *Engine) FilteredSearch(ctx context.Context, query string, filters store.FilterSet, topK int) ([]*store.Chunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*store.Chunk{}, nil
	}
	if topK <= 0 {
		topK = e.config.DefaultTopK
	}
	if !filters.Recognized() {
		// Unknown filter fields match nothing by construction; report
		// the empty set so the caller triggers the fallback.
		slog.Warn("unrecognized filter field, reporting empty result",
			slog.Any("filters", filters))
		return []*store.Chunk{}, nil
	}

	slog.Info("filtered search", slog.Any("filters", filters))

	candidates, err := e.vectorRecall(ctx, query, e.config.FilteredRecallWindow, filters)
	if err != nil {
		slog.Warn("vector recall failed in filtered search",
			slog.String("error", err.Error()))
		return []*store.Chunk{}, nil
	}
	if len(candidates) == 0 {
		return []*store.Chunk{}, nil
	}

	reranked, degraded, err := e.reranker.Rerank(ctx, query, candidates, e.config.ScoreThreshold, topK)
	if err != nil {
		return nil, err
	}
	if degraded {
		slog.Warn("filtered search served in degraded mode (no reranking)")
	}
	return candidateChunks(reranked), nil
}

// parallelRecall issues the vector and lexical searches concurrently.
// Each leg fails soft to an empty result; both legs complete (or fail)
// before fusion starts. Only context cancellation aborts the query.
func (e *Engine) parallelRecall(ctx context.Context, query string, k int) (vec, lex []*store.Chunk, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		chunks, recallErr := e.vectorRecall(gctx, query, k, nil)
		if recallErr != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			slog.Warn("vector recall failed, continuing without it",
				slog.String("error", recallErr.Error()))
			return nil
		}
		vec = chunks
		return nil
	})

	g.Go(func() error {
		results, recallErr := e.lexical.Search(gctx, query, k)
		if recallErr != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			slog.Warn("lexical recall failed, continuing without it",
				slog.String("error", recallErr.Error()))
			return nil
		}
		lex = make([]*store.Chunk, len(results))
		for i, r := range results {
			lex[i] = r.Chunk
		}
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, waitErr
	}
	return vec, lex, nil
}

// vectorRecall embeds the query and searches the vector index.
func (e *Engine) vectorRecall(ctx context.Context, query string, k int, filters store.FilterSet) ([]*store.Chunk, error) {
	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := e.vector.Search(ctx, embedding, k, filters)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	chunks := make([]*store.Chunk, len(results))
	for i, r := range results {
		chunks[i] = r.Chunk
	}
	return chunks, nil
}

// candidateChunks strips rerank scores off for the public result.
func candidateChunks(candidates []Candidate) []*store.Chunk {
	chunks := make([]*store.Chunk, len(candidates))
	for i, c := range candidates {
		chunks[i] = c.Chunk
	}
	return chunks
}

// truncate shortens a string for logging without splitting a rune.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
