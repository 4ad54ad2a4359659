package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/tastelab/cookrag/internal/config"
	"github.com/tastelab/cookrag/internal/corpus"
	"github.com/tastelab/cookrag/internal/embed"
	"github.com/tastelab/cookrag/internal/search"
	"github.com/tastelab/cookrag/internal/store"
)

// embedBatchSize is how many chunks go into one embedding call while
// building the vector index.
const embedBatchSize = 32

// pipeline bundles everything a command needs to serve queries.
type pipeline struct {
	cfg    *config.Config
	docs   *store.DocumentStore
	engine *search.Engine

	closers []func() error
}

// Close releases pipeline resources in reverse construction order.
func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			slog.Warn("cleanup failed", slog.String("error", err.Error()))
		}
	}
}

// buildPipeline loads the corpus, builds both indexes, and assembles the
// retrieval engine. Indexes live in memory and are rebuilt on every run;
// the sqlite embedding cache makes rebuilds cheap for unchanged recipes.
func buildPipeline(ctx context.Context, cfg *config.Config, showProgress bool) (*pipeline, error) {
	p := &pipeline{cfg: cfg}

	parents, err := corpus.Load(cfg.Corpus.DataDir)
	if err != nil {
		return nil, err
	}
	if len(parents) == 0 {
		return nil, fmt.Errorf("no recipes found under %s", cfg.Corpus.DataDir)
	}

	chunks := corpus.NewChunker().SplitAll(parents)
	p.docs = store.NewDocumentStore(parents, chunks)

	embedder, err := buildEmbedder(cfg, p)
	if err != nil {
		p.Close()
		return nil, err
	}

	vector, lexical, err := buildIndexes(ctx, embedder, p.docs, showProgress)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.closers = append(p.closers, vector.Close, lexical.Close)

	scorer := buildScorer(ctx, cfg, p)

	engineCfg := search.EngineConfig{
		RecallWindow:         cfg.Search.RecallWindow,
		FilteredRecallWindow: cfg.Search.FilteredRecallWindow,
		FusionLimit:          cfg.Search.FusionLimit,
		ScoreThreshold:       cfg.Search.ScoreThreshold,
		RRFConstant:          cfg.Search.RRFConstant,
		DefaultTopK:          cfg.Search.TopK,
	}
	engine, err := search.NewEngine(vector, lexical, embedder, scorer, engineCfg)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.engine = engine

	slog.Info("pipeline ready",
		slog.Int("recipes", p.docs.ParentCount()),
		slog.Int("chunks", p.docs.ChunkCount()))
	return p, nil
}

// buildIndexes embeds and indexes the store's chunks. Only chunks the
// document store kept are indexed, so anything it dropped as an orphan
// can never surface in retrieval.
func buildIndexes(ctx context.Context, embedder embed.Embedder, docs *store.DocumentStore, showProgress bool) (*store.HNSWVectorIndex, *store.BleveLexicalIndex, error) {
	chunks := docs.Chunks()

	vectors, err := embedChunks(ctx, embedder, chunks, showProgress)
	if err != nil {
		return nil, nil, err
	}

	vector, err := store.NewHNSWVectorIndex(embedder.Dimensions())
	if err != nil {
		return nil, nil, err
	}
	if err := vector.Add(ctx, chunks, vectors); err != nil {
		_ = vector.Close()
		return nil, nil, err
	}

	lexical, err := store.NewBleveLexicalIndex()
	if err != nil {
		_ = vector.Close()
		return nil, nil, err
	}
	if err := lexical.Index(ctx, chunks); err != nil {
		_ = vector.Close()
		_ = lexical.Close()
		return nil, nil, err
	}

	return vector, lexical, nil
}

// buildEmbedder selects the embedding provider and wraps it with the
// two-layer cache. The sqlite layer is only used with the API provider;
// static embeddings are cheaper than the disk round trip.
func buildEmbedder(cfg *config.Config, p *pipeline) (embed.Embedder, error) {
	if strings.EqualFold(cfg.Embedding.Provider, "static") {
		return embed.NewCachedEmbedder(embed.NewStaticEmbedder(), 0, nil), nil
	}

	inner, err := embed.NewOpenAIEmbedder(embed.OpenAIConfig{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, inner.Close)

	cache, err := store.OpenEmbeddingCache(cfg.CachePath(), cfg.Embedding.Model)
	if err != nil {
		slog.Warn("embedding cache unavailable, embedding everything fresh",
			slog.String("error", err.Error()))
		return embed.NewCachedEmbedder(inner, 0, nil), nil
	}
	p.closers = append(p.closers, cache.Close)

	return embed.NewCachedEmbedder(inner, 0, cache), nil
}

// embedChunks embeds all chunk contents in batches, with an optional
// progress bar for interactive runs.
func embedChunks(ctx context.Context, embedder embed.Embedder, chunks []*store.Chunk, showProgress bool) ([][]float32, error) {
	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewOptions(len(chunks),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription("Embedding"),
			progressbar.OptionOnCompletion(func() {
				fmt.Println()
			}),
		)
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		batch, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		vectors = append(vectors, batch...)

		if bar != nil {
			_ = bar.Set(end)
		}
	}
	return vectors, nil
}

// buildScorer creates the cross-encoder client, or nil when reranking is
// disabled or the service is unreachable. A nil scorer puts the engine
// in bypass mode rather than failing startup.
func buildScorer(ctx context.Context, cfg *config.Config, p *pipeline) search.Scorer {
	if !cfg.Reranker.Enabled {
		return nil
	}

	scorerCfg := search.DefaultHTTPScorerConfig()
	if cfg.Reranker.Endpoint != "" {
		scorerCfg.Endpoint = cfg.Reranker.Endpoint
	}
	if cfg.Reranker.Model != "" {
		scorerCfg.Model = cfg.Reranker.Model
	}

	scorer, err := search.NewHTTPScorer(ctx, scorerCfg)
	if err != nil {
		slog.Warn("reranker unavailable, searches will run in degraded mode",
			slog.String("endpoint", scorerCfg.Endpoint),
			slog.String("error", err.Error()))
		return nil
	}
	p.closers = append(p.closers, scorer.Close)
	return scorer
}
