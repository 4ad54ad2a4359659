package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
)

// recipeAnalyzerName is the custom analyzer registered for recipe text.
// Recipes mix Chinese prose with latin ingredient names, so the analyzer
// combines unicode tokenization, lowercasing, and CJK bigrams. Unigrams
// are emitted alongside the bigrams so single-character queries like
// "蛋" or "汤" still match.
const recipeAnalyzerName = "recipe_analyzer"

// recipeBigramName is the CJK bigram filter configured to keep unigrams.
const recipeBigramName = "recipe_cjk_bigram"

// BleveLexicalIndex wraps Bleve v2 for BM25-style keyword search.
type BleveLexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	byID   map[string]*Chunk
	closed bool
}

// bleveDocument is the shape indexed per chunk.
type bleveDocument struct {
	Content string `json:"content"`
}

// NewBleveLexicalIndex creates an in-memory lexical index. Chunk IDs are
// minted per process, so the index is rebuilt from the document store at
// startup rather than persisted.
func NewBleveLexicalIndex() (*BleveLexicalIndex, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}

	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, fmt.Errorf("create lexical index: %w", err)
	}

	return &BleveLexicalIndex{
		index: idx,
		byID:  make(map[string]*Chunk),
	}, nil
}

// createIndexMapping builds the Bleve mapping with the recipe analyzer.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomTokenFilter(recipeBigramName, map[string]interface{}{
		"type":           cjk.BigramName,
		"output_unigram": true,
	})
	if err != nil {
		return nil, fmt.Errorf("add bigram filter: %w", err)
	}

	err = indexMapping.AddCustomAnalyzer(recipeAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			recipeBigramName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = recipeAnalyzerName
	return indexMapping, nil
}

// Index adds chunks to the index in a single batch.
func (b *BleveLexicalIndex) Index(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := b.index.NewBatch()
	for _, c := range chunks {
		if err := batch.Index(c.ID, bleveDocument{Content: c.Content}); err != nil {
			return fmt.Errorf("index chunk %s: %w", c.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}

	for _, c := range chunks {
		b.byID[c.ID] = c
	}
	return nil
}

// Search returns up to k chunks matching the query, scored by BM25.
func (b *BleveLexicalIndex) Search(ctx context.Context, queryStr string, k int) ([]*LexicalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*LexicalResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("content")

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = k

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	results := make([]*LexicalResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		chunk, ok := b.byID[hit.ID]
		if !ok {
			continue
		}
		results = append(results, &LexicalResult{Chunk: chunk, Score: hit.Score})
	}
	return results, nil
}

// DocCount returns the number of indexed chunks.
func (b *BleveLexicalIndex) DocCount() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, fmt.Errorf("lexical index is closed")
	}
	n, err := b.index.DocCount()
	return int(n), err
}

// Close releases the underlying Bleve index.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

var _ LexicalIndex = (*BleveLexicalIndex)(nil)
