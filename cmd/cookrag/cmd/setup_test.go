package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastelab/cookrag/internal/embed"
	"github.com/tastelab/cookrag/internal/store"
)

func TestBuildIndexes_SkipsOrphanChunks(t *testing.T) {
	parent := &store.ParentDocument{
		ID:       "p1",
		Content:  "# 番茄蛋汤",
		Metadata: map[string]string{store.MetaDishName: "番茄蛋汤"},
	}
	chunks := []*store.Chunk{
		{ID: "c1", ParentID: "p1", Content: "番茄切块炒出汁,加水烧开。"},
		{ID: "c2", ParentID: "missing", Content: "孤儿内容不应被索引。"},
	}
	docs := store.NewDocumentStore([]*store.ParentDocument{parent}, chunks)

	vector, lexical, err := buildIndexes(context.Background(), embed.NewStaticEmbedder(), docs, false)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = vector.Close()
		_ = lexical.Close()
	})

	assert.Equal(t, 1, vector.Count())
	n, err := lexical.DocCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := lexical.Search(context.Background(), "孤儿", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCategorySummary_SortedAndCounted(t *testing.T) {
	parents := []*store.ParentDocument{
		{ID: "a", Metadata: map[string]string{store.MetaCategory: "汤品"}},
		{ID: "b", Metadata: map[string]string{store.MetaCategory: "荤菜"}},
		{ID: "c", Metadata: map[string]string{store.MetaCategory: "汤品"}},
	}

	lines := categorySummary(parents)

	assert.Equal(t, []string{"汤品: 2", "荤菜: 1"}, lines)
}
