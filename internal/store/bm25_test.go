package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLexicalFixture(t *testing.T) *BleveLexicalIndex {
	t.Helper()
	idx, err := NewBleveLexicalIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	chunks := []*Chunk{
		{ID: "braised-pork", ParentID: "p1", Content: "# 红烧肉\n五花肉切块,焯水后加冰糖酱油慢炖。"},
		{ID: "tomato-soup", ParentID: "p2", Content: "# 番茄蛋汤\n番茄切块炒出汁,加水烧开后淋入蛋液。"},
		{ID: "fried-rice", ParentID: "p3", Content: "# 蛋炒饭\n隔夜米饭与鸡蛋同炒,加葱花调味。"},
	}
	require.NoError(t, idx.Index(context.Background(), chunks))
	return idx
}

func TestBleveLexicalIndex_SearchChinese(t *testing.T) {
	idx := newLexicalFixture(t)

	results, err := idx.Search(context.Background(), "红烧肉", 10)

	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "braised-pork", results[0].Chunk.ID)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestBleveLexicalIndex_SearchSharedTerm(t *testing.T) {
	idx := newLexicalFixture(t)

	// 番茄 appears only in the soup recipe.
	results, err := idx.Search(context.Background(), "番茄", 10)

	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "tomato-soup", results[0].Chunk.ID)
}

func TestBleveLexicalIndex_KLimitsResults(t *testing.T) {
	idx := newLexicalFixture(t)

	// 蛋 appears in two recipes.
	results, err := idx.Search(context.Background(), "蛋", 1)

	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestBleveLexicalIndex_SingleCharacterQuery(t *testing.T) {
	idx := newLexicalFixture(t)

	// A lone CJK character must still hit; the analyzer keeps unigrams
	// next to the bigrams.
	results, err := idx.Search(context.Background(), "蛋", 10)

	require.NoError(t, err)
	require.Len(t, results, 2)
	ids := []string{results[0].Chunk.ID, results[1].Chunk.ID}
	assert.ElementsMatch(t, []string{"tomato-soup", "fried-rice"}, ids)
}

func TestBleveLexicalIndex_EmptyQuery(t *testing.T) {
	idx := newLexicalFixture(t)

	results, err := idx.Search(context.Background(), "   ", 10)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBleveLexicalIndex_DocCount(t *testing.T) {
	idx := newLexicalFixture(t)

	n, err := idx.DocCount()

	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestBleveLexicalIndex_ClosedIndexErrors(t *testing.T) {
	idx, err := NewBleveLexicalIndex()
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = idx.Search(context.Background(), "红烧肉", 5)
	assert.Error(t, err)

	err = idx.Index(context.Background(), []*Chunk{{ID: "x", Content: "y"}})
	assert.Error(t, err)

	// Double close is fine.
	assert.NoError(t, idx.Close())
}
