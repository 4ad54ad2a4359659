package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/tastelab/cookrag/internal/corpus"
	"github.com/tastelab/cookrag/internal/embed"
	"github.com/tastelab/cookrag/internal/generate"
	"github.com/tastelab/cookrag/internal/search"
	"github.com/tastelab/cookrag/internal/store"
)

// scriptedModel plays back one canned response per call, recording the
// last user prompt. The final response is also streamed so the answer
// path exercises its token channel.
type scriptedModel struct {
	responses []string
	lastUser  string
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, msg := range messages {
		if msg.Role == llms.ChatMessageTypeHuman {
			for _, part := range msg.Parts {
				if text, ok := part.(llms.TextContent); ok {
					m.lastUser = text.Text
				}
			}
		}
	}

	response := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}

	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	if opts.StreamingFunc != nil {
		if err := opts.StreamingFunc(ctx, []byte(response)); err != nil {
			return nil, err
		}
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: response}},
	}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return m.responses[0], nil
}

const braisedPorkRecipe = `# 红烧肉

## 用料

五花肉 500g
冰糖 20g

## 步骤

五花肉切块焯水,加冰糖酱油慢炖一小时。`

// testPipeline builds a real in-memory pipeline over a single recipe
// split into multiple chunks, with the static embedder and no reranker.
func testPipeline(t *testing.T) *pipeline {
	t.Helper()

	parent := &store.ParentDocument{
		ID:      store.ParentID("meat_dish/红烧肉.md"),
		Content: braisedPorkRecipe,
		Metadata: map[string]string{
			store.MetaDishName: "红烧肉",
			store.MetaCategory: "荤菜",
		},
	}
	chunks := corpus.NewChunker().Split(parent)
	require.Greater(t, len(chunks), 1)

	docs := store.NewDocumentStore([]*store.ParentDocument{parent}, chunks)
	embedder := embed.NewStaticEmbedder()

	vector, lexical, err := buildIndexes(context.Background(), embedder, docs, false)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = vector.Close()
		_ = lexical.Close()
	})

	engine, err := search.NewEngine(vector, lexical, embedder, nil, search.DefaultEngineConfig())
	require.NoError(t, err)

	return &pipeline{docs: docs, engine: engine}
}

func TestAnswerOnce_AnswersOverWholeRecipes(t *testing.T) {
	p := testPipeline(t)
	model := &scriptedModel{responses: []string{
		"general",    // route
		"{}",         // filter extraction
		"红烧肉 做法", // rewrite
		"慢炖一小时即可。",
	}}
	gen := generate.NewServiceWithModel(model, 0)

	var out bytes.Buffer
	err := answerOnce(context.Background(), gen, p, &out, "红烧肉怎么做", 1)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "慢炖一小时即可。")
	// Even with a single retrieved chunk, the prompt carries the whole
	// recipe: ingredients and steps both.
	assert.Contains(t, model.lastUser, "## 用料")
	assert.Contains(t, model.lastUser, "## 步骤")
}

func TestAnswerOnce_NoResultsPrintsNotice(t *testing.T) {
	p := testPipeline(t)
	model := &scriptedModel{responses: []string{"general", "{}", "", ""}}
	gen := generate.NewServiceWithModel(model, 0)

	var out bytes.Buffer
	err := answerOnce(context.Background(), gen, p, &out, "", 1)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "没有找到相关菜谱")
}
