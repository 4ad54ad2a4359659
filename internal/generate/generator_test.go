package generate

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/tastelab/cookrag/internal/store"
)

// fakeModel returns a canned response and records the prompts it saw.
// When the caller passes a streaming func, the response is delivered
// through it in two pieces first.
type fakeModel struct {
	response string
	err      error
	calls    int
	lastUser string
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	for _, m := range messages {
		if m.Role == llms.ChatMessageTypeHuman {
			for _, part := range m.Parts {
				if text, ok := part.(llms.TextContent); ok {
					f.lastUser = text.Text
				}
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}

	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	if opts.StreamingFunc != nil {
		half := len(f.response) / 2
		for _, piece := range []string{f.response[:half], f.response[half:]} {
			if piece == "" {
				continue
			}
			if err := opts.StreamingFunc(ctx, []byte(piece)); err != nil {
				return nil, err
			}
		}
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.response}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return f.response, f.err
}

func testService(model llms.Model) *Service {
	return NewServiceWithModel(model, 0)
}

// --- Routing ---

func TestRoute_Labels(t *testing.T) {
	tests := []struct {
		response string
		want     Route
	}{
		{"list", RouteList},
		{"detail", RouteDetail},
		{"general", RouteGeneral},
		{" List \n", RouteList},
		{"DETAIL", RouteDetail},
		{"something else", RouteGeneral},
	}
	for _, tt := range tests {
		svc := testService(&fakeModel{response: tt.response})
		assert.Equal(t, tt.want, svc.Route(context.Background(), "有什么菜"), tt.response)
	}
}

func TestRoute_ErrorFallsBackToGeneral(t *testing.T) {
	svc := testService(&fakeModel{err: fmt.Errorf("api down")})

	assert.Equal(t, RouteGeneral, svc.Route(context.Background(), "问题"))
}

// --- Rewriting ---

func TestRewrite_UsesModelOutput(t *testing.T) {
	svc := testService(&fakeModel{response: "红烧肉 做法"})

	got := svc.Rewrite(context.Background(), "那个...红烧肉到底怎么做呀?")

	assert.Equal(t, "红烧肉 做法", got)
}

func TestRewrite_FailureKeepsOriginal(t *testing.T) {
	svc := testService(&fakeModel{err: fmt.Errorf("api down")})

	got := svc.Rewrite(context.Background(), "原始问题")

	assert.Equal(t, "原始问题", got)
}

func TestRewrite_EmptyOutputKeepsOriginal(t *testing.T) {
	svc := testService(&fakeModel{response: "   "})

	got := svc.Rewrite(context.Background(), "原始问题")

	assert.Equal(t, "原始问题", got)
}

// --- Filter extraction ---

func TestExtractFilters_ValidJSON(t *testing.T) {
	svc := testService(&fakeModel{response: `{"category": "荤菜", "difficulty": "简单"}`})

	filters := svc.ExtractFilters(context.Background(), "有什么简单的荤菜")

	assert.Equal(t, store.FilterSet{
		store.MetaCategory:   "荤菜",
		store.MetaDifficulty: "简单",
	}, filters)
}

func TestExtractFilters_EmptyObject(t *testing.T) {
	svc := testService(&fakeModel{response: `{}`})

	assert.Empty(t, svc.ExtractFilters(context.Background(), "怎么切洋葱不流泪"))
}

func TestExtractFilters_MalformedJSONIsEmpty(t *testing.T) {
	svc := testService(&fakeModel{response: "荤菜类的都可以"})

	assert.Empty(t, svc.ExtractFilters(context.Background(), "有什么荤菜"))
}

func TestExtractFilters_ModelErrorIsEmpty(t *testing.T) {
	svc := testService(&fakeModel{err: fmt.Errorf("api down")})

	assert.Empty(t, svc.ExtractFilters(context.Background(), "有什么荤菜"))
}

func TestExtractFilters_DropsUnknownAndEmptyFields(t *testing.T) {
	svc := testService(&fakeModel{
		response: `{"category": "素菜", "cuisine": "川菜", "difficulty": ""}`,
	})

	filters := svc.ExtractFilters(context.Background(), "query")

	assert.Equal(t, store.FilterSet{store.MetaCategory: "素菜"}, filters)
}

// --- Context building ---

func testRecipe(id, dish, category, content string) *store.ParentDocument {
	return &store.ParentDocument{
		ID:      id,
		Content: content,
		Metadata: map[string]string{
			store.MetaDishName: dish,
			store.MetaCategory: category,
		},
	}
}

func TestBuildContext_FormatsWithMetadata(t *testing.T) {
	svc := testService(&fakeModel{})
	docs := []*store.ParentDocument{
		testRecipe("p1", "红烧肉", "荤菜", "五花肉切块慢炖。"),
		testRecipe("p2", "番茄蛋汤", "汤品", "番茄炒出汁加水。"),
	}

	out := svc.BuildContext(docs)

	assert.Contains(t, out, "[菜谱 1]")
	assert.Contains(t, out, "菜名: 红烧肉")
	assert.Contains(t, out, "分类: 汤品")
	assert.Contains(t, out, "五花肉切块慢炖。")
}

func TestBuildContext_RespectsCap(t *testing.T) {
	svc := NewServiceWithModel(&fakeModel{}, 200)
	var docs []*store.ParentDocument
	for i := 0; i < 10; i++ {
		docs = append(docs, testRecipe(
			fmt.Sprintf("p%d", i), "菜", "荤菜", strings.Repeat("内容", 30)))
	}

	out := svc.BuildContext(docs)

	assert.LessOrEqual(t, len([]rune(out)), 200)
	assert.NotEmpty(t, out)
}

func TestBuildContext_FirstOversizedRecipeTruncated(t *testing.T) {
	svc := NewServiceWithModel(&fakeModel{}, 100)
	docs := []*store.ParentDocument{
		testRecipe("p1", "菜", "荤菜", strings.Repeat("长", 500)),
	}

	out := svc.BuildContext(docs)

	assert.NotEmpty(t, out)
	assert.LessOrEqual(t, len([]rune(out)), 100)
}

func TestDishNames_DedupsInOrder(t *testing.T) {
	docs := []*store.ParentDocument{
		testRecipe("p1", "红烧肉", "荤菜", ""),
		testRecipe("p2", "番茄蛋汤", "汤品", ""),
		testRecipe("p3", "红烧肉", "荤菜", ""),
		{ID: "p4", Metadata: map[string]string{}},
	}

	assert.Equal(t, []string{"红烧肉", "番茄蛋汤"}, DishNames(docs))
}

// --- Answer streaming ---

func collectAnswer(t *testing.T, tokens <-chan string, errs <-chan error) (string, error) {
	t.Helper()
	var b strings.Builder
	for token := range tokens {
		b.WriteString(token)
	}
	return b.String(), <-errs
}

func TestAnswer_StreamsTokens(t *testing.T) {
	model := &fakeModel{response: "先焯水,再慢炖一小时。"}
	svc := testService(model)
	docs := []*store.ParentDocument{
		testRecipe("p1", "红烧肉", "荤菜", "## 用料\n五花肉\n## 步骤\n焯水后慢炖"),
	}

	tokens, errs := svc.Answer(context.Background(), "红烧肉怎么做", RouteDetail, docs)
	got, err := collectAnswer(t, tokens, errs)

	require.NoError(t, err)
	assert.Equal(t, "先焯水,再慢炖一小时。", got)
	// The whole recipe went into the prompt, not a fragment of it.
	assert.Contains(t, model.lastUser, "## 用料")
	assert.Contains(t, model.lastUser, "## 步骤")
	assert.Contains(t, model.lastUser, "红烧肉怎么做")
}

func TestAnswer_ListRouteUsesDishNames(t *testing.T) {
	model := &fakeModel{response: "推荐红烧肉和番茄蛋汤。"}
	svc := testService(model)
	docs := []*store.ParentDocument{
		testRecipe("p1", "红烧肉", "荤菜", "很长的做法内容不应出现在列表提示里"),
		testRecipe("p2", "番茄蛋汤", "汤品", "另一个做法"),
	}

	tokens, errs := svc.Answer(context.Background(), "有什么菜推荐", RouteList, docs)
	_, err := collectAnswer(t, tokens, errs)

	require.NoError(t, err)
	assert.Contains(t, model.lastUser, "红烧肉")
	assert.Contains(t, model.lastUser, "番茄蛋汤")
	assert.NotContains(t, model.lastUser, "很长的做法内容不应出现在列表提示里")
}

func TestAnswer_GenerationErrorDelivered(t *testing.T) {
	svc := testService(&fakeModel{err: fmt.Errorf("api down")})

	tokens, errs := svc.Answer(context.Background(), "问题", RouteGeneral, nil)
	_, err := collectAnswer(t, tokens, errs)

	assert.Error(t, err)
}
