package generate

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/tastelab/cookrag/internal/store"
)

// Route classifies what kind of answer the user is after.
type Route string

const (
	// RouteList asks which recipes exist ("有什么荤菜?").
	RouteList Route = "list"
	// RouteDetail asks how to cook a specific dish.
	RouteDetail Route = "detail"
	// RouteGeneral is everything else, cooking Q&A included.
	RouteGeneral Route = "general"
)

const routeSystemPrompt = `你是菜谱问答系统的意图分类器。将用户问题分为三类之一:
- list: 用户想知道有哪些菜可以做(例如"有什么素菜推荐"、"能做哪些汤")
- detail: 用户想知道某道具体菜的做法、用料或步骤
- general: 其他烹饪相关问题(技巧、火候、替换食材等)
只输出一个词: list、detail 或 general。`

// Route classifies the query. Classification failures fall back to
// general so the pipeline keeps answering.
func (s *Service) Route(ctx context.Context, query string) Route {
	out, err := s.generate(ctx, routeSystemPrompt, query, llms.WithTemperature(0.0))
	if err != nil {
		slog.Warn("query routing failed, using general route",
			slog.String("error", err.Error()))
		return RouteGeneral
	}

	switch Route(strings.ToLower(strings.TrimSpace(out))) {
	case RouteList:
		return RouteList
	case RouteDetail:
		return RouteDetail
	case RouteGeneral:
		return RouteGeneral
	}
	slog.Debug("unrecognized route label", slog.String("label", out))
	return RouteGeneral
}

const rewriteSystemPrompt = `你是检索查询改写器。把用户的口语化提问改写成适合检索菜谱
知识库的简洁查询,保留菜名、食材、做法等关键词,去掉客套和无关内容。
只输出改写后的查询,不要解释。`

// Rewrite turns a conversational question into a retrieval query. On
// failure the original query is returned unchanged.
func (s *Service) Rewrite(ctx context.Context, query string) string {
	out, err := s.generate(ctx, rewriteSystemPrompt, query, llms.WithTemperature(0.0))
	if err != nil || out == "" {
		if err != nil {
			slog.Warn("query rewrite failed, using original query",
				slog.String("error", err.Error()))
		}
		return query
	}
	return out
}

const filterSystemPrompt = `你是菜谱检索的过滤条件抽取器。从用户问题中抽取结构化过滤条件,
输出 JSON 对象,只允许以下字段:
- "category": 菜品分类,可选值: 荤菜、素菜、汤品、水产、甜品、早餐、主食、调料、饮品
- "difficulty": 难度,可选值: 非常简单、简单、中等、困难、非常困难
问题中没有提到的字段不要输出。没有任何过滤条件时输出 {}。
只输出 JSON,不要解释。`

// ExtractFilters pulls structured metadata filters out of the query
// using JSON mode. Any failure, including malformed JSON, yields an
// empty filter set so retrieval proceeds unfiltered.
func (s *Service) ExtractFilters(ctx context.Context, query string) store.FilterSet {
	out, err := s.generate(ctx, filterSystemPrompt, query,
		llms.WithTemperature(0.0), llms.WithJSONMode())
	if err != nil {
		slog.Warn("filter extraction failed, searching unfiltered",
			slog.String("error", err.Error()))
		return store.FilterSet{}
	}

	var raw map[string]string
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		slog.Warn("filter extraction returned malformed JSON, searching unfiltered",
			slog.String("output", out))
		return store.FilterSet{}
	}

	filters := store.FilterSet{}
	for k, v := range raw {
		k = strings.TrimSpace(strings.ToLower(k))
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if k == store.MetaCategory || k == store.MetaDifficulty {
			filters[k] = v
		}
	}
	return filters
}
