package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/tastelab/cookrag/internal/store"
)

const answerSystemPrompt = `你是一位经验丰富的家常菜厨师助手。根据提供的菜谱回答用户问题:
- 只依据菜谱中的内容回答,菜谱中没有的信息不要编造
- 涉及做法时按步骤清晰列出,注明用料和用量
- 菜谱不足以回答时,坦率说明知识库中没有相关内容
用中文回答。`

const listSystemPrompt = `你是菜谱推荐助手。根据提供的菜名列表回答用户想做什么菜的问题:
- 只推荐列表中出现的菜,不要编造菜名
- 按分类组织,简短介绍
用中文回答。`

// Answer streams a generated answer for the query over the aggregated
// parent recipes, best-matching first. The list route answers from dish
// names only; the other routes answer from full recipe context. Tokens
// arrive on the returned channel, which closes when generation ends; a
// generation error closes the channel and is delivered through errOut.
func (s *Service) Answer(ctx context.Context, query string, route Route, docs []*store.ParentDocument) (<-chan string, <-chan error) {
	tokens := make(chan string, 16)
	errOut := make(chan error, 1)

	var system, user string
	switch route {
	case RouteList:
		names := DishNames(docs)
		if len(names) == 0 {
			system = answerSystemPrompt
			user = fmt.Sprintf("问题: %s\n\n知识库中没有找到相关菜谱。", query)
		} else {
			system = listSystemPrompt
			user = fmt.Sprintf("可选菜名:\n%s\n\n问题: %s", strings.Join(names, "\n"), query)
		}
	default:
		system = answerSystemPrompt
		user = fmt.Sprintf("参考菜谱:\n%s\n问题: %s", s.BuildContext(docs), query)
	}

	go func() {
		defer close(tokens)
		defer close(errOut)

		_, err := s.generate(ctx, system, user,
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				select {
				case tokens <- string(chunk):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}))
		if err != nil {
			errOut <- err
		}
	}()

	return tokens, errOut
}
