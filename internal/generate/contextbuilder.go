package generate

import (
	"fmt"
	"strings"

	"github.com/tastelab/cookrag/internal/store"
)

// BuildContext renders aggregated parent recipes into the prompt
// context. Each recipe is prefixed with its dish name and category so
// the model can attribute what it quotes. Recipes are added in rank
// order until the character cap is hit; a recipe that would overflow is
// truncated if it is the first one, otherwise dropped along with
// everything after it.
func (s *Service) BuildContext(docs []*store.ParentDocument) string {
	var builder strings.Builder
	written := 0
	for i, d := range docs {
		block := formatDocument(i+1, d)
		blockRunes := len([]rune(block))
		if written+blockRunes > s.maxContextChars {
			if written == 0 {
				runes := []rune(block)
				builder.WriteString(string(runes[:s.maxContextChars]))
			}
			break
		}
		builder.WriteString(block)
		written += blockRunes
	}
	return builder.String()
}

func formatDocument(n int, d *store.ParentDocument) string {
	dish := d.Metadata[store.MetaDishName]
	category := d.Metadata[store.MetaCategory]

	var b strings.Builder
	fmt.Fprintf(&b, "[菜谱 %d]", n)
	if dish != "" {
		fmt.Fprintf(&b, " 菜名: %s", dish)
	}
	if category != "" {
		fmt.Fprintf(&b, " 分类: %s", category)
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(d.Content))
	b.WriteString("\n\n")
	return b.String()
}

// DishNames extracts the unique dish names from parent recipes, in rank
// order. The list route answers from these instead of full recipe text.
func DishNames(docs []*store.ParentDocument) []string {
	seen := make(map[string]bool)
	var names []string
	for _, d := range docs {
		name := d.Metadata[store.MetaDishName]
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
