package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tastelab/cookrag/internal/search"
	"github.com/tastelab/cookrag/internal/store"
)

type searchResult struct {
	Dish       string `json:"dish"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
}

// newSearchCmd creates the search command. It runs retrieval only, no
// answer generation, which is useful for inspecting what the engine
// actually recalls.
func newSearchCmd() *cobra.Command {
	var (
		topK       int
		category   string
		difficulty string
		parents    bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve recipe chunks for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")

			p, err := buildPipeline(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer p.Close()

			filters := store.FilterSet{}
			if category != "" {
				filters[store.MetaCategory] = category
			}
			if difficulty != "" {
				filters[store.MetaDifficulty] = difficulty
			}

			chunks, err := p.engine.Retrieve(cmd.Context(), query, filters, topK)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				results := make([]searchResult, 0, len(chunks))
				for _, c := range chunks {
					results = append(results, searchResult{
						Dish:       c.Metadata[store.MetaDishName],
						Category:   c.Metadata[store.MetaCategory],
						Difficulty: c.Metadata[store.MetaDifficulty],
						Source:     c.Metadata[store.MetaSourcePath],
						ChunkIndex: c.ChunkIndex,
						Content:    c.Content,
					})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			if len(chunks) == 0 {
				fmt.Fprintln(out, "No results.")
				return nil
			}

			for i, c := range chunks {
				fmt.Fprintf(out, "%d. %s (%s)\n", i+1,
					c.Metadata[store.MetaDishName], c.Metadata[store.MetaCategory])
				fmt.Fprintf(out, "   %s\n", firstLine(c.Content))
			}

			if parents {
				fmt.Fprintln(out, "\nSource recipes:")
				for _, hit := range search.AggregateParents(chunks, p.docs) {
					fmt.Fprintf(out, "  %s (%d chunks)\n",
						hit.Parent.Metadata[store.MetaSourcePath], hit.Hits)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to return (default from config)")
	cmd.Flags().StringVar(&category, "category", "", "Filter by recipe category")
	cmd.Flags().StringVar(&difficulty, "difficulty", "", "Filter by difficulty")
	cmd.Flags().BoolVar(&parents, "parents", false, "Also list source recipes by hit count")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit results as JSON")

	return cmd
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len([]rune(s)) > 80 {
		s = string([]rune(s)[:80]) + "..."
	}
	return s
}
