package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tastelab/cookrag/internal/store"
)

// newIndexCmd creates the index command. Indexes are in-memory and
// rebuilt per run, so "indexing" here means warming the embedding cache
// for the whole corpus and reporting what was found.
func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed the recipe corpus and warm the embedding cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			p, err := buildPipeline(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer p.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Recipes: %d\n", p.docs.ParentCount())
			fmt.Fprintf(out, "Chunks:  %d\n", p.docs.ChunkCount())

			fmt.Fprintln(out, "By category:")
			for _, line := range categorySummary(p.docs.Parents()) {
				fmt.Fprintf(out, "  %s\n", line)
			}
			return nil
		},
	}
	return cmd
}

// categorySummary counts recipes per category and renders one line per
// category in sorted order, so repeated runs print identically.
func categorySummary(parents []*store.ParentDocument) []string {
	byCategory := make(map[string]int)
	for _, parent := range parents {
		byCategory[parent.Metadata[store.MetaCategory]]++
	}

	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	lines := make([]string, 0, len(categories))
	for _, category := range categories {
		lines = append(lines, fmt.Sprintf("%s: %d", category, byCategory[category]))
	}
	return lines
}
