package search

import (
	"log/slog"
	"sort"

	"github.com/tastelab/cookrag/internal/store"
)

// ParentHit pairs a parent document with the number of retrieved chunks
// that belong to it.
type ParentHit struct {
	Parent *store.ParentDocument
	Hits   int
}

// AggregateParents groups retrieved chunks by their parent document and
// orders the parents by how many chunks each one contributed, most hits
// first. Ties keep the order in which the parents first appeared in the
// chunk list, so a higher-ranked chunk wins the tie for its parent.
// Chunks whose parent is missing from the store are logged and skipped.
func AggregateParents(chunks []*store.Chunk, docs *store.DocumentStore) []ParentHit {
	type tally struct {
		parent *store.ParentDocument
		hits   int
	}

	counts := make(map[string]*tally)
	order := make([]string, 0, len(chunks))

	for _, c := range chunks {
		if t, ok := counts[c.ParentID]; ok {
			t.hits++
			continue
		}
		parent, ok := docs.Parent(c.ParentID)
		if !ok {
			slog.Warn("chunk references unknown parent document",
				slog.String("chunk_id", c.ID),
				slog.String("parent_id", c.ParentID))
			continue
		}
		counts[c.ParentID] = &tally{parent: parent, hits: 1}
		order = append(order, c.ParentID)
	}

	hits := make([]ParentHit, 0, len(order))
	for _, id := range order {
		t := counts[id]
		hits = append(hits, ParentHit{Parent: t.parent, Hits: t.hits})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Hits > hits[j].Hits
	})
	return hits
}
