// Package corpus loads a recipe knowledge base from markdown files and
// splits it into retrievable chunks. Loading assigns each document a
// path-derived stable ID and enriches its metadata with the recipe
// category, dish name, and difficulty so retrieval can filter on them.
package corpus

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tastelab/cookrag/internal/store"
)

// dirCategories maps the corpus directory layout to human-readable
// recipe categories.
var dirCategories = map[string]string{
	"meat_dish":      "荤菜",
	"vegetable_dish": "素菜",
	"soup":           "汤品",
	"aquatic":        "水产",
	"dessert":        "甜品",
	"breakfast":      "早餐",
	"staple":         "主食",
	"condiment":      "调料",
	"drink":          "饮品",
	"semi-finished":  "半成品",
}

// defaultCategory is used for files outside any recognized directory.
const defaultCategory = "其他"

// difficultyLabels maps the star-rating count found in a recipe to its
// difficulty label. Recipes rate themselves with a run of ★ characters.
var difficultyLabels = map[int]string{
	1: "非常简单",
	2: "简单",
	3: "中等",
	4: "困难",
	5: "非常困难",
}

// unknownDifficulty is used when no star rating is present.
const unknownDifficulty = "未知"

// Load walks root recursively, reads every markdown file, and returns
// one parent document per file. Document IDs derive from the path
// relative to root, so they survive rebuilds as long as files do not
// move. Unreadable files are logged and skipped.
func Load(root string) ([]*store.ParentDocument, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat corpus root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus root %s is not a directory", root)
	}

	var docs []*store.ParentDocument
	skipped := 0

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			slog.Warn("skipping unreadable recipe file",
				slog.String("path", path),
				slog.String("error", readErr.Error()))
			skipped++
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		docs = append(docs, &store.ParentDocument{
			ID:      store.ParentID(rel),
			Content: string(content),
			Metadata: map[string]string{
				store.MetaSourcePath: rel,
				store.MetaCategory:   categoryFor(rel),
				store.MetaDishName:   dishName(rel),
				store.MetaDifficulty: difficultyFor(string(content)),
			},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk corpus: %w", err)
	}

	slog.Info("corpus loaded",
		slog.String("root", root),
		slog.Int("documents", len(docs)),
		slog.Int("skipped", skipped))
	return docs, nil
}

// categoryFor derives the recipe category from the first directory
// component of the relative path.
func categoryFor(rel string) string {
	dir, _, found := strings.Cut(rel, "/")
	if !found {
		return defaultCategory
	}
	if category, ok := dirCategories[dir]; ok {
		return category
	}
	return defaultCategory
}

// dishName is the file name without its extension.
func dishName(rel string) string {
	base := filepath.Base(rel)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// difficultyFor scans the recipe body for its star rating, taking the
// longest run of ★ characters found.
func difficultyFor(content string) string {
	longest, run := 0, 0
	for _, r := range content {
		if r == '★' {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	if label, ok := difficultyLabels[longest]; ok {
		return label
	}
	if longest > 5 {
		return difficultyLabels[5]
	}
	return unknownDifficulty
}
