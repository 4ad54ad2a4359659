package corpus

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/tastelab/cookrag/internal/store"
)

// Chunking constraints.
const (
	// maxSplitLevel is the deepest heading level that starts a new
	// chunk. Deeper headings stay inside their section.
	maxSplitLevel = 2

	// MaxChunkRunes caps a single chunk. Oversized sections split on
	// paragraph boundaries.
	MaxChunkRunes = 1500
)

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)

// Chunker splits parent documents into header-scoped chunks.
type Chunker struct {
	maxRunes int
}

// NewChunker creates a chunker with the default size cap.
func NewChunker() *Chunker {
	return &Chunker{maxRunes: MaxChunkRunes}
}

// Split breaks a parent document into chunks at level 1 and 2 headings.
// Each chunk keeps its heading line in the content, carries the heading
// hierarchy that encloses it, inherits the parent's metadata, and gets a
// fresh process-local ID.
func (c *Chunker) Split(parent *store.ParentDocument) []*store.Chunk {
	sections := splitSections(parent.Content)

	chunks := make([]*store.Chunk, 0, len(sections))
	index := 0
	for _, sec := range sections {
		for _, body := range splitOversized(sec.content, c.maxRunes) {
			if strings.TrimSpace(body) == "" {
				continue
			}
			chunks = append(chunks, &store.Chunk{
				ID:         uuid.NewString(),
				ParentID:   parent.ID,
				Content:    body,
				ChunkIndex: index,
				Headers:    sec.headers,
				Metadata:   cloneMetadata(parent.Metadata),
			})
			index++
		}
	}
	return chunks
}

// SplitAll chunks every parent document in order.
func (c *Chunker) SplitAll(parents []*store.ParentDocument) []*store.Chunk {
	var chunks []*store.Chunk
	for _, p := range parents {
		chunks = append(chunks, c.Split(p)...)
	}
	return chunks
}

// section is a contiguous run of lines under one splitting heading.
type section struct {
	headers []store.Header
	content string
}

// splitSections walks the document line by line, starting a new section
// at every heading of level <= maxSplitLevel. Text before the first
// heading forms a headerless leading section. The heading stack tracks
// the enclosing hierarchy so an h2 section also records its h1.
func splitSections(content string) []section {
	var (
		sections []section
		stack    []store.Header
		current  []store.Header // hierarchy captured when the section opened
		builder  strings.Builder
		inFence  bool
		open     bool
	)

	flush := func() {
		if !open {
			return
		}
		sections = append(sections, section{headers: current, content: builder.String()})
		builder.Reset()
		open = false
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}

		match := headingPattern.FindStringSubmatch(line)
		if match != nil && !inFence {
			level := len(match[1])

			// Pop stack entries at or below this level.
			for len(stack) > 0 && stack[len(stack)-1].Level >= level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, store.Header{Level: level, Text: match[2]})

			if level <= maxSplitLevel {
				flush()
				current = make([]store.Header, len(stack))
				copy(current, stack)
				open = true
				builder.WriteString(line)
				builder.WriteString("\n")
				continue
			}
		}

		if !open {
			if strings.TrimSpace(line) == "" {
				continue
			}
			// Leading text before any heading.
			open = true
		}
		builder.WriteString(line)
		builder.WriteString("\n")
	}
	flush()
	return sections
}

// splitOversized splits content on blank-line paragraph boundaries until
// every piece fits the rune cap. A single paragraph over the cap is kept
// whole rather than cut mid-sentence.
func splitOversized(content string, maxRunes int) []string {
	if len([]rune(content)) <= maxRunes {
		return []string{content}
	}

	paragraphs := strings.Split(content, "\n\n")
	var (
		pieces  []string
		builder strings.Builder
		runes   int
	)
	for _, p := range paragraphs {
		pRunes := len([]rune(p)) + 2
		if runes > 0 && runes+pRunes > maxRunes {
			pieces = append(pieces, strings.TrimRight(builder.String(), "\n"))
			builder.Reset()
			runes = 0
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(p)
		runes += pRunes
	}
	if builder.Len() > 0 {
		pieces = append(pieces, strings.TrimRight(builder.String(), "\n"))
	}
	return pieces
}

func cloneMetadata(m map[string]string) map[string]string {
	clone := make(map[string]string, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}
