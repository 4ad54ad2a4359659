package store

import (
	"crypto/md5"
	"encoding/hex"
	"log/slog"
)

// DocumentStore holds parent documents and their chunks. It is built once
// at startup and read-only afterwards, so concurrent queries need no
// locking.
type DocumentStore struct {
	parents  []*ParentDocument
	chunks   []*Chunk
	byParent map[string]*ParentDocument
}

// NewDocumentStore builds a store from parents and chunks. Chunks whose
// ParentID does not reference a known parent are integrity violations:
// they are logged and dropped, never indexed.
func NewDocumentStore(parents []*ParentDocument, chunks []*Chunk) *DocumentStore {
	byParent := make(map[string]*ParentDocument, len(parents))
	for _, p := range parents {
		byParent[p.ID] = p
	}

	kept := make([]*Chunk, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := byParent[c.ParentID]; !ok {
			slog.Warn("orphan chunk dropped",
				slog.String("chunk_id", c.ID),
				slog.String("parent_id", c.ParentID))
			continue
		}
		kept = append(kept, c)
	}

	return &DocumentStore{
		parents:  parents,
		chunks:   kept,
		byParent: byParent,
	}
}

// Parent returns the parent document for the given ID.
func (s *DocumentStore) Parent(id string) (*ParentDocument, bool) {
	p, ok := s.byParent[id]
	return p, ok
}

// Chunks returns all chunks in load order.
func (s *DocumentStore) Chunks() []*Chunk {
	return s.chunks
}

// Parents returns all parent documents in load order.
func (s *DocumentStore) Parents() []*ParentDocument {
	return s.parents
}

// ParentCount returns the number of parent documents.
func (s *DocumentStore) ParentCount() int { return len(s.parents) }

// ChunkCount returns the number of chunks that passed integrity checks.
func (s *DocumentStore) ChunkCount() int { return len(s.chunks) }

// ParentID derives the deterministic parent document ID from a relative
// source path. Same path, same ID, on every rebuild.
func ParentID(relPath string) string {
	sum := md5.Sum([]byte(relPath))
	return hex.EncodeToString(sum[:])
}
