package search

import (
	"sync"
)

// Index is an in-memory document index that evaluates predicates directly.
// It is the default search backend when no external index is configured, and
// the reference implementation the OpenSearch translation must agree with.
// Safe for concurrent use.
type Index struct {
	mu   sync.RWMutex
	docs map[string]Document
	ids  []string
}

// NewIndex returns an empty in-memory index.
func NewIndex() *Index {
	return &Index{docs: make(map[string]Document)}
}

// Put inserts or replaces a document by id.
func (ix *Index) Put(doc Document) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.docs[doc.ID]; !ok {
		ix.ids = append(ix.ids, doc.ID)
	}
	ix.docs[doc.ID] = doc.Clone()
}

// Delete removes a document by id. Removing an absent id is a no-op.
func (ix *Index) Delete(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.docs[id]; !ok {
		return
	}
	delete(ix.docs, id)
	for i, existing := range ix.ids {
		if existing == id {
			ix.ids = append(ix.ids[:i], ix.ids[i+1:]...)
			break
		}
	}
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Search returns clones of every document matching the predicate, in
// insertion order, up to limit (limit <= 0 means no limit).
func (ix *Index) Search(pred Predicate, limit int) []Document {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []Document
	for _, id := range ix.ids {
		doc := ix.docs[id]
		if !pred.Matches(doc) {
			continue
		}
		out = append(out, doc.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
