// Package search is the indexing collaborator. It builds its index purely
// through the repository's unlocked read accessors and the core has no
// dependency back on it. Matching is case-insensitive substring search over
// a snapshot of all documents; results carry a context window around the
// first match.
package search

import (
	"context"
	"strings"
	"sync"

	"github.com/tomoki/redline/internal/docstore"
	"github.com/tomoki/redline/internal/model"
)

// Result is one search hit.
type Result struct {
	DocumentID string `json:"document_id"`
	Context    string `json:"context"`
	Position   int    `json:"position"`
}

// Engine holds a snapshot index of all documents. The snapshot may be stale
// with respect to concurrent writers; callers rebuild after mutations.
type Engine struct {
	repo *docstore.Repository

	mu    sync.RWMutex
	docs  []model.Document
	built bool
}

// New creates an Engine over the repository. The index is built lazily on
// first search.
func New(repo *docstore.Repository) *Engine {
	return &Engine{repo: repo}
}

// RebuildIndex re-snapshots every document via the unlocked read-all
// accessor.
func (e *Engine) RebuildIndex(ctx context.Context) error {
	docs, err := e.repo.GetAll(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.docs = docs
	e.built = true
	e.mu.Unlock()
	return nil
}

// SearchAll scans every indexed document for query. One result is returned
// per matching document, ranked in index order; offset results are skipped
// and at most limit are returned. buffer is the number of bytes of context
// kept on each side of the match.
func (e *Engine) SearchAll(ctx context.Context, query string, limit, offset, buffer int) ([]Result, error) {
	e.mu.RLock()
	built := e.built
	e.mu.RUnlock()
	if !built {
		if err := e.RebuildIndex(ctx); err != nil {
			return nil, err
		}
	}

	e.mu.RLock()
	docs := e.docs
	e.mu.RUnlock()

	queryLower := strings.ToLower(query)
	results := []Result{}
	rank := 0
	for _, doc := range docs {
		if !strings.Contains(strings.ToLower(doc.Text), queryLower) {
			continue
		}
		if rank >= offset && len(results) < limit {
			results = append(results, Result{
				DocumentID: doc.ID,
				Context:    contextAround(doc.Text, query, buffer),
				Position:   rank,
			})
		}
		rank++
	}
	return results, nil
}

// SearchDocument searches within one document only.
func (e *Engine) SearchDocument(ctx context.Context, doc *model.Document, query string, buffer int) ([]Result, error) {
	all, err := e.SearchAll(ctx, query, 100, 0, buffer)
	if err != nil {
		return nil, err
	}
	results := []Result{}
	for _, r := range all {
		if r.DocumentID == doc.ID {
			results = append(results, r)
		}
	}
	return results, nil
}

// contextAround returns up to buffer bytes either side of the first
// case-insensitive match, with "..." marking elided edges. If the query is
// somehow absent it falls back to the head of the text.
func contextAround(text, query string, buffer int) string {
	pos := strings.Index(strings.ToLower(text), strings.ToLower(query))
	if pos == -1 {
		if len(text) > 100 {
			return text[:100] + "..."
		}
		return text
	}

	start := pos - buffer
	if start < 0 {
		start = 0
	}
	end := pos + len(query) + buffer
	if end > len(text) {
		end = len(text)
	}

	out := text[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(text) {
		out = out + "..."
	}
	return out
}
