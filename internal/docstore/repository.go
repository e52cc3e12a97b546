// Package docstore is the document repository: versioned documents as JSON
// blobs in the object store, every mutation guarded by the document's lock.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomoki/redline/internal/lock"
	"github.com/tomoki/redline/internal/logger"
	"github.com/tomoki/redline/internal/model"
	"github.com/tomoki/redline/internal/redline"
	"github.com/tomoki/redline/internal/store"
)

const docPrefix = "documents/"

func docKey(id string) string {
	return docPrefix + id + ".json"
}

// Skip reasons reported by RedlineBatch.
const (
	SkipNotFound        = "not_found"
	SkipLockUnavailable = "lock_unavailable"
	SkipStorageError    = "storage_error"
)

// RedlineRequest asks for exactly one edit on one document.
type RedlineRequest struct {
	DocumentID string       `json:"document_id"`
	Edit       redline.Edit `json:"edit"`
}

// RedlineResult lists the documents a batch updated and the ones it skipped.
type RedlineResult struct {
	Documents []model.DocumentSummary `json:"documents"`
	Skipped   []model.SkippedDocument `json:"skipped"`
}

// Repository composes the object store, the lock coordinator and the change
// engine. Unlocked reads (Get*Unlocked, GetAll, Exists, Count) may observe
// concurrently-changing state; they are not linearizable with writers.
type Repository struct {
	store store.ObjectStore
	locks *lock.Coordinator
}

// New creates a Repository.
func New(st store.ObjectStore, locks *lock.Coordinator) *Repository {
	return &Repository{store: st, locks: locks}
}

// Create assigns a fresh id, version 1 and UTC timestamps, then persists the
// document under its lock.
func (r *Repository) Create(ctx context.Context, title, text string) (*model.Document, error) {
	now := time.Now().UTC()
	doc := &model.Document{
		ID:        uuid.NewString(),
		Title:     title,
		Text:      text,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.Save(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Save persists doc under its lock.
func (r *Repository) Save(ctx context.Context, doc *model.Document) error {
	return r.locks.WithDocument(ctx, doc.ID, func(ctx context.Context) error {
		return r.SaveUnlocked(ctx, doc)
	})
}

// SaveUnlocked persists doc without locking, refreshing updated_at. Callers
// must already hold the document's lock (or be bootstrapping a fresh id).
func (r *Repository) SaveUnlocked(ctx context.Context, doc *model.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", doc.ID, err)
	}
	if err := r.store.Overwrite(ctx, docKey(doc.ID), payload); err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	return nil
}

// Get reads a document under its lock. A missing document is (nil, nil),
// not an error.
func (r *Repository) Get(ctx context.Context, id string) (*model.Document, error) {
	var doc *model.Document
	err := r.locks.WithDocument(ctx, id, func(ctx context.Context) error {
		var err error
		doc, err = r.GetUnlocked(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetUnlocked reads a document without locking. Used inside already-held
// locks and by the search indexer.
func (r *Repository) GetUnlocked(ctx context.Context, id string) (*model.Document, error) {
	payload, err := r.store.Read(ctx, docKey(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", id, err)
	}

	var doc model.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document %s: %w", id, err)
	}
	return &doc, nil
}

// GetAll reads every document without locking. Unreadable blobs are logged
// and skipped so one bad record cannot hide the rest.
func (r *Repository) GetAll(ctx context.Context) ([]model.Document, error) {
	keys, err := r.store.List(ctx, docPrefix)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	docs := make([]model.Document, 0, len(keys))
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		payload, err := r.store.Read(ctx, key)
		if err != nil {
			logger.Sugar.Warnw("read document blob", "key", key, "error", err)
			continue
		}
		var doc model.Document
		if err := json.Unmarshal(payload, &doc); err != nil {
			logger.Sugar.Warnw("unmarshal document blob", "key", key, "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Exists reports whether a document record is present. Best effort and
// unlocked; a store failure reads as absent.
func (r *Repository) Exists(ctx context.Context, id string) bool {
	_, err := r.store.Read(ctx, docKey(id))
	return err == nil
}

// Count returns the number of document records, best effort.
func (r *Repository) Count(ctx context.Context) int {
	keys, err := r.store.List(ctx, docPrefix)
	if err != nil {
		logger.Sugar.Warnw("count documents", "error", err)
		return 0
	}
	n := 0
	for _, key := range keys {
		if strings.HasSuffix(key, ".json") {
			n++
		}
	}
	return n
}

// Append concatenates suffix onto the document's text under its lock,
// bumping the version. Returns ErrNotFound if the document is absent.
func (r *Repository) Append(ctx context.Context, id, suffix string) (*model.Document, error) {
	var doc *model.Document
	err := r.locks.WithDocument(ctx, id, func(ctx context.Context) error {
		var err error
		doc, err = r.GetUnlocked(ctx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		doc.Text += suffix
		doc.Version++
		return r.SaveUnlocked(ctx, doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes the document record and its lock record under the lock.
// A missing lock record is ignored; a missing document is ErrNotFound.
func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.locks.WithDocument(ctx, id, func(ctx context.Context) error {
		if err := r.store.Delete(ctx, docKey(id)); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("document %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("delete document %s: %w", id, err)
		}
		if err := r.store.Delete(ctx, lock.Key(id)); err != nil && !errors.Is(err, store.ErrNotFound) {
			logger.Sugar.Warnw("delete lock record", "document", id, "error", err)
		}
		return nil
	})
}

// BatchSave persists several documents while holding all their locks,
// acquired in canonical order. Writes commit per document, not as a set.
func (r *Repository) BatchSave(ctx context.Context, docs []*model.Document) error {
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	return r.locks.WithDocuments(ctx, ids, func(ctx context.Context) error {
		for _, doc := range docs {
			if err := r.SaveUnlocked(ctx, doc); err != nil {
				return err
			}
		}
		return nil
	})
}

// RedlineBatch processes each request independently: pre-check existence
// unlocked, lock, re-read, apply the single edit, bump the version, persist.
// Any failure records the request as skipped with a reason and the loop
// continues; partial success is the expected outcome, never all-or-nothing.
func (r *Repository) RedlineBatch(ctx context.Context, requests []RedlineRequest) *RedlineResult {
	result := &RedlineResult{
		Documents: []model.DocumentSummary{},
		Skipped:   []model.SkippedDocument{},
	}

	for _, req := range requests {
		if !r.Exists(ctx, req.DocumentID) {
			result.Skipped = append(result.Skipped, model.SkippedDocument{
				Document: req.DocumentID,
				Reason:   SkipNotFound,
			})
			continue
		}

		err := r.locks.WithDocument(ctx, req.DocumentID, func(ctx context.Context) error {
			doc, err := r.GetUnlocked(ctx, req.DocumentID)
			if err != nil {
				return err
			}
			if doc == nil {
				// Deleted between the pre-check and the lock.
				return fmt.Errorf("document %s: %w", req.DocumentID, ErrNotFound)
			}

			doc.Text = redline.Apply(doc.Text, []redline.Edit{req.Edit})
			doc.Version++
			if err := r.SaveUnlocked(ctx, doc); err != nil {
				return err
			}

			result.Documents = append(result.Documents, model.DocumentSummary{
				ID:      doc.ID,
				Version: doc.Version,
			})
			return nil
		})
		if err != nil {
			result.Skipped = append(result.Skipped, model.SkippedDocument{
				Document: req.DocumentID,
				Reason:   skipReason(err),
			})
		}
	}
	return result
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return SkipNotFound
	case errors.Is(err, lock.ErrLockUnavailable):
		return SkipLockUnavailable
	default:
		return SkipStorageError
	}
}

// CleanupExpiredLocks deletes every lock record past its timeout, plus any
// it cannot read or parse, and returns the count removed. Not safe to run
// concurrently with an in-flight acquire on the same id: it may delete a
// fresh record between that acquire's create and first use. Run it from
// periodic maintenance only.
func (r *Repository) CleanupExpiredLocks(ctx context.Context) int {
	keys, err := r.store.List(ctx, lock.KeyPrefix)
	if err != nil {
		logger.Sugar.Warnw("list lock records", "error", err)
		return 0
	}

	now := time.Now().UTC()
	removed := 0
	for _, key := range keys {
		if !strings.HasSuffix(key, ".lock") {
			continue
		}

		stale := false
		payload, err := r.store.Read(ctx, key)
		if err != nil {
			stale = true
		} else {
			var rec model.LockRecord
			if err := json.Unmarshal(payload, &rec); err != nil {
				stale = true
			} else {
				stale = rec.Expired(now)
			}
		}
		if !stale {
			continue
		}

		if err := r.store.Delete(ctx, key); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				logger.Sugar.Warnw("delete expired lock", "key", key, "error", err)
			}
			continue
		}
		removed++
	}
	return removed
}
