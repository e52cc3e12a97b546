// Package lock implements per-document mutual exclusion on top of the
// object store's atomic create-if-absent primitive. A lock is a JSON record
// at locks/<id>.lock; whoever's lock_id matches the stored record owns it.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tomoki/redline/internal/logger"
	"github.com/tomoki/redline/internal/model"
	"github.com/tomoki/redline/internal/store"
)

const DefaultTimeout = 5 * time.Minute

// KeyPrefix is the object-store prefix under which lock records live.
const KeyPrefix = "locks/"

// Key returns the object-store key of a document's lock record.
func Key(docID string) string {
	return KeyPrefix + docID + ".lock"
}

// Handle owns one acquisition attempt on one document. A fresh lock id is
// drawn per handle, so two handles for the same document never mistake each
// other's record for their own.
type Handle struct {
	store   store.ObjectStore
	docID   string
	timeout time.Duration
	lockID  string
	held    bool
}

// NewHandle creates an unheld handle for docID.
func NewHandle(st store.ObjectStore, docID string, timeout time.Duration) *Handle {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Handle{
		store:   st,
		docID:   docID,
		timeout: timeout,
		lockID:  uuid.NewString(),
	}
}

// DocumentID returns the id this handle locks.
func (h *Handle) DocumentID() string { return h.docID }

// Held reports whether this handle currently believes it holds the lock.
func (h *Handle) Held() bool { return h.held }

// Acquire attempts to take the lock. It returns false, never an error:
// a live holder, a transient store failure, or a failed steal all read as
// "not acquired" to the caller.
//
// An existing record that is past its timeout, or that cannot be read or
// parsed, is treated as abandoned and stolen with an unconditional overwrite.
func (h *Handle) Acquire(ctx context.Context) bool {
	payload, err := h.recordPayload()
	if err != nil {
		logger.Sugar.Errorw("marshal lock record", "document", h.docID, "error", err)
		return false
	}

	err = h.store.ConditionalCreate(ctx, Key(h.docID), payload)
	if err == nil {
		h.held = true
		return true
	}
	if !errors.Is(err, store.ErrAlreadyExists) {
		logger.Sugar.Warnw("acquire lock", "document", h.docID, "error", err)
		return false
	}

	existing, err := h.store.Read(ctx, Key(h.docID))
	if err != nil {
		// Record vanished or is unreadable; assume it is invalid.
		return h.steal(ctx)
	}
	var current model.LockRecord
	if err := json.Unmarshal(existing, &current); err != nil {
		return h.steal(ctx)
	}
	if current.Expired(time.Now().UTC()) {
		return h.steal(ctx)
	}
	return false
}

// steal overwrites an abandoned record with a fresh one. Two contenders can
// both observe the same expired record and both steal; last writer wins.
func (h *Handle) steal(ctx context.Context) bool {
	payload, err := h.recordPayload()
	if err != nil {
		logger.Sugar.Errorw("marshal lock record", "document", h.docID, "error", err)
		return false
	}
	if err := h.store.Overwrite(ctx, Key(h.docID), payload); err != nil {
		logger.Sugar.Warnw("steal lock", "document", h.docID, "error", err)
		return false
	}
	h.held = true
	return true
}

// Release deletes the lock record if it is still ours. It always clears the
// local held state; every I/O failure is logged and swallowed.
func (h *Handle) Release(ctx context.Context) {
	if !h.held {
		return
	}
	h.held = false

	existing, err := h.store.Read(ctx, Key(h.docID))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Sugar.Warnw("release lock", "document", h.docID, "error", err)
		}
		return
	}
	var current model.LockRecord
	if err := json.Unmarshal(existing, &current); err != nil {
		logger.Sugar.Warnw("release lock", "document", h.docID, "error", err)
		return
	}
	if current.LockID != h.lockID {
		// Someone stole the lock after our timeout; their record, their delete.
		return
	}
	if err := h.store.Delete(ctx, Key(h.docID)); err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Sugar.Warnw("release lock", "document", h.docID, "error", err)
	}
}

func (h *Handle) recordPayload() ([]byte, error) {
	return json.Marshal(model.LockRecord{
		LockID:    h.lockID,
		Timestamp: time.Now().UTC(),
		Timeout:   int64(h.timeout / time.Second),
	})
}
