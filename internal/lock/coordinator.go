package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tomoki/redline/internal/store"
)

// ErrLockUnavailable means a live, unexpired holder blocked the request.
// It is distinct from not-found: the document may well exist.
var ErrLockUnavailable = errors.New("lock unavailable")

// Coordinator hands out scoped single- and multi-document locks. Each call
// owns its handles; there is no process-wide registry of held ids.
type Coordinator struct {
	store   store.ObjectStore
	timeout time.Duration
}

// NewCoordinator creates a Coordinator. timeout <= 0 means DefaultTimeout.
func NewCoordinator(st store.ObjectStore, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{store: st, timeout: timeout}
}

// WithDocument runs fn while holding docID's lock. Acquire failure fails the
// whole call with ErrLockUnavailable; the lock is released on every exit
// path, including a panic inside fn.
func (c *Coordinator) WithDocument(ctx context.Context, docID string, fn func(ctx context.Context) error) error {
	h := NewHandle(c.store, docID, c.timeout)
	if !h.Acquire(ctx) {
		return fmt.Errorf("document %s: %w", docID, ErrLockUnavailable)
	}
	defer h.Release(ctx)

	return fn(ctx)
}

// WithDocuments runs fn while holding every lock in docIDs. Ids are first
// sorted into one canonical order so any two overlapping multi-document
// operations request locks in the same relative order; that rules out
// circular wait. Acquisition is sequential; the first failure releases
// everything already held and fails the call naming the blocking id.
func (c *Coordinator) WithDocuments(ctx context.Context, docIDs []string, fn func(ctx context.Context) error) error {
	ordered := append([]string(nil), docIDs...)
	sort.Strings(ordered)

	var handles []*Handle
	defer func() {
		for i := len(handles) - 1; i >= 0; i-- {
			handles[i].Release(ctx)
		}
	}()

	for _, id := range ordered {
		h := NewHandle(c.store, id, c.timeout)
		if !h.Acquire(ctx) {
			return fmt.Errorf("document %s: %w", id, ErrLockUnavailable)
		}
		handles = append(handles, h)
	}

	return fn(ctx)
}
