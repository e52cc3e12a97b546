package model

import "time"

// Document is the versioned text document persisted as a JSON blob.
// Version starts at 1 and increases by exactly 1 per successful mutation.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LockRecord is the persisted lock for one document id. Timeout is in
// seconds; a record older than its timeout is abandoned and may be stolen.
type LockRecord struct {
	LockID    string    `json:"lock_id"`
	Timestamp time.Time `json:"timestamp"`
	Timeout   int64     `json:"timeout"`
}

// Expired reports whether the record is past its timeout as of now.
func (r LockRecord) Expired(now time.Time) bool {
	return now.Sub(r.Timestamp) > time.Duration(r.Timeout)*time.Second
}

// DocumentSummary is the per-document success entry of a redline batch.
type DocumentSummary struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}

// SkippedDocument records a document a redline batch could not process.
// Reason is one of "not_found", "lock_unavailable", "storage_error".
type SkippedDocument struct {
	Document string `json:"document"`
	Reason   string `json:"reason"`
}
