package docstore

import (
	"errors"
)

// ErrNotFound is returned when an operation requires a document that does
// not exist. Plain reads report absence as a nil document instead.
var ErrNotFound = errors.New("document not found")
