package store

import (
	"errors"
)

var (
	// ErrNotFound is returned when a requested object is not found.
	ErrNotFound = errors.New("object not found")

	// ErrAlreadyExists is returned by ConditionalCreate when the key is taken.
	ErrAlreadyExists = errors.New("object already exists")
)
