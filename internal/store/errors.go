package store

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingParent indicates that the parent folder referenced by a
	// create or save does not exist for the calling user.
	ErrMissingParent = errors.New("store: parent folder not found")
	// ErrNotFound indicates that a mutation targeted a row that does not
	// exist. Pure lookups never return it; they return nil instead.
	ErrNotFound = errors.New("store: row not found")
)

// StoreError wraps a backend or precondition failure with a stable
// operation.reason code.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

// Code returns the stable operation.reason code.
func (e *StoreError) Code() string {
	return e.code
}

func newStoreError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &StoreError{code: code, err: cause}
}
