package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports an operation keyed on a path the store does not
	// hold.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate reports an insert or rename whose destination path is
	// already tracked.
	ErrDuplicate = errors.New("duplicate path")
)

// StorageError wraps a backend failure with the operation and path it hit.
// Precondition violations (ErrNotFound, ErrDuplicate) are never wrapped in
// a StorageError.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op, path string, err error) error {
	return &StorageError{Op: op, Path: path, Err: err}
}
