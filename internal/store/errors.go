package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no extraction exists for a requested date.
var ErrNotFound = errors.New("store: not found")

// StorageError wraps a failure of the persistence layer itself, such as a
// constraint violation or an I/O error.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
