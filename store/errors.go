package store

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for empty IDs or collection names,
	// negative offsets and refs that belong to another store.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUndefinedValue is returned when a write carries a nil field and the
	// store is not configured to ignore undefined properties.
	ErrUndefinedValue = errors.New("undefined field value")

	// ErrBatchCommitted is returned when Commit is called on a batch twice.
	ErrBatchCommitted = errors.New("batch already committed")
)

// OperationError annotates a failure with the operation and the collection
// (and document, when known) it happened on.
type OperationError struct {
	Op         string
	Collection string
	ID         string
	Err        error
}

func (e *OperationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Collection, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func opError(op, collection, id string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Op: op, Collection: collection, ID: id, Err: err}
}
