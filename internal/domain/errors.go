package domain

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Every error produced by the core matches exactly one of these
// with errors.Is.
var (
	// ErrInvalidInput indicates a missing or malformed field. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable indicates the vector store could not be reached or
	// rejected a write.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrEmbeddingFailure indicates the embedding function returned an error.
	ErrEmbeddingFailure = errors.New("embedding failure")

	// ErrTimeout indicates an external call exceeded its time bound.
	ErrTimeout = errors.New("timeout")
)

// Error carries an error kind plus the operation, the offending field (for
// invalid input) and the underlying cause.
type Error struct {
	Kind  error
	Op    string
	Field string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// InvalidInput reports a rejected field.
func InvalidInput(field, format string, args ...any) error {
	return &Error{Kind: ErrInvalidInput, Field: field, Err: fmt.Errorf(format, args...)}
}

// StoreUnavailable classifies a backend failure. Deadline errors become
// ErrTimeout.
func StoreUnavailable(op string, err error) error {
	return Classify(ErrStoreUnavailable, op, err)
}

// EmbeddingFailure classifies an embedder failure. Deadline errors become
// ErrTimeout.
func EmbeddingFailure(op string, err error) error {
	return Classify(ErrEmbeddingFailure, op, err)
}

// Classify wraps err with kind unless it is already a domain error. A context
// deadline always maps to ErrTimeout.
func Classify(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrTimeout
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsRetryable reports whether the write path may retry after err.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrInvalidInput) {
		return false
	}
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrEmbeddingFailure) ||
		errors.Is(err, ErrTimeout)
}

// FieldOf returns the offending field of an invalid-input error, if any.
func FieldOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Field
	}
	return ""
}
