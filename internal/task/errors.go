package task

import "errors"

var (
	// ErrEmptyInput signals a submission with no spans. It is a no-op
	// signal, not a failure: the caller has nothing to verify.
	ErrEmptyInput = errors.New("no citation spans submitted")

	// ErrNotFound signals an unknown or already-evicted task ID
	ErrNotFound = errors.New("task not found")

	// ErrRegistryClosed signals a submission after the registry shut down
	ErrRegistryClosed = errors.New("task registry closed")
)
