package repository

import "errors"

var (
	// ErrNotFound is returned when a row does not exist or is not
	// visible to the requesting user
	ErrNotFound = errors.New("not found")

	// ErrAlreadyResumed is returned when a run has no pending
	// approval request, i.e. a decision was already delivered
	ErrAlreadyResumed = errors.New("approval already resumed")
)
