package storage

import "errors"

var (
	// ErrQueueLeaseConflict means a worker reported an outcome for an entry
	// it no longer holds.
	ErrQueueLeaseConflict = errors.New("queue lease conflict")

	// ErrStorageWrite wraps blob upload failures so callers can tell them
	// apart from fetch or extraction problems.
	ErrStorageWrite = errors.New("storage write failed")
)
