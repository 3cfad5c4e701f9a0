package casestore

import "errors"

var (
	// ErrCaseNotFound is returned when no case exists for the given ID.
	ErrCaseNotFound = errors.New("case not found")

	// ErrSnapshotNotFound is returned when no snapshot exists for the
	// given (case_id, version).
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrOptimisticLock is returned when an update's expected version no
	// longer matches the stored row. Callers retry from a fresh read.
	ErrOptimisticLock = errors.New("optimistic lock failed: case version changed")
)
