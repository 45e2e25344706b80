// Package shared defines sentinel errors used across CareKeeper components.
// Callers should match these values with errors.Is.
package shared

import "errors"

var (
	// ErrNotFound is returned when a record does not exist locally, or is
	// hidden behind a deletion tombstone.
	ErrNotFound = errors.New("not found")

	// ErrNetworkUnavailable marks a transient connectivity failure. Read
	// paths degrade to local-only behavior instead of surfacing it.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrRemoteRejected marks a permanent backend refusal (validation,
	// missing parent, auth). Changes failing with it are not retried.
	ErrRemoteRejected = errors.New("remote rejected change")

	// ErrCorrupt marks a locally stored record that could not be decoded.
	// The affected record is dropped and logged, never fatal.
	ErrCorrupt = errors.New("corrupt record")

	// ErrValidation marks a malformed local request (empty account id,
	// payload of the wrong entity type, and so on).
	ErrValidation = errors.New("validation error")

	// ErrNotDead is returned when resetting a queue entry that has not
	// exhausted its retries.
	ErrNotDead = errors.New("queue entry is not dead")
)
