package models

import (
	"encoding/json"
	"time"
)

// ChangeType is the kind of outbound mutation waiting in the queue.
type ChangeType string

const (
	ChangeTypeCreate ChangeType = "create"
	ChangeTypeUpdate ChangeType = "update"
	ChangeTypeDelete ChangeType = "delete"
)

// MaxRetries is the attempt cap after which a pending change goes dead:
// retained in the queue but never retried until explicitly reset.
const MaxRetries = 5

// PendingChange is one entry of the durable outbound mutation log.
type PendingChange struct {
	ID         int64
	EntityType EntityType
	EntityID   string
	AccountID  string
	ChangeType ChangeType

	// Payload is the JSON snapshot of the record at enqueue time.
	// Empty for deletes.
	Payload json.RawMessage

	CreatedAt     time.Time
	RetryCount    int
	LastError     string
	LastAttemptAt time.Time
}

// Dead reports whether the entry has exhausted its retries.
func (c *PendingChange) Dead() bool {
	return c.RetryCount >= MaxRetries
}

// EnqueueOutcome describes what coalescing did with a new change.
type EnqueueOutcome int

const (
	// OutcomeQueued means a new queue entry was appended.
	OutcomeQueued EnqueueOutcome = iota
	// OutcomeReplaced means an unconfirmed entry for the same record
	// absorbed the change in place.
	OutcomeReplaced
	// OutcomeCancelled means the change annihilated an unconfirmed create:
	// nothing remains queued and the record never reached the server.
	OutcomeCancelled
)
