package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/shared"
	"github.com/google/uuid"
)

// Record is the locally persisted form of any entity: the domain payload as
// JSON plus the universal sync fields.
type Record struct {
	// ID is a globally unique identifier assigned client-side at creation
	// time, never by the server, so creation works fully offline.
	ID string `json:"id"`

	// AccountID is the owning tenant. Every query scopes by it.
	AccountID string `json:"account_id"`

	// EntityType tells which payload struct Payload decodes into.
	EntityType EntityType `json:"entity_type"`

	// IsSynced is true iff the backend's copy matches this record's
	// last-known state.
	IsSynced bool `json:"is_synced"`

	// LocallyDeleted is the tombstone flag. A tombstoned record is hidden
	// from all reads but kept until the remote delete is confirmed.
	LocallyDeleted bool `json:"locally_deleted"`

	// UpdatedAt is refreshed on every local mutation and is the
	// last-writer-wins signal during reconciliation.
	UpdatedAt time.Time `json:"updated_at"`

	// Payload is the JSON-encoded domain payload.
	Payload json.RawMessage `json:"payload"`
}

// NewRecord builds an unsynced record from a payload. When id is empty a
// UUID is generated.
func NewRecord(id, accountID string, p Payload, now time.Time) (*Record, error) {
	if accountID == "" {
		return nil, fmt.Errorf("empty account id: %w", shared.ErrValidation)
	}
	if id == "" {
		id = uuid.NewString()
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", p.EntityType(), err)
	}
	return &Record{
		ID:         id,
		AccountID:  accountID,
		EntityType: p.EntityType(),
		UpdatedAt:  now.UTC(),
		Payload:    b,
	}, nil
}

// DecodePayload decodes a record's payload into its typed form. A record of
// the wrong entity type or with undecodable JSON yields shared.ErrCorrupt.
func DecodePayload[T Payload](r *Record) (T, error) {
	var v T
	if r.EntityType != v.EntityType() {
		return v, fmt.Errorf("record %s has type %s, want %s: %w",
			r.ID, r.EntityType, v.EntityType(), shared.ErrCorrupt)
	}
	if err := json.Unmarshal(r.Payload, &v); err != nil {
		return v, fmt.Errorf("record %s payload: %v: %w", r.ID, err, shared.ErrCorrupt)
	}
	return v, nil
}

// EncodePayload replaces the record's payload with the JSON form of p.
func (r *Record) EncodePayload(p Payload) error {
	if r.EntityType != p.EntityType() {
		return fmt.Errorf("payload type %s does not match record type %s: %w",
			p.EntityType(), r.EntityType, shared.ErrValidation)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", p.EntityType(), err)
	}
	r.Payload = b
	return nil
}

// Snapshot returns an independent copy of the record, queued alongside a
// pending change so later edits cannot mutate what is in flight.
func (r *Record) Snapshot() *Record {
	cp := *r
	cp.Payload = append(json.RawMessage(nil), r.Payload...)
	return &cp
}
