package models

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord_AssignsIDAndFields(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	med := Medication{Name: "Lisinopril", Dosage: "10", Unit: "mg", Active: true}

	rec, err := NewRecord("", "acc1", med, now)
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "acc1", rec.AccountID)
	assert.Equal(t, EntityTypeMedication, rec.EntityType)
	assert.False(t, rec.IsSynced)
	assert.False(t, rec.LocallyDeleted)
	assert.Equal(t, now, rec.UpdatedAt)
}

func TestNewRecord_KeepsProvidedID(t *testing.T) {
	rec, err := NewRecord("id-1", "acc1", Note{Title: "t", Body: "b"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "id-1", rec.ID)
}

func TestNewRecord_EmptyAccount(t *testing.T) {
	_, err := NewRecord("", "", Note{}, time.Now())
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestDecodePayload_RoundTrip(t *testing.T) {
	orig := Medication{
		Name:     "Metformin",
		Dosage:   "500",
		Unit:     "mg",
		Schedule: []string{"08:00", "20:00"},
		Refills:  2,
		Active:   true,
	}

	rec, err := NewRecord("", "acc1", orig, time.Now())
	require.NoError(t, err)

	// decode, re-encode, decode again: the typed value must be stable
	first, err := DecodePayload[Medication](rec)
	require.NoError(t, err)
	require.NoError(t, rec.EncodePayload(first))
	second, err := DecodePayload[Medication](rec)
	require.NoError(t, err)

	assert.Equal(t, orig, first)
	assert.Equal(t, first, second)
}

func TestDecodePayload_WrongType(t *testing.T) {
	rec, err := NewRecord("", "acc1", Contact{Name: "Dr. Reyes"}, time.Now())
	require.NoError(t, err)

	_, err = DecodePayload[Medication](rec)
	assert.ErrorIs(t, err, shared.ErrCorrupt)
}

func TestDecodePayload_MalformedJSON(t *testing.T) {
	rec, err := NewRecord("", "acc1", Note{Title: "x"}, time.Now())
	require.NoError(t, err)
	rec.Payload = []byte(`{"title":`)

	_, err = DecodePayload[Note](rec)
	assert.ErrorIs(t, err, shared.ErrCorrupt)
}

func TestEncodePayload_TypeMismatch(t *testing.T) {
	rec, err := NewRecord("", "acc1", Note{Title: "x"}, time.Now())
	require.NoError(t, err)

	err = rec.EncodePayload(Contact{Name: "y"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestSnapshot_IsIndependent(t *testing.T) {
	rec, err := NewRecord("", "acc1", Note{Title: "before"}, time.Now())
	require.NoError(t, err)

	snap := rec.Snapshot()
	require.NoError(t, rec.EncodePayload(Note{Title: "after"}))

	got, err := DecodePayload[Note](snap)
	require.NoError(t, err)
	assert.Equal(t, "before", got.Title)
}

func TestEntityType_Valid(t *testing.T) {
	for _, et := range AllEntityTypes() {
		assert.True(t, et.Valid(), string(et))
	}
	assert.False(t, EntityType("garbage").Valid())
}

func TestPendingChange_Dead(t *testing.T) {
	c := &PendingChange{RetryCount: MaxRetries - 1}
	assert.False(t, c.Dead())
	c.RetryCount = MaxRetries
	assert.True(t, c.Dead())
}
