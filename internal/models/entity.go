// Package models defines the domain entities cached locally and synced with
// the backend, together with the bookkeeping types of the sync layer.
package models

// EntityType classifies a domain record kind. Each type has its own remote
// repository and is synchronized independently of the others.
type EntityType string

const (
	EntityTypeAccount     EntityType = "account"
	EntityTypeProfile     EntityType = "profile"
	EntityTypeMedication  EntityType = "medication"
	EntityTypeAppointment EntityType = "appointment"
	EntityTypeContact     EntityType = "contact"
	EntityTypeNote        EntityType = "note"
	EntityTypeTodoList    EntityType = "todo_list"
	EntityTypeTodoItem    EntityType = "todo_item"
	EntityTypeReminder    EntityType = "reminder"
	EntityTypeCountdown   EntityType = "countdown"
	EntityTypeMoodEntry   EntityType = "mood_entry"
)

// AllEntityTypes lists every syncable entity type. Wiring code iterates it
// to register remote repositories and provision sync metadata.
func AllEntityTypes() []EntityType {
	return []EntityType{
		EntityTypeAccount,
		EntityTypeProfile,
		EntityTypeMedication,
		EntityTypeAppointment,
		EntityTypeContact,
		EntityTypeNote,
		EntityTypeTodoList,
		EntityTypeTodoItem,
		EntityTypeReminder,
		EntityTypeCountdown,
		EntityTypeMoodEntry,
	}
}

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	for _, known := range AllEntityTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Payload is implemented by every domain payload struct.
type Payload interface {
	EntityType() EntityType
}
