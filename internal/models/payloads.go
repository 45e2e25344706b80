package models

import "time"

// Account holds the owning household's settings.
type Account struct {
	Name     string `json:"name"`
	TimeZone string `json:"time_zone"`
}

func (Account) EntityType() EntityType { return EntityTypeAccount }

// Profile describes a person receiving care within an account.
type Profile struct {
	Name         string     `json:"name"`
	Relationship string     `json:"relationship"`
	DateOfBirth  *time.Time `json:"date_of_birth,omitempty"`
}

func (Profile) EntityType() EntityType { return EntityTypeProfile }

// Medication tracks a prescription and its dosing schedule.
type Medication struct {
	Name         string   `json:"name"`
	Dosage       string   `json:"dosage"`
	Unit         string   `json:"unit"`
	Schedule     []string `json:"schedule,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
	Prescriber   string   `json:"prescriber,omitempty"`
	Refills      int      `json:"refills"`
	Active       bool     `json:"active"`
}

func (Medication) EntityType() EntityType { return EntityTypeMedication }

// Appointment is a scheduled visit with a provider.
type Appointment struct {
	Title    string    `json:"title"`
	Provider string    `json:"provider,omitempty"`
	Location string    `json:"location,omitempty"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at,omitempty"`
	Notes    string    `json:"notes,omitempty"`
}

func (Appointment) EntityType() EntityType { return EntityTypeAppointment }

// Contact is a caregiver, doctor, pharmacy or other person of record.
type Contact struct {
	Name    string `json:"name"`
	Role    string `json:"role,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

func (Contact) EntityType() EntityType { return EntityTypeContact }

// Note is free-form text attached to the account.
type Note struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Pinned bool   `json:"pinned"`
}

func (Note) EntityType() EntityType { return EntityTypeNote }

// TodoList groups to-do items.
type TodoList struct {
	Title    string `json:"title"`
	Archived bool   `json:"archived"`
}

func (TodoList) EntityType() EntityType { return EntityTypeTodoList }

// TodoItem is a single task within a list.
type TodoItem struct {
	ListID   string     `json:"list_id"`
	Title    string     `json:"title"`
	Done     bool       `json:"done"`
	DueAt    *time.Time `json:"due_at,omitempty"`
	Position int        `json:"position"`
}

func (TodoItem) EntityType() EntityType { return EntityTypeTodoItem }

// Reminder fires a notification at a time, optionally repeating.
type Reminder struct {
	Title   string    `json:"title"`
	At      time.Time `json:"at"`
	Repeat  string    `json:"repeat,omitempty"`
	Enabled bool      `json:"enabled"`
}

func (Reminder) EntityType() EntityType { return EntityTypeReminder }

// Countdown counts days to a memorable date.
type Countdown struct {
	Title string    `json:"title"`
	Date  time.Time `json:"date"`
}

func (Countdown) EntityType() EntityType { return EntityTypeCountdown }

// MoodEntry records how the cared-for person felt on a day. Score is 1..5.
type MoodEntry struct {
	Date  time.Time `json:"date"`
	Score int       `json:"score"`
	Note  string    `json:"note,omitempty"`
}

func (MoodEntry) EntityType() EntityType { return EntityTypeMoodEntry }
