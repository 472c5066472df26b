package types

import "time"

// Subject is a course subject offered on the platform.
type Subject struct {
	// ID is the unique identifier of the subject.
	ID int `json:"id" db:"id"`

	// Name is the human-readable name of the subject.
	Name string `json:"name" db:"name"`

	// Description is an optional free-form summary.
	Description string `json:"description" db:"description"`

	// CreatedAt is the timestamp at which the subject was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the subject.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
