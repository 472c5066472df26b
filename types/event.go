package types

import "time"

// IdentityEventType names a lifecycle transition of an identity.
type IdentityEventType string

const (
	IdentityCreated IdentityEventType = "identity.created"
	IdentityUpdated IdentityEventType = "identity.updated"
	IdentityDeleted IdentityEventType = "identity.deleted"
)

// IdentityEvent is published to the message broker after an identity
// changes. It carries no credential material.
type IdentityEvent struct {
	Type       IdentityEventType `json:"type"`
	IdentityID int               `json:"identity_id"`
	Email      string            `json:"email"`
	Role       Role              `json:"role"`
	OccurredAt time.Time         `json:"occurred_at"`
}
