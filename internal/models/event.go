package models

import "time"

// ClassEventType names a state change emitted after a class mutation commits.
type ClassEventType string

const (
	EventClassCreated       ClassEventType = "class.created"
	EventClassUpdated       ClassEventType = "class.updated"
	EventClassStatusChanged ClassEventType = "class.status_changed"
	EventClassDeleted       ClassEventType = "class.deleted"
)

// Actor identifies who triggered a change.
type Actor struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
}

// ClassEvent is published on the class event bus.
type ClassEvent struct {
	Type           ClassEventType `json:"type"`
	Class          ClassInstance  `json:"class"`
	PreviousStatus ClassStatus    `json:"previous_status,omitempty"`
	Previous       *ClassInstance `json:"previous,omitempty"`
	Actor          Actor          `json:"actor"`
	OccurredAt     time.Time      `json:"occurred_at"`
}
