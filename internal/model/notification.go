package model

import "time"

// EventKind identifies the transition a notification reports.
type EventKind string

const (
	EventPreStart              EventKind = "PRE_START"
	EventMissedStart           EventKind = "MISSED_START"
	EventEscalated             EventKind = "ESCALATED"
	EventJustificationRequired EventKind = "JUSTIFICATION_REQUIRED"
)

// EventKinds lists every kind in emission order.
var EventKinds = []EventKind{
	EventPreStart,
	EventMissedStart,
	EventEscalated,
	EventJustificationRequired,
}

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	for _, known := range EventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// NotificationEvent is an append-only ledger row recording that a task
// crossed a monitoring threshold.
type NotificationEvent struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id" db:"id"`

	// TaskID links this notification to the monitored task.
	TaskID string `json:"task_id" db:"task_id"`

	// Kind is the structured event type. It never changes after insert.
	Kind EventKind `json:"event_kind" db:"event_kind"`

	// Episode scopes uniqueness of Kind per task occurrence.
	Episode int64 `json:"episode" db:"episode"`

	// Payload is the summary rendered at creation time.
	Payload string `json:"payload" db:"payload"`

	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ReadAt     *time.Time `json:"read_at,omitempty" db:"read_at"`
	ReadBy     *string    `json:"read_by,omitempty" db:"read_by"`
	ArchivedAt *time.Time `json:"archived_at,omitempty" db:"archived_at"`
	ArchivedBy *string    `json:"archived_by,omitempty" db:"archived_by"`
}

// Read reports whether the notification has been acknowledged as read.
func (n NotificationEvent) Read() bool {
	return n.ReadAt != nil
}

// Archived reports whether the notification has been archived.
func (n NotificationEvent) Archived() bool {
	return n.ArchivedAt != nil
}
