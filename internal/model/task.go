package model

import "time"

// LifecycleStatus is the monitoring state of a scheduled task.
type LifecycleStatus string

// Lifecycle states, in forward order.
const (
	StatusPending      LifecycleStatus = "PENDING"
	StatusPreStart     LifecycleStatus = "PRE_START"
	StatusDue          LifecycleStatus = "DUE"
	StatusSLABreached  LifecycleStatus = "SLA_BREACHED"
	StatusEscalated    LifecycleStatus = "ESCALATED"
	StatusAcknowledged LifecycleStatus = "ACKNOWLEDGED"
	StatusCompleted    LifecycleStatus = "COMPLETED"
)

// statusRank orders the states so regressions can be detected.
var statusRank = map[LifecycleStatus]int{
	StatusPending:      0,
	StatusPreStart:     1,
	StatusDue:          2,
	StatusSLABreached:  3,
	StatusEscalated:    4,
	StatusAcknowledged: 5,
	StatusCompleted:    6,
}

// Rank returns the position of s in the forward lifecycle order,
// or -1 for an unknown status.
func (s LifecycleStatus) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// Valid reports whether s is a known lifecycle status.
func (s LifecycleStatus) Valid() bool {
	return s.Rank() >= 0
}

// Overdue reports whether s is past the SLA edge.
func (s LifecycleStatus) Overdue() bool {
	switch s {
	case StatusSLABreached, StatusEscalated, StatusAcknowledged:
		return true
	}
	return false
}

// MonitoredTask is a scheduled operational task watched for SLA compliance.
type MonitoredTask struct {
	// ID is the stable identifier assigned by the task registry.
	ID string `json:"id" db:"id"`

	// Name is the human-readable task label used in notification text.
	Name string `json:"name" db:"name"`

	// ScheduledStart is the instant the task is expected to begin.
	ScheduledStart time.Time `json:"scheduled_start" db:"scheduled_start"`

	// SLAMinutes is the window after ScheduledStart within which the task
	// must complete.
	SLAMinutes int `json:"sla_minutes" db:"sla_minutes"`

	// Status is the lifecycle status last committed by the evaluator.
	Status LifecycleStatus `json:"lifecycle_status" db:"lifecycle_status"`

	// CompletedAt is set once when the task finishes and never changes
	// within an episode.
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	// EscalatedAt records when the current episode entered ESCALATED.
	EscalatedAt *time.Time `json:"escalated_at,omitempty" db:"escalated_at"`

	// Justification holds the accepted justification text while the task
	// is ACKNOWLEDGED (and as history once COMPLETED).
	Justification *string `json:"justification,omitempty" db:"justification"`

	// LastEvaluatedAt is the evaluation instant of the last commit.
	LastEvaluatedAt *time.Time `json:"last_evaluated_at,omitempty" db:"last_evaluated_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Episode identifies the current run of the task's lifecycle. Each
// scheduled occurrence is its own episode.
func (t MonitoredTask) Episode() int64 {
	return EpisodeOf(t.ScheduledStart)
}

// BreachAt returns the instant the SLA window closes.
func (t MonitoredTask) BreachAt() time.Time {
	return t.ScheduledStart.Add(time.Duration(t.SLAMinutes) * time.Minute)
}

// EpisodeOf derives the episode key for a scheduled start.
func EpisodeOf(scheduledStart time.Time) int64 {
	return scheduledStart.Unix()
}
