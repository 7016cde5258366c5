package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/slawatch/internal/model"
)

var (
	// ErrNotFound is returned when a task, notification or justification
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable marks transient backing-store failures: lost
	// connections, locked databases, refused dials.
	ErrUnavailable = errors.New("store unavailable")

	// ErrAlreadyCompleted is returned when completed_at is already set for
	// the task's current episode.
	ErrAlreadyCompleted = errors.New("task already completed")

	// ErrNotReschedulable is returned when a task's current episode is
	// still running past its start.
	ErrNotReschedulable = errors.New("task episode still open")

	// ErrScheduleChanged is returned when UpsertTask is given a different
	// scheduled start for an existing task. Use RescheduleTask instead.
	ErrScheduleChanged = errors.New("scheduled start differs; use reschedule")
)

// Notification status filter values.
const (
	NotificationsActive   = "active"
	NotificationsUnread   = "unread"
	NotificationsRead     = "read"
	NotificationsArchived = "archived"
	NotificationsAll      = "all"
)

// TaskFilter controls filtering for monitored task queries.
type TaskFilter struct {
	Statuses         []model.LifecycleStatus
	ExcludeCompleted bool
	Limit            int
}

// NotificationFilter controls filtering and pagination for ledger queries.
type NotificationFilter struct {
	Kind   *model.EventKind
	Status string // one of the Notifications* values; empty means active
	TaskID *string
	From   *time.Time // inclusive lower bound on created_at
	To     *time.Time // exclusive upper bound on created_at
	Limit  int
	Offset int
}

// NotificationCounts holds aggregate ledger counts.
type NotificationCounts struct {
	Total  int `db:"total"`
	Unread int `db:"unread"`
}

// LifecycleUpdate is the status change committed by one evaluation.
type LifecycleUpdate struct {
	TaskID      string
	Status      model.LifecycleStatus
	EscalatedAt *time.Time
	EvaluatedAt time.Time
}

// Store defines the persistence interface for monitored tasks, the
// notification ledger and justification records.
type Store interface {
	// === Task registry ===

	UpsertTask(ctx context.Context, task model.MonitoredTask) error
	GetTask(ctx context.Context, id string) (*model.MonitoredTask, error)
	GetTasks(ctx context.Context, filter TaskFilter) ([]model.MonitoredTask, error)
	ActiveTaskIDs(ctx context.Context) ([]string, error)
	CompleteTask(ctx context.Context, id string, at time.Time) error
	RescheduleTask(ctx context.Context, id string, next time.Time, at time.Time) error

	// === Transactions ===

	// WithinTx runs fn in a single transaction, committing if fn returns
	// nil and rolling back otherwise.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// === Notification ledger ===

	GetNotification(ctx context.Context, id string) (*model.NotificationEvent, error)
	GetNotifications(ctx context.Context, filter NotificationFilter) ([]model.NotificationEvent, error)
	CountNotifications(ctx context.Context) (NotificationCounts, error)
	MarkNotificationRead(ctx context.Context, id, actor string, at time.Time) (bool, error)
	ArchiveNotification(ctx context.Context, id, actor string, at time.Time) (bool, error)

	// === Justifications ===

	GetJustifications(ctx context.Context, taskID string) ([]model.JustificationRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// Tx is the set of operations available inside WithinTx. Everything an
// evaluation or justification writes goes through one Tx.
type Tx interface {
	// LockTask reads the task row, locking it for the rest of the
	// transaction where the dialect supports row locks.
	LockTask(ctx context.Context, id string) (*model.MonitoredTask, error)

	UpdateLifecycle(ctx context.Context, u LifecycleUpdate) error

	// InsertNotification inserts n unless a row with the same task, kind
	// and episode exists. It reports whether a row was written.
	InsertNotification(ctx context.Context, n model.NotificationEvent) (bool, error)

	// InsertJustification inserts j unless one exists for the task's
	// episode. It reports whether a row was written.
	InsertJustification(ctx context.Context, j model.JustificationRecord) (bool, error)

	GetJustification(ctx context.Context, taskID string, episode int64) (*model.JustificationRecord, error)

	// AcknowledgeTask moves the task to ACKNOWLEDGED and stores the text.
	AcknowledgeTask(ctx context.Context, taskID, text string, at time.Time) error

	// ArchiveKind archives the live notification of kind for the episode.
	ArchiveKind(ctx context.Context, taskID string, kind model.EventKind, episode int64, actor string, at time.Time) error
}
