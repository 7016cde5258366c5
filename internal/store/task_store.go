package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/slawatch/internal/model"
)

const taskColumns = `id, name, scheduled_start, sla_minutes, lifecycle_status,
	completed_at, escalated_at, justification, last_evaluated_at,
	created_at, updated_at`

// UpsertTask registers a task or updates its name and SLA. The scheduled
// start of an existing task only changes through RescheduleTask; passing a
// different one fails with ErrScheduleChanged.
func (s *SQLStore) UpsertTask(ctx context.Context, task model.MonitoredTask) error {
	if strings.TrimSpace(task.ID) == "" {
		return fmt.Errorf("task id must not be empty")
	}
	if strings.TrimSpace(task.Name) == "" {
		return fmt.Errorf("task name must not be empty")
	}
	if task.SLAMinutes <= 0 {
		return fmt.Errorf("task %s: sla_minutes must be positive", task.ID)
	}
	if task.ScheduledStart.IsZero() {
		return fmt.Errorf("task %s: scheduled_start is required", task.ID)
	}

	existing, err := s.GetTask(ctx, task.ID)
	switch {
	case err == nil:
		if !existing.ScheduledStart.Equal(task.ScheduledStart) {
			return fmt.Errorf("upserting task %s: %w", task.ID, ErrScheduleChanged)
		}
	case !errors.Is(err, ErrNotFound):
		return err
	}
	if task.Status == "" {
		task.Status = model.StatusPending
	}
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO monitored_tasks (
			id, name, scheduled_start, sla_minutes, lifecycle_status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			sla_minutes = excluded.sla_minutes,
			updated_at = excluded.updated_at`),
		task.ID, task.Name, task.ScheduledStart.UTC(), task.SLAMinutes, string(task.Status),
		now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting task %s: %w", task.ID, classify(err))
	}
	return nil
}

// GetTask retrieves a single task by its ID.
func (s *SQLStore) GetTask(ctx context.Context, id string) (*model.MonitoredTask, error) {
	var task model.MonitoredTask
	err := s.db.GetContext(ctx, &task, s.db.Rebind(
		"SELECT "+taskColumns+" FROM monitored_tasks WHERE id = ?"), id)
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", id, notFound(err))
	}
	return &task, nil
}

// GetTasks retrieves tasks matching the filter, ordered by scheduled start.
func (s *SQLStore) GetTasks(ctx context.Context, filter TaskFilter) ([]model.MonitoredTask, error) {
	var conditions []string
	var args []interface{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		conditions = append(conditions,
			"lifecycle_status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.ExcludeCompleted {
		conditions = append(conditions, "lifecycle_status <> ?")
		args = append(args, string(model.StatusCompleted))
	}

	query := "SELECT " + taskColumns + " FROM monitored_tasks"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY scheduled_start ASC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var tasks []model.MonitoredTask
	if err := s.db.SelectContext(ctx, &tasks, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("querying tasks: %w", classify(err))
	}
	return tasks, nil
}

// ActiveTaskIDs returns the ids of every task whose stored status is not
// COMPLETED.
func (s *SQLStore) ActiveTaskIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, s.db.Rebind(
		"SELECT id FROM monitored_tasks WHERE lifecycle_status <> ? ORDER BY scheduled_start ASC, id ASC"),
		string(model.StatusCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("querying active tasks: %w", classify(err))
	}
	return ids, nil
}

// CompleteTask sets completed_at for the current episode. It fails with
// ErrAlreadyCompleted if it is already set.
func (s *SQLStore) CompleteTask(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE monitored_tasks SET completed_at = ?, updated_at = ?
		WHERE id = ? AND completed_at IS NULL`),
		at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("completing task %s: %w", id, classify(err))
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}
	if _, err := s.GetTask(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("completing task %s: %w", id, ErrAlreadyCompleted)
}

// RescheduleTask starts a new episode at next. Only tasks that have
// completed or have not yet started may be rescheduled; an open overdue
// episode must first be completed.
func (s *SQLStore) RescheduleTask(ctx context.Context, id string, next time.Time, at time.Time) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE monitored_tasks SET
			scheduled_start = ?, lifecycle_status = ?,
			completed_at = NULL, escalated_at = NULL, justification = NULL,
			last_evaluated_at = NULL, updated_at = ?
		WHERE id = ? AND scheduled_start <> ?
			AND (completed_at IS NOT NULL OR lifecycle_status IN (?, ?))`),
		next.UTC(), string(model.StatusPending), at.UTC(),
		id, next.UTC(),
		string(model.StatusPending), string(model.StatusPreStart),
	)
	if err != nil {
		return fmt.Errorf("rescheduling task %s: %w", id, classify(err))
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if task.ScheduledStart.Equal(next) {
		return fmt.Errorf("rescheduling task %s: already scheduled at %s", id, next.UTC().Format(time.RFC3339))
	}
	return fmt.Errorf("rescheduling task %s: %w", id, ErrNotReschedulable)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
