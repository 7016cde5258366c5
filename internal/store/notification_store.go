package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/slawatch/internal/model"
)

const notificationColumns = `id, task_id, event_kind, episode, payload,
	created_at, read_at, read_by, archived_at, archived_by`

const justificationColumns = `id, task_id, episode, escalated_at, text,
	submitted_at, submitted_by`

// GetNotification retrieves a single notification by ID, archived or not.
func (s *SQLStore) GetNotification(ctx context.Context, id string) (*model.NotificationEvent, error) {
	var n model.NotificationEvent
	err := s.db.GetContext(ctx, &n, s.db.Rebind(
		"SELECT "+notificationColumns+" FROM notification_events WHERE id = ?"), id)
	if err != nil {
		return nil, fmt.Errorf("getting notification %s: %w", id, notFound(err))
	}
	return &n, nil
}

// GetNotifications retrieves ledger rows matching the filter, newest first.
func (s *SQLStore) GetNotifications(ctx context.Context, filter NotificationFilter) ([]model.NotificationEvent, error) {
	var conditions []string
	var args []interface{}

	switch filter.Status {
	case "", NotificationsActive:
		conditions = append(conditions, "archived_at IS NULL")
	case NotificationsUnread:
		conditions = append(conditions, "archived_at IS NULL", "read_at IS NULL")
	case NotificationsRead:
		conditions = append(conditions, "archived_at IS NULL", "read_at IS NOT NULL")
	case NotificationsArchived:
		conditions = append(conditions, "archived_at IS NOT NULL")
	case NotificationsAll:
	default:
		return nil, fmt.Errorf("unknown notification status filter %q", filter.Status)
	}

	if filter.Kind != nil {
		conditions = append(conditions, "event_kind = ?")
		args = append(args, string(*filter.Kind))
	}
	if filter.TaskID != nil {
		conditions = append(conditions, "task_id = ?")
		args = append(args, *filter.TaskID)
	}
	if filter.From != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		conditions = append(conditions, "created_at < ?")
		args = append(args, filter.To.UTC())
	}

	query := "SELECT " + notificationColumns + " FROM notification_events"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	var notifications []model.NotificationEvent
	if err := s.db.SelectContext(ctx, &notifications, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("querying notifications: %w", classify(err))
	}
	return notifications, nil
}

// CountNotifications returns the live (non-archived) and unread counts.
func (s *SQLStore) CountNotifications(ctx context.Context) (NotificationCounts, error) {
	var counts NotificationCounts
	err := s.db.GetContext(ctx, &counts, `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN read_at IS NULL THEN 1 ELSE 0 END), 0) AS unread
		FROM notification_events
		WHERE archived_at IS NULL`)
	if err != nil {
		return NotificationCounts{}, fmt.Errorf("counting notifications: %w", classify(err))
	}
	return counts, nil
}

// MarkNotificationRead sets read_at on a live notification if it is unset.
// It reports whether the row changed; re-reading an already read
// notification returns false and no error. Archived or missing
// notifications yield ErrNotFound.
func (s *SQLStore) MarkNotificationRead(ctx context.Context, id, actor string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE notification_events SET read_at = ?, read_by = ?
		WHERE id = ? AND archived_at IS NULL AND read_at IS NULL`),
		at.UTC(), actor, id,
	)
	if err != nil {
		return false, fmt.Errorf("marking notification %s as read: %w", id, classify(err))
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		return true, nil
	}

	n, err := s.GetNotification(ctx, id)
	if err != nil {
		return false, err
	}
	if n.Archived() {
		return false, fmt.Errorf("marking notification %s as read: %w", id, ErrNotFound)
	}
	return false, nil
}

// ArchiveNotification sets archived_at on a notification if it is unset.
// Archiving an archived notification reports false and no error.
func (s *SQLStore) ArchiveNotification(ctx context.Context, id, actor string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE notification_events SET archived_at = ?, archived_by = ?
		WHERE id = ? AND archived_at IS NULL`),
		at.UTC(), actor, id,
	)
	if err != nil {
		return false, fmt.Errorf("archiving notification %s: %w", id, classify(err))
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		return true, nil
	}

	if _, err := s.GetNotification(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// GetJustifications lists every justification recorded for a task across
// its episodes, oldest first.
func (s *SQLStore) GetJustifications(ctx context.Context, taskID string) ([]model.JustificationRecord, error) {
	var records []model.JustificationRecord
	err := s.db.SelectContext(ctx, &records, s.db.Rebind(
		"SELECT "+justificationColumns+" FROM justifications WHERE task_id = ? ORDER BY submitted_at ASC"),
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying justifications for task %s: %w", taskID, classify(err))
	}
	return records, nil
}
