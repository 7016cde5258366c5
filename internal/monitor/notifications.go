package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nhle/slawatch/internal/model"
	"github.com/nhle/slawatch/internal/sla"
	"github.com/nhle/slawatch/internal/store"
)

// NotificationView is a ledger row together with the live state of its
// task. Status and Countdown are derived at read time and never stored.
type NotificationView struct {
	model.NotificationEvent

	TaskName string                `json:"task_name"`
	Status   model.LifecycleStatus `json:"status"`

	// Countdown is the live remaining/overdue text. It is empty when the
	// task has since moved on to a later episode.
	Countdown string `json:"countdown"`
}

// ListNotifications returns ledger rows matching filter, newest first,
// each with its task's live status. It never writes.
func (s *Service) ListNotifications(ctx context.Context, filter store.NotificationFilter) ([]NotificationView, error) {
	if filter.Kind != nil && !filter.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown event kind %q", ErrValidation, *filter.Kind)
	}
	switch filter.Status {
	case "", store.NotificationsActive, store.NotificationsUnread, store.NotificationsRead,
		store.NotificationsArchived, store.NotificationsAll:
	default:
		return nil, fmt.Errorf("%w: unknown status filter %q", ErrValidation, filter.Status)
	}

	events, err := s.store.GetNotifications(ctx, filter)
	if err != nil {
		return nil, translate(err)
	}

	now := s.clock.Now()
	tasks := make(map[string]*model.MonitoredTask)
	views := make([]NotificationView, 0, len(events))
	for _, n := range events {
		task, ok := tasks[n.TaskID]
		if !ok {
			task, err = s.store.GetTask(ctx, n.TaskID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, translate(err)
			}
			tasks[n.TaskID] = task
		}

		view := NotificationView{NotificationEvent: n}
		if task != nil {
			res := sla.Evaluate(*task, now, s.policy)
			view.TaskName = task.Name
			view.Status = res.Status
			if task.Episode() == n.Episode {
				view.Countdown = sla.Countdown(*task, res.Status, now, s.policy)
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// AcknowledgeRead marks a notification as read. Re-reading is a no-op.
// Archived or unknown notifications fail with ErrNotFound.
func (s *Service) AcknowledgeRead(ctx context.Context, id, actor string) error {
	changed, err := s.store.MarkNotificationRead(ctx, id, actor, s.clock.Now())
	if err != nil {
		return translate(err)
	}
	if changed {
		s.log.Debug("notification read",
			zap.String("notification_id", id),
			zap.String("actor", strings.TrimSpace(actor)),
		)
	}
	return nil
}

// Archive hides a notification from the active views. Archiving twice is
// a no-op. An archived kind is never re-emitted for the same episode.
func (s *Service) Archive(ctx context.Context, id, actor string) error {
	changed, err := s.store.ArchiveNotification(ctx, id, actor, s.clock.Now())
	if err != nil {
		return translate(err)
	}
	if changed {
		s.log.Debug("notification archived",
			zap.String("notification_id", id),
			zap.String("actor", strings.TrimSpace(actor)),
		)
	}
	return nil
}

// DashboardSummary holds aggregate counts for the notification console.
type DashboardSummary struct {
	Total                int `json:"total"`
	Unread               int `json:"unread"`
	Escalated            int `json:"escalated"`
	JustificationPending int `json:"justification_pending"`
}

// Dashboard computes the summary counts. Task counts come from live
// evaluation, so they are current even between ticks. It never writes.
func (s *Service) Dashboard(ctx context.Context) (DashboardSummary, error) {
	counts, err := s.store.CountNotifications(ctx)
	if err != nil {
		return DashboardSummary{}, translate(err)
	}

	tasks, err := s.store.GetTasks(ctx, store.TaskFilter{ExcludeCompleted: true})
	if err != nil {
		return DashboardSummary{}, translate(err)
	}

	summary := DashboardSummary{Total: counts.Total, Unread: counts.Unread}
	now := s.clock.Now()
	for _, task := range tasks {
		switch sla.Evaluate(task, now, s.policy).Status {
		case model.StatusEscalated:
			summary.Escalated++
			summary.JustificationPending++
		case model.StatusAcknowledged:
			summary.Escalated++
		}
	}
	return summary, nil
}

// Tasks lists monitored tasks with their live status applied. A status
// filter matches the live status, not the last committed one.
func (s *Service) Tasks(ctx context.Context, filter store.TaskFilter) ([]model.MonitoredTask, error) {
	want := make(map[model.LifecycleStatus]bool, len(filter.Statuses))
	for _, st := range filter.Statuses {
		want[st] = true
	}
	limit := filter.Limit
	if len(want) > 0 {
		filter.Statuses = nil
		filter.Limit = 0
	}

	tasks, err := s.store.GetTasks(ctx, filter)
	if err != nil {
		return nil, translate(err)
	}

	now := s.clock.Now()
	out := tasks[:0]
	for _, task := range tasks {
		task.Status = sla.Evaluate(task, now, s.policy).Status
		if len(want) > 0 && !want[task.Status] {
			continue
		}
		out = append(out, task)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// TaskDetail is one task with its live status, its state boundaries and
// the justifications recorded against it.
type TaskDetail struct {
	Task           model.MonitoredTask         `json:"task"`
	Thresholds     sla.Thresholds              `json:"thresholds"`
	Countdown      string                      `json:"countdown"`
	Justifications []model.JustificationRecord `json:"justifications"`
}

// TaskDetail loads a task for display. Like Tasks, it applies the live
// status without committing it.
func (s *Service) TaskDetail(ctx context.Context, id string) (*TaskDetail, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	records, err := s.store.GetJustifications(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if records == nil {
		records = []model.JustificationRecord{}
	}

	now := s.clock.Now()
	res := sla.Evaluate(*task, now, s.policy)
	task.Status = res.Status
	return &TaskDetail{
		Task:           *task,
		Thresholds:     res.Thresholds,
		Countdown:      sla.Countdown(*task, res.Status, now, s.policy),
		Justifications: records,
	}, nil
}
