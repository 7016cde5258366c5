package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/slawatch/internal/model"
	"github.com/nhle/slawatch/internal/store"
)

// RegisterTask adds a task to monitoring, or updates the name and SLA of
// an existing one, and evaluates it immediately. Moving an existing task
// to another start is rejected with ErrInvalidState; see RescheduleTask.
func (s *Service) RegisterTask(ctx context.Context, task model.MonitoredTask) (*Evaluation, error) {
	if err := s.store.UpsertTask(ctx, task); err != nil {
		if errors.Is(err, store.ErrScheduleChanged) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
		if store.IsUnavailable(err) {
			return nil, translate(err)
		}
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return s.EvaluateTask(ctx, task.ID)
}

// CompleteTask records the completion instant for the task's current
// episode and evaluates it. A zero at means now.
func (s *Service) CompleteTask(ctx context.Context, id string, at time.Time) (*Evaluation, error) {
	if at.IsZero() {
		at = s.clock.Now()
	}
	if err := s.store.CompleteTask(ctx, id, at); err != nil {
		if errors.Is(err, store.ErrAlreadyCompleted) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
		return nil, translate(err)
	}
	s.log.Info("task completed",
		zap.String("task_id", id),
		zap.Time("completed_at", at),
	)
	return s.EvaluateTask(ctx, id)
}

// RescheduleTask moves the task to its next occurrence, opening a new
// episode, and evaluates it.
func (s *Service) RescheduleTask(ctx context.Context, id string, next time.Time) (*Evaluation, error) {
	if err := s.store.RescheduleTask(ctx, id, next, s.clock.Now()); err != nil {
		if errors.Is(err, store.ErrNotReschedulable) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
		return nil, translate(err)
	}
	s.log.Info("task rescheduled",
		zap.String("task_id", id),
		zap.Time("scheduled_start", next),
	)
	return s.EvaluateTask(ctx, id)
}
