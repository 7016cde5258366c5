package monitor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/slawatch/internal/store"
)

// Trigger labels what started an evaluation pass.
const (
	TriggerTimer  = "timer"
	TriggerManual = "manual"
)

// SyncResult summarizes one evaluation pass.
type SyncResult struct {
	TasksEvaluated int `json:"tasks_evaluated"`
	EventsEmitted  int `json:"events_emitted"`
}

// SyncNow evaluates every active task once. A positive timeout bounds the
// whole pass; when it expires the call fails with ErrTimeout and tasks not
// yet committed are left untouched. On failure the returned error is a
// *SyncError and the result still reports the progress made.
func (s *Service) SyncNow(ctx context.Context, timeout time.Duration) (SyncResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.Sync(ctx, TriggerManual)
}

// Sync runs one evaluation pass labelled with trigger. The periodic loop
// and SyncNow both funnel through here.
func (s *Service) Sync(ctx context.Context, trigger string) (SyncResult, error) {
	started := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.SyncDuration.WithLabelValues(trigger).Observe(time.Since(started).Seconds())
		}
	}()

	var ids []string
	err := s.guard(func() error {
		var err error
		ids, err = s.store.ActiveTaskIDs(ctx)
		return err
	})
	if err != nil {
		err = translate(err)
		s.log.Error("listing active tasks failed",
			zap.String("trigger", trigger),
			zap.Error(err),
		)
		return SyncResult{}, &SyncError{Err: err}
	}

	var (
		result   SyncResult
		failed   int
		firstErr error
	)

	for _, id := range ids {
		if ctx.Err() != nil {
			firstErr = translate(ctx.Err())
			break
		}

		ev, err := s.commitOne(ctx, id, trigger)
		if err != nil {
			// The task was removed after it was listed.
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if ctx.Err() != nil {
				firstErr = translate(err)
				break
			}
			failed++
			if firstErr == nil {
				firstErr = translate(err)
			}
			s.log.Warn("task evaluation failed",
				zap.String("task_id", id),
				zap.String("trigger", trigger),
				zap.Error(err),
			)
			continue
		}

		result.TasksEvaluated++
		result.EventsEmitted += len(ev.Emitted)
	}

	if firstErr != nil {
		if errors.Is(firstErr, ErrStoreUnavailable) {
			s.log.Error("store unavailable during sync",
				zap.String("trigger", trigger),
				zap.Int("evaluated", result.TasksEvaluated),
				zap.Error(firstErr),
			)
		}
		return result, &SyncError{
			Evaluated: result.TasksEvaluated,
			Failed:    failed,
			Err:       firstErr,
		}
	}

	s.log.Debug("sync complete",
		zap.String("trigger", trigger),
		zap.Int("tasks_evaluated", result.TasksEvaluated),
		zap.Int("events_emitted", result.EventsEmitted),
	)
	return result, nil
}

// commitOne applies the per-task timeout, if any, around commitTask.
func (s *Service) commitOne(ctx context.Context, id string, trigger string) (*Evaluation, error) {
	if s.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.taskTimeout)
		defer cancel()
	}
	return s.commitTask(ctx, id, trigger)
}
