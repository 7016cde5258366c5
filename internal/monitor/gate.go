package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/slawatch/internal/model"
	"github.com/nhle/slawatch/internal/store"
)

// SubmitJustification attaches a justification to an escalated task and
// moves it to ACKNOWLEDGED. The task is re-evaluated first so the status
// check reflects the current instant. Rejections leave that evaluation
// committed but write nothing else.
//
// It fails with ErrAlreadyAcknowledged if the episode already has a
// justification, ErrInvalidState if the task is not ESCALATED, and a
// *ValidationError if text is shorter than the policy minimum.
func (s *Service) SubmitJustification(ctx context.Context, taskID, text, actor string) (*model.JustificationRecord, error) {
	text = strings.TrimSpace(text)
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, fmt.Errorf("%w: actor must not be empty", ErrValidation)
	}

	var (
		ev      *Evaluation
		record  *model.JustificationRecord
		gateErr error
	)

	err := s.guard(func() error {
		return s.store.WithinTx(ctx, func(tx store.Tx) error {
			record, gateErr = nil, nil

			var err error
			ev, err = s.evaluateLocked(ctx, tx, taskID)
			if err != nil {
				return err
			}
			now := ev.At
			task := ev.Task
			episode := task.Episode()

			if _, err := tx.GetJustification(ctx, taskID, episode); err == nil {
				gateErr = fmt.Errorf("task %s: %w", taskID, ErrAlreadyAcknowledged)
				return nil
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}

			if task.Status != model.StatusEscalated {
				gateErr = fmt.Errorf("%w: task %s is %s, not %s",
					ErrInvalidState, taskID, task.Status, model.StatusEscalated)
				return nil
			}

			if n := utf8.RuneCountInString(text); n < s.policy.MinJustificationLength {
				gateErr = &ValidationError{MinLength: s.policy.MinJustificationLength, Got: n}
				return nil
			}

			escalatedAt := ev.Result.Thresholds.EscalateAt
			if task.EscalatedAt != nil {
				escalatedAt = *task.EscalatedAt
			}
			candidate := model.JustificationRecord{
				ID:          uuid.New().String(),
				TaskID:      taskID,
				Episode:     episode,
				EscalatedAt: escalatedAt,
				Text:        text,
				SubmittedAt: now,
				SubmittedBy: actor,
			}
			inserted, err := tx.InsertJustification(ctx, candidate)
			if err != nil {
				return err
			}
			if !inserted {
				gateErr = fmt.Errorf("task %s: %w", taskID, ErrAlreadyAcknowledged)
				return nil
			}

			if err := tx.AcknowledgeTask(ctx, taskID, text, now); err != nil {
				return err
			}
			if err := tx.ArchiveKind(ctx, taskID, model.EventJustificationRequired, episode, actor, now); err != nil {
				return err
			}
			ev.Task.Status = model.StatusAcknowledged
			ev.Task.Justification = &candidate.Text
			record = &candidate
			return nil
		})
	})
	if err != nil {
		s.metrics.observeFailure()
		return nil, translate(err)
	}

	s.afterCommit(ctx, ev, "justification")
	if gateErr != nil {
		s.log.Info("justification rejected",
			zap.String("task_id", taskID),
			zap.String("status", string(ev.Task.Status)),
			zap.Error(gateErr),
		)
		return nil, gateErr
	}

	s.log.Info("justification accepted",
		zap.String("task_id", taskID),
		zap.String("actor", actor),
		zap.Int64("episode", record.Episode),
	)
	return record, nil
}

// Justifications lists every justification recorded for a task, across
// all of its episodes.
func (s *Service) Justifications(ctx context.Context, taskID string) ([]model.JustificationRecord, error) {
	if _, err := s.store.GetTask(ctx, taskID); err != nil {
		return nil, translate(err)
	}
	records, err := s.store.GetJustifications(ctx, taskID)
	if err != nil {
		return nil, translate(err)
	}
	return records, nil
}
