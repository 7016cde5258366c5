package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/slawatch/internal/model"
)

// sqlTx implements Tx on a sqlx transaction.
type sqlTx struct {
	tx      *sqlx.Tx
	dialect dialect
}

// LockTask reads the task row inside the transaction.
func (t *sqlTx) LockTask(ctx context.Context, id string) (*model.MonitoredTask, error) {
	var task model.MonitoredTask
	query := "SELECT " + taskColumns + " FROM monitored_tasks WHERE id = ?" + t.dialect.lockSuffix()
	if err := t.tx.GetContext(ctx, &task, t.tx.Rebind(query), id); err != nil {
		return nil, fmt.Errorf("locking task %s: %w", id, notFound(err))
	}
	return &task, nil
}

// UpdateLifecycle writes the evaluated status. EscalatedAt is only ever
// set, never cleared, by an evaluation.
func (t *sqlTx) UpdateLifecycle(ctx context.Context, u LifecycleUpdate) error {
	var escalatedAt interface{}
	if u.EscalatedAt != nil {
		escalatedAt = u.EscalatedAt.UTC()
	}

	result, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		UPDATE monitored_tasks SET
			lifecycle_status = ?,
			escalated_at = COALESCE(escalated_at, ?),
			last_evaluated_at = ?,
			updated_at = ?
		WHERE id = ?`),
		string(u.Status), escalatedAt, u.EvaluatedAt.UTC(), time.Now().UTC(), u.TaskID,
	)
	if err != nil {
		return fmt.Errorf("updating lifecycle of task %s: %w", u.TaskID, classify(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("updating lifecycle of task %s: %w", u.TaskID, ErrNotFound)
	}
	return nil
}

// InsertNotification appends n to the ledger. A conflicting row for the
// same task, kind and episode turns the insert into a no-op.
func (t *sqlTx) InsertNotification(ctx context.Context, n model.NotificationEvent) (bool, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}

	result, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		INSERT INTO notification_events (
			id, task_id, event_kind, episode, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (task_id, event_kind, episode) DO NOTHING`),
		n.ID, n.TaskID, string(n.Kind), n.Episode, n.Payload, n.CreatedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("inserting %s notification for task %s: %w", n.Kind, n.TaskID, classify(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading insert result: %w", classify(err))
	}
	return rows > 0, nil
}

// InsertJustification stores j unless the episode already has one.
func (t *sqlTx) InsertJustification(ctx context.Context, j model.JustificationRecord) (bool, error) {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}

	result, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		INSERT INTO justifications (
			id, task_id, episode, escalated_at, text, submitted_at, submitted_by
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (task_id, episode) DO NOTHING`),
		j.ID, j.TaskID, j.Episode, j.EscalatedAt.UTC(), j.Text, j.SubmittedAt.UTC(), j.SubmittedBy,
	)
	if err != nil {
		return false, fmt.Errorf("inserting justification for task %s: %w", j.TaskID, classify(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading insert result: %w", classify(err))
	}
	return rows > 0, nil
}

// GetJustification returns the justification recorded for an episode.
func (t *sqlTx) GetJustification(ctx context.Context, taskID string, episode int64) (*model.JustificationRecord, error) {
	var j model.JustificationRecord
	err := t.tx.GetContext(ctx, &j, t.tx.Rebind(
		"SELECT "+justificationColumns+" FROM justifications WHERE task_id = ? AND episode = ?"),
		taskID, episode,
	)
	if err != nil {
		return nil, fmt.Errorf("getting justification for task %s: %w", taskID, notFound(err))
	}
	return &j, nil
}

// AcknowledgeTask records the accepted justification on the task row.
func (t *sqlTx) AcknowledgeTask(ctx context.Context, taskID, text string, at time.Time) error {
	result, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		UPDATE monitored_tasks SET
			lifecycle_status = ?, justification = ?, updated_at = ?
		WHERE id = ?`),
		string(model.StatusAcknowledged), text, at.UTC(), taskID,
	)
	if err != nil {
		return fmt.Errorf("acknowledging task %s: %w", taskID, classify(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("acknowledging task %s: %w", taskID, ErrNotFound)
	}
	return nil
}

// ArchiveKind archives the live notification of kind for an episode.
// It is a no-op when there is none.
func (t *sqlTx) ArchiveKind(
	ctx context.Context,
	taskID string,
	kind model.EventKind,
	episode int64,
	actor string,
	at time.Time,
) error {
	_, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		UPDATE notification_events SET archived_at = ?, archived_by = ?
		WHERE task_id = ? AND event_kind = ? AND episode = ? AND archived_at IS NULL`),
		at.UTC(), actor, taskID, string(kind), episode,
	)
	if err != nil {
		return fmt.Errorf("archiving %s notification for task %s: %w", kind, taskID, classify(err))
	}
	return nil
}
