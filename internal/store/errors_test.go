package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/slawatch/internal/model"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(sqlx.NewDb(db, "postgres")), mock
}

func TestIsUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", driver.ErrBadConn, true},
		{"dial refused", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, true},
		{"pq connection failure", &pq.Error{Code: "08006"}, true},
		{"pq admin shutdown", &pq.Error{Code: "57P01"}, true},
		{"pq unique violation", &pq.Error{Code: "23505"}, false},
		{"plain", errors.New("syntax error"), false},
		{"already tagged", ErrUnavailable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUnavailable(tt.err))
		})
	}
}

func TestClassify_KeepsCause(t *testing.T) {
	cause := &pq.Error{Code: "08006", Message: "connection failure"}
	err := classify(cause)
	assert.ErrorIs(t, err, ErrUnavailable)

	var pqErr *pq.Error
	require.True(t, errors.As(err, &pqErr))
	assert.Equal(t, pq.ErrorCode("08006"), pqErr.Code)

	plain := errors.New("boom")
	assert.Same(t, plain, classify(plain))
}

func TestPostgres_ActiveTaskIDs_Unavailable(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM monitored_tasks WHERE lifecycle_status <> $1")).
		WithArgs(string(model.StatusCompleted)).
		WillReturnError(&net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset")})

	_, err := s.ActiveTaskIDs(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LockTaskUsesRowLock(t *testing.T) {
	s, mock := newMockStore(t)
	start := time.Date(2026, 10, 16, 3, 30, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "name", "scheduled_start", "sla_minutes", "lifecycle_status",
		"completed_at", "escalated_at", "justification", "last_evaluated_at",
		"created_at", "updated_at",
	}).AddRow("t1", "Clearing", start, 15, "PENDING", nil, nil, nil, nil, start, start)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM monitored_tasks WHERE id = \$1 FOR UPDATE`).
		WithArgs("t1").
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notification_events")).
		WithArgs(sqlmock.AnyArg(), "t1", "PRE_START", start.Unix(), "payload", start).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	var inserted bool
	err := s.WithinTx(context.Background(), func(tx Tx) error {
		task, err := tx.LockTask(context.Background(), "t1")
		if err != nil {
			return err
		}
		assert.Equal(t, "Clearing", task.Name)
		inserted, err = tx.InsertNotification(context.Background(), model.NotificationEvent{
			TaskID: "t1", Kind: model.EventPreStart, Episode: task.Episode(),
			Payload: "payload", CreatedAt: start,
		})
		return err
	})
	require.NoError(t, err)
	assert.False(t, inserted, "conflicting insert reports no row written")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetTaskNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM monitored_tasks WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetTask(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
