package monitor_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/slawatch/internal/model"
	"github.com/nhle/slawatch/internal/monitor"
	"github.com/nhle/slawatch/internal/store"
)

func TestSubmitJustification_AcknowledgesOnce(t *testing.T) {
	f := newFixture(t, at(t, "08:00:00"))
	f.seedClearing(t, "clearing")
	ctx := context.Background()

	f.syncAt(t, at(t, "09:30:01"))

	f.clock.Set(at(t, "09:31:00"))
	record, err := f.svc.SubmitJustification(ctx, "clearing", "Bank delayed", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Bank delayed", record.Text)
	assert.Equal(t, "alice", record.SubmittedBy)
	assert.True(t, record.EscalatedAt.Equal(at(t, "09:30:00")))
	assert.True(t, record.SubmittedAt.Equal(at(t, "09:31:00")))

	task, err := f.store.GetTask(ctx, "clearing")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAcknowledged, task.Status)
	require.NotNil(t, task.Justification)
	assert.Equal(t, "Bank delayed", *task.Justification)

	// The JUSTIFICATION_REQUIRED notification is resolved by archiving it.
	kind := model.EventJustificationRequired
	archived, err := f.store.GetNotifications(ctx, store.NotificationFilter{
		Kind: &kind, Status: store.NotificationsArchived,
	})
	require.NoError(t, err)
	require.Len(t, archived, 1)
	require.NotNil(t, archived[0].ArchivedBy)
	assert.Equal(t, "alice", *archived[0].ArchivedBy)

	f.clock.Set(at(t, "09:32:00"))
	_, err = f.svc.SubmitJustification(ctx, "clearing", "Second attempt text", "bob")
	assert.ErrorIs(t, err, monitor.ErrAlreadyAcknowledged)

	// Later ticks hold ACKNOWLEDGED until completion.
	f.syncAt(t, at(t, "11:00:00"))
	assert.Equal(t, model.StatusAcknowledged, f.status(t, "clearing"))

	_, err = f.svc.CompleteTask(ctx, "clearing", at(t, "11:05:00"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, f.status(t, "clearing"))

	records, err := f.svc.Justifications(ctx, "clearing")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSubmitJustification_RequiresEscalated(t *testing.T) {
	f := newFixture(t, at(t, "08:00:00"))
	f.seedClearing(t, "clearing")
	ctx := context.Background()

	f.clock.Set(at(t, "09:20:00"))
	_, err := f.svc.SubmitJustification(ctx, "clearing", "A long enough reason", "alice")
	assert.ErrorIs(t, err, monitor.ErrInvalidState)

	// The re-evaluation done by the gate is still committed.
	assert.Equal(t, model.StatusSLABreached, f.status(t, "clearing"))

	_, err = f.svc.SubmitJustification(ctx, "missing", "A long enough reason", "alice")
	assert.ErrorIs(t, err, monitor.ErrNotFound)
}

func TestSubmitJustification_EvaluatesAtCurrentInstant(t *testing.T) {
	f := newFixture(t, at(t, "08:00:00"))
	f.seedClearing(t, "clearing")

	// No tick has run since escalation; the gate sees ESCALATED anyway.
	f.clock.Set(at(t, "09:35:00"))
	_, err := f.svc.SubmitJustification(context.Background(), "clearing", "Upstream file arrived late", "alice")
	require.NoError(t, err)

	assert.Equal(t, model.StatusAcknowledged, f.status(t, "clearing"))
	assert.Equal(t, 1, f.kindCounts(t, "clearing")[model.EventEscalated])
}

func TestSubmitJustification_Validation(t *testing.T) {
	f := newFixture(t, at(t, "08:00:00"))
	f.seedClearing(t, "clearing")
	ctx := context.Background()

	f.syncAt(t, at(t, "09:31:00"))

	_, err := f.svc.SubmitJustification(ctx, "clearing", "   late    ", "alice")
	require.ErrorIs(t, err, monitor.ErrValidation)

	var vErr *monitor.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 10, vErr.MinLength)
	assert.Equal(t, 4, vErr.Got)

	_, err = f.svc.SubmitJustification(ctx, "clearing", "A long enough reason", "  ")
	assert.ErrorIs(t, err, monitor.ErrValidation)

	assert.Equal(t, model.StatusEscalated, f.status(t, "clearing"))
	records, err := f.svc.Justifications(ctx, "clearing")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSubmitJustification_ConcurrentSubmissionsAcceptOne(t *testing.T) {
	f := newFixture(t, at(t, "08:00:00"))
	f.seedClearing(t, "clearing")
	f.syncAt(t, at(t, "09:31:00"))

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.SubmitJustification(context.Background(), "clearing", "Settlement batch was late", "alice")
		}(i)
	}
	wg.Wait()

	accepted, duplicate := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			accepted++
		case assert.ErrorIs(t, err, monitor.ErrAlreadyAcknowledged):
			duplicate++
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, n-1, duplicate)

	records, err := f.svc.Justifications(context.Background(), "clearing")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
