package monitor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/slawatch/internal/model"
	"github.com/nhle/slawatch/internal/monitor"
	"github.com/nhle/slawatch/internal/store"
)

func TestListNotifications_LiveCountdown(t *testing.T) {
	f := newFixture(t, at(t, "08:00:00"))
	f.seedClearing(t, "clearing")
	ctx := context.Background()

	f.syncAt(t, at(t, "09:00:01"))

	// Display text is derived on read; the stored payload keeps the
	// creation-time minutes.
	f.clock.Set(at(t, "09:14:50"))
	views, err := f.svc.ListNotifications(ctx, store.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, model.EventMissedStart, views[0].Kind)
	assert.Equal(t, "Clearing file validation", views[0].TaskName)
	assert.Equal(t, model.StatusDue, views[0].Status)
	assert.Equal(t, "1 min remaining", views[0].Countdown)
	assert.Contains(t, views[0].Payload, "15 min remaining")

	f.clock.Set(at(t, "09:22:30"))
	views, err = f.svc.ListNotifications(ctx, store.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, model.StatusSLABreached, views[0].Status)
	assert.Equal(t, "overdue by 7 min", views[0].Countdown)

	// Listing never commits anything.
	assert.Equal(t, model.StatusDue, f.status(t, "clearing"))
}

func TestListNotifications_Filters(t *testing.T) {
	f := newFixture(t, at(t, "08:00:00"))
	f.seedClearing(t, "clearing")
	ctx := context.Background()

	f.syncAt(t, at(t, "08:50:00"))
	f.syncAt(t, at(t, "09:40:00"))

	kind := model.EventEscalated
	views, err := f.svc.ListNotifications(ctx, store.NotificationFilter{Kind: &kind})
	require.NoError(t, err)
	require.Len(t, views, 1)

	from := at(t, "09:00:00")
	to := at(t, "10:00:00")
	views, err = f.svc.ListNotifications(ctx, store.NotificationFilter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Len(t, views, 3)

	bad := model.EventKind("SOMETHING")
	_, err = f.svc.ListNotifications(ctx, store.NotificationFilter{Kind: &bad})
	assert.ErrorIs(t, err, monitor.ErrValidation)

	_, err = f.svc.ListNotifications(ctx, store.NotificationFilter{Status: "pending"})
	assert.ErrorIs(t, err, monitor.ErrValidation)
}

func TestAcknowledgeReadAndArchive(t *testing.T) {
	f := newFixture(t, at(t, "08:00:00"))
	f.seedClearing(t, "clearing")
	ctx := context.Background()

	f.syncAt(t, at(t, "08:50:00"))
	views, err := f.svc.ListNotifications(ctx, store.NotificationFilter{Status: store.NotificationsUnread})
	require.NoError(t, err)
	require.Len(t, views, 1)
	id := views[0].ID

	require.NoError(t, f.svc.AcknowledgeRead(ctx, id, "alice"))
	require.NoError(t, f.svc.AcknowledgeRead(ctx, id, "alice"), "re-reading is a no-op")

	views, err = f.svc.ListNotifications(ctx, store.NotificationFilter{Status: store.NotificationsUnread})
	require.NoError(t, err)
	assert.Empty(t, views)

	require.NoError(t, f.svc.Archive(ctx, id, "alice"))
	require.NoError(t, f.svc.Archive(ctx, id, "alice"), "archiving twice is a no-op")

	assert.ErrorIs(t, f.svc.AcknowledgeRead(ctx, id, "alice"), monitor.ErrNotFound)
	assert.ErrorIs(t, f.svc.AcknowledgeRead(ctx, "missing", "alice"), monitor.ErrNotFound)
	assert.ErrorIs(t, f.svc.Archive(ctx, "missing", "alice"), monitor.ErrNotFound)

	// The archived PRE_START is not emitted again for the same episode.
	f.syncAt(t, at(t, "08:55:00"))
	assert.Equal(t, 1, f.kindCounts(t, "clearing")[model.EventPreStart])
}

func TestDashboard(t *testing.T) {
	f := newFixture(t, at(t, "08:00:00"))
	ctx := context.Background()
	f.seedClearing(t, "escalated")
	f.seedClearing(t, "acknowledged")
	require.NoError(t, f.store.UpsertTask(ctx, model.MonitoredTask{
		ID:             "later",
		Name:           "EOD reconciliation",
		ScheduledStart: at(t, "09:00:00").Add(8 * time.Hour),
		SLAMinutes:     60,
	}))

	f.syncAt(t, at(t, "09:31:00"))
	_, err := f.svc.SubmitJustification(ctx, "acknowledged", "Vendor outage upstream", "alice")
	require.NoError(t, err)

	summary, err := f.svc.Dashboard(ctx)
	require.NoError(t, err)
	// Six events emitted, one JUSTIFICATION_REQUIRED archived by the gate.
	assert.Equal(t, monitor.DashboardSummary{
		Total:                5,
		Unread:               5,
		Escalated:            2,
		JustificationPending: 1,
	}, summary)

	// Counts follow the clock even before the next tick commits.
	f.clock.Set(at(t, "18:20:00"))
	summary, err = f.svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Escalated)
	assert.Equal(t, 2, summary.JustificationPending)
}

func TestTasksFilterOnLiveStatus(t *testing.T) {
	f := newFixture(t, at(t, "09:20:00"))
	ctx := context.Background()
	f.seedClearing(t, "clearing")
	require.NoError(t, f.store.UpsertTask(ctx, model.MonitoredTask{
		ID:             "later",
		Name:           "EOD reconciliation",
		ScheduledStart: at(t, "17:00:00"),
		SLAMinutes:     60,
	}))

	// Nothing has been committed yet; both rows are stored as PENDING.
	tasks, err := f.svc.Tasks(ctx, store.TaskFilter{Statuses: []model.LifecycleStatus{model.StatusSLABreached}})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "clearing", tasks[0].ID)
	assert.Equal(t, model.StatusSLABreached, tasks[0].Status)
	assert.Equal(t, model.StatusPending, f.status(t, "clearing"))

	tasks, err = f.svc.Tasks(ctx, store.TaskFilter{Limit: 1, Statuses: []model.LifecycleStatus{
		model.StatusPending, model.StatusSLABreached,
	}})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestTaskDetail(t *testing.T) {
	f := newFixture(t, at(t, "08:00:00"))
	f.seedClearing(t, "clearing")
	ctx := context.Background()

	f.syncAt(t, at(t, "09:30:01"))
	f.clock.Set(at(t, "09:31:00"))
	_, err := f.svc.SubmitJustification(ctx, "clearing", "Bank delayed", "alice")
	require.NoError(t, err)

	f.clock.Set(at(t, "09:40:00"))
	detail, err := f.svc.TaskDetail(ctx, "clearing")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAcknowledged, detail.Task.Status)
	assert.Equal(t, "overdue by 25 min", detail.Countdown)
	assert.True(t, detail.Thresholds.BreachAt.Equal(at(t, "09:15:00")))
	assert.True(t, detail.Thresholds.EscalateAt.Equal(at(t, "09:30:00")))
	require.Len(t, detail.Justifications, 1)
	assert.Equal(t, "alice", detail.Justifications[0].SubmittedBy)

	_, err = f.svc.TaskDetail(ctx, "missing")
	assert.ErrorIs(t, err, monitor.ErrNotFound)
}
