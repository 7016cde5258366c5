package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/slawatch/internal/model"
)

func kolkata(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return loc
}

func testPolicy(t *testing.T) Policy {
	p := DefaultPolicy()
	p.Location = kolkata(t)
	return p
}

func at(t *testing.T, hhmmss string) time.Time {
	t.Helper()
	v, err := time.ParseInLocation("2006-01-02 15:04:05", "2026-10-16 "+hhmmss, kolkata(t))
	require.NoError(t, err)
	return v
}

func clearingTask(t *testing.T) model.MonitoredTask {
	return model.MonitoredTask{
		ID:             "task-clearing",
		Name:           "Clearing file validation",
		ScheduledStart: at(t, "09:00:00"),
		SLAMinutes:     15,
		Status:         model.StatusPending,
	}
}

// step evaluates and then applies the result the way a commit would.
func step(task *model.MonitoredTask, now time.Time, p Policy) Result {
	res := Evaluate(*task, now, p)
	task.Status = res.Status
	if res.Anomaly == AnomalyNone {
		n := now
		task.LastEvaluatedAt = &n
	}
	if res.EscalatedAt != nil {
		task.EscalatedAt = res.EscalatedAt
	}
	return res
}

func TestEvaluate_ClearingScenario(t *testing.T) {
	p := testPolicy(t)
	task := clearingTask(t)

	tests := []struct {
		now    string
		status model.LifecycleStatus
		events []model.EventKind
	}{
		{"08:44:59", model.StatusPending, nil},
		{"08:46:01", model.StatusPreStart, []model.EventKind{model.EventPreStart}},
		{"08:59:59", model.StatusPreStart, []model.EventKind{model.EventPreStart}},
		{"09:00:01", model.StatusDue, []model.EventKind{model.EventMissedStart}},
		{"09:15:01", model.StatusSLABreached, []model.EventKind{model.EventMissedStart}},
		{"09:30:01", model.StatusEscalated, []model.EventKind{
			model.EventMissedStart, model.EventEscalated, model.EventJustificationRequired,
		}},
		{"11:00:00", model.StatusEscalated, []model.EventKind{
			model.EventMissedStart, model.EventEscalated, model.EventJustificationRequired,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.now, func(t *testing.T) {
			res := step(&task, at(t, tt.now), p)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.events, res.Events)
			assert.Equal(t, AnomalyNone, res.Anomaly)
		})
	}
}

func TestEvaluate_BoundariesAreInclusiveAtStart(t *testing.T) {
	p := testPolicy(t)
	task := clearingTask(t)
	th := p.Thresholds(task)

	assert.Equal(t, model.StatusPending, StatusAt(th, th.PreStartAt.Add(-time.Nanosecond)))
	assert.Equal(t, model.StatusPreStart, StatusAt(th, th.PreStartAt))
	assert.Equal(t, model.StatusDue, StatusAt(th, th.Start))
	assert.Equal(t, model.StatusSLABreached, StatusAt(th, th.BreachAt))
	assert.Equal(t, model.StatusEscalated, StatusAt(th, th.EscalateAt))
}

func TestEvaluate_EscalationRecordsThresholdInstant(t *testing.T) {
	p := testPolicy(t)
	task := clearingTask(t)
	task.Status = model.StatusSLABreached

	res := Evaluate(task, at(t, "09:31:17"), p)
	require.NotNil(t, res.EscalatedAt)
	assert.True(t, res.EscalatedAt.Equal(at(t, "09:30:00")))

	task.Status = model.StatusEscalated
	res = Evaluate(task, at(t, "09:45:00"), p)
	assert.Nil(t, res.EscalatedAt, "already escalated tasks do not restamp")
	assert.False(t, res.Changed())
}

func TestEvaluate_CatchUpSkipsPreStart(t *testing.T) {
	p := testPolicy(t)
	task := clearingTask(t)

	res := Evaluate(task, at(t, "09:40:00"), p)
	assert.Equal(t, model.StatusEscalated, res.Status)
	assert.NotContains(t, res.Events, model.EventPreStart)
	assert.Contains(t, res.Events, model.EventMissedStart)
}

func TestEvaluate_CompletionIsAbsorbing(t *testing.T) {
	p := testPolicy(t)
	task := clearingTask(t)
	task.Status = model.StatusDue
	done := at(t, "09:10:00")
	task.CompletedAt = &done

	for _, now := range []string{"09:10:01", "09:20:00", "09:45:00", "23:00:00"} {
		res := Evaluate(task, at(t, now), p)
		assert.Equal(t, model.StatusCompleted, res.Status, now)
		assert.Empty(t, res.Events, now)
	}
}

func TestEvaluate_AcknowledgedHoldsUntilCompletion(t *testing.T) {
	p := testPolicy(t)
	task := clearingTask(t)
	task.Status = model.StatusAcknowledged

	res := Evaluate(task, at(t, "12:00:00"), p)
	assert.Equal(t, model.StatusAcknowledged, res.Status)
	assert.Empty(t, res.Events)
	assert.Equal(t, AnomalyNone, res.Anomaly)

	done := at(t, "12:05:00")
	task.CompletedAt = &done
	res = Evaluate(task, at(t, "12:06:00"), p)
	assert.Equal(t, model.StatusCompleted, res.Status)
}

func TestEvaluate_EscalatedDoesNotAdvanceByTime(t *testing.T) {
	p := testPolicy(t)
	task := clearingTask(t)
	task.Status = model.StatusEscalated

	res := Evaluate(task, at(t, "23:59:00"), p)
	assert.Equal(t, model.StatusEscalated, res.Status)
}

func TestEvaluate_ClockSkewHoldsStatus(t *testing.T) {
	p := testPolicy(t)
	task := clearingTask(t)
	task.Status = model.StatusDue
	last := at(t, "09:05:00")
	task.LastEvaluatedAt = &last

	res := Evaluate(task, at(t, "08:50:00"), p)
	assert.Equal(t, AnomalyClockSkew, res.Anomaly)
	assert.Equal(t, model.StatusDue, res.Status)
	assert.Empty(t, res.Events)
	assert.False(t, res.Changed())
}

func TestEvaluate_RegressionHoldsStatus(t *testing.T) {
	p := testPolicy(t)
	task := clearingTask(t)
	task.Status = model.StatusSLABreached
	task.SLAMinutes = 120

	res := Evaluate(task, at(t, "09:20:00"), p)
	assert.Equal(t, AnomalyRegression, res.Anomaly)
	assert.Equal(t, model.StatusSLABreached, res.Status)
}

func TestEvaluate_MonotonicOverTime(t *testing.T) {
	p := testPolicy(t)
	task := clearingTask(t)

	start := at(t, "08:00:00")
	lastRank := -1
	for i := 0; i < 4*60*4; i++ {
		now := start.Add(time.Duration(i) * 15 * time.Second)
		res := step(&task, now, p)
		require.GreaterOrEqual(t, res.Status.Rank(), lastRank, "regressed at %s", now)
		lastRank = res.Status.Rank()
	}
	assert.Equal(t, model.StatusEscalated, task.Status)
}

func TestEvaluate_ZoneIndependent(t *testing.T) {
	p := testPolicy(t)
	task := clearingTask(t)
	task.ScheduledStart = task.ScheduledStart.UTC()

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := at(t, "09:00:30").In(ny)

	res := Evaluate(task, now, p)
	assert.Equal(t, model.StatusDue, res.Status)
	assert.Equal(t, "Asia/Kolkata", res.Thresholds.Start.Location().String())
}
