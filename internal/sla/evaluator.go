package sla

import (
	"time"

	"github.com/nhle/slawatch/internal/model"
)

// Anomaly flags an evaluation that held the stored status instead of
// applying the time-derived one.
type Anomaly string

const (
	AnomalyNone Anomaly = ""

	// AnomalyClockSkew means now is earlier than the task's last
	// recorded evaluation.
	AnomalyClockSkew Anomaly = "clock_skew"

	// AnomalyRegression means the time-derived status is behind the
	// stored one, for example after the SLA was lengthened in place.
	AnomalyRegression Anomaly = "regression"
)

// Result is the outcome of evaluating one task at one instant.
type Result struct {
	// Status is the lifecycle status the task should hold after commit.
	Status model.LifecycleStatus

	// Previous is the stored status the evaluation started from.
	Previous model.LifecycleStatus

	// Events are the event kinds owed for the episode so far. The ledger
	// drops kinds that were already recorded.
	Events []model.EventKind

	// EscalatedAt is set when this evaluation moves the task into
	// ESCALATED; it is the escalation threshold instant.
	EscalatedAt *time.Time

	// Anomaly is non-empty when the stored status was held.
	Anomaly Anomaly

	Thresholds Thresholds
}

// Changed reports whether the status differs from the stored one.
func (r Result) Changed() bool {
	return r.Status != r.Previous
}

// StatusAt returns the purely time-derived status for th at now, ignoring
// completion and the justification gate.
func StatusAt(th Thresholds, now time.Time) model.LifecycleStatus {
	switch {
	case now.Before(th.PreStartAt):
		return model.StatusPending
	case now.Before(th.Start):
		return model.StatusPreStart
	case now.Before(th.BreachAt):
		return model.StatusDue
	case now.Before(th.EscalateAt):
		return model.StatusSLABreached
	default:
		return model.StatusEscalated
	}
}

// Evaluate computes the status task should hold at now and the events owed
// for it. It never fails: conditions that prevent a forward transition are
// reported through Result.Anomaly.
func Evaluate(task model.MonitoredTask, now time.Time, p Policy) Result {
	now = now.In(p.location())
	th := p.Thresholds(task)
	prev := task.Status
	if !prev.Valid() {
		prev = model.StatusPending
	}

	res := Result{Previous: task.Status, Status: prev, Thresholds: th}

	if task.CompletedAt != nil {
		res.Status = model.StatusCompleted
		return res
	}

	if task.LastEvaluatedAt != nil && now.Before(*task.LastEvaluatedAt) {
		res.Anomaly = AnomalyClockSkew
		return res
	}

	next := StatusAt(th, now)

	switch {
	case prev == model.StatusAcknowledged:
		// Held until completion; elapsed time cannot move it.
		if next != model.StatusEscalated {
			res.Anomaly = AnomalyRegression
		}
		return res
	case prev == model.StatusCompleted:
		// Completion was recorded but completed_at is gone; never reopen
		// an episode from here.
		res.Anomaly = AnomalyRegression
		return res
	case next.Rank() < prev.Rank():
		res.Anomaly = AnomalyRegression
		return res
	}

	res.Status = next
	res.Events = eventsFor(next)
	if next == model.StatusEscalated && prev != model.StatusEscalated {
		at := th.EscalateAt
		res.EscalatedAt = &at
	}
	return res
}

// eventsFor lists the event kinds owed once a task has reached status.
// PRE_START is only owed inside its own window; a task first observed
// after its start skips straight to MISSED_START.
func eventsFor(status model.LifecycleStatus) []model.EventKind {
	switch status {
	case model.StatusPreStart:
		return []model.EventKind{model.EventPreStart}
	case model.StatusDue, model.StatusSLABreached:
		return []model.EventKind{model.EventMissedStart}
	case model.StatusEscalated:
		return []model.EventKind{
			model.EventMissedStart,
			model.EventEscalated,
			model.EventJustificationRequired,
		}
	}
	return nil
}
