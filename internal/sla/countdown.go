package sla

import (
	"fmt"
	"time"

	"github.com/nhle/slawatch/internal/model"
)

// CeilMinutes rounds a remaining duration up to whole minutes, so a task
// still inside a window never shows zero time left. Non-positive durations
// return 0.
func CeilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	m := d / time.Minute
	if d%time.Minute != 0 {
		m++
	}
	return int(m)
}

// FloorMinutes truncates an elapsed duration to whole minutes.
// Non-positive durations return 0.
func FloorMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Minute)
}

// Countdown renders the live display text for task in status at now.
// It is derived on every read and never stored.
func Countdown(task model.MonitoredTask, status model.LifecycleStatus, now time.Time, p Policy) string {
	th := p.Thresholds(task)
	switch status {
	case model.StatusPending, model.StatusPreStart:
		return fmt.Sprintf("starts in %d min", CeilMinutes(th.Start.Sub(now)))
	case model.StatusDue:
		return fmt.Sprintf("%d min remaining", CeilMinutes(th.BreachAt.Sub(now)))
	case model.StatusSLABreached, model.StatusEscalated, model.StatusAcknowledged:
		return fmt.Sprintf("overdue by %d min", FloorMinutes(now.Sub(th.BreachAt)))
	case model.StatusCompleted:
		if task.CompletedAt == nil || !task.CompletedAt.After(th.BreachAt) {
			return "completed within SLA"
		}
		return fmt.Sprintf("completed %d min late", FloorMinutes(task.CompletedAt.Sub(th.BreachAt)))
	}
	return ""
}

// Payload renders the summary stored with a newly emitted event. The
// minutes shown are those at creation time.
func Payload(kind model.EventKind, task model.MonitoredTask, now time.Time, p Policy) string {
	th := p.Thresholds(task)
	start := th.Start.Format("15:04 MST")
	switch kind {
	case model.EventPreStart:
		return fmt.Sprintf("%s starts at %s (in %d min)",
			task.Name, start, CeilMinutes(th.Start.Sub(now)))
	case model.EventMissedStart:
		if now.Before(th.BreachAt) {
			return fmt.Sprintf("%s has not completed since its %s start; %d min remaining in SLA",
				task.Name, start, CeilMinutes(th.BreachAt.Sub(now)))
		}
		return fmt.Sprintf("%s has not completed since its %s start; overdue by %d min",
			task.Name, start, FloorMinutes(now.Sub(th.BreachAt)))
	case model.EventEscalated:
		return fmt.Sprintf("%s escalated: overdue by %d min against a %d min SLA",
			task.Name, FloorMinutes(now.Sub(th.BreachAt)), task.SLAMinutes)
	case model.EventJustificationRequired:
		return fmt.Sprintf("%s requires a written justification before further action",
			task.Name)
	}
	return task.Name
}
