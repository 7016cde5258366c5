// Package sla holds the threshold policy and the pure lifecycle evaluator
// for monitored tasks. Nothing in this package performs I/O.
package sla

import (
	"fmt"
	"time"

	"github.com/nhle/slawatch/internal/model"
)

// Policy is the threshold configuration applied to every task.
type Policy struct {
	PreStartLead           time.Duration
	EscalationDelay        time.Duration
	MinJustificationLength int

	// Location is the canonical zone used for display and for parsing
	// wall-clock schedules. Threshold math is zone independent.
	Location *time.Location
}

// DefaultPolicy returns the built-in thresholds in UTC.
func DefaultPolicy() Policy {
	return Policy{
		PreStartLead:           15 * time.Minute,
		EscalationDelay:        15 * time.Minute,
		MinJustificationLength: 10,
		Location:               time.UTC,
	}
}

// PolicyFromConfig builds a Policy from application configuration.
func PolicyFromConfig(cfg *model.AppConfig) (Policy, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Policy{}, err
	}
	p := Policy{
		PreStartLead:           cfg.Policy.PreStartLead,
		EscalationDelay:        cfg.Policy.EscalationDelay,
		MinJustificationLength: cfg.Policy.MinJustificationLength,
		Location:               loc,
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate rejects policies the evaluator cannot apply.
func (p Policy) Validate() error {
	if p.PreStartLead < 0 {
		return fmt.Errorf("pre-start lead must not be negative: %s", p.PreStartLead)
	}
	if p.EscalationDelay < 0 {
		return fmt.Errorf("escalation delay must not be negative: %s", p.EscalationDelay)
	}
	if p.MinJustificationLength < 1 {
		return fmt.Errorf("minimum justification length must be at least 1: %d", p.MinJustificationLength)
	}
	return nil
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Thresholds are the instants at which a task changes state.
type Thresholds struct {
	PreStartAt time.Time `json:"pre_start_at"`
	Start      time.Time `json:"start"`
	BreachAt   time.Time `json:"breach_at"`
	EscalateAt time.Time `json:"escalate_at"`
}

// Thresholds computes the state boundaries for task under p, normalized to
// the policy's canonical zone.
func (p Policy) Thresholds(task model.MonitoredTask) Thresholds {
	start := task.ScheduledStart.In(p.location())
	breach := start.Add(time.Duration(task.SLAMinutes) * time.Minute)
	return Thresholds{
		PreStartAt: start.Add(-p.PreStartLead),
		Start:      start,
		BreachAt:   breach,
		EscalateAt: breach.Add(p.EscalationDelay),
	}
}

// ParseSchedule interprets a "2006-01-02 15:04" wall-clock value in the
// policy's canonical zone, independent of the host's local zone.
func (p Policy) ParseSchedule(value string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04", value, p.location())
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing schedule %q: %w", value, err)
	}
	return t, nil
}
