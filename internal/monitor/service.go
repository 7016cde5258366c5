// Package monitor drives the lifecycle evaluator against the store. It owns
// the evaluation commit routine shared by the periodic loop and on-demand
// syncs, the acknowledgment gate, and the read-side queries.
package monitor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/nhle/slawatch/internal/clock"
	"github.com/nhle/slawatch/internal/model"
	"github.com/nhle/slawatch/internal/sla"
	"github.com/nhle/slawatch/internal/store"
)

// Service evaluates monitored tasks and exposes the notification and
// justification operations.
type Service struct {
	store       store.Store
	clock       clock.Clock
	policy      sla.Policy
	log         *zap.Logger
	breaker     *gobreaker.CircuitBreaker
	metrics     *Metrics
	publisher   Publisher
	taskTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the system clock.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger. The service logs under the "monitor" name.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPublisher sets where newly emitted events are fanned out.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithTaskTimeout bounds each per-task transaction.
func WithTaskTimeout(d time.Duration) Option {
	return func(s *Service) { s.taskTimeout = d }
}

// WithBreaker tunes the circuit breaker around store work.
func WithBreaker(cfg model.BreakerConfig) Option {
	return func(s *Service) { s.breaker = s.newBreaker(cfg) }
}

// New creates a Service over st applying policy p.
func New(st store.Store, p sla.Policy, opts ...Option) *Service {
	s := &Service{
		store:     st,
		clock:     clock.Real{},
		policy:    p,
		log:       zap.NewNop(),
		publisher: NopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("monitor")
	if s.breaker == nil {
		s.breaker = s.newBreaker(model.BreakerConfig{MaxFailures: 3, OpenTimeout: 30 * time.Second})
	}
	return s
}

func (s *Service) newBreaker(cfg model.BreakerConfig) *gobreaker.CircuitBreaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 3
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "store",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Only connectivity failures count against the store.
		IsSuccessful: func(err error) bool {
			return err == nil || !store.IsUnavailable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.log.Warn("store breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if s.metrics != nil {
				s.metrics.BreakerState.Set(float64(to))
			}
		},
	})
}

// Policy returns the threshold policy in force.
func (s *Service) Policy() sla.Policy {
	return s.policy
}

// Now returns the service clock's current instant.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// BreakerState reports the store circuit breaker state.
func (s *Service) BreakerState() gobreaker.State {
	return s.breaker.State()
}

// Ping checks store connectivity.
func (s *Service) Ping(ctx context.Context) error {
	return translate(s.store.Ping(ctx))
}

// guard runs fn through the circuit breaker.
func (s *Service) guard(fn func() error) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// Evaluation is the committed outcome of evaluating one task.
type Evaluation struct {
	// Task reflects the row after the commit.
	Task model.MonitoredTask `json:"task"`

	Result sla.Result `json:"-"`

	// At is the evaluation instant.
	At time.Time `json:"evaluated_at"`

	// Emitted holds the events this evaluation inserted. Kinds already in
	// the ledger for the episode are not repeated.
	Emitted []model.NotificationEvent `json:"emitted"`
}

// EvaluateTask evaluates a single task at the current instant and commits
// the result.
func (s *Service) EvaluateTask(ctx context.Context, id string) (*Evaluation, error) {
	ev, err := s.commitTask(ctx, id, "task")
	if err != nil {
		return nil, translate(err)
	}
	return ev, nil
}

// commitTask evaluates one task inside a transaction, then publishes the
// events it inserted.
func (s *Service) commitTask(ctx context.Context, id string, trigger string) (*Evaluation, error) {
	var ev *Evaluation
	err := s.guard(func() error {
		return s.store.WithinTx(ctx, func(tx store.Tx) error {
			var err error
			ev, err = s.evaluateLocked(ctx, tx, id)
			return err
		})
	})
	if err != nil {
		s.metrics.observeFailure()
		return nil, err
	}

	s.afterCommit(ctx, ev, trigger)
	return ev, nil
}

// evaluateLocked locks the task row, evaluates it, inserts missing events
// and writes the lifecycle status, all through tx. The evaluation instant
// is read only once the row is locked, so concurrent passes over the same
// task commit in clock order.
func (s *Service) evaluateLocked(ctx context.Context, tx store.Tx, id string) (*Evaluation, error) {
	task, err := tx.LockTask(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	res := sla.Evaluate(*task, now, s.policy)
	ev := &Evaluation{Task: *task, Result: res, At: now}

	// A clock running backwards must not move last_evaluated_at back.
	if res.Anomaly == sla.AnomalyClockSkew {
		return ev, nil
	}

	for _, kind := range res.Events {
		n := model.NotificationEvent{
			ID:        uuid.New().String(),
			TaskID:    task.ID,
			Kind:      kind,
			Episode:   task.Episode(),
			Payload:   sla.Payload(kind, *task, now, s.policy),
			CreatedAt: now,
		}
		inserted, err := tx.InsertNotification(ctx, n)
		if err != nil {
			return nil, err
		}
		if inserted {
			ev.Emitted = append(ev.Emitted, n)
		}
	}

	if err := tx.UpdateLifecycle(ctx, store.LifecycleUpdate{
		TaskID:      task.ID,
		Status:      res.Status,
		EscalatedAt: res.EscalatedAt,
		EvaluatedAt: now,
	}); err != nil {
		return nil, err
	}

	ev.Task.Status = res.Status
	ev.Task.LastEvaluatedAt = &now
	if ev.Task.EscalatedAt == nil && res.EscalatedAt != nil {
		ev.Task.EscalatedAt = res.EscalatedAt
	}
	return ev, nil
}

// afterCommit logs, records metrics and publishes for a committed
// evaluation.
func (s *Service) afterCommit(ctx context.Context, ev *Evaluation, trigger string) {
	res := ev.Result
	s.metrics.observeEvaluation(res, ev.Emitted)

	switch res.Anomaly {
	case sla.AnomalyClockSkew:
		s.log.Warn("clock skew detected, holding status",
			zap.String("task_id", ev.Task.ID),
			zap.String("status", string(res.Status)),
			zap.String("anomaly", string(res.Anomaly)),
			zap.String("trigger", trigger),
		)
	case sla.AnomalyRegression:
		s.log.Warn("time-derived status behind stored status, holding",
			zap.String("task_id", ev.Task.ID),
			zap.String("status", string(res.Status)),
			zap.String("anomaly", string(res.Anomaly)),
			zap.String("trigger", trigger),
		)
	}

	if res.Changed() {
		s.log.Info("task status changed",
			zap.String("task_id", ev.Task.ID),
			zap.String("from", string(res.Previous)),
			zap.String("status", string(res.Status)),
			zap.String("trigger", trigger),
		)
	}
	for _, n := range ev.Emitted {
		s.log.Info("notification emitted",
			zap.String("task_id", n.TaskID),
			zap.String("event_kind", string(n.Kind)),
			zap.Int64("episode", n.Episode),
		)
	}

	if len(ev.Emitted) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, ev.Emitted); err != nil {
		s.log.Warn("publishing events failed",
			zap.String("task_id", ev.Task.ID),
			zap.Error(err),
		)
	}
}
