package monitor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nhle/slawatch/internal/model"
	"github.com/nhle/slawatch/internal/sla"
)

// Metrics holds the Prometheus collectors for the evaluation engine.
type Metrics struct {
	Evaluations   *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	EventsEmitted *prometheus.CounterVec
	Anomalies     *prometheus.CounterVec
	SyncDuration  *prometheus.HistogramVec
	TicksSkipped  prometheus.Counter
	LastTick      prometheus.Gauge
	BreakerState  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "slawatch",
				Name:      "task_evaluations_total",
				Help:      "Per-task evaluations by outcome.",
			},
			[]string{"outcome"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "slawatch",
				Name:      "status_transitions_total",
				Help:      "Committed lifecycle transitions.",
			},
			[]string{"from", "to"},
		),
		EventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "slawatch",
				Name:      "events_emitted_total",
				Help:      "Notification events inserted into the ledger.",
			},
			[]string{"event_kind"},
		),
		Anomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "slawatch",
				Name:      "evaluation_anomalies_total",
				Help:      "Evaluations that held the stored status.",
			},
			[]string{"anomaly"},
		),
		SyncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "slawatch",
				Name:      "sync_duration_seconds",
				Help:      "Duration of evaluation passes over all active tasks.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"trigger"},
		),
		TicksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slawatch",
			Name:      "ticks_skipped_total",
			Help:      "Periodic ticks skipped because the previous tick was still running.",
		}),
		LastTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slawatch",
			Name:      "last_tick_timestamp_seconds",
			Help:      "Unix time at which the last periodic tick started.",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slawatch",
			Name:      "store_breaker_state",
			Help:      "Store circuit breaker state (0 closed, 1 half-open, 2 open).",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Evaluations,
			m.Transitions,
			m.EventsEmitted,
			m.Anomalies,
			m.SyncDuration,
			m.TicksSkipped,
			m.LastTick,
			m.BreakerState,
		)
	}
	return m
}

func (m *Metrics) observeEvaluation(res sla.Result, emitted []model.NotificationEvent) {
	if m == nil {
		return
	}
	if res.Anomaly != sla.AnomalyNone {
		m.Anomalies.WithLabelValues(string(res.Anomaly)).Inc()
		m.Evaluations.WithLabelValues("held").Inc()
	} else {
		m.Evaluations.WithLabelValues("ok").Inc()
	}
	if res.Changed() {
		m.Transitions.WithLabelValues(string(res.Previous), string(res.Status)).Inc()
	}
	for _, n := range emitted {
		m.EventsEmitted.WithLabelValues(string(n.Kind)).Inc()
	}
}

func (m *Metrics) observeFailure() {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues("failed").Inc()
}
