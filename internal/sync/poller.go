package sync

import (
	"context"
	gosync "sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/slawatch/internal/model"
	"github.com/nhle/slawatch/internal/monitor"
)

// TickState represents the current state of the evaluation loop.
type TickState int

const (
	TickIdle TickState = iota
	TickRunning
	TickFailed
)

func (s TickState) String() string {
	switch s {
	case TickRunning:
		return "running"
	case TickFailed:
		return "failed"
	}
	return "idle"
}

// Status holds the observable state of the poller.
type Status struct {
	State TickState

	// LastTick is when the most recent pass started. It carries a
	// monotonic clock reading.
	LastTick time.Time

	// LastSuccess is when the most recent pass finished without error.
	LastSuccess time.Time

	LastResult monitor.SyncResult
	Skipped    uint64
	Error      error
}

// SyncResultMsg is a tea.Msg sent when an evaluation pass completes.
type SyncResultMsg struct {
	Result  monitor.SyncResult
	Trigger string
	Error   error
}

// Syncer runs one evaluation pass over all active tasks.
type Syncer interface {
	Sync(ctx context.Context, trigger string) (monitor.SyncResult, error)
}

// defaultTimeout bounds a single pass when none is configured.
const defaultTimeout = 10 * time.Second

// Poller drives periodic evaluation passes. A pass that is due while the
// previous one is still running is skipped, not queued.
type Poller struct {
	syncer   Syncer
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
	metrics  *monitor.Metrics

	resultCh  chan SyncResultMsg
	triggerCh chan struct{}
	stopCh    chan struct{}

	busy    atomic.Bool
	skipped atomic.Uint64

	mu      gosync.Mutex
	running bool
	status  Status
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger sets the poller's logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) { p.log = l }
}

// WithMetrics records skipped ticks and tick times.
func WithMetrics(m *monitor.Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

// New creates a Poller calling syncer every cfg.Interval.
func New(syncer Syncer, cfg model.LoopConfig, opts ...Option) *Poller {
	p := &Poller{
		syncer:    syncer,
		interval:  cfg.Interval,
		timeout:   cfg.SyncTimeout,
		log:       zap.NewNop(),
		resultCh:  make(chan SyncResultMsg, 16),
		triggerCh: make(chan struct{}, 1),
	}
	if p.interval <= 0 {
		p.interval = 30 * time.Second
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.Named("poller")
	return p
}

// Start returns a tea.Cmd that starts the loop in the background and
// subscribes to results. The returned command waits on the result
// channel and returns SyncResultMsg messages to the Bubble Tea runtime.
func (p *Poller) Start() tea.Cmd {
	stop, ok := p.markRunning()
	if !ok {
		return nil
	}
	go p.loop(context.Background(), stop)
	return p.waitForResult()
}

// Run drives the loop until ctx is cancelled or Stop is called. In-flight
// passes are waited for before it returns.
func (p *Poller) Run(ctx context.Context) {
	stop, ok := p.markRunning()
	if !ok {
		return
	}
	p.loop(ctx, stop)
}

// markRunning claims the loop and hands it a fresh stop channel, so the
// poller can be started again after Stop.
func (p *Poller) markRunning() (chan struct{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil, false
	}
	p.running = true
	p.stopCh = make(chan struct{})
	return p.stopCh, true
}

// markStopped releases the loop that owned stop, unless Stop already did.
func (p *Poller) markStopped(stop chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running && p.stopCh == stop {
		p.running = false
	}
}

// Stop halts the loop.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false
}

// Trigger requests an immediate pass without waiting for the next tick.
func (p *Poller) Trigger() tea.Cmd {
	select {
	case p.triggerCh <- struct{}{}:
	default:
		// A trigger is already pending.
	}
	return nil
}

// Status returns the current loop status.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.status
	st.Skipped = p.skipped.Load()
	return st
}

// loop runs the ticker. Each pass runs in its own goroutine so that a slow
// pass shows up as skipped ticks rather than a drifting schedule.
func (p *Poller) loop(ctx context.Context, stop chan struct{}) {
	defer p.markStopped(stop)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var wg gosync.WaitGroup
	defer wg.Wait()

	spawn := func(trigger string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.tick(ctx, trigger)
		}()
	}

	// Evaluate immediately on start.
	spawn(monitor.TriggerTimer)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			spawn(monitor.TriggerTimer)
		case <-p.triggerCh:
			spawn(monitor.TriggerManual)
		}
	}
}

// tick performs one pass unless another is still running.
func (p *Poller) tick(ctx context.Context, trigger string) {
	if !p.busy.CompareAndSwap(false, true) {
		n := p.skipped.Add(1)
		if p.metrics != nil {
			p.metrics.TicksSkipped.Inc()
		}
		p.log.Warn("previous pass still running, skipping tick",
			zap.String("trigger", trigger),
			zap.Uint64("skipped_total", n),
		)
		return
	}
	defer p.busy.Store(false)

	started := time.Now()
	p.setRunning(started)
	if p.metrics != nil {
		p.metrics.LastTick.Set(float64(started.Unix()))
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res, err := p.syncer.Sync(ctx, trigger)
	p.setDone(res, err)
	if err != nil {
		p.log.Warn("evaluation pass failed",
			zap.String("trigger", trigger),
			zap.Int("tasks_evaluated", res.TasksEvaluated),
			zap.Error(err),
		)
	}

	p.sendResult(SyncResultMsg{Result: res, Trigger: trigger, Error: err})
}

func (p *Poller) setRunning(at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.State = TickRunning
	p.status.LastTick = at
}

func (p *Poller) setDone(res monitor.SyncResult, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.LastResult = res
	p.status.Error = err
	if err != nil {
		p.status.State = TickFailed
		return
	}
	p.status.State = TickIdle
	p.status.LastSuccess = time.Now()
}

// sendResult sends a SyncResultMsg on the result channel without blocking.
func (p *Poller) sendResult(msg SyncResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}

// waitForResult returns a tea.Cmd that waits for the next result from
// the result channel.
func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-p.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next pass result.
// This should be called after processing a SyncResultMsg to continue
// listening for future results.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
