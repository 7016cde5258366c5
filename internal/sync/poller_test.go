package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/slawatch/internal/model"
	"github.com/nhle/slawatch/internal/monitor"
)

// blockingSyncer blocks each pass until released.
type blockingSyncer struct {
	mu       gosync.Mutex
	calls    []string
	started  chan struct{}
	release  chan struct{}
	err      error
	evaluate int
}

func newBlockingSyncer() *blockingSyncer {
	return &blockingSyncer{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (s *blockingSyncer) Sync(ctx context.Context, trigger string) (monitor.SyncResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, trigger)
	s.mu.Unlock()
	s.started <- struct{}{}

	select {
	case <-s.release:
	case <-ctx.Done():
		return monitor.SyncResult{}, ctx.Err()
	}
	return monitor.SyncResult{TasksEvaluated: s.evaluate}, s.err
}

func (s *blockingSyncer) triggers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func TestTick_SkipsWhileRunning(t *testing.T) {
	syncer := newBlockingSyncer()
	syncer.evaluate = 4
	metrics := monitor.NewMetrics(prometheus.NewRegistry())
	p := New(syncer, model.LoopConfig{Interval: time.Hour, SyncTimeout: time.Minute}, WithMetrics(metrics))

	done := make(chan struct{})
	go func() {
		p.tick(context.Background(), monitor.TriggerTimer)
		close(done)
	}()
	<-syncer.started
	assert.Equal(t, TickRunning, p.Status().State)

	// Overlapping ticks return immediately without calling the syncer.
	p.tick(context.Background(), monitor.TriggerTimer)
	p.tick(context.Background(), monitor.TriggerManual)

	close(syncer.release)
	<-done

	st := p.Status()
	assert.Equal(t, uint64(2), st.Skipped)
	assert.Equal(t, TickIdle, st.State)
	assert.Equal(t, 4, st.LastResult.TasksEvaluated)
	assert.False(t, st.LastTick.IsZero())
	assert.False(t, st.LastSuccess.Before(st.LastTick))
	assert.Equal(t, []string{monitor.TriggerTimer}, syncer.triggers())
	assert.Equal(t, 2.0, promtest.ToFloat64(metrics.TicksSkipped))

	msg := (p.WaitForNextResult()()).(SyncResultMsg)
	assert.NoError(t, msg.Error)
	assert.Equal(t, monitor.TriggerTimer, msg.Trigger)
}

func TestTick_RecordsFailure(t *testing.T) {
	syncer := newBlockingSyncer()
	syncer.err = errors.New("store down")
	close(syncer.release)
	p := New(syncer, model.LoopConfig{Interval: time.Hour})

	p.tick(context.Background(), monitor.TriggerTimer)

	st := p.Status()
	assert.Equal(t, TickFailed, st.State)
	assert.EqualError(t, st.Error, "store down")
	assert.True(t, st.LastSuccess.IsZero())

	// The loop recovers on the next successful pass.
	syncer.err = nil
	p.tick(context.Background(), monitor.TriggerTimer)
	assert.Equal(t, TickIdle, p.Status().State)
}

func TestTick_AppliesTimeout(t *testing.T) {
	syncer := newBlockingSyncer()
	p := New(syncer, model.LoopConfig{Interval: time.Hour, SyncTimeout: 10 * time.Millisecond})

	p.tick(context.Background(), monitor.TriggerTimer)
	assert.ErrorIs(t, p.Status().Error, context.DeadlineExceeded)
}

func TestRun_EvaluatesOnStartAndOnTrigger(t *testing.T) {
	syncer := newBlockingSyncer()
	close(syncer.release)
	p := New(syncer, model.LoopConfig{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(stopped)
	}()

	<-syncer.started
	// Wait for the first pass to finish so the trigger is not skipped.
	require.Eventually(t, func() bool {
		return !p.busy.Load() && !p.Status().LastSuccess.IsZero()
	}, time.Second, time.Millisecond)

	p.Trigger()
	<-syncer.started

	cancel()
	<-stopped
	assert.Equal(t, []string{monitor.TriggerTimer, monitor.TriggerManual}, syncer.triggers())
}

func TestRun_RestartsAfterStop(t *testing.T) {
	syncer := newBlockingSyncer()
	close(syncer.release)
	p := New(syncer, model.LoopConfig{Interval: time.Hour})

	run := func() chan struct{} {
		stopped := make(chan struct{})
		go func() {
			p.Run(context.Background())
			close(stopped)
		}()
		<-syncer.started
		require.Eventually(t, func() bool { return !p.busy.Load() }, time.Second, time.Millisecond)
		return stopped
	}

	stopped := run()
	p.Stop()
	<-stopped

	// The second loop keeps running until told to stop.
	stopped = run()
	p.Trigger()
	<-syncer.started
	require.Eventually(t, func() bool { return !p.busy.Load() }, time.Second, time.Millisecond)

	p.Stop()
	<-stopped
	assert.Equal(t, []string{monitor.TriggerTimer, monitor.TriggerTimer, monitor.TriggerManual}, syncer.triggers())
}

func TestRun_RestartsAfterContextCancel(t *testing.T) {
	syncer := newBlockingSyncer()
	close(syncer.release)
	p := New(syncer, model.LoopConfig{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)
	<-syncer.started

	stopped := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(stopped)
	}()
	<-syncer.started

	require.Eventually(t, func() bool { return !p.busy.Load() }, time.Second, time.Millisecond)

	p.Stop()
	<-stopped
	assert.Len(t, syncer.triggers(), 2)
}
