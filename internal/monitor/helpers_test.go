package monitor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/slawatch/internal/clock"
	"github.com/nhle/slawatch/internal/model"
	"github.com/nhle/slawatch/internal/monitor"
	"github.com/nhle/slawatch/internal/sla"
	"github.com/nhle/slawatch/internal/store"
	"github.com/nhle/slawatch/tests/testutil"
)

func kolkata(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return loc
}

func at(t *testing.T, hhmmss string) time.Time {
	t.Helper()
	v, err := time.ParseInLocation("2006-01-02 15:04:05", "2026-10-16 "+hhmmss, kolkata(t))
	require.NoError(t, err)
	return v
}

func testPolicy(t *testing.T) sla.Policy {
	p := sla.DefaultPolicy()
	p.Location = kolkata(t)
	return p
}

type fixture struct {
	svc   *monitor.Service
	store store.Store
	clock *clock.Fake
}

func newFixture(t *testing.T, now time.Time, opts ...monitor.Option) *fixture {
	t.Helper()
	st := testutil.NewTestStore(t)
	return newFixtureWithStore(t, st, now, opts...)
}

func newFixtureWithStore(t *testing.T, st store.Store, now time.Time, opts ...monitor.Option) *fixture {
	t.Helper()
	fc := clock.NewFake(now)
	opts = append([]monitor.Option{
		monitor.WithClock(fc),
		monitor.WithLogger(zap.NewNop()),
	}, opts...)
	return &fixture{
		svc:   monitor.New(st, testPolicy(t), opts...),
		store: st,
		clock: fc,
	}
}

// seedClearing registers the 09:00 IST clearing task with a 15 minute SLA
// directly in the store, without evaluating it.
func (f *fixture) seedClearing(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.store.UpsertTask(context.Background(), model.MonitoredTask{
		ID:             id,
		Name:           "Clearing file validation",
		ScheduledStart: at(t, "09:00:00"),
		SLAMinutes:     15,
	}))
}

func (f *fixture) syncAt(t *testing.T, now time.Time) monitor.SyncResult {
	t.Helper()
	f.clock.Set(now)
	res, err := f.svc.SyncNow(context.Background(), time.Second)
	require.NoError(t, err)
	return res
}

func (f *fixture) status(t *testing.T, id string) model.LifecycleStatus {
	t.Helper()
	task, err := f.store.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task.Status
}

// kindCounts counts ledger rows per kind, archived ones included.
func (f *fixture) kindCounts(t *testing.T, id string) map[model.EventKind]int {
	t.Helper()
	events, err := f.store.GetNotifications(context.Background(), store.NotificationFilter{
		Status: store.NotificationsAll,
		TaskID: &id,
	})
	require.NoError(t, err)
	counts := make(map[model.EventKind]int)
	for _, ev := range events {
		counts[ev.Kind]++
	}
	return counts
}

// faultyStore wraps a real store and injects failures.
type faultyStore struct {
	store.Store

	mu       sync.Mutex
	listErr  error
	txErr    error
	lockErr  map[string]error
	blockTx  bool
	txCalled int
}

func (f *faultyStore) ActiveTaskIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	err := f.listErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.ActiveTaskIDs(ctx)
}

func (f *faultyStore) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	f.mu.Lock()
	f.txCalled++
	txErr, block, lockErr := f.txErr, f.blockTx, f.lockErr
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if txErr != nil {
		return txErr
	}
	return f.Store.WithinTx(ctx, func(tx store.Tx) error {
		return fn(&faultyTx{Tx: tx, lockErr: lockErr})
	})
}

func (f *faultyStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txCalled
}

type faultyTx struct {
	store.Tx
	lockErr map[string]error
}

func (f *faultyTx) LockTask(ctx context.Context, id string) (*model.MonitoredTask, error) {
	if err, ok := f.lockErr[id]; ok {
		return nil, err
	}
	return f.Tx.LockTask(ctx, id)
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []model.NotificationEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events []model.NotificationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) kinds() []model.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]model.EventKind, 0, len(p.events))
	for _, ev := range p.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

// lateCommitStore lets another evaluation of the task commit, at a later
// instant, just before the first transaction takes the row lock.
type lateCommitStore struct {
	store.Store

	fired  bool
	before func()
}

func (s *lateCommitStore) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if !s.fired {
		s.fired = true
		s.before()
	}
	return s.Store.WithinTx(ctx, fn)
}
