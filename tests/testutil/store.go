package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/slawatch/internal/model"
	"github.com/nhle/slawatch/internal/store"
)

// NewTestStore creates an in-memory SQLStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// SeedTask registers a task scheduled at start with the given SLA.
func SeedTask(t *testing.T, s store.Store, id string, start time.Time, slaMinutes int) model.MonitoredTask {
	t.Helper()

	task := model.MonitoredTask{
		ID:             id,
		Name:           "Task " + id,
		ScheduledStart: start,
		SLAMinutes:     slaMinutes,
	}
	if err := s.UpsertTask(context.Background(), task); err != nil {
		t.Fatalf("seeding task %s: %v", id, err)
	}
	return task
}
