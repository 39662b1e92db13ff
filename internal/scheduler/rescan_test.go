package scheduler

import (
	"context"
	"testing"

	"github.com/openshelf/bookreader/internal/library"
)

func newLib(t *testing.T) *library.Store {
	t.Helper()
	lib := library.New()
	if err := lib.Activate(context.Background(), t.TempDir()); err != nil {
		t.Fatal(err)
	}
	return lib
}

func TestStartAndStop(t *testing.T) {
	s := NewRescanScheduler(newLib(t), "*/5 * * * *")
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Starting twice is a no-op.
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	s.Stop()
	s.Stop()
}

func TestEmptyScheduleDisables(t *testing.T) {
	s := NewRescanScheduler(newLib(t), "")
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Stop()
}

func TestInvalidSchedule(t *testing.T) {
	s := NewRescanScheduler(newLib(t), "not a cron spec")
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected an error for a malformed schedule")
	}
}

func TestContextCancelStopsScheduler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewRescanScheduler(newLib(t), "*/5 * * * *")
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
	// Stop after cancellation must not deadlock.
	s.Stop()
}
