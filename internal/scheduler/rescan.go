// Package scheduler runs the periodic library rescan that keeps the index
// honest when files under the storage root change behind the app's back.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/openshelf/bookreader/internal/library"
)

// RescanScheduler reconciles the library on a cron schedule.
type RescanScheduler struct {
	lib      *library.Store
	schedule string

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.Mutex
	isRunning  bool
	cancelFunc context.CancelFunc
}

// NewRescanScheduler creates a scheduler instance. An empty schedule
// disables it.
func NewRescanScheduler(lib *library.Store, schedule string) *RescanScheduler {
	return &RescanScheduler{
		lib:      lib,
		schedule: schedule,
		cron:     cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start begins the scheduler if a schedule is configured.
func (s *RescanScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if s.schedule == "" {
		log.Printf("Rescan scheduler: disabled")
		return nil
	}

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.lib.Rescan(cancelCtx); err != nil {
			log.Printf("Rescan scheduler: rescan failed: %v", err)
		}
	})
	if err != nil {
		s.cancelFunc()
		return fmt.Errorf("schedule rescan job: %w", err)
	}
	s.entryID = entryID

	s.cron.Start()
	s.isRunning = true
	log.Printf("Rescan scheduler: started with schedule %q", s.schedule)

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()
	return nil
}

// Stop gracefully stops the scheduler, waiting for a running rescan.
func (s *RescanScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}
	log.Printf("Rescan scheduler: stopped")
}
