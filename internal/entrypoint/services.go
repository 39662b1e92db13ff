package entrypoint

import (
	"context"
	"log"
	"sync"

	"github.com/openshelf/bookreader/internal/config"
	"github.com/openshelf/bookreader/internal/covers"
	"github.com/openshelf/bookreader/internal/history"
	"github.com/openshelf/bookreader/internal/library"
	"github.com/openshelf/bookreader/internal/scheduler"
	"github.com/openshelf/bookreader/internal/tasks"
	"github.com/openshelf/bookreader/internal/watcher"
)

// rootServices owns everything scoped to an active storage root: the
// reading-history database, the cover cache, the background task queue, the
// rescan scheduler, and the filesystem watcher. It starts empty and fills in
// when the library is activated, which may happen at boot or later through
// the setup flow.
type rootServices struct {
	cfg *config.Config

	mu         sync.RWMutex
	hist       *history.Store
	coverCache *covers.Cache
	taskClient *tasks.Client
	sched      *scheduler.RescanScheduler
	fsWatcher  *watcher.Watcher
}

func newRootServices(cfg *config.Config) *rootServices {
	return &rootServices{cfg: cfg}
}

// History implements http.RootServices.
func (s *rootServices) History() *history.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hist
}

// Covers implements http.RootServices.
func (s *rootServices) Covers() *covers.Cache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coverCache
}

// EnqueueCoverExtraction implements http.RootServices. A disabled task queue
// just means no cover art.
func (s *rootServices) EnqueueCoverExtraction(bookID string) {
	s.mu.RLock()
	client := s.taskClient
	s.mu.RUnlock()
	if client == nil {
		return
	}
	if _, err := client.Add(tasks.ExtractCoverTask{BookID: bookID}).Save(); err != nil {
		log.Printf("WARNING: could not enqueue cover extraction for %s: %v", bookID, err)
	}
}

// start brings up the root-scoped services after the library is bound to
// root. ctx governs the background goroutines, not the call itself.
func (s *rootServices) start(ctx context.Context, lib *library.Store, root string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hist, err := history.NewStore(library.HistoryDBPath(root))
	if err != nil {
		return err
	}
	s.hist = hist

	coverCache, err := covers.NewCache(library.CoversDir(root))
	if err != nil {
		log.Printf("WARNING: cover cache unavailable: %v", err)
	} else {
		s.coverCache = coverCache
	}

	if s.cfg.Tasks.Enabled && s.coverCache != nil {
		client, err := tasks.NewClient(library.TasksDBPath(root), tasks.Config{
			Workers:         s.cfg.Tasks.Workers,
			MaxRetries:      s.cfg.Tasks.MaxRetries,
			RetryDelay:      s.cfg.Tasks.RetryDelay,
			ReleaseAfter:    s.cfg.Tasks.ReleaseAfter,
			CleanupInterval: s.cfg.Tasks.CleanupInterval,
		})
		if err != nil {
			log.Printf("WARNING: task queue unavailable: %v", err)
		} else {
			client.Register(tasks.NewExtractCoverQueue(lib, s.coverCache))
			go client.Start(ctx)
			s.taskClient = client
		}
	}

	s.sched = scheduler.NewRescanScheduler(lib, s.cfg.Rescan.Schedule)
	if err := s.sched.Start(ctx); err != nil {
		log.Printf("WARNING: rescan scheduler not started: %v", err)
	}

	if s.cfg.Rescan.Watch {
		w, err := watcher.New(lib, library.BooksDir(root))
		if err != nil {
			log.Printf("WARNING: filesystem watcher unavailable: %v", err)
		} else {
			go w.Run(ctx)
			s.fsWatcher = w
		}
	}

	return nil
}

// stop tears the services down during graceful shutdown.
func (s *rootServices) stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sched != nil {
		s.sched.Stop()
	}
	if s.fsWatcher != nil {
		if err := s.fsWatcher.Close(); err != nil {
			log.Printf("WARNING: closing watcher: %v", err)
		}
	}
	if s.taskClient != nil {
		s.taskClient.Stop(ctx)
		if err := s.taskClient.Close(); err != nil {
			log.Printf("WARNING: closing task queue: %v", err)
		}
	}
	if s.hist != nil {
		if err := s.hist.Close(); err != nil {
			log.Printf("WARNING: closing history store: %v", err)
		}
	}
}
