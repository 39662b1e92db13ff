package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/openshelf/bookreader/internal/covers"
	"github.com/openshelf/bookreader/internal/entities"
	"github.com/openshelf/bookreader/internal/library"
)

// ExtractCoverTask extracts the cover image of an imported book into the
// cover cache.
type ExtractCoverTask struct {
	BookID string `json:"book_id"`
}

// Config returns the queue configuration for cover extraction tasks.
func (t ExtractCoverTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "extract_cover",
		MaxAttempts: 3,
		Backoff:     30 * time.Second,
		Timeout:     1 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// ExtractCoverProcessor creates a processor function for ExtractCoverTask.
func ExtractCoverProcessor(lib *library.Store, cache *covers.Cache) backlite.QueueProcessor[ExtractCoverTask] {
	return func(ctx context.Context, task ExtractCoverTask) error {
		handle, err := lib.OpenBook(task.BookID)
		if err != nil {
			if errors.Is(err, entities.ErrUnknownBook) {
				// Deleted before the task ran; nothing to do.
				return nil
			}
			return fmt.Errorf("open book %s: %w", task.BookID, err)
		}

		book := handle.Book()
		path, err := cache.Extract(book.ID, handle.Path(), book.Format)
		if err != nil {
			if errors.Is(err, entities.ErrFormat) {
				log.Printf("[TASK] Book %s (%s) has no extractable cover", book.ID, book.Title)
				return nil
			}
			return fmt.Errorf("extract cover for %s: %w", task.BookID, err)
		}

		log.Printf("[TASK] Extracted cover for %s (%s) to %s", book.ID, book.Title, path)
		return nil
	}
}

// NewExtractCoverQueue creates a backlite queue for cover extraction tasks.
func NewExtractCoverQueue(lib *library.Store, cache *covers.Cache) backlite.Queue {
	return backlite.NewQueue(ExtractCoverProcessor(lib, cache))
}
