package http

import (
	"io"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/openshelf/bookreader/internal/entities"
)

// EventBroker fans library-change notifications out to SSE subscribers.
type EventBroker struct {
	mu   sync.Mutex
	subs map[chan entities.LibraryChange]struct{}
}

func NewEventBroker() *EventBroker {
	return &EventBroker{subs: make(map[chan entities.LibraryChange]struct{})}
}

// Publish delivers a change to all subscribers. Slow subscribers drop
// events rather than block the mutating goroutine.
func (b *EventBroker) Publish(change entities.LibraryChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

func (b *EventBroker) subscribe() (chan entities.LibraryChange, func()) {
	ch := make(chan entities.LibraryChange, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}
}

// Stream is the SSE endpoint the bookshelf subscribes to for live refresh.
func (b *EventBroker) Stream(c *gin.Context) {
	ch, cancel := b.subscribe()
	defer cancel()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case change := <-ch:
			c.SSEvent("change", change)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
