// Package reader presents a single open book's content and captures reading
// progress back into the library.
package reader

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openshelf/bookreader/internal/entities"
	"github.com/openshelf/bookreader/internal/format"
	"github.com/openshelf/bookreader/internal/library"
)

// DefaultThrottle is the minimum interval between durable progress flushes
// while the user is actively seeking.
const DefaultThrottle = 2 * time.Second

// ProgressSink receives durable progress updates. *library.Store satisfies it.
type ProgressSink interface {
	UpdateProgress(ctx context.Context, bookID string, p entities.Progress) error
}

// HistoryRecorder, when configured, is told about every finished session.
type HistoryRecorder interface {
	RecordSession(bookID string, startedAt, endedAt time.Time, startFraction, endFraction float64) error
}

// Session is one open book. Not safe for concurrent use from multiple
// goroutines without external ordering; the UI event loop drives it.
type Session struct {
	id   string
	book entities.Book
	dec  format.Decoder
	sink ProgressSink

	mu            sync.Mutex
	pos           int64
	chunkIdx      int
	chunkIdxOK    bool
	throttle      time.Duration
	lastFlush     time.Time
	dirty         bool
	closed        bool
	startedAt     time.Time
	startFraction float64
	history       HistoryRecorder
}

// Option configures a Session.
type Option func(*Session)

// WithThrottle overrides the progress flush throttle interval.
func WithThrottle(d time.Duration) Option {
	return func(s *Session) { s.throttle = d }
}

// WithHistory records the finished session to a history store on Close.
func WithHistory(h HistoryRecorder) Option {
	return func(s *Session) { s.history = h }
}

// Open decodes enough of the book to render the current position and resumes
// at the book's stored progress. Content that cannot be decoded fails with
// ErrFormat; unknown format tags fail here too.
func Open(handle library.BookHandle, sink ProgressSink, opts ...Option) (*Session, error) {
	book := handle.Book()
	dec, err := format.Open(handle.Path(), book.Format)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:            uuid.NewString(),
		book:          book,
		dec:           dec,
		sink:          sink,
		pos:           entities.ClampPosition(book.Progress.Position, dec.Length()),
		throttle:      DefaultThrottle,
		lastFlush:     time.Now(),
		startedAt:     time.Now().UTC(),
		startFraction: book.Progress.Fraction,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// ID is the session identifier handed to the presentation layer.
func (s *Session) ID() string { return s.id }

// Book returns the book identity this session was opened for.
func (s *Session) Book() entities.Book { return s.book }

// CurrentPosition returns the live cursor as a progress pair.
func (s *Session) CurrentPosition() entities.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

func (s *Session) progressLocked() entities.Progress {
	return entities.Progress{
		Position: s.pos,
		Fraction: entities.FractionFor(s.pos, s.dec.Length()),
	}
}

// Seek moves the cursor, clamped to [0, length]. A durable progress flush is
// emitted at most once per throttle interval while seeking; Close always
// flushes the final position.
func (s *Session) Seek(ctx context.Context, position int64) entities.Progress {
	s.mu.Lock()
	s.pos = entities.ClampPosition(position, s.dec.Length())
	s.chunkIdxOK = false
	p := s.progressLocked()
	s.flushThrottledLocked(ctx)
	s.mu.Unlock()
	return p
}

// CurrentChunk returns the display unit containing the current position.
func (s *Session) CurrentChunk() (format.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunk, err := s.dec.ChunkAt(s.pos)
	if err != nil {
		return format.Chunk{}, err
	}
	s.chunkIdx = chunk.Index
	s.chunkIdxOK = true
	return chunk, nil
}

// NextChunk yields the next display unit. At the end of the book it returns
// ok=false instead of failing. A transient decode error leaves the position
// unchanged.
func (s *Session) NextChunk(ctx context.Context) (format.Chunk, bool, error) {
	return s.step(ctx, +1)
}

// PreviousChunk yields the previous display unit, with ok=false at the start.
func (s *Session) PreviousChunk(ctx context.Context) (format.Chunk, bool, error) {
	return s.step(ctx, -1)
}

func (s *Session) step(ctx context.Context, delta int) (format.Chunk, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.chunkIdxOK {
		cur, err := s.dec.ChunkAt(s.pos)
		if err != nil {
			return format.Chunk{}, false, err
		}
		s.chunkIdx = cur.Index
		s.chunkIdxOK = true
	}

	target := s.chunkIdx + delta
	if target < 0 || target >= s.dec.Chunks() {
		return format.Chunk{}, false, nil
	}

	chunk, err := s.dec.ChunkAt(s.dec.PositionOfChunk(target))
	if err != nil {
		return format.Chunk{}, false, err
	}

	s.chunkIdx = chunk.Index
	s.pos = chunk.Position
	s.flushThrottledLocked(ctx)
	return chunk, true, nil
}

// flushThrottledLocked emits a durable progress update unless one was
// written within the throttle interval; then the update is held for Close.
func (s *Session) flushThrottledLocked(ctx context.Context) {
	if time.Since(s.lastFlush) < s.throttle {
		s.dirty = true
		return
	}
	if err := s.flushLocked(ctx); err != nil {
		// Best-effort between chunks; only Close surfaces flush failures.
		log.Printf("WARNING: progress flush for %s failed: %v", s.book.ID, err)
	}
}

func (s *Session) flushLocked(ctx context.Context) error {
	err := s.sink.UpdateProgress(ctx, s.book.ID, s.progressLocked())
	if err != nil {
		return err
	}
	s.lastFlush = time.Now()
	s.dirty = false
	return nil
}

// Close flushes the most recent progress synchronously, records the session
// to history, and releases the decoder. A failed final flush is surfaced.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.flushLocked(ctx)

	if s.history != nil {
		end := s.progressLocked().Fraction
		if err := s.history.RecordSession(s.book.ID, s.startedAt, time.Now().UTC(), s.startFraction, end); err != nil {
			log.Printf("WARNING: could not record reading session for %s: %v", s.book.ID, err)
		}
	}

	if err := s.dec.Close(); err != nil && flushErr == nil {
		flushErr = fmt.Errorf("close decoder: %w", err)
	}
	return flushErr
}
