package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openshelf/bookreader/internal/format"
	"github.com/openshelf/bookreader/internal/library"
	"github.com/openshelf/bookreader/internal/reader"
)

// ReaderController owns the open reader sessions for the process. At most
// one session per book is expected but not enforced; each session flushes
// progress independently and the last writer wins.
type ReaderController struct {
	lib      *library.Store
	services RootServices
	throttle time.Duration

	mu       sync.Mutex
	sessions map[string]*reader.Session
}

func NewReaderController(lib *library.Store, services RootServices, throttle time.Duration) *ReaderController {
	return &ReaderController{
		lib:      lib,
		services: services,
		throttle: throttle,
		sessions: make(map[string]*reader.Session),
	}
}

type sessionResponse struct {
	SessionID string       `json:"session_id"`
	BookID    string       `json:"book_id"`
	Position  int64        `json:"position"`
	Fraction  float64      `json:"fraction"`
	Chunk     format.Chunk `json:"chunk"`
	End       bool         `json:"end,omitempty"`
}

// OpenSession opens a book and returns the chunk at the stored position.
func (ctrl *ReaderController) OpenSession(c *gin.Context) {
	handle, err := ctrl.lib.OpenBook(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	opts := []reader.Option{reader.WithThrottle(ctrl.throttle)}
	if hist := ctrl.services.History(); hist != nil {
		opts = append(opts, reader.WithHistory(hist))
	}

	session, err := reader.Open(handle, ctrl.lib, opts...)
	if err != nil {
		respondError(c, err)
		return
	}

	chunk, err := session.CurrentChunk()
	if err != nil {
		session.Close(c.Request.Context())
		respondError(c, err)
		return
	}

	ctrl.mu.Lock()
	ctrl.sessions[session.ID()] = session
	ctrl.mu.Unlock()

	pos := session.CurrentPosition()
	c.JSON(http.StatusCreated, sessionResponse{
		SessionID: session.ID(),
		BookID:    handle.Book().ID,
		Position:  pos.Position,
		Fraction:  pos.Fraction,
		Chunk:     chunk,
	})
}

func (ctrl *ReaderController) session(c *gin.Context) (*reader.Session, bool) {
	ctrl.mu.Lock()
	session, ok := ctrl.sessions[c.Param("sid")]
	ctrl.mu.Unlock()
	if !ok {
		respondNotFound(c, "session")
	}
	return session, ok
}

// GetPosition reports the session's live cursor.
func (ctrl *ReaderController) GetPosition(c *gin.Context) {
	session, ok := ctrl.session(c)
	if !ok {
		return
	}
	p := session.CurrentPosition()
	c.JSON(http.StatusOK, gin.H{"position": p.Position, "fraction": p.Fraction})
}

// NextChunk advances one display unit; at the end of the book it reports an
// end marker instead of failing.
func (ctrl *ReaderController) NextChunk(c *gin.Context) {
	ctrl.step(c, func(s *reader.Session) (format.Chunk, bool, error) {
		return s.NextChunk(c.Request.Context())
	})
}

// PreviousChunk steps back one display unit.
func (ctrl *ReaderController) PreviousChunk(c *gin.Context) {
	ctrl.step(c, func(s *reader.Session) (format.Chunk, bool, error) {
		return s.PreviousChunk(c.Request.Context())
	})
}

func (ctrl *ReaderController) step(c *gin.Context, fn func(*reader.Session) (format.Chunk, bool, error)) {
	session, ok := ctrl.session(c)
	if !ok {
		return
	}

	chunk, more, err := fn(session)
	if err != nil {
		respondError(c, err)
		return
	}

	p := session.CurrentPosition()
	resp := sessionResponse{
		SessionID: session.ID(),
		BookID:    session.Book().ID,
		Position:  p.Position,
		Fraction:  p.Fraction,
		Chunk:     chunk,
		End:       !more,
	}
	c.JSON(http.StatusOK, resp)
}

type seekRequest struct {
	Position *int64 `json:"position" binding:"required"`
}

// Seek moves the cursor; out-of-range positions clamp rather than fail.
func (ctrl *ReaderController) Seek(c *gin.Context) {
	session, ok := ctrl.session(c)
	if !ok {
		return
	}

	var req seekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "position is required")
		return
	}

	p := session.Seek(c.Request.Context(), *req.Position)
	c.JSON(http.StatusOK, gin.H{"position": p.Position, "fraction": p.Fraction})
}

// CloseSession flushes the final progress and releases the book. A failed
// final flush is the one flush error surfaced to the shell.
func (ctrl *ReaderController) CloseSession(c *gin.Context) {
	sid := c.Param("sid")

	ctrl.mu.Lock()
	session, ok := ctrl.sessions[sid]
	delete(ctrl.sessions, sid)
	ctrl.mu.Unlock()
	if !ok {
		respondNotFound(c, "session")
		return
	}

	if err := session.Close(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CloseAll closes every open session; used at shutdown so final progress is
// not lost.
func (ctrl *ReaderController) CloseAll(ctx context.Context) {
	ctrl.mu.Lock()
	sessions := make([]*reader.Session, 0, len(ctrl.sessions))
	for _, s := range ctrl.sessions {
		sessions = append(sessions, s)
	}
	ctrl.sessions = make(map[string]*reader.Session)
	ctrl.mu.Unlock()

	for _, s := range sessions {
		s.Close(ctx)
	}
}
