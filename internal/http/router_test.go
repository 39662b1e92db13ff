package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/bookreader/internal/covers"
	"github.com/openshelf/bookreader/internal/entities"
	"github.com/openshelf/bookreader/internal/history"
	"github.com/openshelf/bookreader/internal/library"
	"github.com/openshelf/bookreader/internal/pathstore"
)

type fakeServices struct {
	mu       sync.Mutex
	enqueued []string
}

func (f *fakeServices) History() *history.Store { return nil }
func (f *fakeServices) Covers() *covers.Cache { return nil }
func (f *fakeServices) EnqueueCoverExtraction(bookID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, bookID)
}

func (f *fakeServices) enqueuedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.enqueued...)
}

type testApp struct {
	router   *gin.Engine
	lib      *library.Store
	broker   *EventBroker
	services *fakeServices
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	paths, err := pathstore.New(t.TempDir())
	require.NoError(t, err)

	lib := library.New()
	broker := NewEventBroker()
	lib.Subscribe(broker.Publish)
	services := &fakeServices{}

	router, readerCtrl := NewRouter(RouterConfig{
		Version: "test",
		Lib:     lib,
		Paths:   paths,
		Activate: func(ctx context.Context, root string) error {
			return lib.Activate(ctx, root)
		},
		Services: services,
		Broker:   broker,
	})
	t.Cleanup(func() { readerCtrl.CloseAll(context.Background()) })

	return &testApp{router: router, lib: lib, broker: broker, services: services}
}

func newActiveApp(t *testing.T) *testApp {
	t.Helper()
	app := newTestApp(t)
	app.do(t, http.MethodPost, "/api/storage", gin.H{"path": t.TempDir()})
	return app
}

func (a *testApp) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func (a *testApp) importTXT(t *testing.T, name, content string) entities.Book {
	t.Helper()
	src := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(src, []byte(content), 0o644))
	w := a.do(t, http.MethodPost, "/api/books", gin.H{"path": src})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[struct {
		Book entities.Book `json:"book"`
	}](t, w)
	return resp.Book
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t)
	w := app.do(t, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, false, body["active"])
}

func TestStorageSetupFlow(t *testing.T) {
	app := newTestApp(t)

	// First launch: nothing configured.
	w := app.do(t, http.MethodGet, "/api/storage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	state := decode[map[string]any](t, w)
	assert.Equal(t, false, state["configured"])
	assert.Equal(t, false, state["active"])

	// A nonexistent path is rejected with its status, not persisted.
	w = app.do(t, http.MethodPost, "/api/storage", gin.H{"path": "/does/not/exist"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	state = decode[map[string]any](t, w)
	assert.Equal(t, "missing", state["status"])

	// A valid path activates and persists.
	root := t.TempDir()
	w = app.do(t, http.MethodPost, "/api/storage", gin.H{"path": root})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	state = decode[map[string]any](t, w)
	assert.Equal(t, true, state["active"])
	assert.Equal(t, root, state["path"])
	assert.True(t, app.lib.Active())

	w = app.do(t, http.MethodGet, "/api/storage", nil)
	state = decode[map[string]any](t, w)
	assert.Equal(t, true, state["configured"])
	assert.Equal(t, "valid", state["status"])

	// Clearing forgets the path but the running library stays bound.
	w = app.do(t, http.MethodDelete, "/api/storage", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = app.do(t, http.MethodGet, "/api/storage", nil)
	state = decode[map[string]any](t, w)
	assert.Equal(t, false, state["configured"])
	assert.Equal(t, true, state["active"])
}

func TestBooksRequireActiveLibrary(t *testing.T) {
	app := newTestApp(t)

	// Listing degrades to empty rather than failing.
	w := app.do(t, http.MethodGet, "/api/books", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.EqualValues(t, 0, body["count"])

	w = app.do(t, http.MethodPost, "/api/books", gin.H{"path": "/tmp/x.txt"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	errResp := decode[ErrorResponse](t, w)
	assert.Equal(t, "not_active", errResp.Kind)
}

func TestImportListDelete(t *testing.T) {
	app := newActiveApp(t)

	book := app.importTXT(t, "novel.txt", "a short novel")
	assert.Equal(t, "novel", book.Title)
	assert.Equal(t, []string{book.ID}, app.services.enqueuedIDs())

	w := app.do(t, http.MethodGet, "/api/books", nil)
	body := decode[map[string]any](t, w)
	assert.EqualValues(t, 1, body["count"])

	w = app.do(t, http.MethodGet, "/api/books/"+book.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[entities.Book](t, w)
	assert.Equal(t, book.ID, got.ID)

	w = app.do(t, http.MethodDelete, "/api/books/"+book.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = app.do(t, http.MethodDelete, "/api/books/"+book.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "unknown_book", decode[ErrorResponse](t, w).Kind)
}

// brokenHistoryServices hands out a history store whose database has been
// closed, so every history query fails.
type brokenHistoryServices struct {
	fakeServices
	hist *history.Store
}

func (s *brokenHistoryServices) History() *history.Store { return s.hist }

func TestDeleteBookSucceedsDespiteHistoryFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)

	paths, err := pathstore.New(t.TempDir())
	require.NoError(t, err)
	hist, err := history.NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	require.NoError(t, hist.Close())

	lib := library.New()
	router, readerCtrl := NewRouter(RouterConfig{
		Version: "test",
		Lib:     lib,
		Paths:   paths,
		Activate: func(ctx context.Context, root string) error {
			return lib.Activate(ctx, root)
		},
		Services: &brokenHistoryServices{hist: hist},
	})
	t.Cleanup(func() { readerCtrl.CloseAll(context.Background()) })
	app := &testApp{router: router, lib: lib}

	w := app.do(t, http.MethodPost, "/api/storage", gin.H{"path": t.TempDir()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	book := app.importTXT(t, "doomed.txt", "deleted despite history trouble")

	// The book-side delete wins; the failed history cleanup is only logged.
	w = app.do(t, http.MethodDelete, "/api/books/"+book.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = app.do(t, http.MethodGet, "/api/books/"+book.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestImportDuplicateReturnsExisting(t *testing.T) {
	app := newActiveApp(t)
	book := app.importTXT(t, "same.txt", "identical bytes")

	src := filepath.Join(t.TempDir(), "other-name.txt")
	require.NoError(t, os.WriteFile(src, []byte("identical bytes"), 0o644))
	w := app.do(t, http.MethodPost, "/api/books", gin.H{"path": src})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[struct {
		Book      entities.Book `json:"book"`
		Duplicate bool          `json:"duplicate"`
	}](t, w)
	assert.True(t, resp.Duplicate)
	assert.Equal(t, book.ID, resp.Book.ID)

	// No second cover extraction for a duplicate.
	assert.Equal(t, []string{book.ID}, app.services.enqueuedIDs())
}

func TestImportMultipartUpload(t *testing.T) {
	app := newActiveApp(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "uploaded story.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("uploaded content"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/books", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[struct {
		Book entities.Book `json:"book"`
	}](t, w)
	assert.Equal(t, "uploaded story", resp.Book.Title)
	assert.Equal(t, entities.FormatTXT, resp.Book.Format)
}

func TestImportUnsupportedFormatStatus(t *testing.T) {
	app := newActiveApp(t)
	src := filepath.Join(t.TempDir(), "album.flac")
	require.NoError(t, os.WriteFile(src, []byte("audio"), 0o644))

	w := app.do(t, http.MethodPost, "/api/books", gin.H{"path": src})
	require.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Equal(t, "unsupported_format", decode[ErrorResponse](t, w).Kind)
}

func TestRenameBook(t *testing.T) {
	app := newActiveApp(t)
	book := app.importTXT(t, "draft.txt", "work in progress")

	w := app.do(t, http.MethodPatch, "/api/books/"+book.ID, gin.H{"title": "Final Title"})
	require.Equal(t, http.StatusOK, w.Code)

	w = app.do(t, http.MethodGet, "/api/books/"+book.ID, nil)
	assert.Equal(t, "Final Title", decode[entities.Book](t, w).Title)

	w = app.do(t, http.MethodPatch, "/api/books/"+book.ID, gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateProgressEndpoint(t *testing.T) {
	app := newActiveApp(t)
	book := app.importTXT(t, "p.txt", "0123456789")

	w := app.do(t, http.MethodPut, "/api/books/"+book.ID+"/progress", gin.H{"position": 4, "fraction": 0.4})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = app.do(t, http.MethodGet, "/api/books/"+book.ID, nil)
	got := decode[entities.Book](t, w)
	assert.Equal(t, int64(4), got.Progress.Position)

	w = app.do(t, http.MethodPut, "/api/books/"+book.ID+"/progress", gin.H{"position": 99, "fraction": 0.4})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_progress", decode[ErrorResponse](t, w).Kind)
}

func TestReaderSessionFlow(t *testing.T) {
	app := newActiveApp(t)
	book := app.importTXT(t, "read me.txt", "session content")

	w := app.do(t, http.MethodPost, "/api/books/"+book.ID+"/session", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	opened := decode[sessionResponse](t, w)
	require.NotEmpty(t, opened.SessionID)
	assert.Equal(t, book.ID, opened.BookID)
	assert.Equal(t, "session content", opened.Chunk.Content)

	w = app.do(t, http.MethodGet, "/api/sessions/"+opened.SessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = app.do(t, http.MethodPost, "/api/sessions/"+opened.SessionID+"/seek", gin.H{"position": 7})
	require.Equal(t, http.StatusOK, w.Code)
	seek := decode[map[string]any](t, w)
	assert.EqualValues(t, 7, seek["position"])

	// A single-chunk book: next reports the end marker.
	w = app.do(t, http.MethodPost, "/api/sessions/"+opened.SessionID+"/next", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[sessionResponse](t, w).End)

	w = app.do(t, http.MethodDelete, "/api/sessions/"+opened.SessionID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	// Progress reached durability on close.
	w = app.do(t, http.MethodGet, "/api/books/"+book.ID, nil)
	assert.Equal(t, int64(7), decode[entities.Book](t, w).Progress.Position)

	w = app.do(t, http.MethodDelete, "/api/sessions/"+opened.SessionID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestOpenSessionUnknownBook(t *testing.T) {
	app := newActiveApp(t)
	w := app.do(t, http.MethodPost, "/api/books/nope/session", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "unknown_book", decode[ErrorResponse](t, w).Kind)
}

func TestEventStreamDeliversChanges(t *testing.T) {
	app := newActiveApp(t)

	srv := httptest.NewServer(app.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// The subscriber registers asynchronously; keep publishing until the
	// event arrives.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				app.broker.Publish(entities.LibraryChange{Type: entities.ChangeImported, BookID: "abc"})
			case <-done:
				return
			}
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	var sawEvent, sawData bool
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") && strings.Contains(line, "change") {
			sawEvent = true
		}
		if strings.HasPrefix(line, "data:") && strings.Contains(line, "abc") {
			sawData = true
		}
		if sawEvent && sawData {
			break
		}
	}
	assert.True(t, sawEvent, "no change event observed")
	assert.True(t, sawData, "no event payload observed")
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	broker := NewEventBroker()
	donech := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			broker.Publish(entities.LibraryChange{Type: entities.ChangeProgress, BookID: fmt.Sprint(i)})
		}
		close(donech)
	}()
	select {
	case <-donech:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}
