// Package library owns the on-disk book layout under a storage root: the
// managed book files, the JSON index, and per-book progress records. It is
// the single source of truth the rest of the application reads from.
package library

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/openshelf/bookreader/internal/entities"
	"github.com/openshelf/bookreader/internal/format"
)

// RootStatus is the outcome of validating a candidate storage root.
type RootStatus int

const (
	RootValid RootStatus = iota
	RootMissing
	RootUnwritable
)

func (s RootStatus) String() string {
	switch s {
	case RootValid:
		return "valid"
	case RootMissing:
		return "missing"
	case RootUnwritable:
		return "unwritable"
	}
	return "unknown"
}

// OrphanFunc decides what happens to a file found under books/ with no index
// entry during reconciliation. Returning true re-imports it in place; false
// moves it to quarantine. The default re-imports silently.
type OrphanFunc func(path string) bool

// Store is the library store. Create one with New, then Activate it against
// a validated storage root before calling anything else.
type Store struct {
	mu       sync.Mutex
	l        layout
	flk      *flock.Flock
	active   bool
	idx      *indexFile
	progress map[string]entities.Progress

	bookMus sync.Map // bookID -> *sync.Mutex, serializes per-book mutations

	listenerMu sync.RWMutex
	listeners  []func(entities.LibraryChange)

	onOrphan OrphanFunc
}

// Option configures a Store.
type Option func(*Store)

// WithOrphanFunc overrides the reconciliation decision for unindexed files.
func WithOrphanFunc(fn OrphanFunc) Option {
	return func(s *Store) { s.onOrphan = fn }
}

// New creates an inactive store. Multiple isolated stores may coexist in one
// process; nothing here is ambient.
func New(opts ...Option) *Store {
	s := &Store{progress: make(map[string]entities.Progress)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe registers a listener invoked after every library mutation.
// Listeners run on the mutating goroutine and must not block.
func (s *Store) Subscribe(fn func(entities.LibraryChange)) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify(change entities.LibraryChange) {
	change.At = time.Now().UTC()
	s.listenerMu.RLock()
	listeners := make([]func(entities.LibraryChange), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(change)
	}
}

// ValidateRoot checks that path exists, is a directory, and accepts a test
// write. On success the managed subdirectory layout is created if absent;
// that is the only side effect.
func (s *Store) ValidateRoot(root string) RootStatus {
	fi, err := os.Stat(root)
	if err != nil || !fi.IsDir() {
		return RootMissing
	}

	probe, err := os.CreateTemp(root, ".bookreader-probe-*")
	if err != nil {
		return RootUnwritable
	}
	probe.Close()
	os.Remove(probe.Name())

	if err := (layout{root: root}).ensure(); err != nil {
		return RootUnwritable
	}
	return RootValid
}

// Activate binds the store to a validated root, loads the index, loads the
// per-book progress records, and reconciles the index against the files
// actually present. It must be called exactly once; further calls fail with
// ErrAlreadyActive.
func (s *Store) Activate(ctx context.Context, root string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return fmt.Errorf("%w: already bound to %s", entities.ErrAlreadyActive, s.l.root)
	}

	switch s.ValidateRoot(root) {
	case RootMissing:
		return fmt.Errorf("%w: %s", entities.ErrRootMissing, root)
	case RootUnwritable:
		return fmt.Errorf("%w: %s", entities.ErrRootUnwritable, root)
	}

	s.l = layout{root: root}
	s.flk = flock.New(s.l.lockPath())

	idx, err := loadIndex(s.l)
	if err != nil {
		return err
	}
	s.idx = idx

	added, dropped, err := s.reconcileLocked(ctx)
	if err != nil {
		return err
	}
	if added > 0 || dropped > 0 {
		log.Printf("Library reconciled at %s: %d re-imported, %d dropped", root, added, dropped)
	}

	s.loadProgressLocked()
	s.active = true
	log.Printf("Library active at %s (%d books)", root, len(s.idx.Books))
	return nil
}

// Root returns the active storage root, or "" before activation.
func (s *Store) Root() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.root
}

// Active reports whether Activate has succeeded.
func (s *Store) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Store) requireActive() error {
	if !s.active {
		return fmt.Errorf("%w: call Activate first", entities.ErrNotActive)
	}
	return nil
}

// loadProgressLocked primes the in-memory progress map from the progress
// files. Last access falls back to the progress timestamp so ordering
// survives restarts even when the index was not rewritten.
func (s *Store) loadProgressLocked() {
	for i := range s.idx.Books {
		rec := &s.idx.Books[i].record
		p, ok, err := readProgress(s.l.progressPath(rec.ID))
		if err != nil {
			log.Printf("WARNING: progress for %s unreadable: %v", rec.ID, err)
			continue
		}
		if !ok {
			continue
		}
		s.progress[rec.ID] = p
		if p.UpdatedAt.After(rec.LastAccessAt) {
			rec.LastAccessAt = p.UpdatedAt
		}
	}
}

func (s *Store) bookMu(bookID string) *sync.Mutex {
	mu, _ := s.bookMus.LoadOrStore(bookID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *Store) bookFromEntry(e indexEntry) entities.Book {
	return entities.Book{
		ID:           e.record.ID,
		Title:        e.record.Title,
		File:         e.record.File,
		Format:       e.record.Format,
		ImportedAt:   e.record.ImportedAt,
		Length:       e.record.Length,
		LastAccessAt: e.record.LastAccessAt,
		Progress:     s.progress[e.record.ID],
	}
}

// ListBooks returns a consistent snapshot ordered by last-access time
// descending, tie-broken by title ascending. Concurrent writes after the
// call are not visible in the returned slice.
func (s *Store) ListBooks() []entities.Book {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil
	}

	books := make([]entities.Book, 0, len(s.idx.Books))
	for _, e := range s.idx.Books {
		books = append(books, s.bookFromEntry(e))
	}
	sort.Slice(books, func(i, j int) bool {
		if !books[i].LastAccessAt.Equal(books[j].LastAccessAt) {
			return books[i].LastAccessAt.After(books[j].LastAccessAt)
		}
		return books[i].Title < books[j].Title
	})
	return books
}

// GetBook returns the current record for a bookId.
func (s *Store) GetBook(bookID string) (entities.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActive(); err != nil {
		return entities.Book{}, err
	}
	i, ok := s.idx.find(bookID)
	if !ok {
		return entities.Book{}, fmt.Errorf("%w: %s", entities.ErrUnknownBook, bookID)
	}
	return s.bookFromEntry(s.idx.Books[i]), nil
}

// ImportBook copies sourceFile into the managed subtree, derives the bookId
// from a SHA-256 of the copied content, and inserts an index entry with zero
// progress. Importing content that is already indexed returns the existing
// book together with ErrDuplicateBook. The copy goes through a staging file
// moved into place only on success, so cancellation leaves no orphan.
func (s *Store) ImportBook(ctx context.Context, sourceFile string) (entities.Book, error) {
	s.mu.Lock()
	err := s.requireActive()
	l := s.l
	s.mu.Unlock()
	if err != nil {
		return entities.Book{}, err
	}

	ext := filepath.Ext(sourceFile)
	bookFormat, ok := entities.FormatFromExtension(ext)
	if !ok {
		return entities.Book{}, fmt.Errorf("%w: %q", entities.ErrUnsupportedFormat, ext)
	}

	src, err := os.Open(sourceFile)
	if err != nil {
		return entities.Book{}, fmt.Errorf("%w: open %s: %v", entities.ErrIO, sourceFile, err)
	}
	defer src.Close()

	staging, err := os.CreateTemp(l.manageDir(), "import-*.staging")
	if err != nil {
		return entities.Book{}, fmt.Errorf("%w: create staging file: %v", entities.ErrIO, err)
	}
	stagingPath := staging.Name()
	discard := func() {
		staging.Close()
		os.Remove(stagingPath)
	}

	hasher := sha256.New()
	if err := copyWithContext(ctx, io.MultiWriter(staging, hasher), src); err != nil {
		discard()
		return entities.Book{}, err
	}
	if err := staging.Close(); err != nil {
		os.Remove(stagingPath)
		return entities.Book{}, fmt.Errorf("%w: finish staging copy: %v", entities.ErrIO, err)
	}

	bookID := hex.EncodeToString(hasher.Sum(nil))
	length, err := measureLength(stagingPath, bookFormat)
	if err != nil {
		os.Remove(stagingPath)
		return entities.Book{}, err
	}

	title := strings.TrimSuffix(filepath.Base(sourceFile), ext)
	book, err := s.commitImport(ctx, stagingPath, bookRecord{
		ID:         bookID,
		Title:      title,
		File:       path.Join(booksDirName, bookID+bookFormat.Extension()),
		Format:     bookFormat,
		ImportedAt: time.Now().UTC(),
		Length:     length,
	})
	if err != nil {
		return book, err
	}

	s.notify(entities.LibraryChange{Type: entities.ChangeImported, BookID: bookID})
	return book, nil
}

// commitImport moves the staged file into place and writes the index entry.
// A cancellation observed before the index write removes the file again so
// neither a partial entry nor an orphan survives.
func (s *Store) commitImport(ctx context.Context, stagingPath string, rec bookRecord) (entities.Book, error) {
	bm := s.bookMu(rec.ID)
	bm.Lock()
	defer bm.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.idx.find(rec.ID); ok {
		os.Remove(stagingPath)
		return s.bookFromEntry(s.idx.Books[i]), fmt.Errorf("%w: %s", entities.ErrDuplicateBook, rec.ID)
	}

	if ctx.Err() != nil {
		os.Remove(stagingPath)
		return entities.Book{}, fmt.Errorf("%w: import of %s", entities.ErrCancelled, rec.Title)
	}

	dst := s.l.bookPath(rec.File)
	if err := os.Rename(stagingPath, dst); err != nil {
		os.Remove(stagingPath)
		return entities.Book{}, fmt.Errorf("%w: place book file: %v", entities.ErrIO, err)
	}

	entry := indexEntry{record: rec}
	s.idx.Books = append(s.idx.Books, entry)
	if err := s.saveIndexLocked(); err != nil {
		s.idx.remove(rec.ID)
		os.Remove(dst)
		return entities.Book{}, err
	}
	s.progress[rec.ID] = entities.Progress{}
	return s.bookFromEntry(entry), nil
}

// DeleteBook removes the index entry first and the file second. If the file
// removal fails the entry is restored, so a deleted book never lingers in
// ListBooks while its file survives unnoticed.
func (s *Store) DeleteBook(ctx context.Context, bookID string) error {
	bm := s.bookMu(bookID)
	bm.Lock()
	defer bm.Unlock()

	s.mu.Lock()
	err := func() error {
		if err := s.requireActive(); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: delete of %s", entities.ErrCancelled, bookID)
		}
		entry, ok := s.idx.remove(bookID)
		if !ok {
			return fmt.Errorf("%w: %s", entities.ErrUnknownBook, bookID)
		}
		if err := s.saveIndexLocked(); err != nil {
			s.idx.Books = append(s.idx.Books, entry)
			return err
		}

		filePath := s.l.bookPath(entry.record.File)
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			// Compensating write: the index must not claim a book whose file
			// we failed to delete.
			s.idx.Books = append(s.idx.Books, entry)
			if saveErr := s.saveIndexLocked(); saveErr != nil {
				log.Printf("ERROR: could not restore index entry %s: %v", bookID, saveErr)
			}
			return fmt.Errorf("%w: remove %s: %v", entities.ErrIO, filePath, err)
		}

		os.Remove(s.l.progressPath(bookID))
		if covers, _ := filepath.Glob(filepath.Join(s.l.coversDir(), bookID+".*")); covers != nil {
			for _, cover := range covers {
				os.Remove(cover)
			}
		}
		delete(s.progress, bookID)
		return nil
	}()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify(entities.LibraryChange{Type: entities.ChangeDeleted, BookID: bookID})
	return nil
}

// RenameBook updates the display title. The bookId is content-derived and
// unaffected.
func (s *Store) RenameBook(bookID, title string) error {
	s.mu.Lock()
	err := func() error {
		if err := s.requireActive(); err != nil {
			return err
		}
		i, ok := s.idx.find(bookID)
		if !ok {
			return fmt.Errorf("%w: %s", entities.ErrUnknownBook, bookID)
		}
		s.idx.Books[i].record.Title = title
		return s.saveIndexLocked()
	}()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify(entities.LibraryChange{Type: entities.ChangeRenamed, BookID: bookID})
	return nil
}

// UpdateProgress validates and durably writes a progress record. Updates to
// the same book are serialized; the last writer wins.
func (s *Store) UpdateProgress(ctx context.Context, bookID string, p entities.Progress) error {
	bm := s.bookMu(bookID)
	bm.Lock()
	defer bm.Unlock()

	s.mu.Lock()
	err := func() error {
		if err := s.requireActive(); err != nil {
			return err
		}
		i, ok := s.idx.find(bookID)
		if !ok {
			return fmt.Errorf("%w: %s", entities.ErrUnknownBook, bookID)
		}
		rec := &s.idx.Books[i].record

		if p.Fraction < 0 || p.Fraction > 1 {
			return fmt.Errorf("%w: fraction %v outside [0,1]", entities.ErrInvalidProgress, p.Fraction)
		}
		if p.Position < 0 || p.Position > rec.Length {
			return fmt.Errorf("%w: position %d outside [0,%d]", entities.ErrInvalidProgress, p.Position, rec.Length)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: progress update for %s", entities.ErrCancelled, bookID)
		}

		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = time.Now().UTC()
		}
		if err := writeProgress(s.l.progressPath(bookID), p); err != nil {
			return err
		}
		s.progress[bookID] = p
		if p.UpdatedAt.After(rec.LastAccessAt) {
			rec.LastAccessAt = p.UpdatedAt
		}
		return nil
	}()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify(entities.LibraryChange{Type: entities.ChangeProgress, BookID: bookID})
	return nil
}

// BookHandle entitles the holder to read one book's content. It is a
// snapshot of identity; holders ask the store for fresh state on demand.
type BookHandle struct {
	book entities.Book
	path string
}

// Book returns the book record at handle creation time.
func (h BookHandle) Book() entities.Book { return h.book }

// Path returns the absolute path of the managed content file.
func (h BookHandle) Path() string { return h.path }

// OpenBook returns a handle for a ReaderSession and records the access time.
func (s *Store) OpenBook(bookID string) (BookHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActive(); err != nil {
		return BookHandle{}, err
	}
	i, ok := s.idx.find(bookID)
	if !ok {
		return BookHandle{}, fmt.Errorf("%w: %s", entities.ErrUnknownBook, bookID)
	}
	rec := &s.idx.Books[i].record

	abs := s.l.bookPath(rec.File)
	if _, err := os.Stat(abs); err != nil {
		return BookHandle{}, fmt.Errorf("%w: book file %s: %v", entities.ErrIO, rec.File, err)
	}

	rec.LastAccessAt = time.Now().UTC()
	if err := s.saveIndexLocked(); err != nil {
		// Access time is bookkeeping; opening still succeeds.
		log.Printf("WARNING: could not persist access time for %s: %v", bookID, err)
	}

	return BookHandle{book: s.bookFromEntry(s.idx.Books[i]), path: abs}, nil
}

// saveIndexLocked writes the index under the advisory file lock. Callers
// hold s.mu.
func (s *Store) saveIndexLocked() error {
	if err := s.flk.Lock(); err != nil {
		return fmt.Errorf("%w: lock index: %v", entities.ErrIO, err)
	}
	defer s.flk.Unlock()
	return saveIndex(s.l, s.idx)
}

// copyWithContext copies src to dst in bounded chunks, checking for
// cancellation between chunks so an abort never tears on-disk state.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 128*1024)
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: copy interrupted", entities.ErrCancelled)
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return fmt.Errorf("%w: write: %v", entities.ErrIO, werr)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: read: %v", entities.ErrIO, err)
		}
	}
}

// measureLength computes the total-length measure for a book file: bytes of
// content for txt, chapters/pages for packaged formats.
func measureLength(filePath string, f entities.Format) (int64, error) {
	if f == entities.FormatTXT {
		fi, err := os.Stat(filePath)
		if err != nil {
			return 0, fmt.Errorf("%w: stat %s: %v", entities.ErrIO, filePath, err)
		}
		return fi.Size(), nil
	}
	return format.Length(filePath, f)
}
