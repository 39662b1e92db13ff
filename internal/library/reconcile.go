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
	"strings"
	"time"

	"github.com/openshelf/bookreader/internal/entities"
)

// Rescan aligns the index with the files actually present under books/:
// index entries whose file is gone are dropped, unindexed files are
// re-imported by the hash rule (or quarantined when the orphan callback
// declines or the file is unusable). Safe to call periodically.
func (s *Store) Rescan(ctx context.Context) error {
	s.mu.Lock()
	if err := s.requireActive(); err != nil {
		s.mu.Unlock()
		return err
	}
	added, dropped, err := s.reconcileLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if added > 0 || dropped > 0 {
		s.notify(entities.LibraryChange{Type: entities.ChangeReconciled})
	}
	return nil
}

// reconcileLocked runs the reconciliation pass. Callers hold s.mu.
func (s *Store) reconcileLocked(ctx context.Context) (added, dropped int, err error) {
	// Pass 1: drop entries whose file is missing.
	kept := s.idx.Books[:0]
	for _, e := range s.idx.Books {
		if _, statErr := os.Stat(s.l.bookPath(e.record.File)); statErr != nil {
			if os.IsNotExist(statErr) {
				log.Printf("Reconcile: dropping %s (%s), file missing", e.record.ID, e.record.Title)
				os.Remove(s.l.progressPath(e.record.ID))
				delete(s.progress, e.record.ID)
				dropped++
				continue
			}
			return added, dropped, fmt.Errorf("%w: stat %s: %v", entities.ErrIO, e.record.File, statErr)
		}
		kept = append(kept, e)
	}
	s.idx.Books = kept

	// Pass 2: adopt or quarantine files with no entry.
	entries, readErr := os.ReadDir(s.l.booksDir())
	if readErr != nil {
		return added, dropped, fmt.Errorf("%w: read books dir: %v", entities.ErrIO, readErr)
	}

	indexed := make(map[string]bool, len(s.idx.Books))
	for _, e := range s.idx.Books {
		indexed[path.Base(e.record.File)] = true
	}

	for _, de := range entries {
		if de.IsDir() || indexed[de.Name()] {
			continue
		}
		if ctx != nil && ctx.Err() != nil {
			return added, dropped, fmt.Errorf("%w: reconciliation", entities.ErrCancelled)
		}

		orphan := filepath.Join(s.l.booksDir(), de.Name())
		if s.onOrphan != nil && !s.onOrphan(orphan) {
			s.quarantine(orphan)
			continue
		}
		if s.adoptOrphanLocked(orphan, de.Name()) {
			added++
		}
	}

	if added > 0 || dropped > 0 {
		if err := s.saveIndexLocked(); err != nil {
			return added, dropped, err
		}
	}
	return added, dropped, nil
}

// adoptOrphanLocked hashes an unindexed file and gives it an index entry,
// renaming it to its canonical <bookId><ext> name. Files with an unsupported
// extension or whose content already has an entry go to quarantine instead.
func (s *Store) adoptOrphanLocked(orphan, name string) bool {
	ext := filepath.Ext(name)
	bookFormat, ok := entities.FormatFromExtension(ext)
	if !ok {
		log.Printf("Reconcile: quarantining %s, unsupported extension", name)
		s.quarantine(orphan)
		return false
	}

	bookID, err := hashFile(orphan)
	if err != nil {
		log.Printf("WARNING: reconcile could not hash %s: %v", name, err)
		return false
	}
	if _, exists := s.idx.find(bookID); exists {
		log.Printf("Reconcile: quarantining %s, content already indexed as %s", name, bookID)
		s.quarantine(orphan)
		return false
	}

	length, err := measureLength(orphan, bookFormat)
	if err != nil {
		log.Printf("Reconcile: quarantining %s, unreadable content: %v", name, err)
		s.quarantine(orphan)
		return false
	}

	rel := path.Join(booksDirName, bookID+bookFormat.Extension())
	canonical := s.l.bookPath(rel)
	if canonical != orphan {
		if err := os.Rename(orphan, canonical); err != nil {
			log.Printf("WARNING: reconcile could not rename %s: %v", name, err)
			return false
		}
	}

	s.idx.Books = append(s.idx.Books, indexEntry{record: bookRecord{
		ID:         bookID,
		Title:      strings.TrimSuffix(name, ext),
		File:       rel,
		Format:     bookFormat,
		ImportedAt: time.Now().UTC(),
		Length:     length,
	}})
	log.Printf("Reconcile: re-imported %s as %s", name, bookID)
	return true
}

// quarantine moves a file out of books/ so it stops showing up in every
// rescan, but keeps it for the user to inspect.
func (s *Store) quarantine(filePath string) {
	dir := s.l.quarantineDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("WARNING: could not create quarantine dir: %v", err)
		return
	}
	dst := filepath.Join(dir, filepath.Base(filePath))
	if _, err := os.Stat(dst); err == nil {
		dst = filepath.Join(dir, fmt.Sprintf("%d-%s", time.Now().UnixNano(), filepath.Base(filePath)))
	}
	if err := os.Rename(filePath, dst); err != nil {
		log.Printf("WARNING: could not quarantine %s: %v", filePath, err)
	}
}

func hashFile(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", entities.ErrIO, filePath, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("%w: hash %s: %v", entities.ErrIO, filePath, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
