// Package covers maintains the local cache of book cover images used by the
// bookshelf view.
package covers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openshelf/bookreader/internal/entities"
	"github.com/openshelf/bookreader/internal/format"
)

// Cache stores extracted cover images, one file per bookId.
type Cache struct {
	cacheDir string
}

// NewCache creates a cover cache at the specified directory.
func NewCache(cacheDir string) (*Cache, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{cacheDir: cacheDir}, nil
}

// CoverPath returns the cached cover for a book, if one has been extracted.
func (c *Cache) CoverPath(bookID string) (string, bool) {
	for _, ext := range []string{".jpg", ".png", ".gif"} {
		p := filepath.Join(c.cacheDir, bookID+ext)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// Extract pulls the cover image out of a book file and caches it. Formats
// without embedded cover art (txt) and books that simply declare none return
// ErrFormat; callers treat that as "no cover".
func (c *Cache) Extract(bookID, bookPath string, f entities.Format) (string, error) {
	if f != entities.FormatEPUB {
		return "", fmt.Errorf("%w: no cover art in %s files", entities.ErrFormat, f)
	}

	data, ext, err := format.ExtractEPUBCover(bookPath)
	if err != nil {
		return "", err
	}

	cachePath := filepath.Join(c.cacheDir, bookID+ext)

	// Write to a temp file in the same directory so the rename is atomic.
	tmp, err := os.CreateTemp(c.cacheDir, "cover_tmp_")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, cachePath); err != nil {
		return "", err
	}
	return cachePath, nil
}

// Invalidate removes the cached cover for a book.
func (c *Cache) Invalidate(bookID string) error {
	matches, err := filepath.Glob(filepath.Join(c.cacheDir, bookID+".*"))
	if err != nil {
		return err
	}
	for _, match := range matches {
		if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// CacheDir returns the cache directory path.
func (c *Cache) CacheDir() string {
	return c.cacheDir
}
