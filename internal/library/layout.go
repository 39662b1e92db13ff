package library

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openshelf/bookreader/internal/entities"
)

// On-disk layout under the storage root:
//
//	<root>/
//	  .bookreader/
//	    index.json
//	    index.json.tmp        (transient during write)
//	    index.lock            (advisory lock)
//	    progress/<bookId>.json
//	    covers/<bookId>.jpg
//	    quarantine/           (unreconcilable files)
//	    history.db
//	  books/<bookId><ext>
const (
	manageDirName     = ".bookreader"
	booksDirName      = "books"
	indexFileName     = "index.json"
	indexTmpFileName  = "index.json.tmp"
	lockFileName      = "index.lock"
	progressDirName   = "progress"
	coversDirName     = "covers"
	quarantineDirName = "quarantine"
	historyFileName   = "history.db"
	tasksFileName     = "tasks.db"
)

type layout struct {
	root string
}

func (l layout) manageDir() string     { return filepath.Join(l.root, manageDirName) }
func (l layout) booksDir() string      { return filepath.Join(l.root, booksDirName) }
func (l layout) indexPath() string     { return filepath.Join(l.manageDir(), indexFileName) }
func (l layout) indexTmpPath() string  { return filepath.Join(l.manageDir(), indexTmpFileName) }
func (l layout) lockPath() string      { return filepath.Join(l.manageDir(), lockFileName) }
func (l layout) progressDir() string   { return filepath.Join(l.manageDir(), progressDirName) }
func (l layout) coversDir() string     { return filepath.Join(l.manageDir(), coversDirName) }
func (l layout) quarantineDir() string { return filepath.Join(l.manageDir(), quarantineDirName) }

// HistoryDBPath returns the reading-history database path for a root.
func HistoryDBPath(root string) string {
	return filepath.Join(root, manageDirName, historyFileName)
}

// TasksDBPath returns the background-task database path for a root.
func TasksDBPath(root string) string {
	return filepath.Join(root, manageDirName, tasksFileName)
}

// CoversDir returns the cover cache directory for a root.
func CoversDir(root string) string {
	return filepath.Join(root, manageDirName, coversDirName)
}

// BooksDir returns the managed content directory for a root.
func BooksDir(root string) string {
	return filepath.Join(root, booksDirName)
}

func (l layout) progressPath(bookID string) string {
	return filepath.Join(l.progressDir(), bookID+".json")
}

func (l layout) bookFileName(bookID string, format entities.Format) string {
	return bookID + format.Extension()
}

func (l layout) bookPath(relFile string) string {
	return filepath.Join(l.root, filepath.FromSlash(relFile))
}

// ensure creates the managed subdirectory layout if absent.
func (l layout) ensure() error {
	for _, dir := range []string{l.manageDir(), l.booksDir(), l.progressDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
