package entities

import "errors"

// Error kinds surfaced by the library core. Callers match them with
// errors.Is; the wrapped message carries operator-readable detail.
var (
	// ErrInvalidPath is returned for empty or relative storage paths.
	ErrInvalidPath = errors.New("invalid path")

	// ErrRootMissing means the configured storage root does not exist or is
	// not a directory.
	ErrRootMissing = errors.New("storage root missing")

	// ErrRootUnwritable means the storage root exists but rejected a test write.
	ErrRootUnwritable = errors.New("storage root not writable")

	// ErrAlreadyActive is returned when Activate is called twice on a store.
	ErrAlreadyActive = errors.New("library already active")

	// ErrNotActive is returned when a store operation runs before Activate.
	ErrNotActive = errors.New("library not active")

	// ErrUnsupportedFormat is returned for files whose extension is not a
	// supported book format.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrDuplicateBook signals that content with the same hash is already
	// indexed. The import surfaces the existing book alongside this error.
	ErrDuplicateBook = errors.New("duplicate book")

	// ErrUnknownBook is returned for a bookId with no index entry.
	ErrUnknownBook = errors.New("unknown book")

	// ErrFormat means a book's content could not be decoded as its format.
	ErrFormat = errors.New("format error")

	// ErrInvalidProgress is returned for progress records whose position is
	// outside the book's length bounds or whose fraction is outside [0,1].
	ErrInvalidProgress = errors.New("invalid progress")

	// ErrIO wraps filesystem failures the core cannot recover from.
	ErrIO = errors.New("io failure")

	// ErrCancelled is returned when a suspending operation observes
	// cancellation. On-disk state is left at a consistent snapshot.
	ErrCancelled = errors.New("cancelled")
)
