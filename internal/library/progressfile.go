package library

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/openshelf/bookreader/internal/entities"
)

// readProgress loads the progress record for a book. A missing file means
// zero progress, which is what a freshly imported book reports.
func readProgress(path string) (entities.Progress, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return entities.Progress{}, false, nil
	}
	if err != nil {
		return entities.Progress{}, false, fmt.Errorf("%w: read progress: %v", entities.ErrIO, err)
	}

	var p entities.Progress
	if err := json.Unmarshal(data, &p); err != nil {
		// A corrupt progress record is not worth failing the library over;
		// the book simply restarts from the beginning.
		return entities.Progress{}, false, nil
	}
	return p, true, nil
}

// writeProgress durably replaces the progress record via atomic rename.
func writeProgress(path string, p entities.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write progress: %v", entities.ErrIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: replace progress: %v", entities.ErrIO, err)
	}
	return nil
}
