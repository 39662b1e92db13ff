package library

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/openshelf/bookreader/internal/entities"
)

// indexVersion is the current index schema version.
const indexVersion = 1

// bookRecord is the wire shape of one book inside index.json. Progress is
// deliberately not part of the index; it lives in per-book progress files.
type bookRecord struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	File         string          `json:"file"`
	Format       entities.Format `json:"format"`
	ImportedAt   time.Time       `json:"importedAt"`
	Length       int64           `json:"length"`
	LastAccessAt time.Time       `json:"lastAccessAt,omitempty"`
}

// indexEntry pairs the known fields with any unknown JSON fields found in the
// file, so a rewrite by an older build never loses data written by a newer one.
type indexEntry struct {
	record bookRecord
	extra  map[string]json.RawMessage
}

var bookKnownKeys = []string{"id", "title", "file", "format", "importedAt", "length", "lastAccessAt"}

func (e *indexEntry) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &e.record); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range bookKnownKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		e.extra = raw
	}
	return nil
}

func (e indexEntry) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(e.record, e.extra)
}

// indexFile is the top-level shape of index.json.
type indexFile struct {
	Version int          `json:"version"`
	Books   []indexEntry `json:"books"`

	extra map[string]json.RawMessage
}

func (f *indexFile) UnmarshalJSON(data []byte) error {
	type known struct {
		Version int          `json:"version"`
		Books   []indexEntry `json:"books"`
	}
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	f.Version = k.Version
	f.Books = k.Books

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	delete(raw, "version")
	delete(raw, "books")
	if len(raw) > 0 {
		f.extra = raw
	}
	return nil
}

func (f indexFile) MarshalJSON() ([]byte, error) {
	type known struct {
		Version int          `json:"version"`
		Books   []indexEntry `json:"books"`
	}
	return marshalWithExtra(known{Version: f.Version, Books: f.Books}, f.extra)
}

// marshalWithExtra merges the known struct fields with preserved unknown
// fields into a single JSON object. Known fields win on key collision.
func marshalWithExtra(known any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return data, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// loadIndex reads index.json under the layout. A missing file is an empty
// index; a sibling .tmp left by an interrupted write is ignored. A missing
// file is re-checked once because another instance may be mid-rename.
func loadIndex(l layout) (*indexFile, error) {
	data, err := os.ReadFile(l.indexPath())
	if os.IsNotExist(err) {
		data, err = os.ReadFile(l.indexPath())
	}
	if err != nil {
		if os.IsNotExist(err) {
			return &indexFile{Version: indexVersion}, nil
		}
		return nil, fmt.Errorf("%w: read index: %v", entities.ErrIO, err)
	}

	var f indexFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse index: %v", entities.ErrIO, err)
	}
	if f.Version == 0 {
		f.Version = indexVersion
	}
	return &f, nil
}

// saveIndex writes the index with write-new-then-rename so readers never see
// a torn file.
func saveIndex(l layout, f *indexFile) error {
	sort.Slice(f.Books, func(i, j int) bool {
		a, b := f.Books[i].record, f.Books[j].record
		if !a.ImportedAt.Equal(b.ImportedAt) {
			return a.ImportedAt.Before(b.ImportedAt)
		}
		return a.ID < b.ID
	})

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	data = append(data, '\n')

	tmp := l.indexTmpPath()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write index: %v", entities.ErrIO, err)
	}
	if err := os.Rename(tmp, l.indexPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: replace index: %v", entities.ErrIO, err)
	}
	return nil
}

func (f *indexFile) find(bookID string) (int, bool) {
	for i := range f.Books {
		if f.Books[i].record.ID == bookID {
			return i, true
		}
	}
	return -1, false
}

func (f *indexFile) remove(bookID string) (indexEntry, bool) {
	i, ok := f.find(bookID)
	if !ok {
		return indexEntry{}, false
	}
	entry := f.Books[i]
	f.Books = append(f.Books[:i], f.Books[i+1:]...)
	return entry, true
}
