package entities

import (
	"strings"
	"time"
)

// Format identifies how a book's content is packaged on disk.
type Format string

const (
	FormatTXT  Format = "txt"
	FormatEPUB Format = "epub"
	FormatPDF  Format = "pdf"
)

// FormatFromExtension maps a file extension (with or without the leading dot)
// to a supported format. The extension is authoritative; content sniffing is
// deliberately not performed.
func FormatFromExtension(ext string) (Format, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch ext {
	case "txt":
		return FormatTXT, true
	case "epub":
		return FormatEPUB, true
	case "pdf":
		return FormatPDF, true
	}
	return "", false
}

// Extension returns the canonical file extension for the format, dot included.
func (f Format) Extension() string {
	return "." + string(f)
}

// Paginated reports whether positions for this format are page/chapter indexes
// rather than byte offsets.
func (f Format) Paginated() bool {
	return f == FormatEPUB || f == FormatPDF
}

// Book is a single imported book as recorded in the library index.
// The ID is the lowercase hex SHA-256 of the file content at import time and
// is stable across renames.
type Book struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	File         string    `json:"file"` // relative to the storage root
	Format       Format    `json:"format"`
	ImportedAt   time.Time `json:"importedAt"`
	Length       int64     `json:"length"` // bytes for txt, chapters/pages otherwise
	LastAccessAt time.Time `json:"lastAccessAt,omitempty"`

	// Progress is loaded from the per-book progress record; it is not part of
	// the index file itself.
	Progress Progress `json:"progress"`
}
