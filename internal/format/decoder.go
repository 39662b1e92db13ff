// Package format decodes book content per format tag. Decoders share a small
// capability set (length, chunk lookup by position, position of a chunk) so
// the reader session never branches on the concrete format.
package format

import (
	"fmt"

	"github.com/openshelf/bookreader/internal/entities"
)

// Chunk is one display unit: a chapter for epub, a page for pdf, a
// fixed-size text window for txt.
type Chunk struct {
	Index    int    `json:"index"`
	Position int64  `json:"position"` // position of the chunk's start
	Title    string `json:"title,omitempty"`
	Content  string `json:"content"`
}

// Decoder is the capability set every format implements.
type Decoder interface {
	// Length is the book's total-length measure: bytes for txt, number of
	// chunks for paginated formats.
	Length() int64

	// Chunks is the number of display units.
	Chunks() int

	// ChunkAt returns the display unit containing position. The position is
	// clamped to the valid range first.
	ChunkAt(position int64) (Chunk, error)

	// PositionOfChunk maps a chunk index back to a position.
	PositionOfChunk(index int) int64

	Close() error
}

// Open selects a decoder by format tag and loads enough to serve the first
// chunk. Content that cannot be decoded fails with ErrFormat.
func Open(path string, f entities.Format) (Decoder, error) {
	switch f {
	case entities.FormatTXT:
		return openTXT(path)
	case entities.FormatEPUB:
		return openEPUB(path)
	case entities.FormatPDF:
		return openPDF(path)
	}
	return nil, fmt.Errorf("%w: %q", entities.ErrUnsupportedFormat, f)
}

// Length opens path just long enough to compute its total-length measure.
// Used at import time for paginated formats.
func Length(path string, f entities.Format) (int64, error) {
	dec, err := Open(path, f)
	if err != nil {
		return 0, err
	}
	defer dec.Close()
	return dec.Length(), nil
}
