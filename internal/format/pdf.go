package format

import (
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"

	"github.com/openshelf/bookreader/internal/entities"
)

// pdfDecoder serves one page of extracted text per chunk. Positions are
// zero-based page indexes; the underlying library counts pages from 1.
type pdfDecoder struct {
	f *os.File
	r *pdf.Reader
}

func openPDF(path string) (dec *pdfDecoder, err error) {
	// The pdf library panics on some malformed files; fold that into the
	// normal format-error path.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: malformed pdf: %v", entities.ErrFormat, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrFormat, err)
	}
	if r.NumPage() < 1 {
		f.Close()
		return nil, fmt.Errorf("%w: pdf has no pages", entities.ErrFormat)
	}
	return &pdfDecoder{f: f, r: r}, nil
}

func (d *pdfDecoder) Length() int64 {
	return int64(d.r.NumPage())
}

func (d *pdfDecoder) Chunks() int {
	return d.r.NumPage()
}

func (d *pdfDecoder) PositionOfChunk(index int) int64 {
	if index < 0 {
		return 0
	}
	if index >= d.r.NumPage() {
		index = d.r.NumPage() - 1
	}
	return int64(index)
}

func (d *pdfDecoder) ChunkAt(position int64) (chunk Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: page extraction: %v", entities.ErrFormat, r)
		}
	}()

	position = entities.ClampPosition(position, int64(d.r.NumPage()-1))
	idx := int(position)

	page := d.r.Page(idx + 1)
	if page.V.IsNull() {
		return Chunk{Index: idx, Position: position}, nil
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: page %d: %v", entities.ErrFormat, idx+1, err)
	}
	return Chunk{Index: idx, Position: position, Content: text}, nil
}

func (d *pdfDecoder) Close() error {
	return d.f.Close()
}
