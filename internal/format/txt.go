package format

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/openshelf/bookreader/internal/entities"
)

// txtWindowSize is the fixed display-window size for plain text, in bytes.
const txtWindowSize = 4096

// txtDecoder serves fixed-size windows over the raw bytes of a text file.
// Positions are byte offsets, matching the length measure recorded at
// import, so fraction math stays exact.
type txtDecoder struct {
	data []byte
}

func openTXT(path string) (*txtDecoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", entities.ErrIO, path, err)
	}
	return &txtDecoder{data: data}, nil
}

func (d *txtDecoder) Length() int64 {
	return int64(len(d.data))
}

func (d *txtDecoder) Chunks() int {
	if len(d.data) == 0 {
		return 1
	}
	return (len(d.data) + txtWindowSize - 1) / txtWindowSize
}

func (d *txtDecoder) PositionOfChunk(index int) int64 {
	if index < 0 {
		return 0
	}
	pos := int64(index) * txtWindowSize
	if pos > int64(len(d.data)) {
		pos = int64(len(d.data))
	}
	return pos
}

func (d *txtDecoder) ChunkAt(position int64) (Chunk, error) {
	position = entities.ClampPosition(position, int64(len(d.data)))

	index := int(position / txtWindowSize)
	if index >= d.Chunks() {
		index = d.Chunks() - 1
	}

	start := index * txtWindowSize
	end := start + txtWindowSize
	if end > len(d.data) {
		end = len(d.data)
	}
	// Nudge the window edges onto rune boundaries so a multi-byte character
	// never renders torn across two chunks.
	for start > 0 && !utf8.RuneStart(d.data[start]) {
		start--
	}
	for end < len(d.data) && !utf8.RuneStart(d.data[end]) {
		end++
	}

	return Chunk{
		Index:    index,
		Position: int64(start),
		Content:  strings.ToValidUTF8(string(d.data[start:end]), "�"),
	}, nil
}

func (d *txtDecoder) Close() error {
	d.data = nil
	return nil
}
