package entities

import "time"

// Progress is a reading cursor inside a book. Position is format-specific:
// a byte offset for txt, a chapter or page index for epub/pdf. Fraction is
// always in [0, 1].
type Progress struct {
	Position  int64     `json:"position"`
	Fraction  float64   `json:"fraction"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FractionFor computes the fraction corresponding to position within a book
// of the given length. A zero-length book is always at fraction 0.
func FractionFor(position, length int64) float64 {
	if length <= 0 {
		return 0
	}
	return float64(position) / float64(length)
}

// ClampPosition restricts p to [0, length].
func ClampPosition(p, length int64) int64 {
	if p < 0 {
		return 0
	}
	if p > length {
		return length
	}
	return p
}
