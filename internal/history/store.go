// Package history keeps per-book reading statistics in a small sqlite
// database under the managed subtree. It is presentation sugar for the
// bookshelf; the library core never depends on it.
package history

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ReadingSession is one open-to-close span of a reader session.
type ReadingSession struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	BookID        string    `gorm:"index;size:64" json:"book_id"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
	StartFraction float64   `json:"start_fraction"`
	EndFraction   float64   `json:"end_fraction"`
	CreatedAt     time.Time `json:"created_at"`
}

func (ReadingSession) TableName() string {
	return "reading_sessions"
}

// BookStats aggregates a single book's sessions.
type BookStats struct {
	BookID       string        `json:"book_id"`
	Sessions     int64         `json:"sessions"`
	TotalReading time.Duration `json:"total_reading"`
	LastReadAt   time.Time     `json:"last_read_at"`
}

// Store wraps the history database.
type Store struct {
	db *gorm.DB
}

// NewStore opens (and if needed creates) the history database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := db.AutoMigrate(&ReadingSession{}); err != nil {
		return nil, fmt.Errorf("migrate history database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordSession stores one finished reader session.
func (s *Store) RecordSession(bookID string, startedAt, endedAt time.Time, startFraction, endFraction float64) error {
	return s.db.Create(&ReadingSession{
		BookID:        bookID,
		StartedAt:     startedAt,
		EndedAt:       endedAt,
		StartFraction: startFraction,
		EndFraction:   endFraction,
	}).Error
}

// SessionsForBook returns a book's sessions, most recent first.
func (s *Store) SessionsForBook(bookID string) ([]ReadingSession, error) {
	var sessions []ReadingSession
	err := s.db.Where("book_id = ?", bookID).Order("started_at DESC").Find(&sessions).Error
	return sessions, err
}

// StatsForBook aggregates a book's sessions.
func (s *Store) StatsForBook(bookID string) (BookStats, error) {
	sessions, err := s.SessionsForBook(bookID)
	if err != nil {
		return BookStats{}, err
	}

	stats := BookStats{BookID: bookID, Sessions: int64(len(sessions))}
	for _, sess := range sessions {
		stats.TotalReading += sess.EndedAt.Sub(sess.StartedAt)
		if sess.EndedAt.After(stats.LastReadAt) {
			stats.LastReadAt = sess.EndedAt
		}
	}
	return stats, nil
}

// DeleteForBook removes a deleted book's history so no record outlives it.
func (s *Store) DeleteForBook(bookID string) error {
	return s.db.Where("book_id = ?", bookID).Delete(&ReadingSession{}).Error
}
