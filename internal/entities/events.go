package entities

import "time"

// ChangeType labels a library mutation for observers.
type ChangeType string

const (
	ChangeImported   ChangeType = "imported"
	ChangeDeleted    ChangeType = "deleted"
	ChangeRenamed    ChangeType = "renamed"
	ChangeProgress   ChangeType = "progress"
	ChangeReconciled ChangeType = "reconciled"
)

// LibraryChange is emitted after every successful library mutation. The
// presentation layer subscribes to refresh the bookshelf.
type LibraryChange struct {
	Type   ChangeType `json:"type"`
	BookID string     `json:"book_id,omitempty"`
	At     time.Time  `json:"at"`
}
