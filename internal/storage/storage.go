package storage

import (
	"context"
	"errors"

	"forwarder/internal/models"
)

// ErrNotFound is returned when no session is stored for a user
var ErrNotFound = errors.New("session not found")

// Storage defines the interface for session persistence
type Storage interface {
	// GetSession returns the stored session or ErrNotFound
	GetSession(ctx context.Context, userID int64) (models.Session, error)
	// ListSessions returns every stored session
	ListSessions(ctx context.Context) ([]models.Session, error)
	// SaveSession inserts or replaces the session keyed by its UserID
	SaveSession(ctx context.Context, s models.Session) error

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}
