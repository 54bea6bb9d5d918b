package stubs

import (
	"context"
	"sort"
	"sync"

	"forwarder/internal/models"
	"forwarder/internal/storage"
)

// MockDB is an in-memory implementation of the Storage interface for testing
type MockDB struct {
	mu       sync.RWMutex
	sessions map[int64]models.Session
	saves    int
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		sessions: make(map[int64]models.Session),
	}
}

// Initialize is a no-op for the in-memory store
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

func (m *MockDB) GetSession(ctx context.Context, userID int64) (models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[userID]
	if !ok {
		return models.Session{}, storage.ErrNotFound
	}
	return s, nil
}

func (m *MockDB) ListSessions(ctx context.Context) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UserID < sessions[j].UserID
	})
	return sessions, nil
}

func (m *MockDB) SaveSession(ctx context.Context, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.UserID] = s
	m.saves++
	return nil
}

// Saves returns how many times SaveSession was called
func (m *MockDB) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Close is a no-op for mock database
func (m *MockDB) Close() error {
	return nil
}
