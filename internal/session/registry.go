// Package session owns the process-wide set of operator sessions. The
// registry is a write-through cache in front of a storage.Storage and also
// carries the transient per-operator run state: the stop request and the
// active-run guard.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"forwarder/internal/models"
	"forwarder/internal/storage"
)

// ErrRunActive is returned by BeginRun while the operator already has a run
var ErrRunActive = errors.New("a forwarding run is already active")

type entry struct {
	session models.Session
	stop    bool
	running bool
}

// Registry is safe for concurrent use
type Registry struct {
	store  storage.Storage
	logger *zap.Logger

	mu      sync.Mutex
	entries map[int64]*entry
}

// NewRegistry creates an empty registry over store
func NewRegistry(store storage.Storage, logger *zap.Logger) *Registry {
	return &Registry{
		store:   store,
		logger:  logger,
		entries: make(map[int64]*entry),
	}
}

// Warm loads every stored session so live relays resume after a restart
func (r *Registry) Warm(ctx context.Context) (int, error) {
	sessions, err := r.store.ListSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load sessions: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range sessions {
		if _, ok := r.entries[s.UserID]; !ok {
			r.entries[s.UserID] = &entry{session: s}
		}
	}
	return len(sessions), nil
}

// Get returns a copy of the operator's session, loading it on first use.
// A user with nothing stored gets an idle session that is not persisted
// until its first mutation.
func (r *Registry) Get(ctx context.Context, userID int64) (models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.load(ctx, userID)
	if err != nil {
		return models.Session{}, err
	}
	return e.session, nil
}

// Update applies fn to a copy of the session and saves it. On a failed save
// the cached session is left unchanged.
func (r *Registry) Update(ctx context.Context, userID int64, fn func(*models.Session)) (models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.load(ctx, userID)
	if err != nil {
		return models.Session{}, err
	}

	next := e.session
	fn(&next)
	next.UserID = userID

	// The cached copy only changes once the store has accepted it
	if err := r.store.SaveSession(ctx, next); err != nil {
		return e.session, fmt.Errorf("failed to save session: %w", err)
	}
	e.session = next
	return next, nil
}

// SetMode is a shorthand for an Update that only changes the mode
func (r *Registry) SetMode(ctx context.Context, userID int64, mode models.Mode) (models.Session, error) {
	return r.Update(ctx, userID, func(s *models.Session) {
		s.Mode = mode
	})
}

// Snapshot returns copies of all loaded sessions ordered by user ID
func (r *Registry) Snapshot() []models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Session, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.session)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UserID < out[j].UserID
	})
	return out
}

// AddForwarded increments forward_count in memory only; call Persist to save it
func (r *Registry) AddForwarded(userID int64, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[userID]; ok {
		e.session.ForwardCount += n
	}
}

// Persist saves the in-memory copy of the session
func (r *Registry) Persist(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[userID]
	if !ok {
		return nil
	}
	if err := r.store.SaveSession(ctx, e.session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// RequestStop asks the operator's active run to halt at its next iteration
func (r *Registry) RequestStop(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[userID]; ok {
		e.stop = true
	}
}

// ResetStop clears a pending stop request
func (r *Registry) ResetStop(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[userID]; ok {
		e.stop = false
	}
}

// ConsumeStop reports whether a stop was requested and clears the request
func (r *Registry) ConsumeStop(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[userID]
	if !ok || !e.stop {
		return false
	}
	e.stop = false
	return true
}

// BeginRun marks the operator as having an active run
func (r *Registry) BeginRun(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.load(ctx, userID)
	if err != nil {
		return err
	}
	if e.running {
		return ErrRunActive
	}
	e.running = true
	return nil
}

// EndRun releases the active-run guard
func (r *Registry) EndRun(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[userID]; ok {
		e.running = false
	}
}

// Running reports whether the operator has an active run
func (r *Registry) Running(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[userID]
	return ok && e.running
}

// load must be called with r.mu held
func (r *Registry) load(ctx context.Context, userID int64) (*entry, error) {
	if e, ok := r.entries[userID]; ok {
		return e, nil
	}

	s, err := r.store.GetSession(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s = models.NewSession(userID)
	case err != nil:
		return nil, fmt.Errorf("failed to load session %d: %w", userID, err)
	default:
		r.logger.Debug("Session loaded", zap.Int64("user_id", userID), zap.Stringer("mode", s.Mode))
	}

	e := &entry{session: s}
	r.entries[userID] = e
	return e, nil
}
