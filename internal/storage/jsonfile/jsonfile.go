// Package jsonfile stores sessions in a single JSON object keyed by the
// stringified user ID.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"forwarder/internal/models"
	"forwarder/internal/storage"
)

// record is the on-disk shape of one session. The transient stop flag is
// never written.
type record struct {
	SourceChannel *int64  `json:"source_channel"`
	TargetChannel *int64  `json:"target_channel"`
	Mode          string  `json:"mode"`
	ForwardCount  int64   `json:"forward_count"`
	UserPhone     *string `json:"user_phone"`
	SessionString *string `json:"session_string"`
}

// FileDB is a flat-file Storage implementation
type FileDB struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewFileDB creates a store backed by the file at path. The file is created
// on first save.
func NewFileDB(path string, logger *zap.Logger) *FileDB {
	return &FileDB{path: path, logger: logger}
}

// Initialize checks that an existing file is readable and well-formed
func (db *FileDB) Initialize(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.read(); err != nil {
		return err
	}
	return nil
}

func (db *FileDB) GetSession(ctx context.Context, userID int64) (models.Session, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	doc, err := db.read()
	if err != nil {
		return models.Session{}, err
	}
	rec, ok := doc[strconv.FormatInt(userID, 10)]
	if !ok {
		return models.Session{}, storage.ErrNotFound
	}
	return db.toSession(userID, rec), nil
}

func (db *FileDB) ListSessions(ctx context.Context) ([]models.Session, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	doc, err := db.read()
	if err != nil {
		return nil, err
	}

	sessions := make([]models.Session, 0, len(doc))
	for key, rec := range doc {
		userID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			db.logger.Warn("Skipping session with malformed key", zap.String("key", key))
			continue
		}
		sessions = append(sessions, db.toSession(userID, rec))
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UserID < sessions[j].UserID
	})
	return sessions, nil
}

// SaveSession merges the session into the document and rewrites the file
func (db *FileDB) SaveSession(ctx context.Context, s models.Session) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	doc, err := db.read()
	if err != nil {
		return err
	}
	doc[strconv.FormatInt(s.UserID, 10)] = fromSession(s)
	return db.write(doc)
}

// Close is a no-op; every save is flushed immediately
func (db *FileDB) Close() error {
	return nil
}

func (db *FileDB) read() (map[string]record, error) {
	doc := make(map[string]record)

	data, err := os.ReadFile(db.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", db.path, err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", db.path, err)
	}
	return doc, nil
}

// write replaces the file atomically through a temp file in the same directory
func (db *FileDB) write(doc map[string]record) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sessions: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(db.path), filepath.Base(db.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write sessions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write sessions: %w", err)
	}
	if err := os.Rename(tmp.Name(), db.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", db.path, err)
	}
	return nil
}

func (db *FileDB) toSession(userID int64, rec record) models.Session {
	s := models.NewSession(userID)
	if rec.SourceChannel != nil {
		s.SourceChannel = *rec.SourceChannel
	}
	if rec.TargetChannel != nil {
		s.TargetChannel = *rec.TargetChannel
	}
	if rec.UserPhone != nil {
		s.UserPhone = *rec.UserPhone
	}
	if rec.SessionString != nil {
		s.SessionCredential = *rec.SessionString
	}
	s.ForwardCount = rec.ForwardCount

	if rec.Mode != "" {
		mode, err := models.ParseMode(rec.Mode)
		if err != nil {
			db.logger.Warn("Unknown stored mode, falling back to idle",
				zap.Int64("user_id", userID),
				zap.String("mode", rec.Mode),
			)
		}
		s.Mode = mode
	}
	return s
}

func fromSession(s models.Session) record {
	rec := record{
		Mode:         s.Mode.String(),
		ForwardCount: s.ForwardCount,
	}
	if s.SourceChannel != 0 {
		rec.SourceChannel = &s.SourceChannel
	}
	if s.TargetChannel != 0 {
		rec.TargetChannel = &s.TargetChannel
	}
	if s.UserPhone != "" {
		rec.UserPhone = &s.UserPhone
	}
	if s.SessionCredential != "" {
		rec.SessionString = &s.SessionCredential
	}
	return rec
}
