package ch

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"forwarder/internal/models"
	"forwarder/internal/storage"
)

type ClickHouseDB struct {
	conn clickhouse.Conn
	now  func() time.Time
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn, now: time.Now}, nil
}

// Initialize is a no-op - tables are managed via migrations
func (db *ClickHouseDB) Initialize(ctx context.Context) error {
	return nil
}

const selectSessions = `SELECT user_id, source_channel, target_channel, mode, forward_count, user_phone, session_string
	FROM sessions FINAL`

// GetSession returns the latest version of a user's session
func (db *ClickHouseDB) GetSession(ctx context.Context, userID int64) (models.Session, error) {
	rows, err := db.conn.Query(ctx, selectSessions+` WHERE user_id = ?`, userID)
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return models.Session{}, fmt.Errorf("failed to get session: %w", err)
		}
		return models.Session{}, storage.ErrNotFound
	}
	return scanSession(rows)
}

// ListSessions returns every stored session ordered by user ID
func (db *ClickHouseDB) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := db.conn.Query(ctx, selectSessions+` ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SaveSession appends a new row version; ReplacingMergeTree keeps the newest
func (db *ClickHouseDB) SaveSession(ctx context.Context, s models.Session) error {
	err := db.conn.Exec(ctx, `INSERT INTO sessions
		(user_id, source_channel, target_channel, mode, forward_count, user_phone, session_string, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.UserID, s.SourceChannel, s.TargetChannel, s.Mode.String(), s.ForwardCount,
		s.UserPhone, s.SessionCredential, uint64(db.now().UnixNano()))
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (models.Session, error) {
	var (
		s    models.Session
		mode string
	)
	if err := row.Scan(&s.UserID, &s.SourceChannel, &s.TargetChannel, &mode, &s.ForwardCount,
		&s.UserPhone, &s.SessionCredential); err != nil {
		return models.Session{}, fmt.Errorf("failed to scan session: %w", err)
	}

	// Unknown names fall back to idle
	s.Mode, _ = models.ParseMode(mode)
	return s, nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
