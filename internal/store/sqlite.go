package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/asthmacare/companion/internal/domain"
	"github.com/asthmacare/companion/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS identity_hint (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		username TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender TEXT NOT NULL,
		content TEXT NOT NULL,
		display_time TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// IdentityHint returns the cached username hint, or "" when absent.
func (s *SQLiteStore) IdentityHint(ctx context.Context) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT username FROM identity_hint WHERE id = 1`)

	var username string
	err := row.Scan(&username)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scan identity hint: %w", err)
	}
	return username, nil
}

// SaveIdentityHint stores the username hint.
func (s *SQLiteStore) SaveIdentityHint(ctx context.Context, username string) error {
	query := `
	INSERT INTO identity_hint (id, username, updated_at)
	VALUES (1, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		username = excluded.username,
		updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, username, time.Now().Unix()); err != nil {
		return fmt.Errorf("save identity hint: %w", err)
	}
	return nil
}

// ClearIdentityHint removes the cached hint.
func (s *SQLiteStore) ClearIdentityHint(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM identity_hint WHERE id = 1`); err != nil {
		return fmt.Errorf("clear identity hint: %w", err)
	}
	return nil
}

// AppendMessage mirrors one conversation message locally. The mirror
// writer and the facade can touch the database at once, so a single
// conflict retry covers SQLITE_BUSY.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg domain.Message) error {
	query := `
	INSERT OR IGNORE INTO messages (id, sender, content, display_time, created_at)
	VALUES (?, ?, ?, ?, ?)`

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		msg.ID, string(msg.Sender), msg.Content, msg.Timestamp, createdAt.UnixNano())
	if shared.IsSQLiteConflictError(err) {
		time.Sleep(50 * time.Millisecond)
		_, err = s.db.ExecContext(ctx, query,
			msg.ID, string(msg.Sender), msg.Content, msg.Timestamp, createdAt.UnixNano())
	}
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit mirrored messages, oldest first.
func (s *SQLiteStore) RecentMessages(ctx context.Context, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
	SELECT id, sender, content, display_time, created_at
	FROM (
		SELECT id, sender, content, display_time, created_at
		FROM messages ORDER BY created_at DESC LIMIT ?
	) ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var sender string
		var createdAt int64
		if err := rows.Scan(&msg.ID, &sender, &msg.Content, &msg.Timestamp, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Sender = domain.Sender(sender)
		msg.CreatedAt = time.Unix(0, createdAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return messages, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
