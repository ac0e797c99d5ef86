package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrSessionExists is returned when creating a session whose
	// (owner, name) pair is already taken.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionNotFound is returned when an operation names a session
	// the store does not hold.
	ErrSessionNotFound = errors.New("session not found")
)

// Store persists sessions, messages, the per-owner active pointer and
// usage metrics in a single SQLite database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    owner_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    model TEXT NOT NULL,
    system_prompt TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (owner_id, name)
);

-- The primary key is scoped by session because id -1 is reserved for the
-- synthetic system message of every session.
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER NOT NULL,
    owner_id INTEGER NOT NULL,
    sender_id INTEGER NOT NULL,
    sender_nickname TEXT NOT NULL,
    session_name TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('system', 'user', 'assistant', 'tool')),
    content TEXT NOT NULL,
    PRIMARY KEY (id, owner_id, session_name),
    FOREIGN KEY (owner_id, session_name) REFERENCES sessions (owner_id, name) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(owner_id, session_name, timestamp);

CREATE TABLE IF NOT EXISTS active_sessions (
    owner_id INTEGER PRIMARY KEY,
    session_name TEXT NOT NULL,
    FOREIGN KEY (owner_id, session_name) REFERENCES sessions (owner_id, name) ON DELETE CASCADE
);

-- No foreign key: temporary sessions record usage without a sessions row.
CREATE TABLE IF NOT EXISTS usage_stats (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id INTEGER NOT NULL,
    session_name TEXT NOT NULL,
    model TEXT NOT NULL,
    prompt_tokens INTEGER NOT NULL,
    eval_tokens INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_created ON usage_stats(created_at);
`

// Open opens (creating if needed) the session database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session together with its current message
// list (normally just the synthetic system message).
func (s *Store) CreateSession(ctx context.Context, sess *ChatSession) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (owner_id, name, model, system_prompt)
		VALUES (?, ?, ?, ?)`,
		sess.OwnerID, sess.Name, sess.Model, sess.SystemPrompt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSessionExists
		}
		return fmt.Errorf("insert session: %w", err)
	}

	if err := syncMessagesTx(ctx, tx, sess); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetSession loads a session and its full message list, ordered by
// timestamp with the synthetic system message first.
func (s *Store) GetSession(ctx context.Context, ownerID int64, name string) (*ChatSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT owner_id, name, model, system_prompt
		FROM sessions WHERE owner_id = ? AND name = ?`, ownerID, name)

	var sess ChatSession
	err := row.Scan(&sess.OwnerID, &sess.Name, &sess.Model, &sess.SystemPrompt)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, sender_id, sender_nickname, session_name, timestamp, role, content
		FROM messages
		WHERE owner_id = ? AND session_name = ?
		ORDER BY timestamp ASC, id ASC`, ownerID, name)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m ChatMessage
		var ts, role string
		err := rows.Scan(&m.ID, &m.OwnerID, &m.SenderID, &m.SenderNickname,
			&m.SessionName, &ts, &role, &m.Content)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if m.Timestamp, err = time.Parse(TimestampLayout, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		m.Role = Role(role)
		sess.Messages = append(sess.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return &sess, nil
}

// SessionInfo is a lightweight view of a session for listing.
type SessionInfo struct {
	Name         string
	Model        string
	MessageCount int
}

// ListSessions returns the owner's sessions in creation order.
func (s *Store) ListSessions(ctx context.Context, ownerID int64) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.name, s.model,
		       (SELECT COUNT(*) FROM messages m
		        WHERE m.owner_id = s.owner_id AND m.session_name = s.name) AS message_count
		FROM sessions s
		WHERE s.owner_id = ?
		ORDER BY s.rowid ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.Name, &info.Model, &info.MessageCount); err != nil {
			return nil, fmt.Errorf("scan session info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// DeleteSession removes a session; messages and the active pointer go
// with it through the foreign-key cascade.
func (s *Store) DeleteSession(ctx context.Context, ownerID int64, name string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE owner_id = ? AND name = ?", ownerID, name)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// SetActive marks the owner's active session, replacing any prior mark.
// The session must exist; a dangling pointer would break every later
// respond call.
func (s *Store) SetActive(ctx context.Context, ownerID int64, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx,
		"SELECT 1 FROM sessions WHERE owner_id = ? AND name = ?", ownerID, name).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("check session exists: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM active_sessions WHERE owner_id = ?", ownerID); err != nil {
		return fmt.Errorf("clear active session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO active_sessions (owner_id, session_name) VALUES (?, ?)", ownerID, name); err != nil {
		return fmt.Errorf("set active session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetActive returns the owner's active session name, or "" when none is
// marked.
func (s *Store) GetActive(ctx context.Context, ownerID int64) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT session_name FROM active_sessions WHERE owner_id = ?", ownerID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query active session: %w", err)
	}
	return name, nil
}

// ClearActive removes the owner's active mark, if any.
func (s *Store) ClearActive(ctx context.Context, ownerID int64) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM active_sessions WHERE owner_id = ?", ownerID); err != nil {
		return fmt.Errorf("clear active session: %w", err)
	}
	return nil
}

// SyncMessages mirrors the session's in-memory message list into the
// store: rows absent from memory are deleted, messages absent from
// storage are inserted, all in one transaction. Running it twice is a
// no-op.
func (s *Store) SyncMessages(ctx context.Context, sess *ChatSession) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := syncMessagesTx(ctx, tx, sess); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func syncMessagesTx(ctx context.Context, tx *sql.Tx, sess *ChatSession) error {
	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM messages WHERE owner_id = ? AND session_name = ?",
		sess.OwnerID, sess.Name)
	if err != nil {
		return fmt.Errorf("query stored ids: %w", err)
	}
	stored := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan stored id: %w", err)
		}
		stored[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate stored ids: %w", err)
	}

	inMemory := make(map[int64]bool, len(sess.Messages))
	for _, m := range sess.Messages {
		inMemory[m.ID] = true
	}

	for id := range stored {
		if inMemory[id] {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM messages WHERE id = ? AND owner_id = ? AND session_name = ?",
			id, sess.OwnerID, sess.Name); err != nil {
			return fmt.Errorf("delete stale message %d: %w", id, err)
		}
	}

	for _, m := range sess.Messages {
		if stored[m.ID] {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, owner_id, sender_id, sender_nickname, session_name, timestamp, role, content)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, sess.OwnerID, m.SenderID, m.SenderNickname, sess.Name,
			m.Timestamp.UTC().Format(TimestampLayout), string(m.Role), m.Content); err != nil {
			return fmt.Errorf("insert message %d: %w", m.ID, err)
		}
	}
	return nil
}

// UpdateModel changes which model the session talks to.
func (s *Store) UpdateModel(ctx context.Context, ownerID int64, name, model string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET model = ? WHERE owner_id = ? AND name = ?",
		model, ownerID, name)
	if err != nil {
		return fmt.Errorf("update model: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// UpdateSystemPrompt persists the session's prompt column and message
// list (the synthetic system message changed) in one transaction.
func (s *Store) UpdateSystemPrompt(ctx context.Context, sess *ChatSession) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"UPDATE sessions SET system_prompt = ? WHERE owner_id = ? AND name = ?",
		sess.SystemPrompt, sess.OwnerID, sess.Name)
	if err != nil {
		return fmt.Errorf("update system prompt: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrSessionNotFound
	}

	if err := syncMessagesTx(ctx, tx, sess); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
