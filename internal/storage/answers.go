// Package storage persists collected press-release answers in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

// Answer is one collected field value for a conversation.
type Answer struct {
	SessionKey string
	Field      string
	Value      string
	UpdatedAt  time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS answers (
	session_key TEXT NOT NULL,
	field       TEXT NOT NULL,
	value       TEXT NOT NULL,
	updated_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (session_key, field)
);`

// AnswerStore records answers keyed by (session, field). Saving the same
// field twice overwrites the previous value.
type AnswerStore struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures the schema exists. Use ":memory:" for an ephemeral store.
func Open(path string) (*AnswerStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc.org/sqlite serializes writes per connection; a single
	// connection avoids SQLITE_BUSY under concurrent upserts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &AnswerStore{db: db, nowFunc: time.Now}, nil
}

// Close closes the underlying database.
func (s *AnswerStore) Close() error {
	return s.db.Close()
}

// SetNowFunc overrides the clock used for updated_at stamps in tests.
func (s *AnswerStore) SetNowFunc(f func() time.Time) {
	s.nowFunc = f
}

// Upsert saves a field value, replacing any earlier value for the same
// session and field.
func (s *AnswerStore) Upsert(ctx context.Context, sessionKey, field, value string) error {
	if sessionKey == "" || field == "" {
		return fmt.Errorf("session key and field are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO answers (session_key, field, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_key, field) DO UPDATE SET
		   value = excluded.value,
		   updated_at = excluded.updated_at`,
		sessionKey, field, value, s.nowFunc().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

// Get returns the stored value for one field of a session.
func (s *AnswerStore) Get(ctx context.Context, sessionKey, field string) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT value FROM answers WHERE session_key = ? AND field = ?`,
		sessionKey, field)
	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get answer: %w", err)
	}
	return value, nil
}

// List returns every answer recorded for a session, ordered by field name.
func (s *AnswerStore) List(ctx context.Context, sessionKey string) ([]Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_key, field, value, updated_at
		 FROM answers WHERE session_key = ? ORDER BY field`,
		sessionKey)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var answers []Answer
	for rows.Next() {
		var a Answer
		if err := rows.Scan(&a.SessionKey, &a.Field, &a.Value, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return answers, nil
}

// DeleteSession removes every answer for a session. It returns the number
// of rows removed.
func (s *AnswerStore) DeleteSession(ctx context.Context, sessionKey string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM answers WHERE session_key = ?`, sessionKey)
	if err != nil {
		return 0, fmt.Errorf("delete session answers: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
