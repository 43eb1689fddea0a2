package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// Keys of the key/value session table
const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyUser         = "user"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS session (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);`

// Session persisted in SQLite file, survives client restarts
type SQLiteStore struct {
	db *sql.DB
}

// Open (or create) SQLite database at path. ":memory:" is fine for tests
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session db: %w", err)
	}

	// Each connection to ":memory:" is a separate database
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create session table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (Session, error) {
	var session Session

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM session`)
	if err != nil {
		return session, fmt.Errorf("failed to load session: %w", err)
	}
	defer rows.Close() // nolint:errcheck

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return Session{}, fmt.Errorf("failed to scan session row: %w", err)
		}

		switch key {
		case keyAccessToken:
			session.AccessToken = string(value)
		case keyRefreshToken:
			session.RefreshToken = string(value)
		case keyUser:
			var u User
			if err := json.Unmarshal(value, &u); err != nil {
				return Session{}, fmt.Errorf("failed to decode stored user: %w", err)
			}
			session.User = &u
		}
	}

	if err := rows.Err(); err != nil {
		return Session{}, fmt.Errorf("failed to iterate session rows: %w", err)
	}

	return session, nil
}

func (s *SQLiteStore) Save(ctx context.Context, session Session) (err error) {
	if err := session.validate(); err != nil {
		return err
	}

	values := map[string][]byte{}
	if session.AccessToken != "" {
		values[keyAccessToken] = []byte(session.AccessToken)
	}
	if session.RefreshToken != "" {
		values[keyRefreshToken] = []byte(session.RefreshToken)
	}
	if session.User != nil {
		b, err := json.Marshal(session.User)
		if err != nil {
			return fmt.Errorf("failed to encode user: %w", err)
		}
		values[keyUser] = b
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin session tx: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	for _, key := range []string{keyAccessToken, keyRefreshToken, keyUser} {
		value, ok := values[key]
		if !ok {
			if _, err = tx.ExecContext(ctx, `DELETE FROM session WHERE key = ?`, key); err != nil {
				return fmt.Errorf("failed to delete session[%s]: %w", key, err)
			}
			continue
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO session (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value)
		if err != nil {
			return fmt.Errorf("failed to set session[%s]: %w", key, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session`)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
