package chatstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"schoolhub-backend/internal/models"
)

// SQLiteStore keeps one row per chat so concurrent writers of different
// chats touch different rows.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate chat store: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			session_key TEXT PRIMARY KEY,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS chats (
			session_key TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (session_key, chat_id),
			FOREIGN KEY (session_key) REFERENCES chat_sessions(session_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chats_session ON chats(session_key, created_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, key string) ([]models.Chat, bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM chat_sessions WHERE session_key = ?)`, key,
	).Scan(&exists)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check session: %w", err)
	}
	if !exists {
		return nil, false, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM chats WHERE session_key = ? ORDER BY created_at, chat_id`, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	chats := []models.Chat{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, false, err
		}
		var c models.Chat
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return nil, false, fmt.Errorf("failed to decode chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, true, rows.Err()
}

func (s *SQLiteStore) Save(ctx context.Context, key string, chats []models.Chat) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := touchSession(ctx, tx, key); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE session_key = ?`, key); err != nil {
			return fmt.Errorf("failed to clear chats: %w", err)
		}
		for _, c := range chats {
			if err := writeChat(ctx, tx, key, c); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Upsert(ctx context.Context, key string, c models.Chat) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := touchSession(ctx, tx, key); err != nil {
			return err
		}
		return writeChat(ctx, tx, key, c)
	})
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func touchSession(ctx context.Context, tx *sql.Tx, key string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO chat_sessions (session_key, updated_at) VALUES (?, ?)
		ON CONFLICT(session_key) DO UPDATE SET updated_at = excluded.updated_at`,
		key, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

func writeChat(ctx context.Context, tx *sql.Tx, key string, c models.Chat) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode chat: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO chats (session_key, chat_id, created_at, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(session_key, chat_id) DO UPDATE SET payload = excluded.payload`,
		key, c.ID.String(), c.CreatedAt.UTC(), string(payload))
	if err != nil {
		return fmt.Errorf("failed to write chat %s: %w", c.ID, err)
	}
	return nil
}
