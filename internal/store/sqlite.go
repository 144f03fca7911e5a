package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/courierchat/courier/internal/model"
)

// SQLiteStore implements Store on a local SQLite file. Intended for
// single-node development; the relay runs as one process, so a
// process-wide append mutex is enough to serialize chunk selection.
type SQLiteStore struct {
	db        *sql.DB
	chunkSize int

	appendMu sync.Mutex
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(ctx context.Context, dbPath string, chunkSize int) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, chunkSize: chunkSize}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_chunks (
		chat_id  TEXT NOT NULL,
		chunk_id INTEGER NOT NULL,
		messages TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (chat_id, chunk_id)
	);

	CREATE TABLE IF NOT EXISTS undelivered (
		id          TEXT PRIMARY KEY,
		recipient   TEXT NOT NULL,
		message     TEXT NOT NULL,
		enqueued_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS undelivered_recipient_idx
		ON undelivered (recipient, id);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Append implements ConversationLog. SQLite has no row locks, so the
// read-decide-write sequence is serialized by appendMu instead.
func (s *SQLiteStore) Append(ctx context.Context, msg model.Message) error {
	payload, err := json.Marshal(msg.Wire())
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	var chunkID int
	var raw string
	err = s.db.QueryRowContext(ctx, `
		SELECT chunk_id, messages
		FROM chat_chunks
		WHERE chat_id = ?
		ORDER BY chunk_id DESC
		LIMIT 1
	`, msg.ChatID).Scan(&chunkID, &raw)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO chat_chunks (chat_id, chunk_id, messages)
			VALUES (?, 0, ?)
		`, msg.ChatID, "["+string(payload)+"]")
	case err != nil:
		return fmt.Errorf("select head chunk: %w", err)
	default:
		var wires []json.RawMessage
		if err := json.Unmarshal([]byte(raw), &wires); err != nil {
			return fmt.Errorf("decode head chunk: %w", err)
		}

		if len(wires) < s.chunkSize {
			wires = append(wires, payload)
			updated, merr := json.Marshal(wires)
			if merr != nil {
				return fmt.Errorf("encode head chunk: %w", merr)
			}
			_, err = s.db.ExecContext(ctx, `
				UPDATE chat_chunks SET messages = ?
				WHERE chat_id = ? AND chunk_id = ?
			`, string(updated), msg.ChatID, chunkID)
		} else {
			_, err = s.db.ExecContext(ctx, `
				INSERT INTO chat_chunks (chat_id, chunk_id, messages)
				VALUES (?, ?, ?)
			`, msg.ChatID, chunkID+1, "["+string(payload)+"]")
		}
	}
	if err != nil {
		return fmt.Errorf("append to chunk: %w", err)
	}
	return nil
}

// Read implements ConversationLog.
func (s *SQLiteStore) Read(ctx context.Context, chatID string) ([]model.Message, error) {
	chunks, err := s.Chunks(ctx, chatID)
	if err != nil {
		return nil, err
	}

	var out []model.Message
	for _, chunk := range chunks {
		out = append(out, chunk.Messages...)
	}
	return out, nil
}

// Chunks implements ConversationLog.
func (s *SQLiteStore) Chunks(ctx context.Context, chatID string) ([]model.ChatChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, messages
		FROM chat_chunks
		WHERE chat_id = ?
		ORDER BY chunk_id
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var out []model.ChatChunk
	for rows.Next() {
		var chunkID int
		var raw string
		if err := rows.Scan(&chunkID, &raw); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}

		var wires []model.WireMessage
		if err := json.Unmarshal([]byte(raw), &wires); err != nil {
			return nil, fmt.Errorf("decode chunk %d of %s: %w", chunkID, chatID, err)
		}

		chunk := model.ChatChunk{ChatID: chatID, ChunkID: chunkID}
		for _, w := range wires {
			chunk.Messages = append(chunk.Messages, model.FromWire(w))
		}
		out = append(out, chunk)
	}
	return out, rows.Err()
}

// Enqueue implements PendingQueue.
func (s *SQLiteStore) Enqueue(ctx context.Context, msg model.Message) error {
	payload, err := json.Marshal(msg.Wire())
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO undelivered (id, recipient, message)
		VALUES (?, ?, ?)
	`, msg.ID, msg.SentTo, string(payload))
	if err != nil {
		return fmt.Errorf("enqueue pending: %w", err)
	}
	return nil
}

// Drain implements PendingQueue.
func (s *SQLiteStore) Drain(ctx context.Context, recipient string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message
		FROM undelivered
		WHERE recipient = ?
		ORDER BY id
	`, recipient)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		var w model.WireMessage
		if err := json.Unmarshal([]byte(raw), &w); err != nil {
			return nil, fmt.Errorf("decode pending entry: %w", err)
		}
		out = append(out, model.FromWire(w))
	}
	return out, rows.Err()
}

// Remove implements PendingQueue.
func (s *SQLiteStore) Remove(ctx context.Context, msg model.Message) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM undelivered WHERE id = ?`, msg.ID)
	if err != nil {
		return fmt.Errorf("remove pending: %w", err)
	}
	return nil
}

// DB exposes the underlying handle so the account directory can share
// the same database file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
