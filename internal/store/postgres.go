package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/courierchat/courier/internal/model"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	pool      *pgxpool.Pool
	chunkSize int
}

// NewPostgresStore wraps an existing pool. chunkSize is the per-chunk
// message cap.
func NewPostgresStore(pool *pgxpool.Pool, chunkSize int) *PostgresStore {
	return &PostgresStore{pool: pool, chunkSize: chunkSize}
}

// Migrate creates the relay's tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_chunks (
			chat_id  TEXT  NOT NULL,
			chunk_id INT   NOT NULL,
			messages JSONB NOT NULL DEFAULT '[]'::jsonb,
			PRIMARY KEY (chat_id, chunk_id)
		);

		CREATE TABLE IF NOT EXISTS undelivered (
			id          TEXT PRIMARY KEY,
			recipient   TEXT NOT NULL,
			message     JSONB NOT NULL,
			enqueued_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS undelivered_recipient_idx
			ON undelivered (recipient, id);
	`)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Append implements ConversationLog. The chunk decision runs inside a
// transaction that locks the conversation's head chunk row, so two
// concurrent appends to the same conversation serialize and cannot
// both open a new chunk or overfill the head.
func (s *PostgresStore) Append(ctx context.Context, msg model.Message) error {
	payload, err := json.Marshal(msg.Wire())
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	var chunkID, count int
	err = tx.QueryRow(ctx, `
		SELECT chunk_id, jsonb_array_length(messages)
		FROM chat_chunks
		WHERE chat_id = $1
		ORDER BY chunk_id DESC
		LIMIT 1
		FOR UPDATE
	`, msg.ChatID).Scan(&chunkID, &count)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// First message of the conversation. There is no head row to
		// lock, so two first-appends can race to chunk 0; the conflict
		// clause merges the loser's message instead of failing.
		_, err = tx.Exec(ctx, `
			INSERT INTO chat_chunks (chat_id, chunk_id, messages)
			VALUES ($1, 0, jsonb_build_array($2::jsonb))
			ON CONFLICT (chat_id, chunk_id)
			DO UPDATE SET messages = chat_chunks.messages || excluded.messages
		`, msg.ChatID, payload)
	case err != nil:
		return fmt.Errorf("select head chunk: %w", err)
	case count < s.chunkSize:
		_, err = tx.Exec(ctx, `
			UPDATE chat_chunks
			SET messages = messages || $3::jsonb
			WHERE chat_id = $1 AND chunk_id = $2
		`, msg.ChatID, chunkID, payload)
	default:
		// Head chunk is sealed. The FOR UPDATE lock serializes the
		// boundary crossing, but a transaction that waited on the lock
		// resumes with the same head row (the winner inserted a new row
		// rather than updating the locked one) and still sees the chunk
		// as full, so the successor may already exist; merge into it
		// instead of failing on the primary key.
		_, err = tx.Exec(ctx, `
			INSERT INTO chat_chunks (chat_id, chunk_id, messages)
			VALUES ($1, $2, jsonb_build_array($3::jsonb))
			ON CONFLICT (chat_id, chunk_id)
			DO UPDATE SET messages = chat_chunks.messages || excluded.messages
		`, msg.ChatID, chunkID+1, payload)
	}
	if err != nil {
		return fmt.Errorf("append to chunk: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// Read implements ConversationLog.
func (s *PostgresStore) Read(ctx context.Context, chatID string) ([]model.Message, error) {
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
func (s *PostgresStore) Chunks(ctx context.Context, chatID string) ([]model.ChatChunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chunk_id, messages
		FROM chat_chunks
		WHERE chat_id = $1
		ORDER BY chunk_id
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var out []model.ChatChunk
	for rows.Next() {
		var chunkID int
		var raw []byte
		if err := rows.Scan(&chunkID, &raw); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}

		var wires []model.WireMessage
		if err := json.Unmarshal(raw, &wires); err != nil {
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
func (s *PostgresStore) Enqueue(ctx context.Context, msg model.Message) error {
	payload, err := json.Marshal(msg.Wire())
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO undelivered (id, recipient, message)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, msg.ID, msg.SentTo, payload)
	if err != nil {
		return fmt.Errorf("enqueue pending: %w", err)
	}
	return nil
}

// Drain implements PendingQueue. Ordering by id is send order because
// message ids are ULIDs.
func (s *PostgresStore) Drain(ctx context.Context, recipient string) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT message
		FROM undelivered
		WHERE recipient = $1
		ORDER BY id
	`, recipient)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		var w model.WireMessage
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("decode pending entry: %w", err)
		}
		out = append(out, model.FromWire(w))
	}
	return out, rows.Err()
}

// Remove implements PendingQueue. Deleting an absent row affects zero
// rows, which makes redelivery races harmless.
func (s *PostgresStore) Remove(ctx context.Context, msg model.Message) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM undelivered WHERE id = $1`, msg.ID)
	if err != nil {
		return fmt.Errorf("remove pending: %w", err)
	}
	return nil
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
