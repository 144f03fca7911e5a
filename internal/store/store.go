// Package store provides the relay's persistent state: the chunked
// conversation log and the pending-delivery queue.
//
// Three backends implement Store: memory (tests, throwaway dev),
// sqlite (single-node dev), and postgres. The pending queue can
// additionally be moved to Redis while the log stays in the main
// backend (see RedisPendingQueue).
package store

import (
	"context"

	"github.com/courierchat/courier/internal/model"
)

// ConversationLog is the append-ordered, chunked message history.
type ConversationLog interface {
	// Append adds a message to its conversation's highest chunk,
	// opening a new chunk when the current one has reached the cap.
	// The read-decide-write chunk selection is atomic per conversation.
	Append(ctx context.Context, msg model.Message) error

	// Read returns all messages for a conversation in chunk order then
	// insertion order.
	Read(ctx context.Context, chatID string) ([]model.Message, error)

	// Chunks returns the raw chunk pages in ascending chunk id order.
	Chunks(ctx context.Context, chatID string) ([]model.ChatChunk, error)
}

// PendingQueue holds messages whose recipient was unreachable at send
// time.
type PendingQueue interface {
	// Enqueue durably stores the message keyed by recipient.
	Enqueue(ctx context.Context, msg model.Message) error

	// Drain returns a one-shot snapshot of the recipient's pending
	// messages in original send order. Messages enqueued after the
	// snapshot is taken are not included.
	Drain(ctx context.Context, recipient string) ([]model.Message, error)

	// Remove deletes the pending entry for msg by id. Removing an
	// entry that is already gone is a no-op, not an error.
	Remove(ctx context.Context, msg model.Message) error
}

// Store combines both persistent collections behind one backend.
type Store interface {
	ConversationLog
	PendingQueue

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
