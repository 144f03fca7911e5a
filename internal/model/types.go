package model

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// Validation errors for inbound wire messages.
var (
	ErrMissingRecipient = errors.New("missing recipient (sent_to)")
	ErrMissingChat      = errors.New("missing conversation id (chat_id)")
)

// Message is a single point-to-point message. Immutable once constructed.
type Message struct {
	ID        string    `json:"id"`        // ULID, assigned by the server on first receipt
	SentBy    string    `json:"sent_by"`   // Sender identity
	SentTo    string    `json:"sent_to"`   // Recipient identity
	ChatID    string    `json:"chat_id"`   // Conversation id (caller-supplied, opaque)
	Body      string    `json:"message"`   // Message text
	Timestamp time.Time `json:"timestamp"` // Creation time (client-supplied or server-stamped)
}

// ChatChunk is one bounded page of a conversation's log.
//
// Chunk ids are contiguous per conversation starting at 0. Only the
// highest-id chunk is ever appended to; a chunk that has reached the
// configured cap is sealed.
type ChatChunk struct {
	ChatID   string    `json:"chat_id"`
	ChunkID  int       `json:"chunk_id"`
	Messages []Message `json:"messages"`
}

// WireMessage is the JSON record exchanged with clients. The same shape
// is used inbound and outbound, and outbound serialization is identical
// whether a message is delivered live or replayed from the pending
// queue.
type WireMessage struct {
	ID        string     `json:"id,omitempty"`
	SentBy    string     `json:"sent_by"`
	SentTo    string     `json:"sent_to"`
	ChatID    string     `json:"chat_id"`
	Body      string     `json:"message"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ErrorFrame is sent to a client when a single inbound message is
// rejected. The connection stays open.
type ErrorFrame struct {
	Error string `json:"error"`
}

// Validate checks the minimally required fields of an inbound record.
func (w WireMessage) Validate() error {
	if w.SentTo == "" {
		return ErrMissingRecipient
	}
	if w.ChatID == "" {
		return ErrMissingChat
	}
	return nil
}

// ToMessage converts an inbound record into a Message. The sender
// identity comes from the authenticated connection, never from the
// payload. A missing timestamp is stamped with now.
func (w WireMessage) ToMessage(sender string, now time.Time) Message {
	ts := now.UTC()
	if w.Timestamp != nil {
		ts = w.Timestamp.UTC()
	}
	return Message{
		ID:        ulid.Make().String(),
		SentBy:    sender,
		SentTo:    w.SentTo,
		ChatID:    w.ChatID,
		Body:      w.Body,
		Timestamp: ts,
	}
}

// Wire converts a Message to its wire form.
func (m Message) Wire() WireMessage {
	ts := m.Timestamp
	return WireMessage{
		ID:        m.ID,
		SentBy:    m.SentBy,
		SentTo:    m.SentTo,
		ChatID:    m.ChatID,
		Body:      m.Body,
		Timestamp: &ts,
	}
}

// FromWire reconstructs a stored Message from its wire form.
func FromWire(w WireMessage) Message {
	var ts time.Time
	if w.Timestamp != nil {
		ts = *w.Timestamp
	}
	return Message{
		ID:        w.ID,
		SentBy:    w.SentBy,
		SentTo:    w.SentTo,
		ChatID:    w.ChatID,
		Body:      w.Body,
		Timestamp: ts,
	}
}
