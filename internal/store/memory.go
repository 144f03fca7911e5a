package store

import (
	"context"
	"sync"

	"github.com/courierchat/courier/internal/model"
)

// MemoryStore is an in-process Store. It backs tests and the "memory"
// backend; all state is lost on restart.
type MemoryStore struct {
	chunkSize int

	mu      sync.Mutex
	chats   map[string][]model.ChatChunk
	pending map[string][]model.Message // recipient -> FIFO
}

// NewMemoryStore creates an empty in-memory store. chunkSize is the
// per-chunk message cap.
func NewMemoryStore(chunkSize int) *MemoryStore {
	return &MemoryStore{
		chunkSize: chunkSize,
		chats:     make(map[string][]model.ChatChunk),
		pending:   make(map[string][]model.Message),
	}
}

// Append implements ConversationLog. The single store mutex makes the
// chunk selection atomic across conversations, which is stronger than
// the per-conversation requirement and cheap at in-memory scale.
func (s *MemoryStore) Append(_ context.Context, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks := s.chats[msg.ChatID]
	if len(chunks) == 0 {
		s.chats[msg.ChatID] = []model.ChatChunk{{
			ChatID:   msg.ChatID,
			ChunkID:  0,
			Messages: []model.Message{msg},
		}}
		return nil
	}

	head := &chunks[len(chunks)-1]
	if len(head.Messages) < s.chunkSize {
		head.Messages = append(head.Messages, msg)
		return nil
	}

	s.chats[msg.ChatID] = append(chunks, model.ChatChunk{
		ChatID:   msg.ChatID,
		ChunkID:  head.ChunkID + 1,
		Messages: []model.Message{msg},
	})
	return nil
}

// Read implements ConversationLog.
func (s *MemoryStore) Read(_ context.Context, chatID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Message
	for _, chunk := range s.chats[chatID] {
		out = append(out, chunk.Messages...)
	}
	return out, nil
}

// Chunks implements ConversationLog.
func (s *MemoryStore) Chunks(_ context.Context, chatID string) ([]model.ChatChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks := s.chats[chatID]
	out := make([]model.ChatChunk, len(chunks))
	for i, chunk := range chunks {
		out[i] = model.ChatChunk{
			ChatID:   chunk.ChatID,
			ChunkID:  chunk.ChunkID,
			Messages: append([]model.Message(nil), chunk.Messages...),
		}
	}
	return out, nil
}

// Enqueue implements PendingQueue.
func (s *MemoryStore) Enqueue(_ context.Context, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[msg.SentTo] = append(s.pending[msg.SentTo], msg)
	return nil
}

// Drain implements PendingQueue. The returned slice is a copy: entries
// enqueued after the call are not visible through it.
func (s *MemoryStore) Drain(_ context.Context, recipient string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.pending[recipient]...), nil
}

// Remove implements PendingQueue.
func (s *MemoryStore) Remove(_ context.Context, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.pending[msg.SentTo]
	for i, entry := range entries {
		if entry.ID == msg.ID {
			s.pending[msg.SentTo] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(s.pending[msg.SentTo]) == 0 {
		delete(s.pending, msg.SentTo)
	}
	return nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
