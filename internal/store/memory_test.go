package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/courierchat/courier/internal/model"
)

func testMessage(t *testing.T, chatID, to, body string) model.Message {
	t.Helper()
	w := model.WireMessage{SentTo: to, ChatID: chatID, Body: body}
	return w.ToMessage("alice", time.Now())
}

func TestMemoryStore_AppendCreatesChunkZero(t *testing.T) {
	s := NewMemoryStore(300)
	ctx := context.Background()

	if err := s.Append(ctx, testMessage(t, "chat-1", "bob", "hi")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	chunks, err := s.Chunks(ctx, "chat-1")
	if err != nil {
		t.Fatalf("Chunks failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(chunks))
	}
	if chunks[0].ChunkID != 0 {
		t.Errorf("ChunkID = %d, want 0", chunks[0].ChunkID)
	}
	if len(chunks[0].Messages) != 1 {
		t.Errorf("chunk holds %d messages, want 1", len(chunks[0].Messages))
	}
}

func TestMemoryStore_ChunkCapInvariant(t *testing.T) {
	const chunkCap = 5
	const n = 23

	s := NewMemoryStore(chunkCap)
	ctx := context.Background()

	var sent []string
	for i := 0; i < n; i++ {
		body := fmt.Sprintf("msg-%d", i)
		sent = append(sent, body)
		if err := s.Append(ctx, testMessage(t, "chat-1", "bob", body)); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	chunks, err := s.Chunks(ctx, "chat-1")
	if err != nil {
		t.Fatalf("Chunks failed: %v", err)
	}

	wantChunks := (n + chunkCap - 1) / chunkCap
	if len(chunks) != wantChunks {
		t.Fatalf("len(chunks) = %d, want %d", len(chunks), wantChunks)
	}

	for i, chunk := range chunks {
		if chunk.ChunkID != i {
			t.Errorf("chunk %d has id %d, want contiguous ids from 0", i, chunk.ChunkID)
		}
		if i < len(chunks)-1 && len(chunk.Messages) != chunkCap {
			t.Errorf("sealed chunk %d holds %d messages, want exactly %d", i, len(chunk.Messages), chunkCap)
		}
		if len(chunk.Messages) > chunkCap {
			t.Errorf("chunk %d exceeds cap: %d > %d", i, len(chunk.Messages), chunkCap)
		}
	}

	// Concatenating chunks reproduces insertion order.
	all, err := s.Read(ctx, "chat-1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(all) != n {
		t.Fatalf("Read returned %d messages, want %d", len(all), n)
	}
	for i, msg := range all {
		if msg.Body != sent[i] {
			t.Errorf("message %d = %q, want %q", i, msg.Body, sent[i])
		}
	}
}

func TestMemoryStore_ConcurrentAppendSafety(t *testing.T) {
	const chunkCap = 7
	const n = 100

	s := NewMemoryStore(chunkCap)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Append(ctx, testMessage(t, "chat-1", "bob", "x")); err != nil {
				t.Errorf("Append failed: %v", err)
			}
		}()
	}
	wg.Wait()

	chunks, err := s.Chunks(ctx, "chat-1")
	if err != nil {
		t.Fatalf("Chunks failed: %v", err)
	}

	total := 0
	for i, chunk := range chunks {
		if chunk.ChunkID != i {
			t.Errorf("chunk %d has id %d, want gapless sequence", i, chunk.ChunkID)
		}
		if len(chunk.Messages) > chunkCap {
			t.Errorf("chunk %d exceeds cap: %d > %d", i, len(chunk.Messages), chunkCap)
		}
		if i < len(chunks)-1 && len(chunk.Messages) != chunkCap {
			t.Errorf("sealed chunk %d holds %d messages, want %d", i, len(chunk.Messages), chunkCap)
		}
		total += len(chunk.Messages)
	}
	if total != n {
		t.Errorf("stored %d messages, want %d", total, n)
	}
}

func TestMemoryStore_ConversationsAreIndependent(t *testing.T) {
	s := NewMemoryStore(300)
	ctx := context.Background()

	s.Append(ctx, testMessage(t, "chat-1", "bob", "one"))
	s.Append(ctx, testMessage(t, "chat-2", "bob", "two"))

	for _, chatID := range []string{"chat-1", "chat-2"} {
		chunks, _ := s.Chunks(ctx, chatID)
		if len(chunks) != 1 || chunks[0].ChunkID != 0 {
			t.Errorf("%s: chunk numbering should start at 0 per conversation", chatID)
		}
	}
}

func TestMemoryStore_PendingFIFO(t *testing.T) {
	s := NewMemoryStore(300)
	ctx := context.Background()

	var sent []model.Message
	for i := 0; i < 5; i++ {
		msg := testMessage(t, "chat-1", "bob", fmt.Sprintf("m%d", i+1))
		sent = append(sent, msg)
		if err := s.Enqueue(ctx, msg); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	got, err := s.Drain(ctx, "bob")
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("Drain returned %d messages, want 5", len(got))
	}
	for i := range got {
		if got[i].ID != sent[i].ID {
			t.Errorf("drain position %d = %q, want original send order", i, got[i].Body)
		}
	}
}

func TestMemoryStore_DrainIsSnapshot(t *testing.T) {
	s := NewMemoryStore(300)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.Enqueue(ctx, testMessage(t, "chat-1", "carol", fmt.Sprintf("m%d", i+1)))
	}

	snapshot, err := s.Drain(ctx, "carol")
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	// A message enqueued after the snapshot must not appear in it.
	late := testMessage(t, "chat-1", "carol", "m4")
	s.Enqueue(ctx, late)

	if len(snapshot) != 3 {
		t.Errorf("snapshot grew to %d entries after enqueue, want 3", len(snapshot))
	}

	next, _ := s.Drain(ctx, "carol")
	if len(next) != 4 {
		t.Errorf("next drain sees %d entries, want 4", len(next))
	}
}

func TestMemoryStore_RemoveIdempotent(t *testing.T) {
	s := NewMemoryStore(300)
	ctx := context.Background()

	keep := testMessage(t, "chat-1", "bob", "keep")
	gone := testMessage(t, "chat-1", "bob", "gone")
	s.Enqueue(ctx, keep)
	s.Enqueue(ctx, gone)

	if err := s.Remove(ctx, gone); err != nil {
		t.Fatalf("first Remove failed: %v", err)
	}
	if err := s.Remove(ctx, gone); err != nil {
		t.Fatalf("second Remove errored: %v", err)
	}

	left, _ := s.Drain(ctx, "bob")
	if len(left) != 1 || left[0].ID != keep.ID {
		t.Errorf("queue = %v, want only the kept entry", left)
	}
}

func TestMemoryStore_RemoveUnknownRecipient(t *testing.T) {
	s := NewMemoryStore(300)
	if err := s.Remove(context.Background(), testMessage(t, "chat-1", "nobody", "x")); err != nil {
		t.Errorf("Remove for unknown recipient errored: %v", err)
	}
}
