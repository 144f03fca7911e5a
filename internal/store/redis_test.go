package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/courierchat/courier/internal/model"
)

// Drain order rests on lexical member comparison: serialized members
// start with the server-assigned ULID id, so members compare in send
// order no matter what timestamp the client put on the wire.
func TestRedisMemberOrderIsSendOrder(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	var members []string
	for i := 0; i < 5; i++ {
		// Client timestamps run backwards relative to send order.
		ts := base.Add(-time.Duration(i) * time.Hour)
		w := model.WireMessage{
			SentTo:    "bob",
			ChatID:    "chat-1",
			Body:      fmt.Sprintf("m%d", i),
			Timestamp: &ts,
		}
		msg := w.ToMessage("alice", base)

		member, err := json.Marshal(msg.Wire())
		if err != nil {
			t.Fatalf("marshal member %d failed: %v", i, err)
		}
		members = append(members, string(member))
	}

	for i := 1; i < len(members); i++ {
		if !(members[i-1] < members[i]) {
			t.Errorf("member %d does not sort before member %d:\n%s\n%s",
				i-1, i, members[i-1], members[i])
		}
	}
}

func newTestRedisQueue(t *testing.T) *RedisPendingQueue {
	t.Helper()

	url := os.Getenv("COURIER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("COURIER_TEST_REDIS_URL not set")
	}

	q, err := NewRedisPendingQueue(context.Background(), url)
	if err != nil {
		t.Fatalf("connecting to test redis failed: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func TestRedisDrainOrder(t *testing.T) {
	q := newTestRedisQueue(t)
	ctx := context.Background()

	recipient := t.Name() + "-" + fmt.Sprint(time.Now().UnixNano())
	base := time.Now().UTC()

	var queued []model.Message
	for i := 0; i < 5; i++ {
		// Client timestamps run backwards relative to send order.
		ts := base.Add(-time.Duration(i) * time.Hour)
		w := model.WireMessage{
			SentTo:    recipient,
			ChatID:    "chat-1",
			Body:      fmt.Sprintf("m%d", i),
			Timestamp: &ts,
		}
		msg := w.ToMessage("alice", base)
		queued = append(queued, msg)
		if err := q.Enqueue(ctx, msg); err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
	}

	got, err := q.Drain(ctx, recipient)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if len(got) != len(queued) {
		t.Fatalf("drained %d entries, want %d", len(got), len(queued))
	}
	for i := range queued {
		if got[i].ID != queued[i].ID {
			t.Errorf("drain position %d = %q, want %q (send order)", i, got[i].Body, queued[i].Body)
		}
	}

	// Remove is idempotent.
	for _, msg := range queued {
		if err := q.Remove(ctx, msg); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if err := q.Remove(ctx, msg); err != nil {
			t.Fatalf("second Remove failed: %v", err)
		}
	}

	got, err = q.Drain(ctx, recipient)
	if err != nil {
		t.Fatalf("Drain after removal failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("drained %d entries after removal, want 0", len(got))
	}
}
