package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/courierchat/courier/internal/model"
)

// RedisPendingQueue implements PendingQueue on a Redis sorted set per
// recipient. All members carry the same score, so ZRange falls through
// to lexical member order; members serialize with the server-assigned
// ULID id first, which makes lexical order send order. The message
// timestamp must not drive ordering: it can be client-supplied.
type RedisPendingQueue struct {
	client *redis.Client
}

// NewRedisPendingQueue connects to Redis and verifies it with a ping.
func NewRedisPendingQueue(ctx context.Context, redisURL string) (*RedisPendingQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisPendingQueue{client: client}, nil
}

// pendingKey returns the key for a recipient's pending set.
func pendingKey(recipient string) string {
	return fmt.Sprintf("pending:%s", recipient)
}

// Enqueue implements PendingQueue.
func (q *RedisPendingQueue) Enqueue(ctx context.Context, msg model.Message) error {
	member, err := json.Marshal(msg.Wire())
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = q.client.ZAdd(ctx, pendingKey(msg.SentTo), redis.Z{
		Score:  0,
		Member: string(member),
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue pending: %w", err)
	}
	return nil
}

// Drain implements PendingQueue. ZRange is a point-in-time read, so the
// snapshot semantics come for free.
func (q *RedisPendingQueue) Drain(ctx context.Context, recipient string) ([]model.Message, error) {
	members, err := q.client.ZRange(ctx, pendingKey(recipient), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("drain pending: %w", err)
	}

	out := make([]model.Message, 0, len(members))
	for _, member := range members {
		var w model.WireMessage
		if err := json.Unmarshal([]byte(member), &w); err != nil {
			return nil, fmt.Errorf("decode pending entry: %w", err)
		}
		out = append(out, model.FromWire(w))
	}
	return out, nil
}

// Remove implements PendingQueue. The member is re-marshaled from the
// message, which reproduces the stored bytes; removing an absent
// member is a no-op.
func (q *RedisPendingQueue) Remove(ctx context.Context, msg model.Message) error {
	member, err := json.Marshal(msg.Wire())
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := q.client.ZRem(ctx, pendingKey(msg.SentTo), string(member)).Err(); err != nil {
		return fmt.Errorf("remove pending: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection.
func (q *RedisPendingQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (q *RedisPendingQueue) Close() error {
	return q.client.Close()
}
