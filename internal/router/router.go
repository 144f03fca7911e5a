// Package router implements the delivery protocol: live-forward to a
// registered connection, queue-for-later otherwise, and at-least-once
// redelivery of queued messages when a recipient reconnects.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/courierchat/courier/internal/metrics"
	"github.com/courierchat/courier/internal/model"
	"github.com/courierchat/courier/internal/registry"
	"github.com/courierchat/courier/internal/store"
)

// Stats contains counters for dispatch activity since startup.
type Stats struct {
	Delivered    int64
	Queued       int64
	DroppedStale int64
	Failed       int64
	Drained      int64
}

// Router routes messages between live connections and the stores.
type Router struct {
	registry *registry.Registry
	log      store.ConversationLog
	pending  store.PendingQueue
	logger   *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a Router over the given registry and stores.
func New(reg *registry.Registry, log store.ConversationLog, pending store.PendingQueue, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: reg,
		log:      log,
		pending:  pending,
		logger:   logger,
	}
}

// Dispatch attempts delivery of one message and returns its terminal
// outcome. Registry and store errors never escape as anything but
// OutcomeFailed plus a wrapped error; send errors are resolved by
// eviction and queueing.
//
// Any live-send failure is treated as a stale channel: over a
// websocket there is no reliable way to tell a transient write error
// from a dead peer, and not queueing would silently drop the message.
func (r *Router) Dispatch(ctx context.Context, msg model.Message) (Outcome, error) {
	peer, ok := r.registry.Lookup(msg.SentTo)
	if !ok {
		// Normal offline path, not an error.
		return r.enqueue(ctx, msg, OutcomeQueued)
	}

	if err := peer.Send(msg); err != nil {
		r.logger.Info("live send failed, evicting stale connection",
			"recipient", msg.SentTo,
			"error", err,
		)
		r.registry.CloseAndUnregister(msg.SentTo, peer)
		return r.enqueue(ctx, msg, OutcomeDroppedChannelStale)
	}

	if err := r.log.Append(ctx, msg); err != nil {
		// The recipient already has the message; only history is
		// affected. Surface the storage failure without undoing the
		// delivery.
		r.logger.Error("conversation log append failed",
			"chat_id", msg.ChatID,
			"error", err,
		)
		r.count(OutcomeDelivered)
		return OutcomeDelivered, fmt.Errorf("append delivered message: %w", err)
	}

	r.count(OutcomeDelivered)
	return OutcomeDelivered, nil
}

// enqueue stores msg for later redelivery, reporting want on success.
func (r *Router) enqueue(ctx context.Context, msg model.Message, want Outcome) (Outcome, error) {
	if err := r.pending.Enqueue(ctx, msg); err != nil {
		r.logger.Error("enqueue failed",
			"recipient", msg.SentTo,
			"error", err,
		)
		r.count(OutcomeFailed)
		return OutcomeFailed, fmt.Errorf("enqueue pending message: %w", err)
	}

	r.logger.Debug("message queued",
		"recipient", msg.SentTo,
		"outcome", want.String(),
	)
	r.count(want)
	return want, nil
}

// DrainPending redelivers the recipient's queued messages over peer in
// original send order. Each delivered message is removed from the
// queue and appended to the conversation log. The first send failure
// stops the drain: delivering later entries past a failed earlier one
// would violate conversation order, so the remainder stays queued for
// the next reconnect.
//
// Returns the number of messages delivered.
func (r *Router) DrainPending(ctx context.Context, recipient string, peer registry.Peer) (int, error) {
	msgs, err := r.pending.Drain(ctx, recipient)
	if err != nil {
		return 0, fmt.Errorf("drain pending for %s: %w", recipient, err)
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	r.logger.Info("draining pending messages",
		"recipient", recipient,
		"count", len(msgs),
	)

	delivered := 0
	for _, msg := range msgs {
		if err := peer.Send(msg); err != nil {
			r.logger.Warn("drain interrupted, remainder stays queued",
				"recipient", recipient,
				"delivered", delivered,
				"remaining", len(msgs)-delivered,
				"error", err,
			)
			return delivered, nil
		}

		// Removal races with a concurrent drain are harmless: Remove
		// is idempotent.
		if err := r.pending.Remove(ctx, msg); err != nil {
			r.logger.Error("removing drained entry failed",
				"recipient", recipient,
				"message_id", msg.ID,
				"error", err,
			)
		}
		if err := r.log.Append(ctx, msg); err != nil {
			r.logger.Error("conversation log append failed during drain",
				"chat_id", msg.ChatID,
				"error", err,
			)
		}

		delivered++
		metrics.PendingDrained.Inc()
	}

	r.mu.Lock()
	r.stats.Drained += int64(delivered)
	r.mu.Unlock()

	return delivered, nil
}

// Stats returns a snapshot of dispatch counters.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// count records an outcome in both local stats and Prometheus.
func (r *Router) count(o Outcome) {
	metrics.DispatchOutcomes.WithLabelValues(o.String()).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	switch o {
	case OutcomeDelivered:
		r.stats.Delivered++
	case OutcomeQueued:
		r.stats.Queued++
	case OutcomeDroppedChannelStale:
		r.stats.DroppedStale++
	case OutcomeFailed:
		r.stats.Failed++
	}
}
