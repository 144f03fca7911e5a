// Package registry tracks which identities currently hold a live
// connection. It is the relay's only shared mutable connection state:
// a single lock-guarded map, never exposed directly.
package registry

import (
	"log/slog"
	"sync"

	"github.com/courierchat/courier/internal/model"
)

// Peer is the outbound side of a live connection. Implementations must
// make Send safe for concurrent use and Close idempotent.
type Peer interface {
	// Send serializes the message to the remote end. An error means the
	// channel no longer accepts writes.
	Send(msg model.Message) error

	// Close tears down the channel. Safe to call more than once.
	Close() error
}

// Registry maps identities to their live peer. At most one peer is
// registered per identity at any instant.
type Registry struct {
	logger *slog.Logger

	mu    sync.RWMutex
	peers map[string]Peer
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		peers:  make(map[string]Peer),
	}
}

// Register stores the mapping for identity, displacing any prior peer.
// The displaced peer is returned unclosed; closing it is the caller's
// responsibility, so a peer that was already replaced by a newer
// connection is never closed twice by different owners.
func (r *Registry) Register(identity string, p Peer) (displaced Peer) {
	r.mu.Lock()
	displaced = r.peers[identity]
	r.peers[identity] = p
	r.mu.Unlock()

	if displaced != nil {
		r.logger.Info("connection replaced", "identity", identity)
	}
	return displaced
}

// Unregister removes the mapping if present. Idempotent.
func (r *Registry) Unregister(identity string) {
	r.mu.Lock()
	delete(r.peers, identity)
	r.mu.Unlock()
}

// Lookup returns the current peer for identity, or false if absent.
func (r *Registry) Lookup(identity string) (Peer, bool) {
	r.mu.RLock()
	p, ok := r.peers[identity]
	r.mu.RUnlock()
	return p, ok
}

// CloseAndUnregister guarantees that p is closed and that the mapping
// for identity is removed if it still points at p. A close error is
// logged, not propagated: teardown must not be blockable. The mapping
// of a newer connection for the same identity is left untouched.
func (r *Registry) CloseAndUnregister(identity string, p Peer) {
	r.mu.Lock()
	if r.peers[identity] == p {
		delete(r.peers, identity)
	}
	r.mu.Unlock()

	if err := p.Close(); err != nil {
		r.logger.Warn("closing connection failed", "identity", identity, "error", err)
	}
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
