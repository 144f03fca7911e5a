package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/courierchat/courier/internal/model"
)

// fakePeer records sends and closes.
type fakePeer struct {
	mu      sync.Mutex
	sent    []model.Message
	closed  int
	sendErr error
}

func (p *fakePeer) Send(msg model.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePeer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func TestRegistry_RegisterLookup(t *testing.T) {
	r := New(nil)

	if _, ok := r.Lookup("alice"); ok {
		t.Error("Lookup on empty registry should report absent")
	}

	p := &fakePeer{}
	if displaced := r.Register("alice", p); displaced != nil {
		t.Errorf("Register on empty registry displaced %v", displaced)
	}

	got, ok := r.Lookup("alice")
	if !ok || got != Peer(p) {
		t.Errorf("Lookup = %v, %v; want registered peer", got, ok)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := New(nil)

	first := &fakePeer{}
	second := &fakePeer{}

	r.Register("alice", first)
	displaced := r.Register("alice", second)

	if displaced != Peer(first) {
		t.Errorf("displaced = %v, want first peer", displaced)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after replacement", r.Len())
	}

	got, _ := r.Lookup("alice")
	if got != Peer(second) {
		t.Error("Lookup should return the newer peer")
	}

	// Register itself must not close the displaced peer.
	if first.closeCount() != 0 {
		t.Errorf("displaced peer closed %d times by Register, want 0", first.closeCount())
	}
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	r := New(nil)
	r.Register("alice", &fakePeer{})

	r.Unregister("alice")
	if _, ok := r.Lookup("alice"); ok {
		t.Error("Lookup after Unregister should report absent")
	}

	// Second unregister is a no-op.
	r.Unregister("alice")
	r.Unregister("never-registered")
}

func TestRegistry_CloseAndUnregister(t *testing.T) {
	r := New(nil)
	p := &fakePeer{}
	r.Register("alice", p)

	r.CloseAndUnregister("alice", p)

	if p.closeCount() != 1 {
		t.Errorf("peer closed %d times, want 1", p.closeCount())
	}
	if _, ok := r.Lookup("alice"); ok {
		t.Error("mapping should be removed")
	}
}

func TestRegistry_CloseAndUnregisterKeepsNewerPeer(t *testing.T) {
	r := New(nil)
	old := &fakePeer{}
	newer := &fakePeer{}

	r.Register("alice", old)
	r.Register("alice", newer)

	// The old handler tears down with its own peer; the newer mapping
	// must survive.
	r.CloseAndUnregister("alice", old)

	got, ok := r.Lookup("alice")
	if !ok || got != Peer(newer) {
		t.Error("newer peer should remain registered")
	}
	if old.closeCount() != 1 {
		t.Errorf("old peer closed %d times, want 1", old.closeCount())
	}
	if newer.closeCount() != 0 {
		t.Errorf("newer peer closed %d times, want 0", newer.closeCount())
	}
}

// closeFailPeer always fails to close.
type closeFailPeer struct{ fakePeer }

func (p *closeFailPeer) Close() error { return errors.New("broken pipe") }

func TestRegistry_CloseErrorStillUnregisters(t *testing.T) {
	r := New(nil)
	p := &closeFailPeer{}
	r.Register("alice", p)

	r.CloseAndUnregister("alice", p)

	if _, ok := r.Lookup("alice"); ok {
		t.Error("mapping should be removed even when close fails")
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := &fakePeer{}
			r.Register("alice", p)
			r.Lookup("alice")
			r.CloseAndUnregister("alice", p)
		}()
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Errorf("Len() = %d after all teardowns, want 0", r.Len())
	}
}
