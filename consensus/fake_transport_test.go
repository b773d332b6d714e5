package consensus_test

import (
	"context"
	"sync"

	"github.com/shardlabs/shard-consensus/p2p"
)

// fakeNetwork is an in-memory stand-in for p2p.Transport used in
// consensus end-to-end tests. Delivery always happens on a fresh
// goroutine, matching the real libp2p transport's asynchronous
// delivery: a handler invoked synchronously from inside another
// handler's own locked section would deadlock against that
// instance's own mutex the moment it replies.
type fakeNetwork struct {
	mu       sync.Mutex
	handlers map[string]func(frame []byte, from p2p.Peer)
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{handlers: make(map[string]func(frame []byte, from p2p.Peer))}
}

func (n *fakeNetwork) register(id string, handler func(frame []byte, from p2p.Peer)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[id] = handler
}

// transportFor returns a Transport whose sends are tagged with self as
// the "from" peer.
func (n *fakeNetwork) transportFor(self p2p.Peer) p2p.Transport {
	return &fakeTransport{net: n, self: self}
}

type fakeTransport struct {
	net  *fakeNetwork
	self p2p.Peer
}

func (t *fakeTransport) Unicast(ctx context.Context, to p2p.Peer, frame []byte) error {
	t.net.deliver(to.ID, frame, t.self)
	return nil
}

func (t *fakeTransport) Multicast(ctx context.Context, peers []p2p.Peer, frame []byte) error {
	for _, p := range peers {
		t.net.deliver(p.ID, frame, t.self)
	}
	return nil
}

func (n *fakeNetwork) deliver(to string, frame []byte, from p2p.Peer) {
	n.mu.Lock()
	h, ok := n.handlers[to]
	n.mu.Unlock()
	if !ok {
		return
	}
	go h(frame, from)
}
