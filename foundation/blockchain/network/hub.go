package network

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ardanlabs/ledger/foundation/blockchain/peer"
)

// inboxBuffer is the number of messages a node can have waiting before a
// send blocks.
const inboxBuffer = 100

// Hub connects links in memory. It is used to run several nodes inside one
// process for tests and simulations.
type Hub struct {
	mu    sync.RWMutex
	links map[peer.Peer]*HubLink
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{
		links: make(map[peer.Peer]*HubLink),
	}
}

// Join registers a node with the hub and returns its link.
func (h *Hub) Join(self peer.Peer) *HubLink {
	h.mu.Lock()
	defer h.mu.Unlock()

	if hl, exists := h.links[self]; exists {
		return hl
	}

	hl := HubLink{
		hub:   h,
		self:  self,
		inbox: make(chan Envelope, inboxBuffer),
		done:  make(chan struct{}),
	}
	h.links[self] = &hl

	return &hl
}

// Peers returns the nodes registered with the hub except self.
func (h *Hub) Peers(self peer.Peer) []peer.Peer {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ps := peer.NewSet()
	for p := range h.links {
		ps.Add(p)
	}

	return ps.Copy(self.Host)
}

func (h *Hub) link(p peer.Peer) (*HubLink, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	hl, exists := h.links[p]
	return hl, exists
}

func (h *Hub) leave(p peer.Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.links, p)
}

// =============================================================================

// HubLink is the link of a single node joined to a hub.
type HubLink struct {
	hub   *Hub
	self  peer.Peer
	inbox chan Envelope
	done  chan struct{}
	once  sync.Once
}

// Self returns the peer this link belongs to.
func (hl *HubLink) Self() peer.Peer {
	return hl.self
}

// Send delivers the message to the specified peer. The message is encoded
// and decoded so the receiver never shares memory with the sender.
func (hl *HubLink) Send(ctx context.Context, to peer.Peer, msg Message) error {
	dst, exists := hl.hub.link(to)
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, to)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env.Message); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	env.From = hl.self

	select {
	case dst.inbox <- env:
		return nil
	case <-dst.done:
		return fmt.Errorf("%w: %s", ErrClosed, to)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Broadcast sends the message to every other node on the hub. Failures to
// reach a peer do not stop the broadcast, the last error is returned.
func (hl *HubLink) Broadcast(ctx context.Context, msg Message) error {
	var lastErr error
	for _, p := range hl.hub.Peers(hl.self) {
		if err := hl.Send(ctx, p, msg); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// Receive returns the channel inbound messages are delivered on.
func (hl *HubLink) Receive() <-chan Envelope {
	return hl.inbox
}

// Close removes the node from the hub. The receive channel is not closed so
// in-flight senders never panic, use the done state instead.
func (hl *HubLink) Close() error {
	hl.once.Do(func() {
		hl.hub.leave(hl.self)
		close(hl.done)
	})

	return nil
}

// Done returns a channel that is closed when the link is closed.
func (hl *HubLink) Done() <-chan struct{} {
	return hl.done
}
