// Package peer maintains the set of known nodes in the network.
package peer

import (
	"sort"
	"sync"
)

// Peer represents a node in the network identified by its host.
type Peer struct {
	Host string `json:"host"`
}

// New constructs a peer for the host.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Match reports whether the host belongs to this peer.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// String implements the fmt.Stringer interface.
func (p Peer) String() string {
	return p.Host
}

// =============================================================================

// Status represents what a node reports about itself to callers of its
// status endpoint.
type Status struct {
	Host              string `json:"host"`
	LatestBlockHash   string `json:"latest_block_hash"`
	LatestBlockNumber uint64 `json:"latest_block_number"`
	Mempool           int    `json:"mempool"`
	Miner             string `json:"miner"`
	KnownPeers        []Peer `json:"known_peers"`
}

// =============================================================================

// Set maintains the known peers.
type Set struct {
	mu  sync.RWMutex
	set map[Peer]struct{}
}

// NewSet constructs a set with the specified peers.
func NewSet(peers ...Peer) *Set {
	ps := Set{
		set: make(map[Peer]struct{}),
	}

	for _, peer := range peers {
		ps.set[peer] = struct{}{}
	}

	return &ps
}

// Add adds the peer to the set and reports whether it was new.
func (ps *Set) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.set[peer]; exists {
		return false
	}

	ps.set[peer] = struct{}{}
	return true
}

// Remove removes the peer from the set.
func (ps *Set) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, peer)
}

// Contains reports whether the peer is known.
func (ps *Set) Contains(peer Peer) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	_, exists := ps.set[peer]
	return exists
}

// Copy returns the known peers sorted by host, leaving out the specified
// host. The order is stable so callers can walk the peers round robin.
func (ps *Set) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	peers := make([]Peer, 0, len(ps.set))
	for peer := range ps.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].Host < peers[j].Host
	})

	return peers
}
