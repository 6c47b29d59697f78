// Package chainsync brings a node that fell behind back in line with the
// longest chain known to its peers. A request asks a peer for the blocks
// starting a few blocks below the local tip and the response is spliced
// into the local chain.
package chainsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/ledger"
	"github.com/ardanlabs/ledger/foundation/blockchain/network"
	"github.com/ardanlabs/ledger/foundation/blockchain/peer"
	"github.com/google/uuid"
)

// Set of error variables for catching up.
var (
	ErrSyncTimeout   = errors.New("sync request timed out")
	ErrSyncExhausted = errors.New("no peer could provide the chain")
)

// Defaults used when the configuration leaves a value unset.
const (
	DefaultLookback = 10
	DefaultTimeout  = 5 * time.Second
)

// EventHandler defines a function that is called when events
// occur in the processing of a catch up.
type EventHandler func(v string, args ...any)

// Chain represents the behavior required from the local chain.
type Chain interface {
	LatestBlock() database.Block
	Blocks(from uint64) ([]database.Block, error)
	Splice(suffix []database.Block) (ledger.Outcome, error)
}

// Config represents the configuration required to construct a coordinator.
type Config struct {
	Chain     Chain
	Link      network.Link
	Peers     *peer.Set
	Lookback  uint64
	Timeout   time.Duration
	EvHandler EventHandler
}

// Coordinator drives catch ups against peers in round robin order and
// answers the catch up requests of other nodes.
type Coordinator struct {
	chain     Chain
	link      network.Link
	peers     *peer.Set
	lookback  uint64
	timeout   time.Duration
	evHandler EventHandler

	syncMu sync.Mutex
	cursor int

	pendingMu sync.RWMutex
	pending   map[string]pendingRequest
}

// pendingRequest is a catch up request waiting on the peer it was sent to.
type pendingRequest struct {
	peer peer.Peer
	ch   chan network.Message
}

// New constructs a coordinator.
func New(cfg Config) *Coordinator {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	lookback := cfg.Lookback
	if lookback == 0 {
		lookback = DefaultLookback
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	peers := cfg.Peers
	if peers == nil {
		peers = peer.NewSet()
	}

	return &Coordinator{
		chain:     cfg.Chain,
		link:      cfg.Link,
		peers:     peers,
		lookback:  lookback,
		timeout:   timeout,
		evHandler: ev,
		pending:   make(map[string]pendingRequest),
	}
}

// CatchUp asks peers, one at a time, for the blocks after the local tip
// minus the lookback. A target of zero accepts the first response that
// splices without error, otherwise peers are asked until the local tip
// reaches the target. Only one catch up runs at a time.
func (c *Coordinator) CatchUp(ctx context.Context, target uint64) error {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	tip := c.chain.LatestBlock()
	if target > 0 && tip.Index >= target {
		return nil
	}

	from := tip.Index - min(tip.Index, c.lookback)

	c.evHandler("chainsync: CatchUp: started: tip[%s]: from[%d]: target[%d]", tip, from, target)
	defer c.evHandler("chainsync: CatchUp: completed")

	peers := c.peers.Copy(c.link.Self().Host)

	for range peers {
		p := peers[c.cursor%len(peers)]
		c.cursor++

		resp, err := c.request(ctx, p, from)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.evHandler("chainsync: CatchUp: WARNING: peer[%s]: %s", p, err)
			continue
		}

		if resp.Error != "" {
			c.evHandler("chainsync: CatchUp: WARNING: peer[%s]: responded: %s", p, resp.Error)
			continue
		}

		outcome, err := c.chain.Splice(resp.Chain)
		switch {
		case errors.Is(err, ledger.ErrNoDivergence):
			return fmt.Errorf("peer %s: %w", p, err)

		case err != nil:
			c.evHandler("chainsync: CatchUp: WARNING: peer[%s]: splice: %s", p, err)
			continue
		}

		latest := c.chain.LatestBlock()
		c.evHandler("chainsync: CatchUp: peer[%s]: outcome[%s]: tip[%s]", p, outcome, latest)

		if target > 0 && latest.Index < target {
			continue
		}

		return nil
	}

	return ErrSyncExhausted
}

// HandleResponse delivers a response to the catch up waiting for it. It
// reports false for responses nobody is waiting for and for responses from
// a peer other than the one asked, these are dropped.
func (c *Coordinator) HandleResponse(env network.Envelope) bool {
	if env.Type != network.TypeSyncChainResponse || env.ReplyTo == "" {
		return false
	}

	c.pendingMu.RLock()
	req, exists := c.pending[env.ReplyTo]
	c.pendingMu.RUnlock()

	if !exists {
		c.evHandler("chainsync: HandleResponse: dropped: peer[%s]: replyTo[%s]", env.From, env.ReplyTo)
		return false
	}

	if env.From != req.peer {
		c.evHandler("chainsync: HandleResponse: WARNING: dropped: peer[%s]: replyTo[%s]: requested from peer[%s]", env.From, env.ReplyTo, req.peer)
		return false
	}

	select {
	case req.ch <- env.Message:
		return true
	default:
		return false
	}
}

// Respond answers a catch up request from a peer with the local blocks
// starting at the requested index.
func (c *Coordinator) Respond(ctx context.Context, env network.Envelope) error {
	resp := Response(c.chain, env.Message)

	c.evHandler("chainsync: Respond: peer[%s]: from[%d]: blocks[%d]: error[%s]", env.From, env.BlockIndex, len(resp.Chain), resp.Error)

	return c.link.Send(ctx, env.From, resp)
}

// Response builds the reply to a catch up request.
func Response(chain Chain, req network.Message) network.Message {
	blocks, err := chain.Blocks(req.BlockIndex)
	if err != nil {
		return network.NewSyncChainError(req.RequestID, ledger.ErrInvalidIndex.Error())
	}

	return network.NewSyncChainResponse(req.RequestID, blocks)
}

// =============================================================================

// request sends a catch up request and waits for the correlated response.
func (c *Coordinator) request(ctx context.Context, p peer.Peer, from uint64) (network.Message, error) {
	id := uuid.NewString()
	ch := make(chan network.Message, 1)

	c.pendingMu.Lock()
	c.pending[id] = pendingRequest{peer: p, ch: ch}
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.link.Send(ctx, p, network.NewSyncChain(id, from)); err != nil {
		return network.Message{}, fmt.Errorf("send: %w", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		return network.Message{}, fmt.Errorf("%w: after %s", ErrSyncTimeout, c.timeout)
	case <-ctx.Done():
		return network.Message{}, ctx.Err()
	}
}
