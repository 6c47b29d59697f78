package state

import (
	"context"
	"errors"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/network"
)

// respondTimeout bounds the send of a catch up response.
const respondTimeout = 10 * time.Second

// HandleMessage processes a message received from a peer. Errors are
// logged and the message is dropped, a bad peer never stops the node.
func (s *State) HandleMessage(ctx context.Context, env network.Envelope) {
	if s.knownPeers.Add(env.From) {
		s.evHandler("state: HandleMessage: new peer[%s]", env.From)
	}

	switch env.Type {
	case network.TypeTransaction:
		if env.Transaction == nil {
			s.evHandler("state: HandleMessage: WARNING: peer[%s]: transaction missing", env.From)
			return
		}

		if err := s.UpsertNodeTransaction(*env.Transaction); err != nil {
			s.evHandler("state: HandleMessage: WARNING: peer[%s]: tx[%s]: %s", env.From, env.Transaction, err)
		}

	case network.TypeNewBlock:
		if env.Block == nil {
			s.evHandler("state: HandleMessage: WARNING: peer[%s]: block missing", env.From)
			return
		}

		if _, err := s.ProcessProposedBlock(*env.Block); err != nil {
			s.evHandler("state: HandleMessage: WARNING: peer[%s]: blk[%s]: %s", env.From, env.Block, err)
		}

	case network.TypeSyncChain:

		// The response is built under the ledger lock and sent after it
		// is released.
		ctx, cancel := context.WithTimeout(ctx, respondTimeout)
		defer cancel()

		if err := s.sync.Respond(ctx, env); err != nil {
			s.evHandler("state: HandleMessage: WARNING: peer[%s]: sync response: %s", env.From, err)
		}

	case network.TypeSyncChainResponse:
		s.sync.HandleResponse(env)

	default:
		s.evHandler("state: HandleMessage: WARNING: peer[%s]: unknown message type %q", env.From, env.Type)
	}
}

// NetSendTxToPeers shares a transaction with the known peers.
func (s *State) NetSendTxToPeers(ctx context.Context, tx database.Tx) error {
	s.evHandler("state: NetSendTxToPeers: started: tx[%s]", tx)
	defer s.evHandler("state: NetSendTxToPeers: completed")

	return s.broadcast(ctx, network.NewTransaction(tx))
}

// NetSendBlockToPeers takes a new block and sends it to all known peers.
func (s *State) NetSendBlockToPeers(ctx context.Context, block database.Block) error {
	s.evHandler("state: NetSendBlockToPeers: started: blk[%s]", block)
	defer s.evHandler("state: NetSendBlockToPeers: completed")

	return s.broadcast(ctx, network.NewBlock(block))
}

func (s *State) broadcast(ctx context.Context, msg network.Message) error {
	err := s.link.Broadcast(ctx, msg)
	if errors.Is(err, network.ErrClosed) {
		return nil
	}

	return err
}
