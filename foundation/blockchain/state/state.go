// Package state is the core API for a ledger node. It ties the ledger, the
// miner, the catch up coordinator and the network link together and
// implements the rules for reacting to local and remote events.
package state

import (
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/chainsync"
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/ledger"
	"github.com/ardanlabs/ledger/foundation/blockchain/miner"
	"github.com/ardanlabs/ledger/foundation/blockchain/network"
	"github.com/ardanlabs/ledger/foundation/blockchain/peer"
)

// EventHandler defines a function that is called when events
// occur in the processing of the node.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining, catching up, message sharing, and
// message receiving.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
	SignalShareTx(tx database.Tx)
	SignalShareBlock(block database.Block)
	SignalSync(target uint64)
}

// =============================================================================

// Config represents the configuration required to start the node.
type Config struct {
	BeneficiaryID database.AccountID
	Genesis       genesis.Genesis
	Storage       database.Storage
	Model         string
	KnownPeers    *peer.Set
	Link          network.Link
	SyncTimeout   time.Duration
	MineEmpty     bool
	EvHandler     EventHandler
}

// State manages the node.
type State struct {
	beneficiaryID database.AccountID
	mineEmpty     bool
	evHandler     EventHandler

	knownPeers *peer.Set
	genesis    genesis.Genesis
	ledger     *ledger.Ledger
	miner      *miner.Miner
	link       network.Link
	sync       *chainsync.Coordinator

	Worker Worker
}

// New constructs the node state. The stored chain is loaded and validated.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewSet()
	}

	// Load and validate the chain from storage.
	ldgr, err := ledger.New(ledger.Config{
		Genesis:   cfg.Genesis,
		Storage:   cfg.Storage,
		Model:     cfg.Model,
		EvHandler: ledger.EventHandler(ev),
	})
	if err != nil {
		return nil, err
	}

	sync := chainsync.New(chainsync.Config{
		Chain:     ldgr,
		Link:      cfg.Link,
		Peers:     knownPeers,
		Lookback:  cfg.Genesis.SyncLookback,
		Timeout:   cfg.SyncTimeout,
		EvHandler: chainsync.EventHandler(ev),
	})

	state := State{
		beneficiaryID: cfg.BeneficiaryID,
		mineEmpty:     cfg.MineEmpty,
		evHandler:     ev,

		knownPeers: knownPeers,
		genesis:    cfg.Genesis,
		ledger:     ldgr,
		miner:      miner.New(miner.EventHandler(ev)),
		link:       cfg.Link,
		sync:       sync,
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Make sure the storage is properly closed.
	defer func() {
		s.ledger.Close()
	}()

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return s.link.Close()
}

// Link returns the network link of the node.
func (s *State) Link() network.Link {
	return s.link
}
