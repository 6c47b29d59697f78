package state

import (
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/peer"
)

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveLatestBlock returns the tip of the chain.
func (s *State) RetrieveLatestBlock() database.Block {
	return s.ledger.LatestBlock()
}

// RetrieveMempool returns the pending transactions in arrival order.
func (s *State) RetrieveMempool() []database.Tx {
	return s.ledger.Mempool()
}

// QueryMempoolLength returns the number of pending transactions.
func (s *State) QueryMempoolLength() int {
	return s.ledger.MempoolLength()
}

// RetrieveBalance returns the spendable value of the account.
func (s *State) RetrieveBalance(account database.AccountID) uint64 {
	return s.ledger.Balance(account)
}

// RetrieveBalances returns the spendable value of every account.
func (s *State) RetrieveBalances() map[database.AccountID]uint64 {
	return s.ledger.Balances()
}

// RetrieveBlocks returns the blocks between from and to inclusive.
func (s *State) RetrieveBlocks(from uint64, to uint64) []database.Block {
	return s.ledger.BlocksRange(from, to)
}

// RetrieveKnownPeers returns the known peers except this node.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.link.Self().Host)
}

// AddKnownPeer adds a peer and reports whether it was new.
func (s *State) AddKnownPeer(p peer.Peer) bool {
	if p.Match(s.link.Self().Host) {
		return false
	}
	return s.knownPeers.Add(p)
}

// RetrieveModel returns the snapshot model in use.
func (s *State) RetrieveModel() string {
	return s.ledger.Model()
}

// IsMineEmpty reports whether blocks are mined without pending transactions.
func (s *State) IsMineEmpty() bool {
	return s.mineEmpty
}

// RetrieveStatus returns the status of this node.
func (s *State) RetrieveStatus() peer.Status {
	latest := s.ledger.LatestBlock()

	return peer.Status{
		Host:              s.link.Self().Host,
		LatestBlockHash:   latest.Hash,
		LatestBlockNumber: latest.Index,
		Mempool:           s.ledger.MempoolLength(),
		Miner:             s.miner.Status().String(),
		KnownPeers:        s.RetrieveKnownPeers(),
	}
}
