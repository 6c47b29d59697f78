package state

import (
	"errors"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/mempool"
)

// SubmitWalletTransaction accepts a transaction from a wallet for inclusion.
// The transaction is shared with the network and mining is signaled.
func (s *State) SubmitWalletTransaction(tx database.Tx) error {
	s.evHandler("state: SubmitWalletTransaction: started: tx[%s]", tx)
	defer s.evHandler("state: SubmitWalletTransaction: completed")

	if err := s.ledger.SubmitTransaction(tx); err != nil {
		return err
	}

	s.Worker.SignalShareTx(tx)
	s.Worker.SignalStartMining()

	return nil
}

// UpsertNodeTransaction accepts a transaction shared by a peer. A known
// transaction is ignored so gossip ends once every node has it.
func (s *State) UpsertNodeTransaction(tx database.Tx) error {
	s.evHandler("state: UpsertNodeTransaction: started: tx[%s]", tx)
	defer s.evHandler("state: UpsertNodeTransaction: completed")

	if err := s.ledger.SubmitTransaction(tx); err != nil {
		if errors.Is(err, mempool.ErrDuplicate) {
			return nil
		}
		return err
	}

	s.Worker.SignalShareTx(tx)
	s.Worker.SignalStartMining()

	return nil
}
