// Package snapshot maintains the spendable state derived from folding the
// transactions of the chain. Two interchangeable models are provided, an
// unspent output model and an account balance model.
package snapshot

import (
	"fmt"
	"sort"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// List of the supported snapshot models.
const (
	ModelUTXO    = "utxo"
	ModelBalance = "balance"
)

// Map of the snapshot models with their constructors.
var models = map[string]func() Snapshot{
	ModelUTXO:    func() Snapshot { return NewUTXO() },
	ModelBalance: func() Snapshot { return NewBalance() },
}

// Snapshot represents the behavior of the state derived from the chain.
// Values are not safe for concurrent use, the owner serializes access.
type Snapshot interface {
	Model() string
	Balance(account database.AccountID) uint64
	Balances() map[database.AccountID]uint64
	Applied(txHash string) bool
	Apply(tx database.Tx) error
	Copy() Snapshot
}

// New constructs an empty snapshot of the specified model.
func New(model string) (Snapshot, error) {
	fn, exists := models[model]
	if !exists {
		return nil, fmt.Errorf("snapshot model %q does not exist", model)
	}

	return fn(), nil
}

// Fold applies the transactions of every block to the snapshot in order.
func Fold(snap Snapshot, blocks []database.Block) error {
	for _, block := range blocks {
		for _, tx := range block.Transactions {
			if err := snap.Apply(tx); err != nil {
				return fmt.Errorf("block[%d]: tx[%s]: %w", block.Index, tx, err)
			}
		}
	}

	return nil
}

// Accounts returns the accounts of the balance map sorted so output is
// stable.
func Accounts(balances map[database.AccountID]uint64) []database.AccountID {
	accounts := make([]database.AccountID, 0, len(balances))
	for account := range balances {
		accounts = append(accounts, account)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i] < accounts[j]
	})

	return accounts
}

// =============================================================================

// applied tracks the transactions folded into a snapshot so a replay of the
// same transaction is rejected.
type applied map[string]struct{}

func (a applied) copy() applied {
	cpy := make(applied, len(a))
	for hash := range a {
		cpy[hash] = struct{}{}
	}
	return cpy
}
