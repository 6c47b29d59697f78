package snapshot

import (
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// Balance maintains a balance sheet of accounts.
type Balance struct {
	sheet   map[database.AccountID]uint64
	applied applied
}

// NewBalance constructs an empty balance sheet.
func NewBalance() *Balance {
	return &Balance{
		sheet:   make(map[database.AccountID]uint64),
		applied: make(applied),
	}
}

// Model implements the Snapshot interface.
func (b *Balance) Model() string {
	return ModelBalance
}

// Balance returns the balance of the account.
func (b *Balance) Balance(account database.AccountID) uint64 {
	return b.sheet[account]
}

// Balances returns a copy of the balance sheet.
func (b *Balance) Balances() map[database.AccountID]uint64 {
	sheet := make(map[database.AccountID]uint64, len(b.sheet))
	for account, value := range b.sheet {
		sheet[account] = value
	}
	return sheet
}

// Applied reports whether the transaction has already been folded.
func (b *Balance) Applied(txHash string) bool {
	_, exists := b.applied[txHash]
	return exists
}

// Apply folds the transaction into the balance sheet.
func (b *Balance) Apply(tx database.Tx) error {
	txHash := tx.Hash()
	if b.Applied(txHash) {
		return fmt.Errorf("%w: transaction %s already applied", database.ErrValidation, txHash)
	}

	if !tx.IsCoinbase() {
		from := b.sheet[tx.From]
		if from < tx.Amount {
			return fmt.Errorf("%w: insufficient funds for %s, has %d, needs %d", database.ErrValidation, tx.From, from, tx.Amount)
		}

		b.sheet[tx.From] = from - tx.Amount
		if b.sheet[tx.From] == 0 {
			delete(b.sheet, tx.From)
		}
	}

	b.sheet[tx.To] += tx.Amount
	b.applied[txHash] = struct{}{}

	return nil
}

// Copy implements the Snapshot interface.
func (b *Balance) Copy() Snapshot {
	cpy := Balance{
		sheet:   make(map[database.AccountID]uint64, len(b.sheet)),
		applied: b.applied.copy(),
	}

	for account, value := range b.sheet {
		cpy.sheet[account] = value
	}

	return &cpy
}
