package snapshot

import (
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// Validator decides whether a transaction is valid against a snapshot. It
// never mutates the snapshot.
type Validator struct {
	Reward uint64
}

// Validate checks the transaction against the snapshot.
//
// A coinbase is valid when it pays exactly the mining reward. A standard
// transaction is valid when its signature recovers to the sender, it has not
// already been applied, and the sender can spend the amount.
func (v Validator) Validate(tx database.Tx, snap Snapshot) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	if tx.IsCoinbase() {
		if tx.Amount != v.Reward {
			return fmt.Errorf("%w: coinbase amount %d, reward %d", database.ErrValidation, tx.Amount, v.Reward)
		}
		return nil
	}

	if err := tx.VerifySignature(); err != nil {
		return err
	}

	if snap.Applied(tx.Hash()) {
		return fmt.Errorf("%w: transaction %s already applied", database.ErrValidation, tx.Hash())
	}

	if balance := snap.Balance(tx.From); balance < tx.Amount {
		return fmt.Errorf("%w: insufficient funds for %s, has %d, needs %d", database.ErrValidation, tx.From, balance, tx.Amount)
	}

	return nil
}

// ApplyAll validates and applies the transactions in order so each one is
// checked against the state left by the ones before it.
func (v Validator) ApplyAll(trans []database.Tx, snap Snapshot) error {
	for i, tx := range trans {
		if err := v.Validate(tx, snap); err != nil {
			return fmt.Errorf("tx[%d]: %w", i, err)
		}

		if err := snap.Apply(tx); err != nil {
			return fmt.Errorf("tx[%d]: %w", i, err)
		}
	}

	return nil
}
