package snapshot

import (
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// OutPoint identifies a single output of a transaction.
type OutPoint struct {
	TxHash string
	Index  uint32
}

// Output is a spendable amount owned by an account.
type Output struct {
	Amount  uint64
	Account database.AccountID
}

// UTXO maintains the set of unspent transaction outputs. A standard
// transaction spends the oldest outputs of the sender until the amount is
// covered. Output 0 pays the receiver, output 1 returns the change.
type UTXO struct {
	unspent map[OutPoint]Output
	owned   map[database.AccountID][]OutPoint // Oldest first.
	applied applied
}

// NewUTXO constructs an empty unspent output set.
func NewUTXO() *UTXO {
	return &UTXO{
		unspent: make(map[OutPoint]Output),
		owned:   make(map[database.AccountID][]OutPoint),
		applied: make(applied),
	}
}

// Model implements the Snapshot interface.
func (u *UTXO) Model() string {
	return ModelUTXO
}

// Balance returns the sum of the unspent outputs owned by the account.
func (u *UTXO) Balance(account database.AccountID) uint64 {
	var total uint64
	for _, op := range u.owned[account] {
		total += u.unspent[op].Amount
	}
	return total
}

// Balances returns the spendable value of every account holding outputs.
func (u *UTXO) Balances() map[database.AccountID]uint64 {
	balances := make(map[database.AccountID]uint64, len(u.owned))
	for account := range u.owned {
		if total := u.Balance(account); total > 0 {
			balances[account] = total
		}
	}
	return balances
}

// Unspent returns the unspent outputs owned by the account, oldest first.
func (u *UTXO) Unspent(account database.AccountID) map[OutPoint]Output {
	outputs := make(map[OutPoint]Output, len(u.owned[account]))
	for _, op := range u.owned[account] {
		outputs[op] = u.unspent[op]
	}
	return outputs
}

// Applied reports whether the transaction has already been folded.
func (u *UTXO) Applied(txHash string) bool {
	_, exists := u.applied[txHash]
	return exists
}

// Apply folds the transaction into the unspent output set.
func (u *UTXO) Apply(tx database.Tx) error {
	txHash := tx.Hash()
	if u.Applied(txHash) {
		return fmt.Errorf("%w: transaction %s already applied", database.ErrValidation, txHash)
	}

	if tx.IsCoinbase() {
		u.add(OutPoint{TxHash: txHash, Index: 0}, Output{Amount: tx.Amount, Account: tx.To})
		u.applied[txHash] = struct{}{}
		return nil
	}

	// Select the oldest outputs of the sender until the amount is covered.
	owned := u.owned[tx.From]

	var total uint64
	var spent int
	for spent < len(owned) && total < tx.Amount {
		total += u.unspent[owned[spent]].Amount
		spent++
	}

	if total < tx.Amount {
		return fmt.Errorf("%w: insufficient funds for %s, has %d, needs %d", database.ErrValidation, tx.From, total, tx.Amount)
	}

	for _, op := range owned[:spent] {
		delete(u.unspent, op)
	}
	u.owned[tx.From] = append([]OutPoint(nil), owned[spent:]...)
	if len(u.owned[tx.From]) == 0 {
		delete(u.owned, tx.From)
	}

	u.add(OutPoint{TxHash: txHash, Index: 0}, Output{Amount: tx.Amount, Account: tx.To})
	if change := total - tx.Amount; change > 0 {
		u.add(OutPoint{TxHash: txHash, Index: 1}, Output{Amount: change, Account: tx.From})
	}

	u.applied[txHash] = struct{}{}

	return nil
}

// Copy implements the Snapshot interface.
func (u *UTXO) Copy() Snapshot {
	cpy := UTXO{
		unspent: make(map[OutPoint]Output, len(u.unspent)),
		owned:   make(map[database.AccountID][]OutPoint, len(u.owned)),
		applied: u.applied.copy(),
	}

	for op, out := range u.unspent {
		cpy.unspent[op] = out
	}

	for account, ops := range u.owned {
		cpy.owned[account] = append([]OutPoint(nil), ops...)
	}

	return &cpy
}

func (u *UTXO) add(op OutPoint, out Output) {
	u.unspent[op] = out
	u.owned[out.Account] = append(u.owned[out.Account], op)
}
