// Package mempool maintains the set of transactions waiting to be sealed
// into a block.
package mempool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/snapshot"
)

// Set of error variables for adding transactions.
var (
	ErrDuplicate = errors.New("transaction already in mempool")
	ErrCoinbase  = errors.New("coinbase transactions are not accepted")
)

// Mempool represents a cache of transactions keyed by the transaction hash.
// The order transactions arrived in is preserved.
type Mempool struct {
	mu        sync.RWMutex
	pool      map[string]database.Tx
	order     []string
	validator snapshot.Validator
}

// New constructs a new mempool that validates transactions with the
// specified validator.
func New(validator snapshot.Validator) *Mempool {
	return &Mempool{
		pool:      make(map[string]database.Tx),
		validator: validator,
	}
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Contains reports whether the transaction is pending.
func (mp *Mempool) Contains(txHash string) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool[txHash]
	return exists
}

// Add validates the transaction against the snapshot and appends it to the
// pool. Adding the same transaction twice returns ErrDuplicate.
func (mp *Mempool) Add(tx database.Tx, snap snapshot.Snapshot) error {
	if tx.IsCoinbase() {
		return ErrCoinbase
	}

	if err := mp.validator.Validate(tx, snap); err != nil {
		return err
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	key := tx.Hash()
	if _, exists := mp.pool[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, key)
	}

	mp.pool[key] = tx
	mp.order = append(mp.order, key)

	return nil
}

// Drain returns up to howMany of the oldest transactions without removing
// them. Receiving -1 for howMany returns all the transactions.
func (mp *Mempool) Drain(howMany int) []database.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if howMany < 0 || howMany > len(mp.order) {
		howMany = len(mp.order)
	}

	trans := make([]database.Tx, 0, howMany)
	for _, key := range mp.order[:howMany] {
		trans = append(trans, mp.pool[key])
	}

	return trans
}

// RemoveConfirmed removes the transactions that are now part of the chain.
func (mp *Mempool) RemoveConfirmed(trans []database.Tx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	remove := make(map[string]struct{}, len(trans))
	for _, tx := range trans {
		remove[tx.Hash()] = struct{}{}
	}

	mp.filter(func(key string) bool {
		_, exists := remove[key]
		return !exists
	})
}

// Reinstate adds back transactions displaced from the chain by a fork
// resolution. Transactions that are no longer valid against the snapshot
// are skipped. Reinstated transactions are placed ahead of the pending ones
// since they were submitted earlier. The reinstated transactions are
// returned.
func (mp *Mempool) Reinstate(trans []database.Tx, snap snapshot.Snapshot) []database.Tx {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var kept []database.Tx
	var keys []string
	for _, tx := range trans {
		if tx.IsCoinbase() {
			continue
		}

		key := tx.Hash()
		if _, exists := mp.pool[key]; exists {
			continue
		}

		if err := mp.validator.Validate(tx, snap); err != nil {
			continue
		}

		mp.pool[key] = tx
		keys = append(keys, key)
		kept = append(kept, tx)
	}

	mp.order = append(keys, mp.order...)

	return kept
}

// Reconcile evicts the transactions that are no longer valid against the
// snapshot. The evicted transactions are returned.
func (mp *Mempool) Reconcile(snap snapshot.Snapshot) []database.Tx {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var evicted []database.Tx
	mp.filter(func(key string) bool {
		tx := mp.pool[key]
		if err := mp.validator.Validate(tx, snap); err != nil {
			evicted = append(evicted, tx)
			return false
		}
		return true
	})

	return evicted
}

// Copy returns the pending transactions in arrival order.
func (mp *Mempool) Copy() []database.Tx {
	return mp.Drain(-1)
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]database.Tx)
	mp.order = nil
}

// =============================================================================

// filter keeps the transactions the function returns true for. The caller
// must hold the write lock.
func (mp *Mempool) filter(keep func(key string) bool) {
	order := mp.order[:0]
	for _, key := range mp.order {
		if keep(key) {
			order = append(order, key)
			continue
		}
		delete(mp.pool, key)
	}

	mp.order = order
}
