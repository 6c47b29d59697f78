// Package ledger owns the canonical chain of a node. It decides whether a
// block extends the chain, competes with the tip, signals that the node is
// behind, or is stale, and it keeps the snapshot and mempool consistent with
// every change it makes.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/ardanlabs/ledger/foundation/blockchain/snapshot"
)

// Set of error variables for ledger operations.
var (
	ErrInvalidIndex  = errors.New("invalid index")
	ErrNoDivergence  = errors.New("chain has no common block")
	ErrGenesisChange = errors.New("stored genesis does not match")
)

// EventHandler defines a function that is called when events
// occur in the processing of blocks.
type EventHandler func(v string, args ...any)

// Outcome describes what happened to a candidate block.
type Outcome int

// Set of outcomes for a candidate block.
const (
	OutcomeDiscarded Outcome = iota // Stale, duplicate, or a losing competitor.
	OutcomeExtended                 // Appended to the tip.
	OutcomeReplaced                 // Replaced the tip, or part of the chain during a sync.
	OutcomeBehind                   // The sender is ahead of us, a catch up is required.
)

// String implements the fmt.Stringer interface.
func (o Outcome) String() string {
	switch o {
	case OutcomeExtended:
		return "extended"
	case OutcomeReplaced:
		return "replaced"
	case OutcomeBehind:
		return "behind"
	default:
		return "discarded"
	}
}

// Accepted reports whether the chain changed.
func (o Outcome) Accepted() bool {
	return o == OutcomeExtended || o == OutcomeReplaced
}

// =============================================================================

// Config represents the configuration required to construct a ledger.
type Config struct {
	Genesis   genesis.Genesis
	Storage   database.Storage
	Model     string
	EvHandler EventHandler
}

// Ledger manages the canonical chain, the snapshot derived from it, and the
// mempool of pending transactions. Every mutation is serialized.
type Ledger struct {
	mu sync.RWMutex

	genesis   genesis.Genesis
	model     string
	validator snapshot.Validator
	storage   database.Storage
	mempool   *mempool.Mempool
	evHandler EventHandler

	blocks []database.Block
	tip    snapshot.Snapshot // State after every block.
	parent snapshot.Snapshot // State before the tip block.
}

// New constructs a ledger. Blocks found in storage are validated and folded.
// An empty storage is initialized with the genesis block.
func New(cfg Config) (*Ledger, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	model := cfg.Model
	if model == "" {
		model = snapshot.ModelUTXO
	}

	tip, err := snapshot.New(model)
	if err != nil {
		return nil, err
	}

	gen, err := database.Genesis(cfg.Genesis.Timestamp())
	if err != nil {
		return nil, err
	}

	validator := snapshot.Validator{Reward: cfg.Genesis.MiningReward}

	l := Ledger{
		genesis:   cfg.Genesis,
		model:     model,
		validator: validator,
		storage:   cfg.Storage,
		mempool:   mempool.New(validator),
		evHandler: ev,
		blocks:    []database.Block{gen},
		tip:       tip,
		parent:    tip.Copy(),
	}

	if err := l.load(gen); err != nil {
		return nil, err
	}

	return &l, nil
}

// load replays the blocks found in storage.
func (l *Ledger) load(gen database.Block) error {
	iter := l.storage.ForEach()

	first, err := iter.Next()
	if iter.Done() {
		l.evHandler("ledger: load: empty storage: writing genesis[%s]", gen)
		return l.storage.Write(gen)
	}
	if err != nil {
		return fmt.Errorf("read genesis: %w", err)
	}

	if first.Hash != gen.Hash {
		return fmt.Errorf("%w: stored %s, expected %s", ErrGenesisChange, first.Hash, gen.Hash)
	}

	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return fmt.Errorf("read block: %w", err)
		}

		snap := l.tip.Copy()
		if err := l.validateChild(block, l.blocks[len(l.blocks)-1], snap); err != nil {
			return fmt.Errorf("stored block[%d]: %w", block.Index, err)
		}

		block.Index = uint64(len(l.blocks))
		l.blocks = append(l.blocks, block)
		l.parent = l.tip
		l.tip = snap
	}

	l.evHandler("ledger: load: blocks[%d]: tip[%s]", len(l.blocks), l.blocks[len(l.blocks)-1])

	return nil
}

// Close releases the storage.
func (l *Ledger) Close() error {
	return l.storage.Close()
}

// =============================================================================

// AcceptBlock decides the fate of a candidate block received from a peer or
// produced by the local miner. Validation happens in the order structure,
// hash, difficulty, relationship to the chain, and transactions. Any failure
// leaves the chain, snapshot, and mempool untouched.
func (l *Ledger) AcceptBlock(block database.Block) (Outcome, error) {
	l.evHandler("ledger: AcceptBlock: started: blk[%s]", block)
	defer l.evHandler("ledger: AcceptBlock: completed: blk[%s]", block)

	if err := block.ValidateStructure(); err != nil {
		return OutcomeDiscarded, err
	}

	if err := block.ValidatePOW(l.genesis.Difficulty); err != nil {
		return OutcomeDiscarded, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tip := l.blocks[len(l.blocks)-1]

	switch {
	case block.PreviousHash == tip.Hash:
		return l.extend(block)

	case block.Hash == tip.Hash:
		l.evHandler("ledger: AcceptBlock: duplicate of tip: blk[%s]", block)
		return OutcomeDiscarded, nil

	case len(l.blocks) > 1 && block.PreviousHash == tip.PreviousHash:
		return l.compete(block)

	case l.indexOf(block.Hash) >= 0:
		l.evHandler("ledger: AcceptBlock: already in chain: blk[%s]", block)
		return OutcomeDiscarded, nil

	case block.Index > tip.Index:
		l.evHandler("ledger: AcceptBlock: behind: tip[%s]: blk[%s]", tip, block)
		return OutcomeBehind, nil

	default:
		l.evHandler("ledger: AcceptBlock: stale: tip[%s]: blk[%s]", tip, block)
		return OutcomeDiscarded, nil
	}
}

// extend appends a block whose parent is the tip.
func (l *Ledger) extend(block database.Block) (Outcome, error) {
	tip := l.blocks[len(l.blocks)-1]

	snap := l.tip.Copy()
	if err := l.validateChild(block, tip, snap); err != nil {
		return OutcomeDiscarded, err
	}
	block.Index = tip.Index + 1

	if err := l.storage.Write(block); err != nil {
		return OutcomeDiscarded, fmt.Errorf("write block: %w", err)
	}

	l.blocks = append(l.blocks, block)
	l.parent = l.tip
	l.tip = snap

	l.mempool.RemoveConfirmed(block.Transactions)
	l.reconcile()

	l.evHandler("ledger: AcceptBlock: extended: blk[%s]", block)

	return OutcomeExtended, nil
}

// compete resolves a block at the same height as the tip. The block with the
// earlier timestamp wins, ties go to the lexicographically smaller hash.
func (l *Ledger) compete(block database.Block) (Outcome, error) {
	tip := l.blocks[len(l.blocks)-1]
	parent := l.blocks[len(l.blocks)-2]

	if !wins(block, tip) {
		l.evHandler("ledger: AcceptBlock: competitor loses: tip[%s]: blk[%s]", tip, block)
		return OutcomeDiscarded, nil
	}

	snap := l.parent.Copy()
	if err := l.validateChild(block, parent, snap); err != nil {
		return OutcomeDiscarded, err
	}
	block.Index = tip.Index

	if err := l.storage.Write(block); err != nil {
		return OutcomeDiscarded, fmt.Errorf("write block: %w", err)
	}

	l.blocks[len(l.blocks)-1] = block
	l.tip = snap

	l.mempool.RemoveConfirmed(block.Transactions)
	kept := l.mempool.Reinstate(exclusive([]database.Block{tip}, []database.Block{block}), l.tip)
	l.reconcile()

	l.evHandler("ledger: AcceptBlock: replaced: old[%s]: new[%s]: reinstated[%d]", tip, block, len(kept))

	return OutcomeReplaced, nil
}

// =============================================================================

// Splice applies a suffix of blocks received during a catch up. The suffix
// must share a block with the local chain and result in a longer chain. The
// local blocks after the shared block are replaced and their transactions
// that are not in the new blocks are reinstated to the mempool.
func (l *Ledger) Splice(suffix []database.Block) (Outcome, error) {
	l.evHandler("ledger: Splice: started: blocks[%d]", len(suffix))
	defer l.evHandler("ledger: Splice: completed")

	if len(suffix) == 0 {
		return OutcomeDiscarded, nil
	}

	for i, block := range suffix {
		if err := block.ValidateStructure(); err != nil {
			return OutcomeDiscarded, fmt.Errorf("suffix[%d]: %w", i, err)
		}

		// The genesis block is never mined. It is matched by hash below.
		if block.PreviousHash != signature.ZeroHash {
			if err := block.ValidatePOW(l.genesis.Difficulty); err != nil {
				return OutcomeDiscarded, fmt.Errorf("suffix[%d]: %w", i, err)
			}
		}

		if i > 0 {
			if err := block.ValidateLink(suffix[i-1]); err != nil {
				return OutcomeDiscarded, fmt.Errorf("suffix[%d]: %w", i, err)
			}
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	div, fresh := l.divergence(suffix)
	if div < 0 {
		return OutcomeDiscarded, fmt.Errorf("%w: suffix starts at %s", ErrNoDivergence, suffix[0])
	}

	height := div + 1 + len(fresh)
	if len(fresh) == 0 || height <= len(l.blocks) {
		l.evHandler("ledger: Splice: not longer: local[%d]: remote[%d]", len(l.blocks), height)
		return OutcomeDiscarded, nil
	}

	// Rebuild the state at the shared block and fold the new blocks.
	snap, err := l.snapshotAt(div + 1)
	if err != nil {
		return OutcomeDiscarded, err
	}

	var parentSnap snapshot.Snapshot
	prev := l.blocks[div]
	added := make([]database.Block, len(fresh))
	for i, block := range fresh {
		parentSnap = snap.Copy()
		if err := l.validateChild(block, prev, snap); err != nil {
			return OutcomeDiscarded, fmt.Errorf("block[%s]: %w", block, err)
		}

		block.Index = uint64(div + 1 + i)
		added[i] = block
		prev = block
	}

	displaced := append([]database.Block(nil), l.blocks[div+1:]...)

	if err := l.persist(added, displaced, uint64(height)); err != nil {
		return OutcomeDiscarded, err
	}

	l.blocks = append(l.blocks[:div+1:div+1], added...)
	l.tip = snap
	l.parent = parentSnap

	for _, block := range added {
		l.mempool.RemoveConfirmed(block.Transactions)
	}
	kept := l.mempool.Reinstate(exclusive(displaced, added), l.tip)
	l.reconcile()

	l.evHandler("ledger: Splice: shared[%d]: displaced[%d]: added[%d]: reinstated[%d]", div, len(displaced), len(added), len(kept))

	if len(displaced) > 0 {
		return OutcomeReplaced, nil
	}

	return OutcomeExtended, nil
}

// persist writes the new blocks over the displaced ones. Write replaces a
// block by index and the new chain is longer, so every displaced index is
// overwritten. When a write fails the displaced blocks are written back so
// storage keeps matching the chain in memory.
func (l *Ledger) persist(added []database.Block, displaced []database.Block, height uint64) error {
	for i, block := range added {
		if err := l.storage.Write(block); err != nil {
			l.restore(added[:i], displaced)
			return fmt.Errorf("write block: %w", err)
		}
	}

	if err := l.storage.Truncate(height); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}

	return nil
}

// restore puts the displaced blocks back after a failed persist.
func (l *Ledger) restore(written []database.Block, displaced []database.Block) {
	for _, block := range displaced {
		if err := l.storage.Write(block); err != nil {
			l.evHandler("ledger: restore: ERROR: blk[%s]: %s", block, err)
			return
		}
	}

	if len(written) == 0 {
		return
	}

	if err := l.storage.Truncate(uint64(len(l.blocks))); err != nil {
		l.evHandler("ledger: restore: ERROR: truncate: %s", err)
	}
}

// =============================================================================

// SubmitTransaction validates the transaction against the tip snapshot and
// adds it to the mempool.
func (l *Ledger) SubmitTransaction(tx database.Tx) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.mempool.Add(tx, l.tip)
}

// Candidate returns the tip and up to howMany pending transactions that are
// valid together on top of it, in arrival order. Receiving -1 for howMany
// considers every pending transaction.
func (l *Ledger) Candidate(howMany int) (database.Block, []database.Tx) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	trans := l.selectValid(l.mempool.Drain(-1))
	if howMany >= 0 && len(trans) > howMany {
		trans = trans[:howMany]
	}

	return l.blocks[len(l.blocks)-1], trans
}

// SelectValid filters the transactions down to the ones that can be applied
// in order on top of the tip.
func (l *Ledger) SelectValid(trans []database.Tx) []database.Tx {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.selectValid(trans)
}

// LatestBlock returns the tip of the chain.
func (l *Ledger) LatestBlock() database.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.blocks[len(l.blocks)-1]
}

// Height returns the number of blocks in the chain including genesis.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return uint64(len(l.blocks))
}

// Blocks returns the blocks starting at the specified index. Asking for the
// index one past the tip returns an empty list.
func (l *Ledger) Blocks(from uint64) ([]database.Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if from > uint64(len(l.blocks)) {
		return nil, fmt.Errorf("%w: %d, height %d", ErrInvalidIndex, from, len(l.blocks))
	}

	return append([]database.Block(nil), l.blocks[from:]...), nil
}

// BlocksRange returns the blocks between from and to inclusive. The range
// is clamped to the chain.
func (l *Ledger) BlocksRange(from uint64, to uint64) []database.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	last := uint64(len(l.blocks) - 1)
	if to > last {
		to = last
	}
	if from > to {
		return nil
	}

	return append([]database.Block(nil), l.blocks[from:to+1]...)
}

// Balance returns the spendable value of the account at the tip.
func (l *Ledger) Balance(account database.AccountID) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.tip.Balance(account)
}

// Balances returns the spendable value of every account at the tip.
func (l *Ledger) Balances() map[database.AccountID]uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.tip.Balances()
}

// Snapshot returns a copy of the state at the tip.
func (l *Ledger) Snapshot() snapshot.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.tip.Copy()
}

// Mempool returns the pending transactions in arrival order.
func (l *Ledger) Mempool() []database.Tx {
	return l.mempool.Copy()
}

// MempoolLength returns the number of pending transactions.
func (l *Ledger) MempoolLength() int {
	return l.mempool.Count()
}

// Genesis returns the genesis configuration.
func (l *Ledger) Genesis() genesis.Genesis {
	return l.genesis
}

// Model returns the snapshot model in use.
func (l *Ledger) Model() string {
	return l.model
}

// =============================================================================

// validateChild validates the block as a child of parent and applies its
// transactions to snap in order.
func (l *Ledger) validateChild(block database.Block, parent database.Block, snap snapshot.Snapshot) error {
	if err := block.ValidateStructure(); err != nil {
		return err
	}

	if err := block.ValidatePOW(l.genesis.Difficulty); err != nil {
		return err
	}

	if err := block.ValidateLink(parent); err != nil {
		return err
	}

	if cb, exists := block.Coinbase(); exists && cb.Nonce != parent.Index+1 {
		return fmt.Errorf("%w: coinbase nonce %d, block index %d", database.ErrValidation, cb.Nonce, parent.Index+1)
	}

	return l.validator.ApplyAll(block.Transactions, snap)
}

// divergence returns the index of the highest local block shared with the
// suffix and the suffix blocks that follow it. The index is -1 when nothing
// is shared.
func (l *Ledger) divergence(suffix []database.Block) (int, []database.Block) {
	for i := len(suffix) - 1; i >= 0; i-- {
		if idx := l.indexOf(suffix[i].Hash); idx >= 0 {
			return idx, suffix[i+1:]
		}
	}

	if idx := l.indexOf(suffix[0].PreviousHash); idx >= 0 {
		return idx, suffix
	}

	return -1, nil
}

// snapshotAt rebuilds the state after the first height blocks.
func (l *Ledger) snapshotAt(height int) (snapshot.Snapshot, error) {
	if height == len(l.blocks) {
		return l.tip.Copy(), nil
	}
	if height == len(l.blocks)-1 {
		return l.parent.Copy(), nil
	}

	snap, err := snapshot.New(l.model)
	if err != nil {
		return nil, err
	}

	if err := snapshot.Fold(snap, l.blocks[:height]); err != nil {
		return nil, err
	}

	return snap, nil
}

// indexOf returns the index of the block with the hash or -1.
func (l *Ledger) indexOf(hash string) int {
	for i := len(l.blocks) - 1; i >= 0; i-- {
		if l.blocks[i].Hash == hash {
			return i
		}
	}
	return -1
}

// selectValid applies the transactions to a copy of the tip and keeps the
// ones that succeed.
func (l *Ledger) selectValid(trans []database.Tx) []database.Tx {
	snap := l.tip.Copy()

	var valid []database.Tx
	for _, tx := range trans {
		if tx.IsCoinbase() {
			continue
		}
		if err := l.validator.Validate(tx, snap); err != nil {
			continue
		}
		if err := snap.Apply(tx); err != nil {
			continue
		}
		valid = append(valid, tx)
	}

	return valid
}

// reconcile evicts pending transactions that are no longer valid.
func (l *Ledger) reconcile() {
	for _, tx := range l.mempool.Reconcile(l.tip) {
		l.evHandler("ledger: reconcile: evicted tx[%s]", tx)
	}
}

// wins reports whether the candidate beats the current block at the same
// height.
func wins(candidate database.Block, current database.Block) bool {
	if candidate.Timestamp != current.Timestamp {
		return candidate.Timestamp < current.Timestamp
	}
	return candidate.Hash < current.Hash
}

// exclusive returns the non coinbase transactions of the old blocks that are
// not part of the new blocks.
func exclusive(old []database.Block, new []database.Block) []database.Tx {
	confirmed := make(map[string]struct{})
	for _, block := range new {
		for _, tx := range block.Transactions {
			confirmed[tx.Hash()] = struct{}{}
		}
	}

	var trans []database.Tx
	for _, block := range old {
		for _, tx := range block.Transactions {
			if tx.IsCoinbase() {
				continue
			}
			if _, exists := confirmed[tx.Hash()]; !exists {
				trans = append(trans, tx)
			}
		}
	}

	return trans
}
