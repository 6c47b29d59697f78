// Package miner performs the proof of work search that seals a candidate
// block.
package miner

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// Set of error variables for sealing blocks.
var (
	ErrPreempted = errors.New("mining preempted")
	ErrBusy      = errors.New("miner is already sealing")
)

// Status represents the state of the miner.
type Status int32

// Set of miner states.
const (
	StatusIdle Status = iota
	StatusSealing
)

// String implements the fmt.Stringer interface.
func (s Status) String() string {
	switch s {
	case StatusSealing:
		return "sealing"
	default:
		return "idle"
	}
}

// EventHandler defines a function that is called when events
// occur in the processing of sealing blocks.
type EventHandler func(v string, args ...any)

// SealArgs are the inputs required to seal a new block.
type SealArgs struct {
	Previous    database.Block     // Tip the new block extends.
	Trans       []database.Tx      // Transactions already validated against the tip.
	Beneficiary database.AccountID // Account receiving the coinbase.
	Reward      uint64             // Coinbase amount.
	Difficulty  uint16             // Leading zeros required.
	Timestamp   uint64             // Milliseconds, zero means now.
}

// Miner performs the proof of work for new blocks. Only one block can be
// sealed at a time.
type Miner struct {
	status    atomic.Int32
	evHandler EventHandler
}

// New constructs a miner.
func New(evHandler EventHandler) *Miner {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	return &Miner{
		evHandler: ev,
	}
}

// Status returns the current state of the miner.
func (m *Miner) Status() Status {
	return Status(m.status.Load())
}

// Seal constructs a new block from the arguments and performs the work to
// find a nonce that solves the puzzle. A coinbase paying the reward to the
// beneficiary is placed first. Cancelling the context returns ErrPreempted.
func (m *Miner) Seal(ctx context.Context, args SealArgs) (database.Block, error) {
	if !m.status.CompareAndSwap(int32(StatusIdle), int32(StatusSealing)) {
		return database.Block{}, ErrBusy
	}
	defer m.status.Store(int32(StatusIdle))

	index := args.Previous.Index + 1

	timestamp := args.Timestamp
	if timestamp == 0 {
		timestamp = uint64(time.Now().UTC().UnixMilli())
	}

	trans := make([]database.Tx, 0, len(args.Trans)+1)
	trans = append(trans, database.NewCoinbase(args.Beneficiary, args.Reward, index))
	for _, tx := range args.Trans {
		if !tx.IsCoinbase() {
			trans = append(trans, tx)
		}
	}

	nb := database.Block{
		Index:        index,
		Timestamp:    timestamp,
		PreviousHash: args.Previous.Hash,
		Transactions: trans,
	}

	if err := m.performPOW(ctx, &nb, args.Difficulty); err != nil {
		return database.Block{}, err
	}

	return nb, nil
}

// performPOW does the work of mining to find a valid hash for the specified
// block. Pointer semantics are being used since a nonce is being discovered.
func (m *Miner) performPOW(ctx context.Context, b *database.Block, difficulty uint16) error {
	m.evHandler("miner: performPOW: MINING: started: blk[%d]: txs[%d]", b.Index, len(b.Transactions))
	defer m.evHandler("miner: performPOW: MINING: completed")

	for _, tx := range b.Transactions {
		m.evHandler("miner: performPOW: MINING: tx[%s]", tx)
	}

	// Choose a random starting point for the nonce. After this, the nonce
	// will be incremented by 1 until a solution is found by us or another node.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return fmt.Errorf("random nonce: %w", err)
	}
	b.Nonce = nBig.Uint64()

	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			m.evHandler("miner: performPOW: MINING: attempts[%d]", attempts)
		}

		// Did another node find a solution or are we shutting down.
		if ctx.Err() != nil {
			m.evHandler("miner: performPOW: MINING: CANCELLED")
			return fmt.Errorf("%w: %w", ErrPreempted, ctx.Err())
		}

		hash, err := database.HashBlock(b.PreviousHash, b.Timestamp, b.Transactions, b.Nonce)
		if err != nil {
			return err
		}

		if !database.IsHashSolved(difficulty, hash) {
			b.Nonce++
			continue
		}

		b.Hash = hash

		m.evHandler("miner: performPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", b.PreviousHash, hash)
		m.evHandler("miner: performPOW: MINING: attempts[%d]", attempts)

		return nil
	}
}
