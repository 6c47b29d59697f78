package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/ledger"
	"github.com/ardanlabs/ledger/foundation/blockchain/miner"
)

// Set of error variables for mining.
var (
	ErrNoTransactions = errors.New("no transactions in mempool")
	ErrNotAccepted    = errors.New("mined block not accepted")
)

// MineNewBlock attempts to create a new block with a proper hash that can
// become the next block in the chain. The block is only returned if the
// ledger accepted it.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	// Are there enough transactions in the pool.
	if s.ledger.MempoolLength() == 0 && !s.mineEmpty {
		return database.Block{}, ErrNoTransactions
	}

	// Pick the transactions that are valid together on top of the tip.
	prev, trans := s.ledger.Candidate(int(s.genesis.TransPerBlock))

	s.evHandler("state: MineNewBlock: MINING: perform POW: prevBlk[%s]: txs[%d]", prev, len(trans))

	// Attempt to create a new block by solving the POW puzzle. This can be cancelled.
	block, err := s.miner.Seal(ctx, miner.SealArgs{
		Previous:    prev,
		Trans:       trans,
		Beneficiary: s.beneficiaryID,
		Reward:      s.genesis.MiningReward,
		Difficulty:  s.genesis.Difficulty,
	})
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, fmt.Errorf("%w: %w", miner.ErrPreempted, ctx.Err())
	}

	s.evHandler("state: MineNewBlock: MINING: validate and update ledger")

	outcome, err := s.ledger.AcceptBlock(block)
	if err != nil {
		return database.Block{}, err
	}
	if !outcome.Accepted() {
		return database.Block{}, fmt.Errorf("%w: %s", ErrNotAccepted, outcome)
	}

	return block, nil
}

// ProcessProposedBlock takes a block received from a peer and asks the
// ledger what to do with it. An accepted block preempts the miner and is
// relayed to the network. A block from a longer chain starts a catch up.
func (s *State) ProcessProposedBlock(block database.Block) (ledger.Outcome, error) {
	s.evHandler("state: ProcessProposedBlock: started: blk[%s]: numTrans[%d]", block, len(block.Transactions))
	defer s.evHandler("state: ProcessProposedBlock: completed: blk[%s]", block)

	outcome, err := s.ledger.AcceptBlock(block)
	if err != nil {
		return outcome, err
	}

	switch outcome {
	case ledger.OutcomeExtended, ledger.OutcomeReplaced:

		// If the runMiningOperation function is being executed it needs to
		// stop immediately since it is working on a stale tip. The G executing
		// runMiningOperation will not return from the function until done is
		// called.
		done := s.Worker.SignalCancelMining()
		done()

		s.Worker.SignalShareBlock(block)
		s.Worker.SignalStartMining()

	case ledger.OutcomeBehind:
		s.evHandler("state: ProcessProposedBlock: behind: signal sync: target[%d]", block.Index)
		s.Worker.SignalSync(block.Index)
	}

	return outcome, nil
}

// CatchUp brings the chain in line with the peers. A target of zero asks
// for whatever a peer has.
func (s *State) CatchUp(ctx context.Context, target uint64) error {
	return s.sync.CatchUp(ctx, target)
}
