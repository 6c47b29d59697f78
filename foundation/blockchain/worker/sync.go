package worker

import (
	"errors"

	"github.com/ardanlabs/ledger/foundation/blockchain/chainsync"
)

// syncOperations handles catching up with the network, either when a block
// from a longer chain arrives or when the ticker fires.
func (w *Worker) syncOperations() {
	w.evHandler("worker: syncOperations: G started")
	defer w.evHandler("worker: syncOperations: G completed")

	for {
		select {
		case target := <-w.startSync:
			if !w.isShutdown() {
				w.runSyncOperation(target)
			}
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.runSyncOperation(0)
			}
		case <-w.shut:
			w.evHandler("worker: syncOperations: received shut signal")
			return
		}
	}
}

// runSyncOperation asks the peers for the blocks this node is missing. The
// catch up runs here and never on the receive G, since it waits on responses
// the receive G has to deliver.
func (w *Worker) runSyncOperation(target uint64) {
	w.evHandler("worker: runSyncOperation: started: target[%d]", target)
	defer w.evHandler("worker: runSyncOperation: completed")

	before := w.state.RetrieveLatestBlock()

	if err := w.state.CatchUp(w.ctx, target); err != nil {
		switch {
		case errors.Is(err, chainsync.ErrSyncExhausted):
			w.evHandler("worker: runSyncOperation: WARNING: %s", err)
		default:
			w.evHandler("worker: runSyncOperation: ERROR: %s", err)
		}
		return
	}

	// The chain changed so any work in progress is on a stale tip.
	if after := w.state.RetrieveLatestBlock(); after.Hash != before.Hash {
		done := w.SignalCancelMining()
		done()

		w.SignalStartMining()
	}
}
