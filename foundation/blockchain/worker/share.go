package worker

import (
	"context"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/network"
)

// maxShareRequests represents the max number of pending share requests that
// can be outstanding before share requests are dropped. To keep this simple,
// a buffered channel of this arbitrary number is being used. If the channel
// does become full, requests for new messages to be shared will not be
// accepted.
const maxShareRequests = 100

// shareTimeout bounds a single broadcast.
const shareTimeout = 10 * time.Second

// =============================================================================

// signalShare queues a message to be broadcast.
func (w *Worker) signalShare(msg network.Message) {
	select {
	case w.sharing <- msg:
		w.evHandler("worker: signalShare: share %s signaled", msg.Type)
	default:
		w.evHandler("worker: signalShare: queue full, %s won't be shared", msg.Type)
	}
}

// shareOperations handles sharing new transactions and blocks.
func (w *Worker) shareOperations() {
	w.evHandler("worker: shareOperations: G started")
	defer w.evHandler("worker: shareOperations: G completed")

	for {
		select {
		case msg := <-w.sharing:
			if !w.isShutdown() {
				w.runShareOperation(msg)
			}
		case <-w.shut:
			w.evHandler("worker: shareOperations: received shut signal")
			return
		}
	}
}

// runShareOperation broadcasts the message to the known peers.
func (w *Worker) runShareOperation(msg network.Message) {
	w.evHandler("worker: runShareOperation: started: %s", msg.Type)
	defer w.evHandler("worker: runShareOperation: completed")

	ctx, cancel := context.WithTimeout(w.ctx, shareTimeout)
	defer cancel()

	var err error
	switch msg.Type {
	case network.TypeTransaction:
		err = w.state.NetSendTxToPeers(ctx, *msg.Transaction)
	case network.TypeNewBlock:
		err = w.state.NetSendBlockToPeers(ctx, *msg.Block)
	}

	if err != nil {
		w.evHandler("worker: runShareOperation: WARNING: %s", err)
	}
}
