package worker

// receiveOperations handles the messages arriving from peers.
func (w *Worker) receiveOperations() {
	w.evHandler("worker: receiveOperations: G started")
	defer w.evHandler("worker: receiveOperations: G completed")

	inbox := w.state.Link().Receive()

	for {
		select {
		case env := <-inbox:
			if !w.isShutdown() {
				w.state.HandleMessage(w.ctx, env)
			}
		case <-w.shut:
			w.evHandler("worker: receiveOperations: received shut signal")
			return
		}
	}
}
