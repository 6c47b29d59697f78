// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"net/http"

	v1 "github.com/ardanlabs/ledger/business/web/v1"
	"github.com/ardanlabs/ledger/foundation/blockchain/network/ws"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
	"github.com/ardanlabs/ledger/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	Link  *ws.Link
}

// Peer upgrades the request to the websocket connection a peer uses to
// exchange messages with this node. The call blocks until the connection
// is closed.
func (h Handlers) Peer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	host := r.URL.Query().Get("host")
	if host == "" {
		return v1.NewRequestError(errors.New("host query parameter missing"), http.StatusBadRequest)
	}

	h.Log.Infow("peer connected", "traceid", v.TraceID, "host", host)

	if err := h.Link.Accept(w, r); err != nil {
		h.Log.Infow("peer disconnected", "traceid", v.TraceID, "host", host, "ERROR", err)
	}

	return nil
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveStatus(), http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveMempool(), http.StatusOK)
}
