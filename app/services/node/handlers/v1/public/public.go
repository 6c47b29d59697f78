// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/ardanlabs/ledger/business/sys/validate"
	v1 "github.com/ardanlabs/ledger/business/web/v1"
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
	"github.com/ardanlabs/ledger/foundation/events"
	"github.com/ardanlabs/ledger/foundation/nameservice"
	"github.com/ardanlabs/ledger/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of node public endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}

		case <-ctx.Done():
			return nil
		}
	}
}

// SubmitWalletTransaction adds a new wallet transaction to the mempool.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var ntx newTx
	if err := web.Decode(r, &ntx); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if err := validate.Check(ntx); err != nil {
		return err
	}

	tx := ntx.toTx()

	h.Log.Infow("add user tran", "traceid", v.TraceID, "tx", tx.String(), "to", tx.To, "amount", tx.Amount)
	if err := h.State.SubmitWalletTransaction(tx); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
		Hash   string `json:"hash"`
	}{
		Status: "transaction added to mempool",
		Hash:   tx.Hash(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveStatus(), http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var account database.AccountID
	if acct := web.Param(r, "account"); acct != "" {
		var err error
		if account, err = h.NS.Resolve(acct); err != nil {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}
	}

	mempool := h.State.RetrieveMempool()

	trans := make([]tx, 0, len(mempool))
	for _, tran := range mempool {
		if account != "" && tran.From != account && tran.To != account {
			continue
		}
		trans = append(trans, h.toTx(tran))
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// Accounts returns the current balances for all accounts or the specified
// account. The account can be provided by name.
func (h Handlers) Accounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	balances := h.State.RetrieveBalances()

	if acct := web.Param(r, "account"); acct != "" {
		account, err := h.NS.Resolve(acct)
		if err != nil {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}
		balances = map[database.AccountID]uint64{account: balances[account]}
	}

	acts := make([]info, 0, len(balances))
	for account, balance := range balances {
		acts = append(acts, info{
			Account: account,
			Name:    h.NS.Lookup(account),
			Balance: balance,
		})
	}
	sort.Slice(acts, func(i, j int) bool { return acts[i].Account < acts[j].Account })

	ai := actInfo{
		LatestBlock: h.State.RetrieveLatestBlock().Hash,
		Uncommitted: h.State.QueryMempoolLength(),
		Accounts:    acts,
	}

	return web.Respond(ctx, w, ai, http.StatusOK)
}

// BlocksByNumber returns all the blocks based on the specified to/from values.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latest := h.State.RetrieveLatestBlock().Index

	from, err := parseIndex(web.Param(r, "from"), latest)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	to, err := parseIndex(web.Param(r, "to"), latest)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if from > to {
		return v1.NewRequestError(errors.New("from greater than to"), http.StatusBadRequest)
	}

	dbBlocks := h.State.RetrieveBlocks(from, to)
	if len(dbBlocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blocks := make([]block, len(dbBlocks))
	for j, blk := range dbBlocks {
		trans := make([]tx, len(blk.Transactions))
		for i, tran := range blk.Transactions {
			trans[i] = h.toTx(tran)
		}

		blocks[j] = block{
			Index:        blk.Index,
			Timestamp:    blk.Timestamp,
			PreviousHash: blk.PreviousHash,
			Hash:         blk.Hash,
			Nonce:        blk.Nonce,
			Transactions: trans,
		}
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// =============================================================================

func (h Handlers) toTx(tran database.Tx) tx {
	fromName := "coinbase"
	if !tran.IsCoinbase() {
		fromName = h.NS.Lookup(tran.From)
	}

	return tx{
		FromAccount: tran.From,
		FromName:    fromName,
		To:          tran.To,
		ToName:      h.NS.Lookup(tran.To),
		Amount:      tran.Amount,
		Nonce:       tran.Nonce,
		Hash:        tran.Hash(),
		Sig:         tran.Signature,
	}
}

// parseIndex converts a block index parameter. An empty value or "latest"
// resolves to the latest block.
func parseIndex(s string, latest uint64) (uint64, error) {
	if s == "" || s == "latest" {
		return latest, nil
	}

	return strconv.ParseUint(s, 10, 64)
}
