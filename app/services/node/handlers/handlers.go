// Package handlers binds the node's http surfaces: the public api for
// wallets and browsers, the peer api other nodes connect to, and the debug
// endpoints.
package handlers

import (
	"context"
	"expvar"
	"net/http"
	"net/http/pprof"
	"os"

	"github.com/ardanlabs/ledger/app/services/node/handlers/debug/checkgrp"
	v1 "github.com/ardanlabs/ledger/app/services/node/handlers/v1"
	"github.com/ardanlabs/ledger/business/web/v1/mid"
	"github.com/ardanlabs/ledger/foundation/blockchain/network/ws"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
	"github.com/ardanlabs/ledger/foundation/events"
	"github.com/ardanlabs/ledger/foundation/nameservice"
	"github.com/ardanlabs/ledger/foundation/web"
	"go.uber.org/zap"
)

// PublicConfig is what the public api needs to serve wallets and browsers.
type PublicConfig struct {
	Shutdown chan os.Signal
	Log      *zap.SugaredLogger
	State    *state.State
	NS       *nameservice.NameService
	Evts     *events.Events
}

// PeerConfig is what the peer api needs to serve other nodes.
type PeerConfig struct {
	Shutdown chan os.Signal
	Log      *zap.SugaredLogger
	State    *state.State
	Link     *ws.Link
}

// PublicMux constructs the handler for the public api. Browsers call it
// cross origin so every route carries CORS headers.
func PublicMux(cfg PublicConfig) http.Handler {
	app := newApp(cfg.Shutdown, cfg.Log, mid.Cors("*"))

	preflight := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return nil
	}
	app.Handle(http.MethodOptions, "", "/*", preflight)

	v1.PublicRoutes(app, v1.Config{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		Evts:  cfg.Evts,
	})

	return app
}

// PeerMux constructs the handler for the peer api. Nodes open their
// message link on ws.DefaultPath and can query status and mempool.
func PeerMux(cfg PeerConfig) http.Handler {
	app := newApp(cfg.Shutdown, cfg.Log)

	v1.PrivateRoutes(app, v1.Config{
		Log:   cfg.Log,
		State: cfg.State,
		Link:  cfg.Link,
	})

	return app
}

// newApp constructs a web.App with the middleware every api shares. The
// extra middleware runs inside the panic handler.
func newApp(shutdown chan os.Signal, log *zap.SugaredLogger, extra ...web.Middleware) *web.App {
	mw := []web.Middleware{
		mid.Logger(log),
		mid.Errors(log),
		mid.Metrics(),
	}
	mw = append(mw, extra...)
	mw = append(mw, mid.Panics())

	return web.NewApp(shutdown, mw...)
}

// DebugMux constructs the handler for the debug service on its own mux so
// nothing registered on http.DefaultServeMux by a dependency is exposed.
// Readiness reports the node's chain tip.
func DebugMux(build string, log *zap.SugaredLogger, st *state.State) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/vars", expvar.Handler())

	cgh := checkgrp.Handlers{
		Build: build,
		Log:   log,
		State: st,
	}
	mux.HandleFunc("/debug/readiness", cgh.Readiness)
	mux.HandleFunc("/debug/liveness", cgh.Liveness)

	return mux
}
