package web_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/ardanlabs/ledger/foundation/web"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_App(t *testing.T) {
	t.Log("Given the need to route requests through the app.")
	{
		shutdown := make(chan os.Signal, 1)

		var order []string
		mw := func(name string) web.Middleware {
			return func(handler web.Handler) web.Handler {
				return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
					order = append(order, name)
					return handler(ctx, w, r)
				}
			}
		}

		app := web.NewApp(shutdown, mw("app"))

		app.Handle(http.MethodGet, "v1", "/blocks/:from", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if web.GetTraceID(ctx) == "" {
				t.Errorf("\t%s\tShould have a trace id.", failed)
			}
			return web.Respond(ctx, w, web.Param(r, "from"), http.StatusOK)
		}, mw("route"))

		app.Handle(http.MethodGet, "v1", "/broken", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			return web.NewShutdownError("integrity issue")
		})

		w := httptest.NewRecorder()
		app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/blocks/7", nil))

		if w.Code != http.StatusOK || w.Body.String() != `"7"` {
			t.Fatalf("\t%s\tShould respond with the route parameter: %d %s", failed, w.Code, w.Body.String())
		}
		t.Logf("\t%s\tShould respond with the route parameter.", success)

		if len(order) != 2 || order[0] != "app" || order[1] != "route" {
			t.Fatalf("\t%s\tShould run the app middleware first: %v", failed, order)
		}
		t.Logf("\t%s\tShould run the app middleware first.", success)

		app.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/broken", nil))

		select {
		case <-shutdown:
			t.Logf("\t%s\tShould signal a shutdown on an integrity issue.", success)
		default:
			t.Fatalf("\t%s\tShould signal a shutdown on an integrity issue.", failed)
		}
	}
}
