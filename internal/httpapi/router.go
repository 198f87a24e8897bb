// Package httpapi exposes the scoring dispatcher over HTTP and WebSocket,
// together with health, status and metrics endpoints.
package httpapi

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/qscore/internal/dispatch"
	"github.com/gaspardpetit/qscore/internal/inflight"
	"github.com/gaspardpetit/qscore/internal/wire"
)

// ConnCounter reports open TCP connections for the status endpoint.
type ConnCounter interface {
	ActiveConnections() int64
}

// Options configures the HTTP API.
type Options struct {
	AllowedOrigins []string
	MaxBodyBytes   int
	// Gatherer serves /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Conns    ConnCounter
	Version  string
}

// API serves scoring requests over HTTP.
type API struct {
	disp *dispatch.Dispatcher
	opts Options

	// requests counts POST /api/score calls in flight.
	requests inflight.Counter
	sockets  inflight.Counter
	ctx      context.Context
	cancel   context.CancelFunc

	mu       sync.Mutex
	sessions map[*wsSession]struct{}
	closing  atomic.Bool
}

// New returns the API for d.
func New(d *dispatch.Dispatcher, opts Options) *API {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = wire.DefaultMaxFrameBytes
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &API{disp: d, opts: opts, ctx: ctx, cancel: cancel, sessions: map[*wsSession]struct{}{}}
}

// Handler builds the router.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	if len(a.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: a.opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	for _, m := range MiddlewareChain() {
		r.Use(m)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Get("/status", a.handleStatus)
	r.Get("/status.html", StatusPageHandler())
	if a.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/api", func(ar chi.Router) {
		ar.With(a.requests.Middleware).Post("/score", a.handleScore)
		ar.Get("/score/ws", a.handleScoreWS)
	})
	return r
}

// Shutdown closes idle WebSocket sessions and waits for the others to
// answer their current request. When ctx ends first the remaining sessions
// are cancelled. Plain HTTP requests are drained by http.Server.Shutdown.
func (a *API) Shutdown(ctx context.Context) error {
	a.closing.Store(true)
	a.closeIdle()
	if a.sockets.WaitForZero(ctx) {
		a.cancel()
		return nil
	}
	a.cancel()
	return ctx.Err()
}
