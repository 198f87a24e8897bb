// Package server implements the TCP query server: it accepts connections,
// decodes framed requests, dispatches them and writes framed responses.
package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/gaspardpetit/qscore/internal/dispatch"
	"github.com/gaspardpetit/qscore/internal/inflight"
	"github.com/gaspardpetit/qscore/internal/logx"
	"github.com/gaspardpetit/qscore/internal/wire"
)

// ErrServerClosed is returned by Serve after Shutdown or Close.
var ErrServerClosed = errors.New("qscore: server closed")

// Config controls connection handling.
type Config struct {
	Addr string
	// MultiThreaded serves each connection on its own goroutine; otherwise
	// connections are served one at a time on the accept loop.
	MultiThreaded bool
	// MaxConnections bounds concurrently served connections in
	// multi-threaded mode. Zero means unbounded.
	MaxConnections int
	KeepAlive      bool
	MaxFrameBytes  int
	ReadTimeout    time.Duration
	IdleTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Server is a TCP query server. Create it with New.
type Server struct {
	cfg      Config
	disp     *dispatch.Dispatcher
	strategy strategy
	log      zerolog.Logger

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[*conn]struct{}
	closing   atomic.Bool
	done      chan struct{}
	doneOnce  sync.Once

	active inflight.Counter
}

// New returns a server dispatching through d.
func New(cfg Config, d *dispatch.Dispatcher) *Server {
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = wire.DefaultMaxFrameBytes
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		disp:       d,
		strategy:   newStrategy(cfg.MultiThreaded, cfg.MaxConnections),
		log:        logx.Component("server"),
		baseCtx:    ctx,
		cancelBase: cancel,
		listeners:  map[net.Listener]struct{}{},
		conns:      map[*conn]struct{}{},
		done:       make(chan struct{}),
	}
}

// ListenAndServe listens on cfg.Addr and serves until shut down.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown or Close. It always
// returns a non-nil error; ErrServerClosed after a shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if !s.trackListener(ln) {
		_ = ln.Close()
		return ErrServerClosed
	}
	defer s.untrackListener(ln)

	s.log.Info().Str("addr", ln.Addr().String()).Str("threading", s.strategy.String()).Msg("listening")
	var tempDelay time.Duration
	for {
		if !s.strategy.reserve(s.done) {
			return ErrServerClosed
		}
		nc, err := ln.Accept()
		if err != nil {
			s.strategy.release()
			if s.closing.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			// Other accept errors such as EMFILE are transient.
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > time.Second {
				tempDelay = time.Second
			}
			s.log.Warn().Err(err).Dur("retry_in", tempDelay).Msg("accept error")
			select {
			case <-time.After(tempDelay):
			case <-s.done:
				return ErrServerClosed
			}
			continue
		}
		tempDelay = 0
		c := s.newConn(nc)
		s.strategy.run(func() { c.serve(s.baseCtx) })
	}
}

// Shutdown stops accepting, closes idle connections and waits for active
// ones to finish their current request. When ctx ends first the remaining
// connections are closed, in-flight handlers see a cancelled context, and
// ctx.Err() is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)
	s.closeListeners()
	s.closeIdle()
	s.log.Info().Int64("connections", s.active.Load()).Msg("draining connections")
	if s.active.WaitForZero(ctx) {
		s.cancelBase()
		return nil
	}
	s.log.Warn().Int64("connections", s.active.Load()).Msg("drain timeout exceeded; closing connections")
	s.closeAll()
	return ctx.Err()
}

// Close stops the server immediately.
func (s *Server) Close() error {
	s.closing.Store(true)
	s.closeListeners()
	s.closeAll()
	return nil
}

// ActiveConnections returns the number of open connections.
func (s *Server) ActiveConnections() int64 { return s.active.Load() }

func (s *Server) trackListener(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *Server) untrackListener(ln net.Listener) {
	s.mu.Lock()
	delete(s.listeners, ln)
	s.mu.Unlock()
}

func (s *Server) closeListeners() {
	s.doneOnce.Do(func() { close(s.done) })
	s.mu.Lock()
	defer s.mu.Unlock()
	for ln := range s.listeners {
		_ = ln.Close()
	}
}

func (s *Server) trackConn(c *conn) {
	s.active.Inc()
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrackConn(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.active.Dec()
}

// closeIdle closes connections waiting for their next request.
func (s *Server) closeIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		if c.shutIfIdle() {
			_ = c.nc.Close()
		}
	}
}

func (s *Server) closeAll() {
	s.cancelBase()
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.nc.Close()
	}
}
