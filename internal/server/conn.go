package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/qscore/internal/entry"
	"github.com/gaspardpetit/qscore/internal/metrics"
	"github.com/gaspardpetit/qscore/internal/wire"
)

// Connection states, as logged.
const (
	stateAccepting   = "Accepting"
	stateDecoding    = "Decoding"
	stateDispatching = "Dispatching"
	stateEncoding    = "Encoding"
	stateResponding  = "Responding"
	stateErrored     = "Errored"
	stateClosed      = "Closed"
)

// Idle tracking, see conn.awaitRequest and Server.closeIdle.
const (
	phaseActive int32 = iota
	phaseIdle
	phaseShut
)

var aLongTimeAgo = time.Unix(1, 0)

const transportTCP = "tcp"

type conn struct {
	srv   *Server
	nc    net.Conn
	br    *bufio.Reader
	id    string
	log   zerolog.Logger
	phase atomic.Int32

	// errored is set once an error response was sent.
	errored bool
}

func (s *Server) newConn(nc net.Conn) *conn {
	id := uuid.NewString()
	c := &conn{
		srv: s,
		nc:  nc,
		br:  bufio.NewReader(nc),
		id:  id,
		log: s.log.With().Str("conn_id", id).Str("remote_addr", nc.RemoteAddr().String()).Logger(),
	}
	s.trackConn(c)
	return c
}

// shutIfIdle marks an idle connection as shut by the server.
func (c *conn) shutIfIdle() bool {
	return c.phase.CompareAndSwap(phaseIdle, phaseShut)
}

func (c *conn) serve(ctx context.Context) {
	metrics.ConnOpened()
	defer func() {
		if c.errored {
			c.closeWriteAndWait()
		}
		_ = c.nc.Close()
		metrics.ConnClosed()
		c.srv.untrackConn(c)
		c.log.Debug().Str("state", stateClosed).Msg("connection closed")
	}()
	c.log.Debug().Str("state", stateAccepting).Msg("connection accepted")

	for {
		if !c.awaitRequest() {
			return
		}
		if !c.handle(ctx) {
			return
		}
		if !c.srv.cfg.KeepAlive || c.srv.closing.Load() {
			return
		}
	}
}

// awaitRequest waits for the first byte of the next request. It returns
// false when the connection should close instead.
func (c *conn) awaitRequest() bool {
	c.phase.Store(phaseIdle)
	if c.srv.closing.Load() {
		return false
	}
	c.setReadTimeout(c.srv.cfg.IdleTimeout)
	_, err := c.br.Peek(1)
	if !c.phase.CompareAndSwap(phaseIdle, phaseActive) {
		return false
	}
	if err != nil {
		var ne net.Error
		switch {
		case errors.Is(err, io.EOF):
			c.log.Debug().Msg("client closed connection")
		case errors.As(err, &ne) && ne.Timeout():
			c.log.Debug().Dur("idle_timeout", c.srv.cfg.IdleTimeout).Msg("idle timeout")
		default:
			c.log.Debug().Err(err).Msg("read error")
		}
		return false
	}
	return true
}

// handle serves one request. It returns false when the connection must close.
func (c *conn) handle(base context.Context) bool {
	c.setReadTimeout(c.srv.cfg.ReadTimeout)
	payload, err := wire.ReadFrame(c.br, c.srv.cfg.MaxFrameBytes)
	if err != nil {
		var ne net.Error
		switch {
		case errors.As(err, &ne) && ne.Timeout():
			c.fail(stateDecoding, &entry.DecodeError{Reason: "incomplete frame", Err: err})
		case errors.Is(err, io.EOF) || !isDecodeError(err):
			c.log.Debug().Str("state", stateDecoding).Err(err).Msg("read error")
		default:
			c.fail(stateDecoding, err)
		}
		return false
	}
	req, err := wire.DecodeRequest(payload)
	if err != nil {
		c.fail(stateDecoding, err)
		return false
	}
	c.log.Trace().Str("state", stateDispatching).Int64("query_id", req.Query.ID()).Int("documents", len(req.Documents)).Msg("request decoded")

	ctx, cancel := context.WithCancel(base)
	stop := c.watchDisconnect(cancel)
	scores, err := c.srv.disp.Dispatch(ctx, req)
	stop()
	cancel()
	if err != nil {
		c.fail(stateDispatching, err)
		return false
	}

	body, err := wire.EncodeScores(scores)
	if err != nil {
		c.fail(stateEncoding, err)
		return false
	}
	if err := c.write(body); err != nil {
		c.log.Warn().Str("state", stateResponding).Err(err).Msg("write response")
		metrics.RecordRequest(transportTCP, wire.CodeInternal, 0)
		return false
	}
	metrics.RecordRequest(transportTCP, "success", len(req.Documents))
	c.log.Debug().Int64("query_id", req.Query.ID()).Int("documents", len(req.Documents)).Msg("request served")
	return true
}

// watchDisconnect cancels the request when the client goes away while its
// request is being scored. The returned func stops the watcher and must be
// called before the connection is read again.
func (c *conn) watchDisconnect(cancel context.CancelFunc) (stop func()) {
	_ = c.nc.SetReadDeadline(time.Time{})
	var stopping atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := c.br.Peek(1); err != nil && !stopping.Load() {
			c.log.Debug().Err(err).Msg("client disconnected; cancelling request")
			cancel()
		}
	}()
	return func() {
		stopping.Store(true)
		_ = c.nc.SetReadDeadline(aLongTimeAgo)
		<-done
		_ = c.nc.SetReadDeadline(time.Time{})
	}
}

// fail reports err to the client and logs the connection as errored.
func (c *conn) fail(state string, err error) {
	code := wire.ErrorCode(err)
	ev := c.log.Warn()
	if code == wire.CodeCancelled {
		ev = c.log.Info()
	}
	ev.Str("state", stateErrored).Str("stage", state).Str("code", code).Err(err).Msg("request failed")
	metrics.RecordRequest(transportTCP, code, 0)
	c.errored = true
	if werr := c.write(wire.EncodeError(err)); werr != nil {
		c.log.Debug().Err(werr).Msg("write error response")
	}
}

// Closing a socket with unread input resets it, which can discard the error
// response before the client reads it. Half-close and drain briefly instead.
const (
	lingerTimeout  = 500 * time.Millisecond
	lingerMaxBytes = 256 << 10
)

func (c *conn) closeWriteAndWait() {
	tc, ok := c.nc.(interface{ CloseWrite() error })
	if !ok {
		return
	}
	if c.srv.closing.Load() {
		return
	}
	_ = tc.CloseWrite()
	_ = c.nc.SetReadDeadline(time.Now().Add(lingerTimeout))
	_, _ = io.CopyN(io.Discard, c.br, lingerMaxBytes)
}

func (c *conn) write(body []byte) error {
	if t := c.srv.cfg.WriteTimeout; t > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(t))
	}
	return wire.WriteFrame(c.nc, body)
}

func (c *conn) setReadTimeout(d time.Duration) {
	if d > 0 {
		_ = c.nc.SetReadDeadline(time.Now().Add(d))
		return
	}
	_ = c.nc.SetReadDeadline(time.Time{})
}

func isDecodeError(err error) bool {
	var de *entry.DecodeError
	return errors.As(err, &de)
}
