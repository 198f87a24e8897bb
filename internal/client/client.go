// Package client is a Go client for the qscore TCP protocol.
package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gaspardpetit/qscore/internal/entry"
	"github.com/gaspardpetit/qscore/internal/logx"
	"github.com/gaspardpetit/qscore/internal/wire"
)

// ErrClosed is returned when the connection was closed by Close or by the
// server after an error response.
var ErrClosed = errors.New("client: connection closed")

// Client holds one keep-alive connection. Requests on a Client are
// serialized; open several clients for parallel requests.
type Client struct {
	mu       sync.Mutex
	conn     net.Conn
	maxFrame int
	closed   bool
}

// Options configures Dial.
type Options struct {
	DialTimeout   time.Duration
	MaxFrameBytes int
}

// Dial connects to a qscore server.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	d := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, maxFrame: opts.MaxFrameBytes}, nil
}

// Score sends one request and waits for its scores. Server-side failures
// are returned as *wire.RemoteError; the server closes the connection after
// them, so later calls return ErrClosed.
func (c *Client) Score(ctx context.Context, req entry.Request) (entry.Scores, error) {
	body, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	rid := uuid.NewString()
	log := logx.Log.With().Str("request_id", rid).Int64("query_id", req.Query.ID()).Logger()
	start := time.Now()

	_ = c.conn.SetDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if err := wire.WriteFrame(c.conn, body); err != nil {
		c.closeLocked()
		return nil, c.ctxErr(ctx, err)
	}
	payload, err := wire.ReadFrame(c.conn, c.maxFrame)
	if err != nil {
		c.closeLocked()
		return nil, c.ctxErr(ctx, err)
	}
	scores, err := wire.DecodeResponse(payload)
	if err != nil {
		var re *wire.RemoteError
		if errors.As(err, &re) {
			c.closeLocked()
		}
		log.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("score failed")
		return nil, err
	}
	log.Debug().Int("documents", len(scores)).Dur("elapsed", time.Since(start)).Msg("scored")
	return scores, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *Client) ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
