// Package inflight counts work that must finish before the server exits.
package inflight

import (
	"context"
	"net/http"
	"sync"
)

// Counter tracks in-flight work. The zero value is ready to use.
type Counter struct {
	mu     sync.Mutex
	count  int64
	zeroCh chan struct{}
}

// zero returns the channel closed when the count next reaches zero.
// Callers must hold mu.
func (c *Counter) zero() chan struct{} {
	if c.zeroCh == nil {
		c.zeroCh = make(chan struct{})
		if c.count == 0 {
			close(c.zeroCh)
		}
	}
	return c.zeroCh
}

// Inc increments the counter.
func (c *Counter) Inc() {
	c.mu.Lock()
	c.zero()
	if c.count == 0 {
		c.zeroCh = make(chan struct{})
	}
	c.count++
	c.mu.Unlock()
}

// Dec decrements the counter; it never goes below zero.
func (c *Counter) Dec() {
	c.mu.Lock()
	c.zero()
	if c.count > 0 {
		c.count--
		if c.count == 0 {
			close(c.zeroCh)
		}
	}
	c.mu.Unlock()
}

// Track increments the counter and returns the matching decrement.
func (c *Counter) Track() (done func()) {
	c.Inc()
	var once sync.Once
	return func() { once.Do(c.Dec) }
}

// Load returns the current count.
func (c *Counter) Load() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// WaitForZero blocks until the count is zero or ctx is done.
func (c *Counter) WaitForZero(ctx context.Context) bool {
	c.mu.Lock()
	ch := c.zero()
	c.mu.Unlock()
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// Middleware counts HTTP requests for their whole duration.
func (c *Counter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer c.Track()()
		next.ServeHTTP(w, r)
	})
}
