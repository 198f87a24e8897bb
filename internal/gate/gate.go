// Package gate controls how many scoring invocations may run at once.
package gate

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/gaspardpetit/qscore/internal/entry"
)

// Func is one scoring invocation.
type Func func(ctx context.Context) (entry.Scores, error)

// Gate runs scoring invocations either freely in parallel or, when
// exclusive, strictly one at a time in lock arrival order.
type Gate struct {
	exclusive bool
	sem       *semaphore.Weighted

	waiting atomic.Int64
	active  atomic.Int64

	// OnWait, when set, observes how long an exclusive caller waited for
	// the lock. It is not called for callers that gave up.
	OnWait func(time.Duration)
}

// New returns a gate. It is created once and shared by all connections.
func New(exclusive bool) *Gate {
	g := &Gate{exclusive: exclusive}
	if exclusive {
		g.sem = semaphore.NewWeighted(1)
	}
	return g
}

// Exclusive reports the gate's mode.
func (g *Gate) Exclusive() bool { return g.exclusive }

// Waiting is the number of callers blocked on the exclusive lock.
func (g *Gate) Waiting() int64 { return g.waiting.Load() }

// Active is the number of invocations currently running.
func (g *Gate) Active() int64 { return g.active.Load() }

// Run calls fn under the gate's policy and returns whatever fn returns.
// In exclusive mode a caller whose ctx ends while waiting returns ctx.Err()
// without calling fn. The lock is released on every exit path, panics
// included; a panic in fn propagates after release.
func (g *Gate) Run(ctx context.Context, fn Func) (entry.Scores, error) {
	if g.exclusive {
		start := time.Now()
		g.waiting.Add(1)
		err := g.sem.Acquire(ctx, 1)
		g.waiting.Add(-1)
		if err != nil {
			return nil, err
		}
		defer g.sem.Release(1)
		if g.OnWait != nil {
			g.OnWait(time.Since(start))
		}
	}
	g.active.Add(1)
	defer g.active.Add(-1)
	return fn(ctx)
}
