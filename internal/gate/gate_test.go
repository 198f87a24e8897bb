package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/gaspardpetit/qscore/internal/entry"
)

// recorder tracks how many invocations overlap.
type recorder struct {
	cur, max atomic.Int64
}

func (r *recorder) fn(d time.Duration) Func {
	return func(ctx context.Context) (entry.Scores, error) {
		n := r.cur.Add(1)
		for {
			m := r.max.Load()
			if n <= m || r.max.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(d)
		r.cur.Add(-1)
		return entry.Scores{}, nil
	}
}

func runParallel(t *testing.T, g *Gate, n int, fn Func) {
	t.Helper()
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Run(context.Background(), fn); err != nil {
				t.Errorf("Run: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestExclusiveNeverOverlaps(t *testing.T) {
	defer goleak.VerifyNone(t)
	g := New(true)
	var waits atomic.Int64
	g.OnWait = func(time.Duration) { waits.Add(1) }
	var r recorder
	runParallel(t, g, 8, r.fn(5*time.Millisecond))
	if got := r.max.Load(); got != 1 {
		t.Fatalf("max concurrent invocations = %d, want 1", got)
	}
	if waits.Load() != 8 {
		t.Fatalf("OnWait called %d times", waits.Load())
	}
	if g.Active() != 0 || g.Waiting() != 0 {
		t.Fatalf("counters not reset: active=%d waiting=%d", g.Active(), g.Waiting())
	}
}

func TestConcurrentOverlaps(t *testing.T) {
	defer goleak.VerifyNone(t)
	g := New(false)
	start := make(chan struct{})
	var entered sync.WaitGroup
	entered.Add(2)
	fn := func(ctx context.Context) (entry.Scores, error) {
		entered.Done()
		<-start
		return nil, nil
	}
	// Both invocations must be inside fn at the same time for entered to
	// reach zero; an exclusive gate would deadlock here.
	done := make(chan struct{})
	go func() {
		runParallel(t, g, 2, fn)
		close(done)
	}()
	entered.Wait()
	close(start)
	<-done
	if g.Exclusive() {
		t.Fatalf("gate should not be exclusive")
	}
}

func TestReleaseOnError(t *testing.T) {
	defer goleak.VerifyNone(t)
	g := New(true)
	boom := errors.New("boom")
	if _, err := g.Run(context.Background(), func(context.Context) (entry.Scores, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := g.Run(ctx, func(context.Context) (entry.Scores, error) { return entry.Scores{}, nil }); err != nil {
		t.Fatalf("lock not released after error: %v", err)
	}
}

func TestReleaseOnPanic(t *testing.T) {
	defer goleak.VerifyNone(t)
	g := New(true)
	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_, _ = g.Run(context.Background(), func(context.Context) (entry.Scores, error) { panic("handler bug") })
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := g.Run(ctx, func(context.Context) (entry.Scores, error) { return nil, nil }); err != nil {
		t.Fatalf("lock not released after panic: %v", err)
	}
}

func TestCancelWhileWaiting(t *testing.T) {
	defer goleak.VerifyNone(t)
	g := New(true)
	hold := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_, _ = g.Run(context.Background(), func(context.Context) (entry.Scores, error) {
			close(held)
			<-hold
			return nil, nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	_, err := g.Run(ctx, func(context.Context) (entry.Scores, error) {
		called = true
		return nil, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if called {
		t.Fatalf("fn ran despite cancelled wait")
	}
	close(hold)

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if _, err := g.Run(ctx2, func(context.Context) (entry.Scores, error) { return nil, nil }); err != nil {
		t.Fatalf("gate stuck after cancelled waiter: %v", err)
	}
}
