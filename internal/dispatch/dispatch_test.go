package dispatch

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/gaspardpetit/qscore/internal/entry"
	"github.com/gaspardpetit/qscore/internal/gate"
	"github.com/gaspardpetit/qscore/internal/handler"
	"github.com/gaspardpetit/qscore/internal/handler/sample"
)

type funcRaw func(ctx context.Context, q entry.TextEntry, docs []entry.TextEntry) (entry.Scores, error)

func (f funcRaw) ScoreRaw(ctx context.Context, q entry.TextEntry, docs []entry.TextEntry) (entry.Scores, error) {
	return f(ctx, q, docs)
}

type captureParsed struct{ got chan []entry.TextEntry }

func (c captureParsed) ScoreParsed(_ context.Context, q entry.TextEntry, docs []entry.TextEntry) (entry.Scores, error) {
	c.got <- append([]entry.TextEntry{q}, docs...)
	out := entry.Scores{}
	for _, d := range docs {
		out[d.ID()] = entry.ScoreVector{1}
	}
	return out, nil
}

func newDispatcher(t *testing.T, h any, exclusive bool) *Dispatcher {
	t.Helper()
	b, err := handler.Bind("test", h)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	return New(b, gate.New(exclusive), nil)
}

func helloRequest(t *testing.T) entry.Request {
	t.Helper()
	req, err := entry.NewRequest(entry.New(1, "hello"), []entry.TextEntry{entry.New(10, "world"), entry.New(11, "foo")})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	return req
}

func TestDispatchSample(t *testing.T) {
	d := newDispatcher(t, sample.Raw{}, false)
	got, err := d.Dispatch(context.Background(), helloRequest(t))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	want := entry.Scores{10: {0}, 11: {0}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestDispatchFillsParsedForm(t *testing.T) {
	c := captureParsed{got: make(chan []entry.TextEntry, 1)}
	d := newDispatcher(t, c, false)
	req, err := entry.NewRequest(entry.New(1, "Hello World"), []entry.TextEntry{
		entry.New(10, "Foo bar"),
		entry.NewParsed(11, "ignored", []string{"kept"}),
	})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if _, err := d.Dispatch(context.Background(), req); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	seen := <-c.got
	if !reflect.DeepEqual(seen[0].Parsed(), []string{"hello", "world"}) {
		t.Fatalf("query parsed = %q", seen[0].Parsed())
	}
	if !reflect.DeepEqual(seen[1].Parsed(), []string{"foo", "bar"}) {
		t.Fatalf("doc 10 parsed = %q", seen[1].Parsed())
	}
	if !reflect.DeepEqual(seen[2].Parsed(), []string{"kept"}) {
		t.Fatalf("doc 11 parsed = %q", seen[2].Parsed())
	}
	if req.Query.HasParsed() {
		t.Fatalf("request entries were mutated")
	}
}

func TestDispatchHandlerError(t *testing.T) {
	boom := errors.New("model unavailable")
	d := newDispatcher(t, funcRaw(func(context.Context, entry.TextEntry, []entry.TextEntry) (entry.Scores, error) {
		return nil, boom
	}), true)
	_, err := d.Dispatch(context.Background(), helloRequest(t))
	var he *entry.HandlerError
	if !errors.As(err, &he) || !errors.Is(err, boom) {
		t.Fatalf("expected HandlerError wrapping boom, got %v", err)
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	d := newDispatcher(t, funcRaw(func(context.Context, entry.TextEntry, []entry.TextEntry) (entry.Scores, error) {
		panic("index out of range")
	}), true)
	_, err := d.Dispatch(context.Background(), helloRequest(t))
	var he *entry.HandlerError
	if !errors.As(err, &he) {
		t.Fatalf("expected HandlerError, got %v", err)
	}
	// the exclusive lock must have been released
	if _, err := newDispatcherWithGate(d, sample.Raw{}).Dispatch(context.Background(), helloRequest(t)); err != nil {
		t.Fatalf("gate not released after panic: %v", err)
	}
}

func newDispatcherWithGate(d *Dispatcher, h any) *Dispatcher {
	b, _ := handler.Bind("sample", h)
	return New(b, d.Gate(), nil)
}

func TestDispatchContractViolation(t *testing.T) {
	tests := []struct {
		name   string
		scores entry.Scores
	}{
		{"missing", entry.Scores{10: {0}}},
		{"extra", entry.Scores{10: {0}, 11: {0}, 12: {0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDispatcher(t, funcRaw(func(context.Context, entry.TextEntry, []entry.TextEntry) (entry.Scores, error) {
				return tt.scores, nil
			}), false)
			_, err := d.Dispatch(context.Background(), helloRequest(t))
			var ce *entry.HandlerContractError
			if !errors.As(err, &ce) {
				t.Fatalf("expected HandlerContractError, got %v", err)
			}
		})
	}
}

func TestDispatchCancelledWhileWaiting(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	d := newDispatcher(t, funcRaw(func(_ context.Context, _ entry.TextEntry, docs []entry.TextEntry) (entry.Scores, error) {
		entered <- struct{}{}
		<-release
		out := entry.Scores{}
		for _, doc := range docs {
			out[doc.ID()] = entry.ScoreVector{0}
		}
		return out, nil
	}), true)

	done := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(context.Background(), helloRequest(t))
		done <- err
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := d.Dispatch(ctx, helloRequest(t)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
}
