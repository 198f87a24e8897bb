// Package dispatch is the single path from a decoded request to a verified
// set of scores. Every transport goes through a Dispatcher.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gaspardpetit/qscore/internal/analysis"
	"github.com/gaspardpetit/qscore/internal/entry"
	"github.com/gaspardpetit/qscore/internal/gate"
	"github.com/gaspardpetit/qscore/internal/handler"
	"github.com/gaspardpetit/qscore/internal/logx"
	"github.com/gaspardpetit/qscore/internal/metrics"
)

// Dispatcher runs a bound handler through an execution gate.
type Dispatcher struct {
	binding  handler.Binding
	gate     *gate.Gate
	analyzer analysis.Analyzer
}

// New returns a dispatcher. A nil analyzer defaults to the standard one; it
// is only used for parsed-mode handlers.
func New(b handler.Binding, g *gate.Gate, a analysis.Analyzer) *Dispatcher {
	if a == nil {
		a = analysis.NewStandard()
	}
	if g.OnWait == nil {
		g.OnWait = metrics.ObserveGateWait
	}
	return &Dispatcher{binding: b, gate: g, analyzer: a}
}

// Binding returns the bound handler.
func (d *Dispatcher) Binding() handler.Binding { return d.binding }

// Gate returns the execution gate.
func (d *Dispatcher) Gate() *gate.Gate { return d.gate }

// Dispatch scores req. Errors are one of: *entry.HandlerError (including a
// recovered panic), *entry.HandlerContractError, or a context error when ctx
// ended while waiting for the gate.
func (d *Dispatcher) Dispatch(ctx context.Context, req entry.Request) (entry.Scores, error) {
	metrics.RequestStart()
	defer metrics.RequestEnd()

	query, docs := req.Query, req.Documents
	if d.binding.Mode == handler.ModeParsed {
		query, docs = d.prepareParsed(query, docs)
	}

	scores, err := d.gate.Run(ctx, func(ctx context.Context) (s entry.Scores, err error) {
		start := time.Now()
		defer func() {
			metrics.ObserveScoring(time.Since(start))
			if r := recover(); r != nil {
				logx.Log.Error().Str("handler", d.binding.Name).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("handler panic")
				s, err = nil, fmt.Errorf("panic: %v", r)
			}
		}()
		return d.binding.Score(ctx, query, docs)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &entry.HandlerError{Handler: d.binding.Name, Err: err}
	}
	if err := req.CheckComplete(scores); err != nil {
		return nil, err
	}
	return scores, nil
}

// prepareParsed fills the parsed form of entries that arrived without one.
func (d *Dispatcher) prepareParsed(query entry.TextEntry, docs []entry.TextEntry) (entry.TextEntry, []entry.TextEntry) {
	if !query.HasParsed() {
		query = query.WithParsed(d.analyzer.Analyze(query.Text()))
	}
	out := make([]entry.TextEntry, len(docs))
	for i, doc := range docs {
		if !doc.HasParsed() {
			doc = doc.WithParsed(d.analyzer.Analyze(doc.Text()))
		}
		out[i] = doc
	}
	return query, out
}
