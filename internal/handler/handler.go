// Package handler defines the scoring handler plug-in contract.
//
// A handler implements RawScorer, ParsedScorer or both. Bind inspects the
// handler once and returns a Binding that the dispatcher calls for every
// request, so no capability checks happen on the request path.
package handler

import (
	"context"
	"fmt"

	"github.com/gaspardpetit/qscore/internal/entry"
)

// RawScorer scores documents against a query using the unprocessed text.
type RawScorer interface {
	ScoreRaw(ctx context.Context, query entry.TextEntry, docs []entry.TextEntry) (entry.Scores, error)
}

// ParsedScorer scores documents using their parsed form. Every entry passed
// to ScoreParsed carries a parsed form.
type ParsedScorer interface {
	ScoreParsed(ctx context.Context, query entry.TextEntry, docs []entry.TextEntry) (entry.Scores, error)
}

// Concurrency is implemented by handlers that declare whether their state
// tolerates concurrent calls. Exclusive handlers are always run one at a time.
type Concurrency interface {
	Exclusive() bool
}

// Preferrer is implemented by handlers supporting both modes to pick one.
type Preferrer interface {
	PreferredMode() Mode
}

// Mode identifies the scoring variant a handler is bound to.
type Mode int

const (
	ModeUnsupported Mode = iota
	ModeRaw
	ModeParsed
)

func (m Mode) String() string {
	switch m {
	case ModeRaw:
		return "raw"
	case ModeParsed:
		return "parsed"
	default:
		return "unsupported"
	}
}

// UnsupportedModeError is returned by Bind when a handler implements
// neither scoring variant.
type UnsupportedModeError struct {
	Handler string
	Type    string
}

func (e *UnsupportedModeError) Error() string {
	return fmt.Sprintf("handler %s (%s) implements neither ScoreRaw nor ScoreParsed", e.Handler, e.Type)
}

// Binding is a handler resolved to a single scoring variant.
type Binding struct {
	Name      string
	Mode      Mode
	Exclusive bool

	score func(ctx context.Context, query entry.TextEntry, docs []entry.TextEntry) (entry.Scores, error)
}

// Bind resolves h to its scoring variant. When both are implemented, raw is
// used unless h prefers parsed through Preferrer.
func Bind(name string, h any) (Binding, error) {
	raw, isRaw := h.(RawScorer)
	parsed, isParsed := h.(ParsedScorer)
	b := Binding{Name: name}
	if c, ok := h.(Concurrency); ok {
		b.Exclusive = c.Exclusive()
	}
	switch {
	case isRaw && isParsed:
		b.Mode = ModeRaw
		if p, ok := h.(Preferrer); ok && p.PreferredMode() == ModeParsed {
			b.Mode = ModeParsed
		}
	case isRaw:
		b.Mode = ModeRaw
	case isParsed:
		b.Mode = ModeParsed
	default:
		return Binding{}, &UnsupportedModeError{Handler: name, Type: fmt.Sprintf("%T", h)}
	}
	if b.Mode == ModeRaw {
		b.score = raw.ScoreRaw
	} else {
		b.score = parsed.ScoreParsed
	}
	return b, nil
}

// Score invokes the bound variant.
func (b Binding) Score(ctx context.Context, query entry.TextEntry, docs []entry.TextEntry) (entry.Scores, error) {
	if b.score == nil {
		return nil, &UnsupportedModeError{Handler: b.Name, Type: "unbound"}
	}
	return b.score(ctx, query, docs)
}
