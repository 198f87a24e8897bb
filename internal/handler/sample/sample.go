// Package sample provides the reference handlers: every document gets the
// constant score vector [0]. They log what they receive, which makes them
// useful for checking a client against a running server.
package sample

import (
	"context"

	"github.com/gaspardpetit/qscore/internal/entry"
	"github.com/gaspardpetit/qscore/internal/logx"
)

// Raw scores the unprocessed text.
type Raw struct {
	// Serial makes the handler declare itself exclusive.
	Serial bool
}

func (h Raw) Exclusive() bool { return h.Serial }

func (h Raw) ScoreRaw(_ context.Context, query entry.TextEntry, docs []entry.TextEntry) (entry.Scores, error) {
	logx.Log.Debug().Int64("query_id", query.ID()).Str("query", query.Text()).Int("documents", len(docs)).Msg("score raw")
	return constant(docs), nil
}

// Parsed scores the parsed form.
type Parsed struct {
	Serial bool
}

func (h Parsed) Exclusive() bool { return h.Serial }

func (h Parsed) ScoreParsed(_ context.Context, query entry.TextEntry, docs []entry.TextEntry) (entry.Scores, error) {
	logx.Log.Debug().Int64("query_id", query.ID()).Strs("query", query.Parsed()).Int("documents", len(docs)).Msg("score parsed")
	return constant(docs), nil
}

func constant(docs []entry.TextEntry) entry.Scores {
	out := make(entry.Scores, len(docs))
	for _, d := range docs {
		logx.Log.Trace().Stringer("document", d).Msg("sample document")
		out[d.ID()] = entry.ScoreVector{0}
	}
	return out
}
