// Package overlap scores documents by how many distinct query terms they
// contain in their raw text.
package overlap

import (
	"context"

	"github.com/gaspardpetit/qscore/internal/analysis"
	"github.com/gaspardpetit/qscore/internal/entry"
)

// Scorer is a raw-mode handler returning [matched, matched/len(query terms)].
type Scorer struct {
	Analyzer analysis.Analyzer
}

// New returns a scorer tokenizing with the standard analyzer.
func New() *Scorer { return &Scorer{Analyzer: analysis.NewStandard()} }

func (s *Scorer) ScoreRaw(_ context.Context, query entry.TextEntry, docs []entry.TextEntry) (entry.Scores, error) {
	qset := set(s.Analyzer.Analyze(query.Text()))
	out := make(entry.Scores, len(docs))
	for _, d := range docs {
		var matched float64
		for t := range set(s.Analyzer.Analyze(d.Text())) {
			if _, ok := qset[t]; ok {
				matched++
			}
		}
		ratio := 0.0
		if len(qset) > 0 {
			ratio = matched / float64(len(qset))
		}
		out[d.ID()] = entry.ScoreVector{matched, ratio}
	}
	return out, nil
}

func set(terms []string) map[string]struct{} {
	m := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		m[t] = struct{}{}
	}
	return m
}
