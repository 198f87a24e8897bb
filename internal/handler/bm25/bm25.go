// Package bm25 scores documents with Okapi BM25, using the request's own
// documents as the collection for document frequencies and average length.
package bm25

import (
	"context"
	"math"

	"github.com/gaspardpetit/qscore/internal/entry"
)

// Default BM25 parameters.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// Scorer is a parsed-mode handler. It holds no mutable state and is safe
// for concurrent use.
type Scorer struct {
	K1 float64
	B  float64
}

// New returns a scorer with default parameters.
func New() *Scorer { return &Scorer{K1: DefaultK1, B: DefaultB} }

func (s *Scorer) Exclusive() bool { return false }

// ScoreParsed returns a one-element vector per document.
func (s *Scorer) ScoreParsed(ctx context.Context, query entry.TextEntry, docs []entry.TextEntry) (entry.Scores, error) {
	out := make(entry.Scores, len(docs))
	if len(docs) == 0 {
		return out, nil
	}

	tfs := make([]map[string]int, len(docs))
	lens := make([]int, len(docs))
	df := map[string]int{}
	total := 0
	for i, d := range docs {
		terms := d.Parsed()
		tf := make(map[string]int, len(terms))
		for _, t := range terms {
			tf[t]++
		}
		for t := range tf {
			df[t]++
		}
		tfs[i] = tf
		lens[i] = len(terms)
		total += len(terms)
	}
	avgdl := float64(total) / float64(len(docs))

	qterms := uniq(query.Parsed())
	n := float64(len(docs))
	for i, d := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var score float64
		for _, t := range qterms {
			f := float64(tfs[i][t])
			if f == 0 {
				continue
			}
			score += idf(n, float64(df[t])) * s.termWeight(f, float64(lens[i]), avgdl)
		}
		out[d.ID()] = entry.ScoreVector{score}
	}
	return out, nil
}

// idf is ln(1 + (N - n + 0.5) / (n + 0.5)), which is never negative.
func idf(n, docFreq float64) float64 {
	return math.Log(1 + (n-docFreq+0.5)/(docFreq+0.5))
}

func (s *Scorer) termWeight(tf, dl, avgdl float64) float64 {
	norm := 1.0
	if avgdl > 0 {
		norm = 1 - s.B + s.B*dl/avgdl
	}
	den := tf + s.K1*norm
	if den == 0 {
		return 0
	}
	return tf * (s.K1 + 1) / den
}

func uniq(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
