// Package builtin registers the handlers shipped with qscore.
package builtin

import (
	"fmt"
	"strconv"

	"github.com/gaspardpetit/qscore/internal/analysis"
	"github.com/gaspardpetit/qscore/internal/handler"
	"github.com/gaspardpetit/qscore/internal/handler/bm25"
	"github.com/gaspardpetit/qscore/internal/handler/overlap"
	"github.com/gaspardpetit/qscore/internal/handler/sample"
)

func init() {
	handler.Register("sample", func(opts handler.Options) (any, error) {
		serial, err := boolOpt(opts, "serial", false)
		if err != nil {
			return nil, err
		}
		return sample.Raw{Serial: serial}, nil
	}, handler.Descriptor{
		Summary:         "constant [0] per document, raw text",
		Mode:            handler.ModeRaw,
		ConcurrencySafe: true,
		Options:         map[string]string{"serial": "declare the handler exclusive (bool)"},
	})
	handler.Register("sample-parsed", func(opts handler.Options) (any, error) {
		serial, err := boolOpt(opts, "serial", false)
		if err != nil {
			return nil, err
		}
		return sample.Parsed{Serial: serial}, nil
	}, handler.Descriptor{
		Summary:         "constant [0] per document, parsed form",
		Mode:            handler.ModeParsed,
		ConcurrencySafe: true,
		Options:         map[string]string{"serial": "declare the handler exclusive (bool)"},
	})
	handler.Register("bm25", func(opts handler.Options) (any, error) {
		s := bm25.New()
		var err error
		if s.K1, err = floatOpt(opts, "k1", bm25.DefaultK1); err != nil {
			return nil, err
		}
		if s.B, err = floatOpt(opts, "b", bm25.DefaultB); err != nil {
			return nil, err
		}
		return s, nil
	}, handler.Descriptor{
		Summary:         "Okapi BM25 over the request's documents, vector [score]",
		Mode:            handler.ModeParsed,
		ConcurrencySafe: true,
		Options:         map[string]string{"k1": "term saturation (float)", "b": "length normalization (float)"},
	})
	handler.Register("overlap", func(opts handler.Options) (any, error) {
		s := overlap.New()
		if name, ok := opts["analyzer"]; ok {
			a, found := analysis.ByName(name)
			if !found {
				return nil, fmt.Errorf("unknown analyzer %q", name)
			}
			s.Analyzer = a
		}
		return s, nil
	}, handler.Descriptor{
		Summary:         "distinct query term overlap, vector [matched, ratio]",
		Mode:            handler.ModeRaw,
		ConcurrencySafe: true,
		Options:         map[string]string{"analyzer": "standard or whitespace"},
	})
}

func boolOpt(opts handler.Options, key string, def bool) (bool, error) {
	v, ok := opts[key]
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("option %s: %w", key, err)
	}
	return b, nil
}

func floatOpt(opts handler.Options, key string, def float64) (float64, error) {
	v, ok := opts[key]
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("option %s: %w", key, err)
	}
	return f, nil
}
