// Command qscore-query sends one scoring request to a qscore server and
// prints the scores as JSON.
//
//	qscore-query -addr 127.0.0.1:8765 -query "hello" world "hello world"
//
// Documents are numbered from -first-id in argument order.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/gaspardpetit/qscore/internal/analysis"
	"github.com/gaspardpetit/qscore/internal/client"
	"github.com/gaspardpetit/qscore/internal/config"
	"github.com/gaspardpetit/qscore/internal/entry"
	"github.com/gaspardpetit/qscore/internal/logx"
)

type result struct {
	ID    int64     `json:"id"`
	Text  string    `json:"text"`
	Score []float64 `json:"score"`
}

func main() {
	addr := flag.String("addr", config.GetEnv("QSCORE_ADDR", "127.0.0.1:8765"), "server address")
	query := flag.String("query", "", "query text")
	queryID := flag.Int64("query-id", 0, "query id")
	firstID := flag.Int64("first-id", 1, "id of the first document")
	stdin := flag.Bool("stdin", false, "read documents from stdin, one per line")
	parse := flag.String("parse", "", "send a parsed form produced by this analyzer (standard, whitespace)")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	logLevel := flag.String("log-level", config.GetEnv("LOG_LEVEL", "warn"), "log verbosity")
	flag.Parse()
	logx.Configure(*logLevel, "console")

	texts := flag.Args()
	if *stdin {
		sc := bufio.NewScanner(os.Stdin)
		sc.Buffer(make([]byte, 64*1024), 16<<20)
		for sc.Scan() {
			texts = append(texts, sc.Text())
		}
		if err := sc.Err(); err != nil {
			logx.Log.Fatal().Err(err).Msg("read stdin")
		}
	}

	var an analysis.Analyzer
	if *parse != "" {
		var ok bool
		if an, ok = analysis.ByName(*parse); !ok {
			logx.Log.Fatal().Str("analyzer", *parse).Msg("unknown analyzer")
		}
	}
	mk := func(id int64, text string) entry.TextEntry {
		if an != nil {
			return entry.NewParsed(id, text, an.Analyze(text))
		}
		return entry.New(id, text)
	}
	docs := make([]entry.TextEntry, len(texts))
	for i, t := range texts {
		docs[i] = mk(*firstID+int64(i), t)
	}
	req, err := entry.NewRequest(mk(*queryID, *query), docs)
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("build request")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	c, err := client.Dial(ctx, *addr, client.Options{DialTimeout: 5 * time.Second})
	if err != nil {
		logx.Log.Fatal().Err(err).Str("addr", *addr).Msg("connect")
	}
	defer c.Close()
	scores, err := c.Score(ctx, req)
	if err != nil {
		logx.Log.Error().Err(err).Msg("score")
		os.Exit(1)
	}

	out := make([]result, 0, len(docs))
	for _, d := range docs {
		out = append(out, result{ID: d.ID(), Text: d.Text(), Score: scores[d.ID()]})
	}
	sort.SliceStable(out, func(i, j int) bool { return first(out[i].Score) > first(out[j].Score) })
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func first(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return v[0]
}
