package sample

import (
	"context"
	"reflect"
	"testing"

	"github.com/gaspardpetit/qscore/internal/entry"
	"github.com/gaspardpetit/qscore/internal/handler"
)

func TestSampleHandlers(t *testing.T) {
	docs := []entry.TextEntry{entry.NewParsed(10, "world", []string{"world"}), entry.NewParsed(11, "foo", []string{"foo"})}
	want := entry.Scores{10: {0}, 11: {0}}
	q := entry.NewParsed(1, "hello", []string{"hello"})

	got, err := Raw{}.ScoreRaw(context.Background(), q, docs)
	if err != nil || !reflect.DeepEqual(got, want) {
		t.Fatalf("raw = %v, %v", got, err)
	}
	got, err = Parsed{}.ScoreParsed(context.Background(), q, docs)
	if err != nil || !reflect.DeepEqual(got, want) {
		t.Fatalf("parsed = %v, %v", got, err)
	}
}

func TestSampleBinding(t *testing.T) {
	b, err := handler.Bind("sample", Raw{Serial: true})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if b.Mode != handler.ModeRaw || !b.Exclusive {
		t.Fatalf("binding = %+v", b)
	}
	b, err = handler.Bind("sample-parsed", Parsed{})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if b.Mode != handler.ModeParsed || b.Exclusive {
		t.Fatalf("binding = %+v", b)
	}
}
