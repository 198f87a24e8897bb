package builtin

import (
	"strings"
	"testing"

	"github.com/gaspardpetit/qscore/internal/handler"
)

func TestBuiltinsRegistered(t *testing.T) {
	want := map[string]handler.Mode{
		"sample":        handler.ModeRaw,
		"sample-parsed": handler.ModeParsed,
		"bm25":          handler.ModeParsed,
		"overlap":       handler.ModeRaw,
	}
	for name, mode := range want {
		b, err := handler.New(name, nil)
		if err != nil {
			t.Fatalf("New(%s): %v", name, err)
		}
		if b.Mode != mode {
			t.Fatalf("%s bound to %s, want %s", name, b.Mode, mode)
		}
		d, ok := handler.DescriptorFor(name)
		if !ok || d.Mode != mode {
			t.Fatalf("%s descriptor = %+v", name, d)
		}
	}
}

func TestBuiltinOptions(t *testing.T) {
	b, err := handler.New("sample", handler.Options{"serial": "true"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !b.Exclusive {
		t.Fatalf("serial sample should be exclusive")
	}
	if _, err := handler.New("bm25", handler.Options{"k1": "abc"}); err == nil || !strings.Contains(err.Error(), "k1") {
		t.Fatalf("expected k1 error, got %v", err)
	}
	if _, err := handler.New("overlap", handler.Options{"analyzer": "nope"}); err == nil {
		t.Fatalf("expected analyzer error")
	}
	if _, err := handler.New("does-not-exist", nil); err == nil {
		t.Fatalf("expected unknown handler error")
	}
}
