package logx_test

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/gaspardpetit/qscore/internal/logx"
)

func TestConfigureLogLevel(t *testing.T) {
	defer logx.Configure("info", "console")

	cases := map[string]zerolog.Level{
		"all":     zerolog.TraceLevel,
		"WARNING": zerolog.WarnLevel,
		" debug ": zerolog.DebugLevel,
		"none":    zerolog.Disabled,
		"bogus":   zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for in, want := range cases {
		logx.Configure(in, "json")
		if got := zerolog.GlobalLevel(); got != want {
			t.Fatalf("Configure(%q): level %s, want %s", in, got, want)
		}
	}
}
