package logx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInitWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, Config{Level: "warn"})
	t.Cleanup(func() { Init() })

	log.Info().Msg("hidden")
	log.Warn().Str("session_id", "s1").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line leaked at warn level: %s", out)
	}
	if !strings.Contains(out, `"session_id":"s1"`) || !strings.Contains(out, "shown") {
		t.Fatalf("output = %s", out)
	}
}

func TestLevelResolution(t *testing.T) {
	t.Parallel()

	cases := []struct {
		conf Config
		want zerolog.Level
	}{
		{Config{}, zerolog.InfoLevel},
		{Config{Level: "ERROR"}, zerolog.ErrorLevel},
		{Config{Level: "bogus"}, zerolog.InfoLevel},
		{Config{Level: "error", Debug: true}, zerolog.DebugLevel},
	}
	for _, tc := range cases {
		if got := level(&tc.conf); got != tc.want {
			t.Fatalf("level(%#v) = %v, want %v", tc.conf, got, tc.want)
		}
	}
}
