package logutil

import (
	"bytes"
	"strings"
	"testing"
)

func TestConfigureLoggerRejectsUnknownLevel(t *testing.T) {
	if err := ConfigureLogger("loud"); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, false)
	l.Info().Str("func", "demo.run").Msg("done")
	if !strings.Contains(buf.String(), `"func":"demo.run"`) {
		t.Fatalf("unexpected output %q", buf.String())
	}

	buf.Reset()
	l = newLogger(&buf, true)
	l.Info().Msg("done")
	if strings.Contains(buf.String(), "{") {
		t.Fatalf("expected console output but got %q", buf.String())
	}
}
