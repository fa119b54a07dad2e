package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zap.DebugLevel,
		"WARN":    zap.WarnLevel,
		"error":   zap.ErrorLevel,
		"verbose": zap.InfoLevel,
	}
	for name, want := range cases {
		if got := ParseLevel(name); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := New("warn", format)
		if err != nil {
			t.Fatalf("New(%q) error: %v", format, err)
		}
		if logger.Core().Enabled(zap.InfoLevel) {
			t.Fatalf("%s logger should not log info at warn level", format)
		}
		if !logger.Core().Enabled(zap.ErrorLevel) {
			t.Fatalf("%s logger should log errors", format)
		}
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
