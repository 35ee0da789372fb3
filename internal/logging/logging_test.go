package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestSetupMapsLevelNames(t *testing.T) {
	cases := []struct {
		name     string
		enabled  slog.Level
		disabled slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 1},
		{"warn", slog.LevelWarn, slog.LevelInfo},
		{"warning", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
		{"info", slog.LevelInfo, slog.LevelDebug},
		{"", slog.LevelInfo, slog.LevelDebug},
		{"bogus", slog.LevelInfo, slog.LevelDebug},
		{"DEBUG", slog.LevelDebug, slog.LevelDebug - 1},
	}
	for _, c := range cases {
		logger := Setup(c.name)
		if !logger.Enabled(context.Background(), c.enabled) {
			t.Errorf("Setup(%q): expected level %v to be enabled", c.name, c.enabled)
		}
		if logger.Enabled(context.Background(), c.disabled) {
			t.Errorf("Setup(%q): expected level %v to be disabled", c.name, c.disabled)
		}
	}
}
