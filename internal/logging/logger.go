// Package logging provides the operational logger and the trial log for collab.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (tint for terminals, JSON for collectors)
//   - A TrialLog of structured JSONL experiment events (opened, initialized,
//     updated, solved, comment) for later analysis
package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/lmittmann/tint"
)

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "debug", "info", "warn", "error" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Options configures New.
type Options struct {
	Level   string    // debug | info | warn | error
	Format  string    // text | json
	Writer  io.Writer // destination, usually os.Stderr
	NoColor bool
}

// New creates a leveled logger. Text output goes through tint with a
// short time format; "json" selects slog's JSON handler.
func New(opts Options) *slog.Logger {
	lvl := ParseLevel(opts.Level)
	if opts.Writer == nil {
		opts.Writer = io.Discard
	}
	if strings.EqualFold(opts.Format, "json") {
		return slog.New(slog.NewJSONHandler(opts.Writer, &slog.HandlerOptions{Level: lvl}))
	}
	return slog.New(tint.NewHandler(opts.Writer, &tint.Options{
		Level:      lvl,
		TimeFormat: "15:04:05",
		NoColor:    opts.NoColor,
	}))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
