// Package logging builds the zerolog logger used by every component.
package logging

import (
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var globalsOnce sync.Once

// New returns a logger writing to w at the given level ("debug", "info",
// "warn", "error"). Unknown levels fall back to info. When console is true
// output is human-readable, otherwise JSON lines. Every entry carries runID.
func New(w io.Writer, level string, console bool, runID string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	globalsOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339
		zerolog.DurationFieldUnit = time.Millisecond
		zerolog.DurationFieldInteger = true
	})

	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	ctx := zerolog.New(w).Level(lvl).With().Timestamp()
	if runID != "" {
		ctx = ctx.Str("run_id", runID)
	}
	return ctx.Logger()
}
