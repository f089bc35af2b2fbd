// Package logging constructs the process-wide structured logger. The proxy
// logs in JSON by default so log aggregators can index block ids and
// upstream statuses without parsing free text.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures logger construction.
type Options struct {
	// Level is one of debug, info, warn, error. Unrecognised values fall
	// back to info.
	Level string

	// Format is either "json" or "text". Defaults to json.
	Format string

	// Output defaults to os.Stderr so the serve command's stdout stays
	// clean for CLI output.
	Output io.Writer
}

// New creates a slog.Logger from the given options.
func New(opts Options) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(opts.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(opts.Format) == "text" {
		handler = slog.NewTextHandler(output, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(output, handlerOpts)
	}

	return slog.New(handler)
}
