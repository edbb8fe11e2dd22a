// Package eventlog sets up the job's structured logging and renders
// pipeline events onto it.
package eventlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Options configures the operational logger.
type Options struct {
	// Level is one of debug, info, warn or error. Empty means info.
	Level string

	// Format is json or text. Empty means json.
	Format string

	// File, when set, receives a copy of every log line. It is opened for
	// append and never truncated.
	File string

	// Stdout defaults to os.Stdout.
	Stdout io.Writer
}

// Open builds a logger from opts. The returned close function releases the
// log file, if any.
func Open(opts Options) (*slog.Logger, func() error, error) {
	var level slog.Level
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, nil, fmt.Errorf("parse log level: %w", err)
		}
	}

	var w io.Writer = os.Stdout
	if opts.Stdout != nil {
		w = opts.Stdout
	}
	closeFn := func() error { return nil }

	if opts.File != "" {
		f, err := openAppend(opts.File)
		if err != nil {
			return nil, nil, err
		}
		w = io.MultiWriter(w, f)
		closeFn = f.Close
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	case "text":
		handler = slog.NewTextHandler(w, handlerOpts)
	default:
		closeFn()
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	return slog.New(handler), closeFn, nil
}

// RecordInvocation appends one timestamped line to the scheduler log at
// path, marking that the job ran.
func RecordInvocation(path string, now time.Time) error {
	f, err := openAppend(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s - Cron Job executed.\n", now.Format(time.DateTime)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
