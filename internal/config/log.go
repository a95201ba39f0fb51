package config

import (
	"io"
	log "log/slog"
	"os"

	"github.com/lmittmann/tint"
)

var levels = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

// SetupLogging installs a tint handler as the default logger. With a log
// file configured, output goes there uncoloured and the returned closer
// must be called on exit.
func (l Log) SetupLogging(stderr io.Writer) (io.Closer, error) {
	w, noColor, closer := stderr, false, io.Closer(nopCloser{})
	if l.File != "" {
		f, err := os.OpenFile(l.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		w, noColor, closer = f, true, f
	}

	log.SetDefault(log.New(tint.NewHandler(w, &tint.Options{
		Level:   levels[l.Level],
		NoColor: noColor,
	})))
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
