// Package logging builds the relay's structured, leveled sink. It follows
// the construction style of linksocks' wssocks/cli.go: a zerolog.Logger
// raised to TraceLevel by --verbose, writing to stderr by default or to a
// rotating file when --file is given.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the logger built by New.
type Options struct {
	// FilePath, when non-empty, redirects output to a rotating file
	// instead of stderr.
	FilePath string
	// Verbose raises the global level to Trace, matching --verbose|-V.
	Verbose bool
}

// New builds the relay's root logger per Options.
func New(opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.TraceLevel
	}
	zerolog.SetGlobalLevel(level)

	var writer interface {
		Write([]byte) (int, error)
	}
	if opts.FilePath != "" {
		rw, err := NewRotatingWriter(opts.FilePath, DefaultMaxSizeBytes)
		if err != nil {
			return zerolog.Logger{}, err
		}
		writer = rw
	} else {
		writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	return zerolog.New(writer).With().Timestamp().Logger(), nil
}
