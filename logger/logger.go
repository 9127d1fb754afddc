// Package logger builds the process logger from the --log.* and
// --sentry.dsn settings.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/evalphobia/logrus_sentry"
	"github.com/sirupsen/logrus"
)

// Formats accepted by Config.Format.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config selects the output of the logger.
type Config struct {
	// Verbosity goes from 0 (fatal only) to 5 (trace).
	Verbosity int
	Format    string
	Color     bool
	// SentryDSN enables error reporting to Sentry when set.
	SentryDSN string

	Output io.Writer
}

// DefaultConfig logs info and above as text to stderr.
func DefaultConfig() Config {
	return Config{
		Verbosity: 3,
		Format:    FormatText,
		Output:    os.Stderr,
	}
}

var levels = []logrus.Level{
	logrus.FatalLevel,
	logrus.ErrorLevel,
	logrus.WarnLevel,
	logrus.InfoLevel,
	logrus.DebugLevel,
	logrus.TraceLevel,
}

// Level maps a verbosity to a logrus level.
func Level(verbosity int) (logrus.Level, error) {
	if verbosity < 0 || verbosity >= len(levels) {
		return 0, fmt.Errorf("verbosity %d out of range 0-%d", verbosity, len(levels)-1)
	}
	return levels[verbosity], nil
}

// New returns a logger configured by cfg.
func New(cfg Config) (*logrus.Logger, error) {
	lvl, err := Level(cfg.Verbosity)
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetLevel(lvl)
	if cfg.Output != nil {
		log.SetOutput(cfg.Output)
	}

	switch cfg.Format {
	case FormatText, "":
		log.SetFormatter(&logrus.TextFormatter{
			ForceColors:     cfg.Color,
			DisableColors:   !cfg.Color,
			FullTimestamp:   true,
			TimestampFormat: "01-02|15:04:05.000",
		})
	case FormatJSON:
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		return nil, fmt.Errorf("unknown log format %q (valid: %s, %s)", cfg.Format, FormatText, FormatJSON)
	}

	if cfg.SentryDSN != "" {
		hook, err := logrus_sentry.NewSentryHook(cfg.SentryDSN, []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		})
		if err != nil {
			return nil, fmt.Errorf("sentry hook: %w", err)
		}
		hook.Timeout = 5 * time.Second
		hook.StacktraceConfiguration.Enable = true
		log.AddHook(hook)
	}
	return log, nil
}
