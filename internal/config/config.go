package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Verbose enables debug output when true
var Verbose bool

// Log is the process-wide logger. Components get it (or a child entry)
// through their constructors.
var Log = logrus.New()

// Debugf prints debug messages when Verbose is true
func Debugf(format string, args ...any) {
	if Verbose {
		Log.Debugf(format, args...)
	}
}

// SetupLogging applies the logging section and the verbose flag to Log.
func SetupLogging(cfg LoggingConfig) error {
	level := cfg.Level
	if Verbose {
		level = "debug"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	Log.SetLevel(lvl)
	Log.SetOutput(os.Stderr)

	switch strings.ToLower(cfg.Format) {
	case "json":
		Log.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q", cfg.Format)
	}
	return nil
}
