package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/blelink/pkg/config"
)

// configureLogger creates the config's logger with the level chosen by
// --log-level, then --verbose, then the config file's log_level.
// Returns a configured logger or error if the log-level is invalid.
func configureLogger(logLevelStr string, verbose bool, cfg *config.Config) (*logrus.Logger, error) {
	effective := *cfg

	switch {
	case logLevelStr != "":
		switch logLevelStr {
		case "debug", "info", "warn", "error":
			effective.LogLevel = logLevelStr
		default:
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", logLevelStr)
		}
	case verbose:
		effective.LogLevel = "debug"
	case effective.LogLevel == "":
		// Default to panic level (essentially silent for normal operations)
		effective.LogLevel = logrus.PanicLevel.String()
	default:
		if _, err := logrus.ParseLevel(effective.LogLevel); err != nil {
			return nil, fmt.Errorf("invalid log_level in config: %w", err)
		}
	}

	return effective.NewLogger(), nil
}
