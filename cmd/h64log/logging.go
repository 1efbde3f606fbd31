package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/srg/h64log/pkg/config"
)

// configureLogger creates a logger for cfg.LogLevel writing to w.
// An empty level keeps the logger silent (panic level) so it does not
// interleave with the console output.
func configureLogger(cfg *config.Config, w io.Writer) (*logrus.Logger, error) {
	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	logger := cfg.NewLogger()
	logger.SetOutput(w)
	return logger, nil
}
