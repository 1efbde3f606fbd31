// Package config holds h64log settings and the logger factory.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

// Config holds application configuration. Zero-valued fields of a struct
// built with New carry the `default` tag values.
type Config struct {
	// LogLevel is debug, info, warn, error or empty for silent.
	LogLevel       string        `koanf:"log_level" default:""`
	ScanTimeout    time.Duration `koanf:"scan_timeout" default:"12s"`
	ConnectTimeout time.Duration `koanf:"connect_timeout" default:"30s"`
	IOTimeout      time.Duration `koanf:"io_timeout" default:"10s"`
	// LogDir is where CSV files go when no explicit path is given.
	LogDir      string        `koanf:"log_dir" default:"logs"`
	Window      time.Duration `koanf:"window" default:"60s"`
	EventBuffer int           `koanf:"event_buffer" default:"64"`
	// NotifyBuffer is the queue length per subscribed characteristic.
	NotifyBuffer int `koanf:"notify_buffer" default:"64"`
	// MetricsAddr enables the Prometheus endpoint when set, e.g. ":9464".
	MetricsAddr string `koanf:"metrics_addr" default:""`
	NameHint    string `koanf:"name_hint" default:""`
	Address     string `koanf:"address" default:""`
}

// New returns a Config populated with defaults.
func New() *Config {
	c := &Config{}
	defaults.SetDefaults(c)
	return c
}

// Validate rejects settings the session cannot run with.
func (c *Config) Validate() error {
	var errs []error
	positive := map[string]time.Duration{
		"scan_timeout":    c.ScanTimeout,
		"connect_timeout": c.ConnectTimeout,
		"io_timeout":      c.IOTimeout,
		"window":          c.Window,
	}
	for _, key := range []string{"scan_timeout", "connect_timeout", "io_timeout", "window"} {
		if positive[key] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, positive[key]))
		}
	}
	if c.EventBuffer <= 0 {
		errs = append(errs, fmt.Errorf("event_buffer must be positive, got %d", c.EventBuffer))
	}
	if c.NotifyBuffer <= 0 {
		errs = append(errs, fmt.Errorf("notify_buffer must be positive, got %d", c.NotifyBuffer))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel. An empty level means panic, which keeps the
// console free of log output.
func (c *Config) Level() (logrus.Level, error) {
	if strings.TrimSpace(c.LogLevel) == "" {
		return logrus.PanicLevel, nil
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.PanicLevel, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, _ := c.Level()
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
