package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/h64log/internal/device"
	"github.com/srg/h64log/internal/devicefactory"
	"github.com/srg/h64log/internal/groutine"
	"github.com/srg/h64log/internal/logsink"
	"github.com/srg/h64log/internal/metrics"
	"github.com/srg/h64log/internal/resolver"
	"github.com/srg/h64log/internal/session"
	"github.com/srg/h64log/pkg/config"
)

const (
	metricsPath            = "/metrics"
	metricsShutdownTimeout = 5 * time.Second
)

// flagConfigKeys maps flags to the config keys they override when set.
var flagConfigKeys = []struct{ flag, key string }{
	{"log-level", "log_level"},
	{"scan-timeout", "scan_timeout"},
	{"metrics-addr", "metrics_addr"},
	{"name", "name_hint"},
	{"address", "address"},
}

func runRoot(cmd *cobra.Command, opts *rootOptions) error {
	if err := validateFormat(opts.format); err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	transport := devicefactory.NewTransport(logger)
	if opts.list {
		return runList(cmd, cfg, transport, opts.format, logger)
	}
	return runLogger(cmd, cfg, transport, opts.out, logger)
}

// loadConfig layers the flags the user set over file, environment and defaults.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	overrides := make(map[string]any)
	for _, fk := range flagConfigKeys {
		if f := cmd.Flags().Lookup(fk.flag); f != nil && f.Changed {
			overrides[fk.key] = f.Value.String()
		}
	}
	return config.Load(config.LoadOptions{File: opts.configFile, Overrides: overrides})
}

// withInterrupt returns a context cancelled on SIGINT or SIGTERM.
func withInterrupt(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func scanProgress(cmd *cobra.Command, timeout time.Duration) *ProgressPrinter {
	out := cmd.OutOrStdout()
	if !isTerminal(out) {
		return nil
	}
	return NewCountdownProgressPrinter(out, "Scanning", "scanning", timeout)
}

func runList(cmd *cobra.Command, cfg *config.Config, transport device.Transport, format string, logger *logrus.Logger) error {
	ctx, cancel := withInterrupt(cmd.Context())
	defer cancel()

	out := cmd.OutOrStdout()
	var progress *ProgressPrinter
	if format == formatTable {
		fmt.Fprintln(out, scanBanner)
		progress = scanProgress(cmd, cfg.ScanTimeout)
	}

	progress.Start()
	results, err := resolver.NewScanner(transport, logger).Scan(ctx, cfg.ScanTimeout)
	progress.Stop()
	if err != nil {
		return err
	}

	return writeDeviceList(out, format, resolver.Rank(results))
}

func runLogger(cmd *cobra.Command, cfg *config.Config, transport device.Transport, outPath string, logger *logrus.Logger) error {
	ctx, cancel := withInterrupt(cmd.Context())
	defer cancel()

	mt := metrics.New()
	if cfg.MetricsAddr != "" {
		srv, err := serveMetrics(cfg.MetricsAddr, mt, logger)
		if err != nil {
			return err
		}
		defer srv.Stop()
	}

	mgr := session.NewManager(transport, logger,
		session.WithMetrics(mt),
		session.WithWindow(cfg.Window),
		session.WithTimeouts(cfg.ConnectTimeout, cfg.IOTimeout),
		session.WithActorBuffer(cfg.NotifyBuffer),
	)

	out := cmd.OutOrStdout()
	progress := scanProgress(cmd, cfg.ScanTimeout)
	con := newConsole(out, isTerminal(out), progress)

	var presenters groutine.Group
	sub := mgr.Subscribe(cfg.EventBuffer)
	presenters.Go(ctx, "console", func(context.Context) { con.run(sub.Events()) })

	// shutdown disconnects and waits for the console to print the last events.
	shutdown := func() error {
		closeCtx, cancelClose := context.WithTimeout(context.Background(), 2*cfg.IOTimeout+cfg.ConnectTimeout)
		defer cancelClose()
		err := mgr.Close(closeCtx)
		presenters.Wait()
		return err
	}

	if outPath == "" {
		outPath = logsink.DefaultPathIn(cfg.LogDir, time.Now())
	}

	fmt.Fprintln(out, scanBanner)
	progress.Start()
	target, err := mgr.ScanAndConnect(ctx, cfg.Address, cfg.NameHint, cfg.ScanTimeout, outPath)
	progress.Stop()
	if err != nil {
		if serr := shutdown(); serr != nil {
			logger.WithError(serr).Warn("Shutdown failed")
		}
		switch {
		case ctx.Err() != nil:
			fmt.Fprintln(out, "Stopped.")
			return nil
		case errors.Is(err, resolver.ErrNotFound):
			printNotFoundTips(out)
			return ErrDeviceNotFound
		}
		return err
	}

	logger.WithFields(logrus.Fields{
		"address":    target.Address,
		"name":       target.Name,
		"session_id": mgr.SessionID(),
	}).Info("Logging heart rate")

	select {
	case <-ctx.Done():
		err := shutdown()
		fmt.Fprintln(out, "Stopped.")
		return err
	case <-mgr.SessionDone():
		if err := shutdown(); err != nil {
			logger.WithError(err).Warn("Shutdown failed")
		}
		return ErrSessionEnded
	}
}

// metricsServer serves the Prometheus registry over HTTP.
type metricsServer struct {
	srv    *http.Server
	ln     net.Listener
	logger *logrus.Logger
}

// serveMetrics starts serving mt on addr. The listener is bound before
// returning so address errors surface immediately.
func serveMetrics(addr string, mt *metrics.Metrics, logger *logrus.Logger) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(metricsPath, mt.Handler())
	s := &metricsServer{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger,
	}

	groutine.Go(context.Background(), "metrics-server", func(context.Context) {
		logger.WithField("addr", s.Addr()).Info("Serving metrics")
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Metrics server failed")
		}
	})
	return s, nil
}

// Addr is the bound listener address.
func (s *metricsServer) Addr() string {
	return s.ln.Addr().String()
}

func (s *metricsServer) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Warn("Metrics server shutdown failed")
	}
}
