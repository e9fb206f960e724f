// paramlink-peer runs a simulated control endpoint for trying paramlink
// without hardware.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paramlink/paramlink/internal/config"
	"github.com/paramlink/paramlink/internal/logging"
	"github.com/paramlink/paramlink/internal/peer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, listen, metricsAddr, logLevel string
	var interval time.Duration

	flagSet := pflag.NewFlagSet("paramlink-peer", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "paramlink.yaml", "path to YAML config file (missing file uses defaults)")
	flagSet.StringVar(&listen, "listen", "", "listen address host:port (overrides peer.listen)")
	flagSet.DurationVar(&interval, "signal-interval", 0, "signal update period (overrides peer.signal_interval)")
	flagSet.StringVar(&metricsAddr, "metrics", "", "serve /metrics on this address")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Peer.Listen = listen
	}
	if interval > 0 {
		cfg.Peer.SignalInterval = interval
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	opts := peer.OptionsFromConfig(cfg.Peer)
	opts.Logger = logger
	opts.Registerer = reg
	srv := peer.New(opts)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		hs := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			<-ctx.Done()
			hs.Close()
		}()
		go func() {
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "err", err)
			}
		}()
	}

	return srv.ListenAndServe(ctx, cfg.Peer.Listen)
}
