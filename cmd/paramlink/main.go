// paramlink is a terminal console for a single control endpoint. It keeps
// one TCP session to the endpoint, shows every response as it arrives, and
// can relay the session's events to WebSocket observers.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/paramlink/paramlink/internal/app"
	"github.com/paramlink/paramlink/internal/config"
	"github.com/paramlink/paramlink/internal/logging"
	"github.com/paramlink/paramlink/internal/observe"
	"github.com/paramlink/paramlink/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
)

// defaultLogFile keeps log records off the alternate screen.
const defaultLogFile = "paramlink.log"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, addr, observeAddr, logLevel, logFile string

	flagSet := pflag.NewFlagSet("paramlink", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "paramlink.yaml", "path to YAML config file (missing file uses defaults)")
	flagSet.StringVar(&addr, "addr", "", "endpoint address host:port (overrides endpoint.address)")
	flagSet.StringVar(&observeAddr, "observe", "", "serve /ws, /status and /metrics on this address (overrides observe.listen)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")
	flagSet.StringVar(&logFile, "log-file", "", "log file (overrides log.file, default "+defaultLogFile+")")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Endpoint.Address = addr
	}
	if observeAddr != "" {
		cfg.Observe.Listen = observeAddr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}
	if cfg.Log.File == "" {
		cfg.Log.File = defaultLogFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := session.OptionsFromConfig(cfg)
	opts.Logger = logger
	opts.Metrics = session.NewMetrics(reg)
	mgr := session.NewManager(opts)
	defer mgr.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Observe.Listen != "" {
		obs := observe.NewServer(mgr, reg, logger)
		defer obs.Close()
		mux := http.NewServeMux()
		obs.SetupRoutes(mux)
		go func() {
			if err := observe.ListenAndServe(ctx, cfg.Observe.Listen, mux, logger); err != nil {
				logger.Error("observe server failed", "err", err)
			}
		}()
	}

	logger.Info("starting", "endpoint", cfg.Endpoint.Address, "heartbeat", cfg.Heartbeat.Interval)
	program := tea.NewProgram(app.New(mgr, cfg.Endpoint.Address), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
