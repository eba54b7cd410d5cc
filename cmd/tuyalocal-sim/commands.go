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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/tuyalocal/internal/config"
	"github.com/muurk/tuyalocal/internal/logging"
	"github.com/muurk/tuyalocal/internal/simulator"
)

var (
	configPath string
	logLevel   string
	listenPort int
	force      bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to simulator.yaml (default: ./simulator.yaml or the config directory)")

	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")
		cmd.Flags().IntVar(&listenPort, "port", -1, "Listen port; overrides the config file (0 picks a free port)")
	}

	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the simulator",
	Long: `Start answering status and set frames for the configured devices.

When metrics are enabled in the configuration, Prometheus metrics are served
on the configured address and path.`,
	Example: `  # Serve ./simulator.yaml or the one in the config directory
  tuyalocal-sim serve

  # Serve a specific file on another port with frame dumps
  tuyalocal-sim serve --config lab.yaml --port 7000 --log-level debug

  # Close the first two connections without answering
  TUYALOCAL_SIM_BEHAVIOR_DROPFIRST=2 tuyalocal-sim serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if listenPort >= 0 {
		cfg.Listen.Port = listenPort
	}
	if len(cfg.Devices) == 0 {
		return fmt.Errorf("no devices configured; run 'tuyalocal-sim init' to write an example")
	}

	if err := logging.InitializeWithConfig(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := simulator.New(cfg, simulator.WithMetrics(simulator.NewMetrics(reg)))
	if err != nil {
		return fmt.Errorf("failed to create simulator: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		metricsSrv := startMetrics(cfg.Metrics, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	if err := srv.Listen(); err != nil {
		return err
	}
	fmt.Printf("Simulating %d device(s) on %s\n", len(cfg.Devices), srv.Addr())

	return srv.Serve(ctx)
}

func startMetrics(cfg config.Metrics, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logging.Info("Metrics listening", zap.String("addr", cfg.Addr), zap.String("path", cfg.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example configuration",
	Long: `Write an example simulator.yaml with one outlet.

Without --config the file goes to the platform configuration directory
(~/.config/tuyalocal on Linux and macOS, %LOCALAPPDATA%\tuyalocal on Windows).`,
	Example: `  tuyalocal-sim init
  tuyalocal-sim init --config ./simulator.yaml --force`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.GetConfigPath(); err != nil {
			return err
		}
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.Save(path, config.Example()); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
