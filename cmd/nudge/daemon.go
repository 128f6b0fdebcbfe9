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

	"github.com/spf13/cobra"

	"github.com/fentz26/nudge/internal/audit"
	"github.com/fentz26/nudge/internal/auth"
	"github.com/fentz26/nudge/internal/clock"
	"github.com/fentz26/nudge/internal/config"
	"github.com/fentz26/nudge/internal/controlplane"
	"github.com/fentz26/nudge/internal/logging"
	"github.com/fentz26/nudge/internal/reminder"
	"github.com/fentz26/nudge/internal/scheduler"
	"github.com/fentz26/nudge/internal/store"
)

var (
	listenAddr string
	dbPath     string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the nudge daemon",
	Long:  `Starts the nudge daemon which serves the HTTP API and dispatches due reminders.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(resolvedConfigPath())
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.Listen = listenAddr
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	logger.Info("starting nudge daemon", "version", controlplane.Version, "listen", cfg.Server.Listen)

	s, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	policy, err := cfg.ReminderPolicy()
	if err != nil {
		s.Close()
		return err
	}
	schedCfg, err := cfg.SchedulerConfig()
	if err != nil {
		s.Close()
		return err
	}
	notifier, err := cfg.Notifier(logger)
	if err != nil {
		s.Close()
		return err
	}

	clk := clock.Real{}
	rec := audit.NewRecorder(s)
	engine := reminder.NewEngine(s, clk, policy, rec, logger)

	service := controlplane.NewService(s, engine, rec, clk)
	server := controlplane.NewServer(service, s, cfg.Server.Listen)
	server.SetLogger(logger)

	if cfg.Auth.JWTSecret != "" {
		tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL.Duration)
		if err != nil {
			s.Close()
			return err
		}
		server.SetAuth(tokens)
		logger.Info("bearer token authentication enabled")
	} else {
		logger.Warn("auth.jwt_secret is empty, owners are taken from the X-Owner header")
	}

	sched := scheduler.New(engine, notifier, clk, schedCfg, rec, logger)
	server.SetScheduler(sched)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)
	defer sched.Stop()

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, initiating graceful shutdown", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "error", err)
			sched.Stop()
			s.Close()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// The scheduler must finish its in-flight tick before the store closes.
	sched.Stop()

	logger.Info("closing database connection")
	if err := s.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
