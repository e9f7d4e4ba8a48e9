package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/client"
	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/config"
	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/gateway"
	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/message"
	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/responder"
	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/session"
	"github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/store"
)

// newServeCmd creates the `wawebapi serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the daemon with the WhatsApp session and HTTP API",
		Long: `Start WhatsAppWebAPI as a daemon: opens the message store, connects
the WhatsApp session and serves the HTTP API.

Examples:
  wawebapi serve
  wawebapi serve --config ./wawebapi.yaml`,
		RunE: runServe,
	}

	cmd.Flags().Bool("no-autostart", false, "do not connect the session on boot")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	// ── Load config ──
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	// ── Configure logger ──
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logLevel := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	if noAuto, _ := cmd.Flags().GetBool("no-autostart"); noAuto {
		cfg.Session.AutoStart = false
	}

	// ── Open the message store ──
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening message store: %w", err)
	}
	defer st.Close()
	logger.Info("store opened", "path", cfg.Store.Path)

	// ── Build the dispatch pipeline ──
	buffer := message.NewLogBuffer(cfg.Store.BufferSize)
	webhook := message.NewNotifier(cfg.Webhook, logger)
	if webhook != nil {
		logger.Info("webhook delivery enabled", "url", cfg.Webhook.URL)
	}
	dispatcher := message.NewDispatcher(cfg.Dispatch, st, webhook, buffer, logger)

	// ── Session manager ──
	manager := session.NewManager(cfg.Session, client.NewWhatsmeow, logger)
	manager.SetDispatcher(dispatcher)

	// ── Auto-response engine ──
	engine := responder.NewEngine(manager, st, logger)
	dispatcher.SetResponder(engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Connect the session ──
	if cfg.Session.AutoStart {
		if err := manager.Start(ctx); err != nil {
			logger.Error("session start failed, use the API to retry", "error", err)
		}
	} else {
		logger.Info("session autostart disabled, start via POST /api/session/start")
	}

	// ── Start the HTTP API ──
	gw := gateway.New(gateway.Config{
		Address:   cfg.Gateway.Address,
		AuthToken: cfg.Gateway.AuthToken,
	}, manager, engine, st, buffer, logger)
	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("starting gateway: %w", err)
	}

	// ── Retention pruner ──
	var pruner *store.Pruner
	if cfg.Retention.Enabled {
		pruner = store.NewPruner(cfg.Retention, st, logger)
		if err := pruner.Start(); err != nil {
			logger.Error("retention pruner failed to start", "error", err)
		}
	}

	// ── Wait for shutdown ──
	logger.Info("wawebapi running, press Ctrl+C to stop",
		"address", cfg.Gateway.Address,
		"session_dir", cfg.Session.Dir,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	done := make(chan struct{})
	go func() {
		if pruner != nil {
			pruner.Stop()
		}
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		_ = gw.Stop(shutdownCtx)
		cancelShutdown()
		if err := manager.Stop(); err != nil {
			logger.Warn("session stop", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}

	return nil
}

// resolveConfig loads config from an explicit --config path or by
// discovery, falling back to defaults when no file exists.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	if found := config.FindConfigFile(); found != "" {
		cfg, err := config.LoadFromFile(found)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", found, err)
		}
		slog.Info("config loaded", "path", found)
		return cfg, nil
	}

	slog.Info("no configuration file found, using defaults")
	return config.DefaultConfig(), nil
}
