package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/viberbot/welcome-bot/internal/audit"
	"github.com/viberbot/welcome-bot/internal/bot"
	"github.com/viberbot/welcome-bot/internal/config"
	"github.com/viberbot/welcome-bot/internal/httpserver"
	"github.com/viberbot/welcome-bot/internal/messaging"
	"github.com/viberbot/welcome-bot/internal/store"
	"github.com/viberbot/welcome-bot/internal/viber"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stderrLogger := zerolog.New(os.Stderr)
		stderrLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().
		Timestamp().
		Str("app", "viber-welcome-bot").
		Logger()

	// --- Redis ---
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	redisClient, err := store.Connect(ctx, cfg.RedisAddr)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect to redis")
	}
	users := store.NewUserStore(redisClient)

	// --- NATS (optional) ---
	var publisher bot.Publisher
	var natsClient *messaging.NATSClient
	if cfg.NATSURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		natsClient, err = messaging.NewNATSClient(natsConfig, logger.With().Str("component", "nats").Logger())
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		publisher = natsClient
	}

	// --- Postgres audit log (optional) ---
	var auditor bot.Auditor
	var auditStore *audit.Store
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		auditStore, err = audit.Open(ctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open audit store")
		}
		auditor = auditStore
	}

	dispatcher := bot.NewDispatcher(users, publisher, auditor, cfg.StorageTimeout,
		logger.With().Str("component", "dispatcher").Logger())

	server := httpserver.New(cfg.ListenAddr, dispatcher,
		logger.With().Str("component", "http").Logger())

	logger.Info().
		Str("listen_addr", cfg.ListenAddr).
		Str("redis_addr", cfg.RedisAddr).
		Bool("nats_enabled", natsClient != nil).
		Bool("audit_enabled", auditStore != nil).
		Bool("registration_enabled", cfg.RegistrationEnabled()).
		Msg("viber welcome bot starting")

	// Register the callback URL with the platform. A failure here is an
	// operational setup problem, not a reason to refuse inbound traffic:
	// a previous registration may still be in effect.
	if cfg.RegistrationEnabled() {
		client := viber.NewClient(nil, cfg.ViberAuthToken)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := client.SetWebhook(ctx, cfg.ViberAPIURL, cfg.CallbackURL); err != nil {
			logger.Error().Err(err).Msg("webhook registration failed")
		} else {
			logger.Info().Str("callback_url", cfg.CallbackURL).Msg("webhook registered")
		}
		cancel()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if natsClient != nil {
		natsClient.Close()
	}
	if auditStore != nil {
		auditStore.Close()
	}
	users.Close()
}
