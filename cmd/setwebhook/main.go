// Command setwebhook registers the bot's callback URL with the Viber
// platform. It is a one-shot setup tool, run out-of-band from the serving
// path:
//
//	VIBER_AUTH_TOKEN=... CALLBACK_URL=https://bot.example.com/viber/events setwebhook
package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/viberbot/welcome-bot/internal/config"
	"github.com/viberbot/welcome-bot/internal/viber"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if !cfg.RegistrationEnabled() {
		logger.Fatal().Msg("VIBER_AUTH_TOKEN and CALLBACK_URL are required")
	}

	client := viber.NewClient(nil, cfg.ViberAuthToken)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.SetWebhook(ctx, cfg.ViberAPIURL, cfg.CallbackURL); err != nil {
		logger.Fatal().Err(err).Msg("webhook registration failed")
	}
	logger.Info().
		Str("endpoint", cfg.ViberAPIURL).
		Str("callback_url", cfg.CallbackURL).
		Msg("webhook registered")
}
