package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/abelzeko/riverflow/internal/api"
	"github.com/abelzeko/riverflow/internal/config"
	"github.com/abelzeko/riverflow/internal/integration/openai"
	"github.com/abelzeko/riverflow/internal/observability"
	"github.com/abelzeko/riverflow/internal/repository"
	"github.com/abelzeko/riverflow/internal/usecases"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger("riverflow-bot", cfg.LogLevel)
	logger.Info().Msg("starting river flow bot")

	if cfg.TelegramBotToken == "" {
		logger.Fatal().Msg("TELEGRAM_BOT_TOKEN environment variable is not set")
	}

	// Initialize repository shared with the refresher
	repo, err := repository.NewSQLiteStatusRepository(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize repository")
	}
	defer repo.Close()

	useCase := usecases.NewRiverUseCase(repo, newAssistant(cfg.OpenAIAPIKey, logger), logger)

	telegramBot, err := api.NewTelegramBot(cfg.TelegramBotToken, useCase, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize Telegram bot")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramBot.Start(ctx)
	logger.Info().Msg("bot stopped")
}

// newAssistant returns nil when no API key is configured; the bot then matches river names directly
func newAssistant(apiKey string, logger zerolog.Logger) openai.OpenAIService {
	if apiKey == "" {
		logger.Info().Msg("OPENAI_API_KEY not set, free-text queries use name matching")
		return nil
	}
	svc, err := openai.NewOpenAIService(apiKey, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to initialize OpenAI service, falling back to name matching")
		return nil
	}
	return svc
}
