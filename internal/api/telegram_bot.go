// Package api provides handlers for external APIs and interfaces
package api

import (
	"context"
	"fmt"

	"github.com/abelzeko/riverflow/internal/usecases"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const helpText = "Available commands:\n" +
	"/start - Start the bot\n" +
	"/rivers - Show current flows for all rivers\n" +
	"/river [name or site ID] - Show details for a specific river\n" +
	"/help - Show this help message\n\n" +
	"You can also just ask, e.g. \"how is the Arkansas running?\""

// TelegramBot handles interactions with the Telegram API
type TelegramBot struct {
	bot     *tgbotapi.BotAPI
	useCase *usecases.RiverUseCase
	logger  zerolog.Logger
}

// NewTelegramBot creates a new Telegram bot handler
func NewTelegramBot(botToken string, useCase *usecases.RiverUseCase, logger zerolog.Logger) (*TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &TelegramBot{
		bot:     bot,
		useCase: useCase,
		logger:  logger.With().Str("component", "telegram").Logger(),
	}, nil
}

// Start listens for and handles Telegram messages until ctx is cancelled
func (t *TelegramBot) Start(ctx context.Context) {
	t.logger.Info().Str("account", t.bot.Self.UserName).Msg("authorized on Telegram")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)
	t.logger.Info().Msg("bot is now listening for messages")

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			t.logger.Info().Msg("bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			t.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage answers a single Telegram message
func (t *TelegramBot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	log := t.logger.With().Int64("chat_id", message.Chat.ID).Logger()
	if message.From != nil {
		log = log.With().Str("user", message.From.UserName).Logger()
	}
	log.Debug().Str("text", message.Text).Msg("received message")

	msg := tgbotapi.NewMessage(message.Chat.ID, t.reply(ctx, message))
	msg.DisableWebPagePreview = true

	if _, err := t.bot.Send(msg); err != nil {
		log.Error().Err(err).Msg("error sending message")
	}
}

// reply builds the response text for a message
func (t *TelegramBot) reply(ctx context.Context, message *tgbotapi.Message) string {
	if message.IsCommand() {
		return t.handleCommand(ctx, message)
	}
	return t.handleNonCommand(ctx, message)
}

// handleCommand processes commands like /start, /help, etc.
func (t *TelegramBot) handleCommand(ctx context.Context, message *tgbotapi.Message) string {
	switch message.Command() {
	case "start":
		return "Welcome to River Flow! Use /rivers to see current flows or /help for more information."
	case "help":
		return helpText
	case "rivers":
		return t.handleRiversCommand(ctx)
	case "river":
		return t.handleRiverCommand(ctx, message.CommandArguments())
	default:
		t.logger.Debug().Str("command", message.Command()).Msg("unknown command")
		return "Unknown command. Use /help to see available commands."
	}
}

// handleRiversCommand processes the /rivers command
func (t *TelegramBot) handleRiversCommand(ctx context.Context) string {
	status, err := t.useCase.GetStatus(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("error loading river status")
		return "Error fetching river data. Please try again later."
	}
	return usecases.FormatRiverList(status)
}

// handleRiverCommand processes the /river [name] command
func (t *TelegramBot) handleRiverCommand(ctx context.Context, args string) string {
	if args == "" {
		return "Please specify a river name or site ID. Example: /river Arkansas"
	}

	status, err := t.useCase.GetStatus(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("error loading river status")
		return "Error fetching river data. Please try again later."
	}
	if msg := usecases.StatusMessage(status); msg != "" {
		return msg
	}

	river, ok, err := t.useCase.FindRiver(ctx, args)
	if err != nil {
		t.logger.Error().Err(err).Msg("error finding river")
		return "Error fetching river data. Please try again later."
	}
	if !ok {
		return fmt.Sprintf("No information found for river '%s'. Use /rivers to see the available rivers.", args)
	}
	return usecases.FormatRiverInfo(river)
}

// handleNonCommand processes regular messages
func (t *TelegramBot) handleNonCommand(ctx context.Context, message *tgbotapi.Message) string {
	reply, err := t.useCase.HandleNaturalLanguageQuery(ctx, message.Text)
	if err != nil {
		t.logger.Error().Err(err).Msg("error handling query")
		return "I don't understand. Use /help to see available commands."
	}
	return reply
}
