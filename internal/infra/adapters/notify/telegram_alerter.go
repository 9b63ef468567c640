package notify

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"vendor-billing/internal/config"
	"vendor-billing/internal/domain/ports/adapter"
)

var _ adapter.AdminAlerter = (*TelegramAlerter)(nil)

// Telegram caps message text at 4096 characters.
const maxAlertLen = 4096

// TelegramAlerter posts operator alerts to the configured admin chats.
type TelegramAlerter struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
	log     zerolog.Logger
}

func NewTelegramAlerter(cfg *config.AlertsConfig, logger *zerolog.Logger) (*TelegramAlerter, error) {
	return newTelegramAlerter(cfg, tgbotapi.APIEndpoint, logger)
}

func newTelegramAlerter(cfg *config.AlertsConfig, endpoint string, logger *zerolog.Logger) (*TelegramAlerter, error) {
	if cfg == nil || cfg.TelegramToken == "" {
		return nil, errors.New("alerts: telegram token is required")
	}
	if len(cfg.AdminChatIDs) == 0 {
		return nil, errors.New("alerts: at least one admin chat id is required")
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.TelegramToken, endpoint)
	if err != nil {
		return nil, fmt.Errorf("alerts: telegram login: %w", err)
	}
	return &TelegramAlerter{
		bot:     bot,
		chatIDs: cfg.AdminChatIDs,
		log:     logger.With().Str("component", "TelegramAlerter").Str("bot", bot.Self.UserName).Logger(),
	}, nil
}

// Alert sends text to every admin chat and returns the joined send errors.
func (a *TelegramAlerter) Alert(ctx context.Context, text string) error {
	if len(text) > maxAlertLen {
		text = text[:maxAlertLen-3] + "..."
	}
	var errs []error
	for _, id := range a.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(id, text)
		msg.DisableWebPagePreview = true
		if _, err := a.bot.Send(msg); err != nil {
			a.log.Warn().Err(err).Int64("chat_id", id).Msg("alert not delivered")
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
