package telegram

import (
	"context"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"pairwatch/pkg/errors"
	"pairwatch/pkg/logger"
)

// Config contains Telegram bot configuration
type Config struct {
	Token          string
	Debug          bool
	HTTPTimeout    time.Duration
	RateLimitRate  int // Messages per second (default: 20, Telegram limit is 30)
	RateLimitBurst int // Rate limiter burst (default: 30)
}

// Bot wraps the Telegram Bot API for outbound alerts. The engine never
// receives commands over Telegram, so there is no update polling here.
type Bot struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewBot creates a new Telegram bot instance
func NewBot(cfg Config) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.Wrapf(errors.ErrMissingConfig, "telegram bot token is required")
	}

	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.RateLimitRate == 0 {
		cfg.RateLimitRate = 20
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 30
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "creating telegram bot")
	}
	api.Debug = cfg.Debug

	log := logger.Get().With("component", "telegram_bot")
	log.Infof("Authorized on account %s", api.Self.UserName)

	return &Bot{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRate), cfg.RateLimitBurst),
		log:     log,
	}, nil
}

// SendMessage sends a Markdown-formatted message to a chat
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "telegram rate limiter")
	}

	start := time.Now()

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := b.api.Send(msg); err != nil {
		b.log.Errorw("Failed to send message",
			"chat_id", chatID,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return errors.Wrap(err, "sending telegram message")
	}

	b.log.Debugw("Message sent",
		"chat_id", chatID,
		"text_length", len(text),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
