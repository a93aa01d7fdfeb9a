package provider

import (
	"context"
	"errors"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"
)

// TelegramClient delivers messages over a Telegram bot. Targets are
// numeric chat IDs. Useful for campaigns whose audience opted in through
// the tenant's bot rather than WhatsApp.
type TelegramClient struct {
	bot *tele.Bot
}

// NewTelegramClient creates a bot-backed provider. The bot is created
// without a poller: this client only sends.
func NewTelegramClient(token string) (*TelegramClient, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Client: nil,
	})
	if err != nil {
		return nil, err
	}
	return &TelegramClient{bot: bot}, nil
}

func (c *TelegramClient) Name() string {
	return "telegram"
}

// Send delivers one message to the chat ID in target
func (c *TelegramClient) Send(ctx context.Context, target, message string) error {
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return Permanent("target is not a telegram chat id", err)
	}

	if err := ctx.Err(); err != nil {
		return Transient("send cancelled", err)
	}

	_, err = c.bot.Send(&tele.Chat{ID: chatID}, message)
	if err == nil {
		return nil
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return Transient("telegram flood limit, retry after "+
			(time.Duration(flood.RetryAfter)*time.Second).String(), err)
	}

	if errors.Is(err, tele.ErrChatNotFound) || errors.Is(err, tele.ErrBlockedByUser) ||
		errors.Is(err, tele.ErrUserIsDeactivated) {
		return Permanent("telegram recipient unreachable", err)
	}

	return Transient("telegram send failed", err)
}
