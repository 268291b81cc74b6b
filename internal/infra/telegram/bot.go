package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"autobay/internal/infra"
	"autobay/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleTimeout bounds one synchronous query (price, balance) issued from chat.
const handleTimeout = 15 * time.Second

// Handler answers operator messages.
type Handler interface {
	Handle(ctx context.Context, text string) (service.Reply, bool)
}

// Bot is the Telegram channel to the operator: outgoing notifications and
// incoming commands from a single chat.
type Bot struct {
	api         *tgbotapi.BotAPI
	chatID      int64
	pollTimeout int
	logger      *slog.Logger
}

// NewBot connects to the Bot API with the configured token.
func NewBot(cfg *infra.Config) (*Bot, error) {
	return newBot(cfg, tgbotapi.APIEndpoint, &http.Client{Timeout: time.Duration(cfg.Telegram.PollTimeout+10) * time.Second})
}

func newBot(cfg *infra.Config, endpoint string, client *http.Client) (*Bot, error) {
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	b := &Bot{
		api:         api,
		chatID:      cfg.Telegram.ChatID,
		pollTimeout: cfg.Telegram.PollTimeout,
		logger:      slog.Default().With("module", "telegram"),
	}
	b.logger.Info("Telegram bot authorized", slog.String("username", api.Self.UserName))
	return b, nil
}

// Send delivers text to the operator chat. It implements domain.MessageSender.
func (b *Bot) Send(ctx context.Context, text string) error {
	return b.send(ctx, tgbotapi.NewMessage(b.chatID, text))
}

func (b *Bot) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Listen long-polls updates and routes operator messages to h until ctx is done.
// Messages from other chats are ignored.
func (b *Bot) Listen(ctx context.Context, h Handler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.logger.Info("Listening for commands", slog.Int64("chat_id", b.chatID))
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Telegram listener stopping")
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			b.dispatch(ctx, h, upd)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, h Handler, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return
	}
	if msg.Chat.ID != b.chatID {
		b.logger.Warn("Ignoring message from foreign chat", slog.Int64("chat_id", msg.Chat.ID))
		return
	}

	hctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	reply, ok := h.Handle(hctx, msg.Text)
	if !ok {
		return
	}
	if err := b.send(ctx, replyMessage(b.chatID, reply)); err != nil {
		b.logger.Error("Failed to send reply", slog.Any("error", err))
	}
}

func replyMessage(chatID int64, reply service.Reply) tgbotapi.MessageConfig {
	m := tgbotapi.NewMessage(chatID, reply.Text)
	if reply.HTML {
		m.ParseMode = tgbotapi.ModeHTML
	}
	return m
}
