package telegram

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	telebot "gopkg.in/tucnak/telebot.v2"
)

// Notifier sends notification messages through the Telegram bot API.
// Long messages are chunked to stay below the message size cap.
type Notifier struct {
	bot    *telebot.Bot
	logger *zap.Logger
}

// NewNotifier creates a notifier over a running bot.
func NewNotifier(bot *telebot.Bot, logger *zap.Logger) (*Notifier, error) {
	if bot == nil {
		return nil, fmt.Errorf("bot cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		bot:    bot,
		logger: logger.With(zap.String("component", "telegram")),
	}, nil
}

// Send delivers one message to one chat, splitting it into chunks when it
// exceeds the message limit.
func (n *Notifier) Send(_ context.Context, chatID int64, text string) error {
	recipient := &telebot.Chat{ID: chatID}
	opts := &telebot.SendOptions{
		ParseMode:             telebot.ModeMarkdownV2,
		DisableWebPagePreview: true,
	}

	for _, chunk := range ChunkText(text, MessageLimit) {
		if _, err := n.bot.Send(recipient, chunk, opts); err != nil {
			return fmt.Errorf("failed to send to chat %d: %w", chatID, err)
		}
	}
	return nil
}

// LogNotifier writes messages to the log instead of Telegram. It is the
// send path when no bot token is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.With(zap.String("component", "telegram"))}
}

// Send logs the message it would have sent.
func (n *LogNotifier) Send(_ context.Context, chatID int64, text string) error {
	n.logger.Info("notification", zap.Int64("chatId", chatID), zap.String("text", text))
	return nil
}
