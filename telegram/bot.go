package telegram

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	telebot "gopkg.in/tucnak/telebot.v2"

	"github.com/0xmhha/csm-sentinel/dispatch"
	"github.com/0xmhha/csm-sentinel/storage"
)

// Subscriptions is the bot state surface the command handlers mutate.
type Subscriptions interface {
	AddUser(chatID int64) (bool, error)
	AddGroup(chatID int64) (bool, error)
	RemoveGroup(chatID int64) (bool, error)
	AddChannel(chatID int64) (bool, error)
	MigrateChat(oldID, newID int64) error
	Follow(chatID int64, opID string) (bool, error)
	Unfollow(chatID int64, opID string) (bool, error)
	Following(chatID int64) []string
	CountsByOperator() map[string]storage.SubscriptionCounts
}

// Config holds the bot's own settings.
type Config struct {
	Token        string
	AdminChatIDs []int64
	PollTimeout  time.Duration
}

// Bot handles chat membership tracking and subscription commands.
type Bot struct {
	bot     *telebot.Bot
	state   Subscriptions
	adapter dispatch.ModuleAdapter
	admins  map[int64]struct{}
	logger  *zap.Logger
}

// NewBot connects to the Telegram API and registers all handlers.
func NewBot(cfg Config, state Subscriptions, adapter dispatch.ModuleAdapter, logger *zap.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token cannot be empty")
	}
	if state == nil {
		return nil, fmt.Errorf("subscription state cannot be nil")
	}
	if adapter == nil {
		return nil, fmt.Errorf("module adapter cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}

	tb, err := telebot.NewBot(telebot.Settings{
		Token:  cfg.Token,
		Poller: &telebot.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	admins := make(map[int64]struct{}, len(cfg.AdminChatIDs))
	for _, id := range cfg.AdminChatIDs {
		admins[id] = struct{}{}
	}

	b := &Bot{
		bot:     tb,
		state:   state,
		adapter: adapter,
		admins:  admins,
		logger:  logger.With(zap.String("component", "telegram")),
	}
	b.registerHandlers()
	return b, nil
}

// Telebot returns the underlying bot for the notifier.
func (b *Bot) Telebot() *telebot.Bot { return b.bot }

// Start runs the update polling loop until Stop is called.
func (b *Bot) Start() {
	b.logger.Info("starting bot polling")
	b.bot.Start()
}

// Stop terminates the polling loop.
func (b *Bot) Stop() {
	b.bot.Stop()
	b.logger.Info("bot polling stopped")
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", func(m *telebot.Message) {
		if !m.Private() {
			return
		}
		if _, err := b.state.AddUser(m.Chat.ID); err != nil {
			b.logger.Error("failed to register user", zap.Int64("chatId", m.Chat.ID), zap.Error(err))
		}
		b.reply(m.Chat, dispatch.WelcomeText)
	})

	b.bot.Handle("/follow", func(m *telebot.Message) {
		b.reply(m.Chat, b.followReply(m.Chat.ID, m.Payload))
	})

	b.bot.Handle("/unfollow", func(m *telebot.Message) {
		b.reply(m.Chat, b.unfollowReply(m.Chat.ID, m.Payload))
	})

	b.bot.Handle("/events", func(m *telebot.Message) {
		b.replyMarkdown(m.Chat, b.adapter.EventListText())
	})

	b.bot.Handle("/subscriptions", func(m *telebot.Message) {
		b.reply(m.Chat, b.subscriptionsReply(m.Chat.ID))
	})

	b.bot.Handle(telebot.OnAddedToGroup, func(m *telebot.Message) {
		if _, err := b.state.AddGroup(m.Chat.ID); err != nil {
			b.logger.Error("failed to register group", zap.Int64("chatId", m.Chat.ID), zap.Error(err))
			return
		}
		b.logger.Info("added to group", zap.Int64("chatId", m.Chat.ID))
	})

	b.bot.Handle(telebot.OnUserLeft, func(m *telebot.Message) {
		if m.UserLeft == nil || m.UserLeft.ID != b.bot.Me.ID {
			return
		}
		if _, err := b.state.RemoveGroup(m.Chat.ID); err != nil {
			b.logger.Error("failed to deregister group", zap.Int64("chatId", m.Chat.ID), zap.Error(err))
			return
		}
		b.logger.Info("removed from group", zap.Int64("chatId", m.Chat.ID))
	})

	b.bot.Handle(telebot.OnChannelPost, func(m *telebot.Message) {
		added, err := b.state.AddChannel(m.Chat.ID)
		if err != nil {
			b.logger.Error("failed to register channel", zap.Int64("chatId", m.Chat.ID), zap.Error(err))
			return
		}
		if added {
			b.logger.Info("registered channel", zap.Int64("chatId", m.Chat.ID))
		}
	})

	b.bot.Handle(telebot.OnMigration, func(from, to int64) {
		if err := b.state.MigrateChat(from, to); err != nil {
			b.logger.Error("failed to migrate chat",
				zap.Int64("from", from), zap.Int64("to", to), zap.Error(err))
			return
		}
		b.logger.Info("migrated chat", zap.Int64("from", from), zap.Int64("to", to))
	})
}

// followReply processes a /follow command and returns the reply text.
func (b *Bot) followReply(chatID int64, payload string) string {
	opID := strings.TrimSpace(payload)
	if opID == "" {
		return dispatch.FollowUsage
	}
	if _, err := b.state.Follow(chatID, opID); err != nil {
		return dispatch.CantFollowText
	}
	reply := dispatch.FollowedText(canonical(opID)) + "\n" +
		dispatch.FollowingText(b.state.Following(chatID))
	return reply
}

// unfollowReply processes an /unfollow command and returns the reply text.
func (b *Bot) unfollowReply(chatID int64, payload string) string {
	opID := strings.TrimSpace(payload)
	if opID == "" {
		return dispatch.UnfollowUsage
	}
	following := b.state.Following(chatID)
	if len(following) == 0 {
		return dispatch.NotFollowingAnyText
	}
	changed, err := b.state.Unfollow(chatID, opID)
	if err != nil || !changed {
		return dispatch.CantUnfollowText
	}
	reply := dispatch.UnfollowedText(canonical(opID))
	if rest := b.state.Following(chatID); len(rest) > 0 {
		reply += "\n" + dispatch.FollowingText(rest)
	}
	return reply
}

// subscriptionsReply renders the admin-only per-operator counts.
func (b *Bot) subscriptionsReply(chatID int64) string {
	if _, ok := b.admins[chatID]; !ok {
		return dispatch.SubscriptionsDenied
	}
	counts := b.state.CountsByOperator()
	if len(counts) == 0 {
		return dispatch.SubscriptionsEmpty
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	storage.SortOperatorIDs(ids)

	var sb strings.Builder
	sb.WriteString("Active subscriptions per Node Operator:\n")
	for _, id := range ids {
		c := counts[id]
		fmt.Fprintf(&sb, "#%s: %d user(s), %d group(s), %d channel(s)\n",
			id, c.Users, c.Groups, c.Channels)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func canonical(opID string) string {
	if id, ok := storage.CanonicalOperatorID(opID); ok {
		return id
	}
	return opID
}

func (b *Bot) reply(chat *telebot.Chat, text string) {
	if _, err := b.bot.Send(chat, text); err != nil {
		b.logger.Warn("failed to send reply", zap.Int64("chatId", chat.ID), zap.Error(err))
	}
}

func (b *Bot) replyMarkdown(chat *telebot.Chat, text string) {
	opts := &telebot.SendOptions{
		ParseMode:             telebot.ModeMarkdownV2,
		DisableWebPagePreview: true,
	}
	if _, err := b.bot.Send(chat, text, opts); err != nil {
		b.logger.Warn("failed to send reply", zap.Int64("chatId", chat.ID), zap.Error(err))
	}
}
