package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// allowedUpdates are the update types the bot subscribes to
var allowedUpdates = []string{"message", "channel_post", "callback_query"}

// Start starts the bot in polling mode and blocks until Shutdown
func (b *Bot) Start() error {
	b.logger.Info("Starting bot in polling mode")

	// Remove webhook (if any was set previously)
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		b.logger.Warn("Failed to delete webhook", zap.Error(err))
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = allowedUpdates

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Bot started successfully. Waiting for updates...")

	for {
		select {
		case <-b.ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(update)
		}
	}
}

// StartWebhook sets up the bot to receive updates via webhook
func (b *Bot) StartWebhook(webhookURL string) error {
	b.logger.Info("Setting up webhook", zap.String("webhook_url", webhookURL))

	webhookConfig, err := tgbotapi.NewWebhook(webhookURL + "/telegram-webhook")
	if err != nil {
		return err
	}
	webhookConfig.MaxConnections = 40
	webhookConfig.AllowedUpdates = allowedUpdates

	if _, err := b.api.Request(webhookConfig); err != nil {
		b.logger.Error("Failed to set webhook", zap.Error(err), zap.String("webhook_url", webhookURL))
		return err
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		b.logger.Warn("Failed to get webhook info", zap.Error(err))
	} else {
		b.logger.Info("Webhook set successfully",
			zap.String("url", info.URL),
			zap.Int("pending_updates", info.PendingUpdateCount),
		)
	}
	return nil
}

// Shutdown stops polling and cancels active runs at their next suspension point
func (b *Bot) Shutdown() {
	b.cancel()
	b.api.StopReceivingUpdates()
}

// HandleUpdate routes a single update. Posts in channels and groups feed the
// live relay; private messages and button clicks pass the permission gate
// first.
func (b *Bot) HandleUpdate(update tgbotapi.Update) {
	switch {
	case update.ChannelPost != nil:
		b.relayPost(update.ChannelPost)

	case update.Message != nil && update.Message.Chat != nil && !update.Message.Chat.IsPrivate():
		b.relayPost(update.Message)

	case update.Message != nil:
		from := update.Message.From
		if from == nil {
			return
		}
		if !b.isAllowed(from.ID) {
			b.logger.Warn("Unauthorized access attempt",
				zap.Int64("user_id", from.ID),
				zap.String("username", from.UserName),
				zap.String("text", update.Message.Text),
			)
			b.reply(update.Message.Chat.ID, "⛔ You are not authorized to use this bot.")
			return
		}
		b.handleMessage(update.Message)

	case update.CallbackQuery != nil:
		from := update.CallbackQuery.From
		if from == nil {
			return
		}
		if !b.isAllowed(from.ID) {
			b.logger.Warn("Unauthorized callback query attempt",
				zap.Int64("user_id", from.ID),
				zap.String("username", from.UserName),
				zap.String("callback_data", update.CallbackQuery.Data),
			)
			b.answer(update.CallbackQuery, "⛔ You are not authorized to use this bot.", true)
			return
		}
		b.handleCallbackQuery(update.CallbackQuery)
	}
}

func (b *Bot) relayPost(post *tgbotapi.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in live relay", zap.Any("panic", r))
		}
	}()

	if n := b.relay.Handle(b.ctx, post); n > 0 {
		b.logger.Debug("Post relayed",
			zap.Int64("chat_id", post.Chat.ID),
			zap.Int("message_id", post.MessageID),
			zap.Int("targets", n),
		)
	}
}

// isAllowed is the permission gate. An empty allow-list admits everyone.
func (b *Bot) isAllowed(userID int64) bool {
	return len(b.allowedUsers) == 0 || b.allowedUsers[userID]
}
