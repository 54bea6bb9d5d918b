package bot

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// sendMessage sends a message and logs failures
func (b *Bot) sendMessage(msg tgbotapi.Chattable) {
	if b.api == nil {
		return // For testing
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("Failed to send message", zap.Error(err))
	}
}

// reply sends plain text
func (b *Bot) reply(chatID int64, text string) {
	b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

// replyHTML sends HTML-formatted text with an optional inline keyboard
func (b *Bot) replyHTML(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	b.sendMessage(msg)
}

// edit replaces the text and keyboard of the message a button belongs to.
// Falls back to a new message when the original cannot be edited.
func (b *Bot) edit(query *tgbotapi.CallbackQuery, text string, markup tgbotapi.InlineKeyboardMarkup) {
	if query.Message == nil {
		b.replyHTML(query.From.ID, text, &markup)
		return
	}

	cfg := tgbotapi.NewEditMessageTextAndMarkup(query.Message.Chat.ID, query.Message.MessageID, text, markup)
	cfg.ParseMode = tgbotapi.ModeHTML
	cfg.DisableWebPagePreview = true
	if b.api == nil {
		return
	}
	if _, err := b.api.Send(cfg); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return
		}
		b.logger.Debug("Edit failed, sending new message", zap.Error(err))
		b.replyHTML(query.Message.Chat.ID, text, &markup)
	}
}

// answer acknowledges a button click, optionally with a toast or alert
func (b *Bot) answer(query *tgbotapi.CallbackQuery, text string, alert bool) {
	if b.api == nil {
		return
	}
	callback := tgbotapi.NewCallback(query.ID, text)
	callback.ShowAlert = alert
	if _, err := b.api.Request(callback); err != nil {
		b.logger.Debug("Failed to answer callback query", zap.Error(err))
	}
}

// deleteMessage removes a message carrying a secret, best effort
func (b *Bot) deleteMessage(message *tgbotapi.Message) {
	if b.api == nil {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(message.Chat.ID, message.MessageID)); err != nil {
		b.logger.Debug("Failed to delete message", zap.Error(err))
	}
}

// Notifier delivers run progress to operators in their private chat
type Notifier struct {
	api    API
	logger *zap.Logger
}

// NewNotifier creates a notifier sending through api
func NewNotifier(api API, logger *zap.Logger) *Notifier {
	return &Notifier{api: api, logger: logger}
}

func (n *Notifier) Notify(userID int64, text string) {
	if _, err := n.api.Send(tgbotapi.NewMessage(userID, text)); err != nil {
		n.logger.Warn("Failed to notify operator", zap.Int64("user_id", userID), zap.Error(err))
	}
}
