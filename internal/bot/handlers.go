package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// handleMessage processes a private message from an operator
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage", zap.Any("panic", r))
			b.reply(message.Chat.ID, "❌ An error occurred while processing your request. Please try again.")
		}
	}()

	ctx := b.ctx

	// Commands never cancel a pending input or an active run
	if message.IsCommand() {
		switch message.Command() {
		case "start":
			b.handleStart(ctx, message)
		case "fix":
			b.handleFix(ctx, message)
		default:
			b.reply(message.Chat.ID, "Unknown command. Use /start to see the menu.")
		}
		return
	}

	s, err := b.sessions.Get(ctx, message.From.ID)
	if err != nil {
		b.logger.Error("Failed to load session", zap.Int64("user_id", message.From.ID), zap.Error(err))
		b.reply(message.Chat.ID, "❌ Failed to load your settings. Please try again.")
		return
	}

	handler, ok := b.inputs[s.Mode]
	if !ok {
		b.logger.Debug("Ignoring text outside of an input mode",
			zap.Int64("user_id", s.UserID),
			zap.Stringer("mode", s.Mode),
		)
		return
	}
	handler(ctx, message, s)
}

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery", zap.Any("panic", r))
			b.reply(query.From.ID, "❌ An error occurred while processing your request. Please try again.")
		}
	}()

	ctx := b.ctx
	userID := query.From.ID

	s, err := b.sessions.Get(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to load session", zap.Int64("user_id", userID), zap.Error(err))
		b.answer(query, "❌ Failed to load your settings", true)
		return
	}

	handler, ok := b.buttons[query.Data]
	if !ok {
		b.logger.Debug("Unknown callback data", zap.Int64("user_id", userID), zap.String("callback_data", query.Data))
		b.answer(query, "", false)
		return
	}
	handler(ctx, query, s)
}
