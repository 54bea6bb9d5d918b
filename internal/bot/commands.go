package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"forwarder/internal/models"
)

// handleStart shows the main menu with the current configuration
func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	s, err := b.sessions.Get(ctx, message.From.ID)
	if err != nil {
		b.logger.Error("Failed to load session", zap.Int64("user_id", message.From.ID), zap.Error(err))
		b.reply(message.Chat.ID, "❌ Failed to load your settings. Please try again.")
		return
	}

	markup := mainMenuKeyboard()
	b.replyHTML(message.Chat.ID, mainMenuText(s), &markup)
}

// handleFix rewrites channel IDs stored in the legacy positive form
func (b *Bot) handleFix(ctx context.Context, message *tgbotapi.Message) {
	var fixed []string
	fix := func(label string, id *int64) {
		if repaired, changed := models.NormalizeChannelID(*id); changed {
			fixed = append(fixed, fmt.Sprintf("%s: %d → %d", label, *id, repaired))
			*id = repaired
		}
	}

	s, err := b.sessions.Get(ctx, message.From.ID)
	if err != nil {
		b.reply(message.Chat.ID, fmt.Sprintf("❌ Error: %v", err))
		return
	}
	if _, changed := models.NormalizeChannelID(s.SourceChannel); !changed {
		if _, changed := models.NormalizeChannelID(s.TargetChannel); !changed {
			b.reply(message.Chat.ID, "✅ Channel IDs are already correct!")
			return
		}
	}

	if _, err := b.sessions.Update(ctx, message.From.ID, func(s *models.Session) {
		fix("Source", &s.SourceChannel)
		fix("Target", &s.TargetChannel)
	}); err != nil {
		b.logger.Error("Failed to save repaired channel IDs", zap.Int64("user_id", message.From.ID), zap.Error(err))
		b.reply(message.Chat.ID, fmt.Sprintf("❌ Error saving channel IDs: %v", err))
		return
	}

	b.logger.Info("Channel IDs repaired", zap.Int64("user_id", message.From.ID), zap.Strings("changes", fixed))
	b.reply(message.Chat.ID, "✅ Fixed channel IDs:\n\n"+strings.Join(fixed, "\n")+
		"\n\nYour channels are now in the correct format! Send /start to continue.")
}
