package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"forwarder/internal/forward"
	"forwarder/internal/models"
)

func (b *Bot) buttonTable() map[string]callbackHandler {
	return map[string]callbackHandler{
		cbSetSource:     b.prompt(models.ModeAwaitingSource, sourcePrompt),
		cbSetTarget:     b.prompt(models.ModeAwaitingTarget, targetPrompt),
		cbSetPhone:      b.handleSetPhone,
		cbImportSession: b.prompt(models.ModeAwaitingSessionString, importPrompt),
		cbModes:         b.handleModes,
		cbModeLive:      b.handleModeLive,
		cbModeSendAll:   b.handleModeSendAll,
		cbModeRange:     b.prompt(models.ModeAwaitingRange, rangePrompt),
		cbModeTillMsg:   b.prompt(models.ModeAwaitingTillMsg, tillMsgPrompt),
		cbModeTillFile:  b.prompt(models.ModeAwaitingTillFile, tillFilePrompt),
		cbModeStop:      b.handleModeStop,
		cbStatus:        b.handleStatus,
		cbHelp:          b.handleHelp,
		cbMainMenu:      b.handleMainMenu,
	}
}

// prompt switches the operator into an input mode and asks for the value
func (b *Bot) prompt(mode models.Mode, text string) callbackHandler {
	return func(ctx context.Context, query *tgbotapi.CallbackQuery, s models.Session) {
		b.answer(query, "", false)
		if !b.setMode(ctx, query.From.ID, mode) {
			b.reply(query.From.ID, "❌ Failed to save your settings. Please try again.")
			return
		}
		b.replyHTML(query.From.ID, text, nil)
	}
}

func (b *Bot) handleSetPhone(ctx context.Context, query *tgbotapi.CallbackQuery, s models.Session) {
	b.answer(query, "", false)
	if !b.setMode(ctx, query.From.ID, models.ModeAwaitingPhone) {
		b.reply(query.From.ID, "❌ Failed to save your settings. Please try again.")
		return
	}
	markup := phoneKeyboard()
	b.replyHTML(query.From.ID, phoneSetupText(s), &markup)
}

func (b *Bot) handleModes(ctx context.Context, query *tgbotapi.CallbackQuery, s models.Session) {
	if !s.ChannelsConfigured() {
		b.answer(query, "⚠️ Please set source and target channels first!", true)
		return
	}
	b.answer(query, "", false)
	b.edit(query, modesText(s), modesKeyboard())
}

func (b *Bot) handleModeLive(ctx context.Context, query *tgbotapi.CallbackQuery, s models.Session) {
	if !s.ChannelsConfigured() {
		b.answer(query, "⚠️ Please set source and target channels first!", true)
		return
	}
	if !b.setMode(ctx, query.From.ID, models.ModeLive) {
		b.answer(query, "❌ Failed to save your settings", true)
		return
	}
	b.answer(query, "✅ Live mode enabled!", false)
	b.edit(query, liveEnabledText, backToModesKeyboard())
}

func (b *Bot) handleModeSendAll(ctx context.Context, query *tgbotapi.CallbackQuery, s models.Session) {
	b.answer(query, "⏳ Starting...", false)
	b.startRun(ctx, query.From.ID, runRequest{
		kind:   forward.RunSendAll,
		window: forward.Window{Start: 1},
		// Live mode stays on until the run is actually scheduled
		onStart: func() {
			b.setMode(ctx, query.From.ID, models.ModeIdle)
			b.edit(query, sendAllText, backToModesKeyboard())
		},
	})
}

func (b *Bot) handleModeStop(ctx context.Context, query *tgbotapi.CallbackQuery, s models.Session) {
	b.setMode(ctx, query.From.ID, models.ModeIdle)
	if b.sessions.Running(query.From.ID) {
		b.sessions.RequestStop(query.From.ID)
	}
	b.logger.Info("Forwarding stop requested", zap.Int64("user_id", query.From.ID))

	b.answer(query, "⏸️ Stopping forwarding...", false)
	b.edit(query, stoppedText, backToModesKeyboard())
}

func (b *Bot) handleStatus(ctx context.Context, query *tgbotapi.CallbackQuery, s models.Session) {
	b.answer(query, "", false)
	b.edit(query, statusText(s, b.sessions.Running(query.From.ID)), backKeyboard())
}

func (b *Bot) handleHelp(ctx context.Context, query *tgbotapi.CallbackQuery, s models.Session) {
	b.answer(query, "", false)
	b.edit(query, helpText, backKeyboard())
}

func (b *Bot) handleMainMenu(ctx context.Context, query *tgbotapi.CallbackQuery, s models.Session) {
	b.answer(query, "", false)
	b.edit(query, mainMenuText(s), mainMenuKeyboard())
}

// setMode persists a mode change and reports whether it was saved
func (b *Bot) setMode(ctx context.Context, userID int64, mode models.Mode) bool {
	if _, err := b.sessions.SetMode(ctx, userID, mode); err != nil {
		b.logger.Error("Failed to save mode",
			zap.Int64("user_id", userID),
			zap.Stringer("mode", mode),
			zap.Error(err),
		)
		return false
	}
	return true
}
