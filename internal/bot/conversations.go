package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"forwarder/internal/forward"
	"forwarder/internal/models"
	"forwarder/internal/userclient"
)

// inputTable maps every input-awaiting mode to the handler of the operator's
// next text message. Idle and live have no entry.
func (b *Bot) inputTable() map[models.Mode]inputHandler {
	return map[models.Mode]inputHandler{
		models.ModeAwaitingSource:        b.channelInput("source"),
		models.ModeAwaitingTarget:        b.channelInput("target"),
		models.ModeAwaitingPhone:         b.handlePhoneInput,
		models.ModeAwaitingSessionString: b.handleSessionInput,
		models.ModeAwaitingAuthCode:      b.handleAuthCodeInput,
		models.ModeAwaitingPassword:      b.handlePasswordInput,
		models.ModeAwaitingRange:         b.handleRangeInput,
		models.ModeAwaitingTillMsg:       b.handleTillMsgInput,
		models.ModeAwaitingTillFile:      b.handleTillFileInput,
	}
}

// channelInput resolves a source or target reference. The stored channel only
// changes when the bot administers the new one; the mode returns to idle
// either way.
func (b *Bot) channelInput(role string) inputHandler {
	return func(ctx context.Context, message *tgbotapi.Message, s models.Session) {
		userID := message.From.ID
		channel, out := b.resolveChannel(message)
		if !out.OK() {
			b.logger.Info("Channel rejected",
				zap.Int64("user_id", userID),
				zap.String("role", role),
				zap.String("reason", out.Error()),
			)
			b.setMode(ctx, userID, models.ModeIdle)
			b.replyHTML(message.Chat.ID, resolveFailureText(role, out), nil)
			return
		}

		_, err := b.sessions.Update(ctx, userID, func(s *models.Session) {
			if role == "source" {
				s.SourceChannel = channel.ID
			} else {
				s.TargetChannel = channel.ID
			}
			s.Mode = models.ModeIdle
		})
		if err != nil {
			b.logger.Error("Failed to save channel", zap.Int64("user_id", userID), zap.Error(err))
			b.reply(message.Chat.ID, fmt.Sprintf("❌ Error saving %s channel: %v", role, err))
			return
		}

		b.logger.Info("Channel configured",
			zap.Int64("user_id", userID),
			zap.String("role", role),
			zap.Int64("chat_id", channel.ID),
		)
		title := ""
		if channel.Title != "" {
			title = " (" + html.EscapeString(channel.Title) + ")"
		}
		capitalized := strings.ToUpper(role[:1]) + role[1:]
		b.replyHTML(message.Chat.ID, fmt.Sprintf("✅ %s channel set: <code>%d</code>%s\n✅ Bot has admin permissions",
			capitalized, channel.ID, title), nil)
	}
}

func resolveFailureText(role string, out forward.Outcome) string {
	switch out.Kind {
	case forward.KindPermissionDenied:
		return fmt.Sprintf("❌ Bot is not admin in %s channel!\n\n⚠️ Please make the bot an admin in the channel and try again from the menu.\n\n<i>%s</i>",
			role, html.EscapeString(out.Reason))
	case forward.KindNotFound:
		return fmt.Sprintf("❌ Channel not found: %s\n\nOpen the menu and try again.", html.EscapeString(out.Reason))
	case forward.KindRateLimited:
		return fmt.Sprintf("⏳ Telegram asks to wait %d seconds. Please try again later.", int(out.RetryAfter.Seconds()))
	default:
		return fmt.Sprintf("❌ Error: %s\nPlease try again.", html.EscapeString(out.Error()))
	}
}

func (b *Bot) handleRangeInput(ctx context.Context, message *tgbotapi.Message, s models.Session) {
	b.setMode(ctx, message.From.ID, models.ModeIdle)

	w, err := parseRange(message.Text)
	if err != nil {
		b.reply(message.Chat.ID, fmt.Sprintf("❌ Error: %v\nPlease send valid numbers.", err))
		return
	}

	end := "latest"
	if w.Bounded() {
		end = strconv.Itoa(w.End)
	}
	b.reply(message.Chat.ID, fmt.Sprintf("⏳ Starting to forward messages from %d to %s...", w.Start, end))
	b.startRun(ctx, message.From.ID, runRequest{kind: forward.RunRange, window: w})
}

func (b *Bot) handleTillMsgInput(ctx context.Context, message *tgbotapi.Message, s models.Session) {
	b.setMode(ctx, message.From.ID, models.ModeIdle)

	n, err := parseCount(message.Text)
	if err != nil {
		b.reply(message.Chat.ID, fmt.Sprintf("❌ Error: %v\nPlease send a valid number.", err))
		return
	}

	b.reply(message.Chat.ID, fmt.Sprintf("⏳ Starting to forward messages up to %d...", n))
	b.startRun(ctx, message.From.ID, runRequest{kind: forward.RunTillMessage, window: forward.Window{Start: 1, End: n}})
}

func (b *Bot) handleTillFileInput(ctx context.Context, message *tgbotapi.Message, s models.Session) {
	b.setMode(ctx, message.From.ID, models.ModeIdle)

	n, err := parseCount(message.Text)
	if err != nil {
		b.reply(message.Chat.ID, fmt.Sprintf("❌ Error: %v\nPlease send a valid number.", err))
		return
	}

	b.reply(message.Chat.ID, fmt.Sprintf("⏳ Starting to forward first %d files...", n))
	b.startRun(ctx, message.From.ID, runRequest{kind: forward.RunTillFile, window: forward.Window{Start: 1}, files: n})
}

func (b *Bot) handlePhoneInput(ctx context.Context, message *tgbotapi.Message, s models.Session) {
	userID := message.From.ID
	phone, ok := normalizePhone(message.Text)
	if !ok {
		b.setMode(ctx, userID, models.ModeIdle)
		b.reply(message.Chat.ID, "❌ Invalid phone number format. Please use format: +1234567890\n\nOpen 📱 Set Phone Number to try again.")
		return
	}

	changed := phone != s.UserPhone
	_, err := b.sessions.Update(ctx, userID, func(s *models.Session) {
		if changed {
			// A credential belongs to the previous account
			s.SessionCredential = ""
		}
		s.UserPhone = phone
		s.Mode = models.ModeIdle
	})
	if err != nil {
		b.logger.Error("Failed to save phone", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(message.Chat.ID, fmt.Sprintf("❌ Error: %v\nPlease try again.", err))
		return
	}
	if changed && b.accounts != nil {
		b.accounts.Forget(userID)
	}

	b.replyHTML(message.Chat.ID, fmt.Sprintf("✅ Phone number set: <code>%s</code>\n\n"+
		"When you use forwarding features, you'll receive a verification code via Telegram.\n"+
		"Just send it to the bot to authorize!", html.EscapeString(phone)), nil)
}

func (b *Bot) handleSessionInput(ctx context.Context, message *tgbotapi.Message, s models.Session) {
	userID := message.From.ID
	b.deleteMessage(message)

	if b.accounts == nil {
		b.setMode(ctx, userID, models.ModeIdle)
		b.reply(message.Chat.ID, "❌ User sessions are not configured on this bot (API_ID/API_HASH).")
		return
	}

	credential, account, err := b.accounts.Import(ctx, userID, strings.TrimSpace(message.Text))
	if err != nil {
		b.logger.Info("Session import failed", zap.Int64("user_id", userID), zap.Error(err))
		b.setMode(ctx, userID, models.ModeIdle)
		b.reply(message.Chat.ID, fmt.Sprintf("❌ Error importing session: %v\n\nPlease make sure you're using a valid session string.", err))
		return
	}

	if !b.saveCredential(ctx, message.Chat.ID, userID, credential, account) {
		return
	}
	b.replyHTML(message.Chat.ID, fmt.Sprintf("✅ <b>Session imported successfully!</b>\n\n%s\nYou can now use all forwarding features!",
		accountText(account)), nil)
}

func (b *Bot) handleAuthCodeInput(ctx context.Context, message *tgbotapi.Message, s models.Session) {
	userID := message.From.ID
	code := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(message.Text))

	if b.accounts == nil {
		b.setMode(ctx, userID, models.ModeIdle)
		b.reply(message.Chat.ID, "❌ User sessions are not configured on this bot (API_ID/API_HASH).")
		return
	}

	credential, account, err := b.accounts.SubmitCode(ctx, userID, code)
	switch {
	case errors.Is(err, userclient.ErrNoPendingLogin):
		b.reply(message.Chat.ID, "❌ Login expired. Start a forwarding run again to receive a new code.")
		return
	case errors.Is(err, userclient.ErrPasswordNeeded):
		b.setMode(ctx, userID, models.ModeAwaitingPassword)
		b.reply(message.Chat.ID, "🔐 This account has two-step verification enabled.\n\nPlease send your cloud password.")
		return
	case err != nil:
		b.logger.Info("Sign in failed", zap.Int64("user_id", userID), zap.Error(err))
		b.setMode(ctx, userID, models.ModeIdle)
		b.reply(message.Chat.ID, fmt.Sprintf("❌ Authorization failed: %v\n\nPlease try again or check your code.", err))
		return
	}

	b.finishSignIn(ctx, message.Chat.ID, userID, credential, account)
}

func (b *Bot) handlePasswordInput(ctx context.Context, message *tgbotapi.Message, s models.Session) {
	userID := message.From.ID
	b.deleteMessage(message)

	if b.accounts == nil {
		b.setMode(ctx, userID, models.ModeIdle)
		b.reply(message.Chat.ID, "❌ User sessions are not configured on this bot (API_ID/API_HASH).")
		return
	}

	credential, account, err := b.accounts.SubmitPassword(ctx, userID, strings.TrimSpace(message.Text))
	if err != nil {
		b.logger.Info("Password check failed", zap.Int64("user_id", userID), zap.Error(err))
		b.setMode(ctx, userID, models.ModeIdle)
		b.reply(message.Chat.ID, fmt.Sprintf("❌ Authorization failed: %v\n\nStart a forwarding run again to receive a new code.", err))
		return
	}

	b.finishSignIn(ctx, message.Chat.ID, userID, credential, account)
}

func (b *Bot) finishSignIn(ctx context.Context, chatID, userID int64, credential string, account userclient.Account) {
	if !b.saveCredential(ctx, chatID, userID, credential, account) {
		return
	}
	b.replyHTML(chatID, fmt.Sprintf("✅ <b>Authorization successful!</b>\n\n"+
		"🔐 Your session has been saved.\n"+
		"You can now use all forwarding features!\n\n"+
		"🔑 Session String (save this!):\n<code>%s</code>\n\n"+
		"💡 Keep this string safe - you can import it to restore your session.",
		html.EscapeString(credential)), nil)
}

func (b *Bot) saveCredential(ctx context.Context, chatID, userID int64, credential string, account userclient.Account) bool {
	_, err := b.sessions.Update(ctx, userID, func(s *models.Session) {
		s.SessionCredential = credential
		if account.Phone != "" {
			s.UserPhone = account.Phone
		}
		s.Mode = models.ModeIdle
	})
	if err != nil {
		b.logger.Error("Failed to save session credential", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(chatID, fmt.Sprintf("❌ Signed in, but saving the session failed: %v", err))
		return false
	}
	b.logger.Info("User session saved", zap.Int64("user_id", userID))
	return true
}

func accountText(a userclient.Account) string {
	var sb strings.Builder
	if a.Phone != "" {
		fmt.Fprintf(&sb, "📞 Phone: <code>%s</code>\n", html.EscapeString(a.Phone))
	}
	if a.Name != "" {
		fmt.Fprintf(&sb, "👤 Name: %s\n", html.EscapeString(a.Name))
	}
	if a.Username != "" {
		fmt.Fprintf(&sb, "🔗 Username: @%s\n", html.EscapeString(a.Username))
	}
	return sb.String()
}

// parseRange reads "START" or "START END". END is inclusive; a single number
// runs to the latest message.
func parseRange(text string) (forward.Window, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 || len(fields) > 2 {
		return forward.Window{}, errors.New("expected START or START END")
	}

	start, err := parsePositive(fields[0])
	if err != nil {
		return forward.Window{}, err
	}
	w := forward.Window{Start: start}
	if len(fields) == 2 {
		end, err := parsePositive(fields[1])
		if err != nil {
			return forward.Window{}, err
		}
		if end < start {
			return forward.Window{}, fmt.Errorf("end %d is before start %d", end, start)
		}
		w.End = end
	}
	return w, nil
}

// parseCount reads a single positive integer
func parseCount(text string) (int, error) {
	fields := strings.Fields(text)
	if len(fields) != 1 {
		return 0, errors.New("expected a single number")
	}
	return parsePositive(fields[0])
}

func parsePositive(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if n < 1 {
		return 0, fmt.Errorf("%d must be at least 1", n)
	}
	return n, nil
}

// normalizePhone requires a leading + followed by digits, ignoring spaces
func normalizePhone(text string) (string, bool) {
	phone := strings.TrimSpace(text)
	digits, ok := strings.CutPrefix(phone, "+")
	if !ok {
		return "", false
	}
	digits = strings.ReplaceAll(digits, " ", "")
	if len(digits) < 5 || len(digits) > 15 {
		return "", false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return "+" + digits, true
}
