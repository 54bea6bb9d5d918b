package bot

import (
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"forwarder/internal/models"
)

// Callback data of the inline buttons
const (
	cbSetSource     = "set_source"
	cbSetTarget     = "set_target"
	cbSetPhone      = "set_phone"
	cbImportSession = "import_session"
	cbModes         = "modes"
	cbModeLive      = "mode_live"
	cbModeSendAll   = "mode_send_all"
	cbModeRange     = "mode_range"
	cbModeTillMsg   = "mode_till_msg"
	cbModeTillFile  = "mode_till_file"
	cbModeStop      = "mode_stop"
	cbStatus        = "status"
	cbHelp          = "help"
	cbMainMenu      = "main_menu"
)

func button(text, data string) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(text, data))
}

func mainMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		button("📤 Set Source Channel", cbSetSource),
		button("📥 Set Target Channel", cbSetTarget),
		button("📱 Set Phone Number", cbSetPhone),
		button("🔑 Import Session String", cbImportSession),
		button("⚙️ Forwarding Modes", cbModes),
		button("📊 Status", cbStatus),
		button("ℹ️ Help", cbHelp),
	)
}

func modesKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		button("🔴 Live Mode (Auto-forward new)", cbModeLive),
		button("📦 Send ALL Files & Messages", cbModeSendAll),
		button("📝 Forward Range", cbModeRange),
		button("🔢 Forward Till Message", cbModeTillMsg),
		button("📁 Forward Till File", cbModeTillFile),
		button("⏸️ Stop Forwarding", cbModeStop),
		button("🔙 Back", cbMainMenu),
	)
}

func backToModesKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(button("🔙 Back to Modes", cbModes))
}

func backKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(button("🔙 Back", cbMainMenu))
}

func phoneKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(button("🔑 Import Session String", cbImportSession))
}

func channelText(id int64) string {
	if id == 0 {
		return "Not set"
	}
	return fmt.Sprintf("<code>%d</code>", id)
}

func modeText(m models.Mode) string {
	switch m {
	case models.ModeLive:
		return "🔴 Live"
	case models.ModeIdle:
		return "⏸️ Stopped"
	default:
		return "⌨️ Waiting for input (" + m.String() + ")"
	}
}

func mainMenuText(s models.Session) string {
	var sb strings.Builder
	sb.WriteString("<b>🤖 Telegram Forwarder Bot</b>\n\n")
	sb.WriteString("Welcome! I can forward messages from one channel to another.\n\n")
	sb.WriteString("📋 <b>Current Configuration:</b>\n")

	mark := func(ok bool) string {
		if ok {
			return "✅"
		}
		return "❌"
	}
	fmt.Fprintf(&sb, "%s Source: %s\n", mark(s.SourceChannel != 0), channelText(s.SourceChannel))
	fmt.Fprintf(&sb, "%s Target: %s\n", mark(s.TargetChannel != 0), channelText(s.TargetChannel))
	if s.UserPhone != "" {
		fmt.Fprintf(&sb, "✅ Phone: <code>%s</code>\n", html.EscapeString(s.UserPhone))
	} else {
		sb.WriteString("⚠️ Phone: Not set (needed for full history)\n")
	}
	fmt.Fprintf(&sb, "⚡ Mode: %s\n", modeText(s.Mode))
	fmt.Fprintf(&sb, "📊 Forwarded: %d messages\n\n", s.ForwardCount)
	sb.WriteString("Choose an option below:")
	return sb.String()
}

func modesText(s models.Session) string {
	return fmt.Sprintf("<b>⚙️ Forwarding Modes</b>\n\n"+
		"📋 <b>Saved Configuration:</b>\n"+
		"📤 Source: %s\n"+
		"📥 Target: %s\n"+
		"📊 Forwarded: %d messages\n"+
		"⚡ Current Mode: %s\n\n"+
		"<b>Select a mode:</b>",
		channelText(s.SourceChannel), channelText(s.TargetChannel), s.ForwardCount, modeText(s.Mode))
}

func statusText(s models.Session, running bool) string {
	phone := "❌ Not set"
	if s.UserPhone != "" {
		phone = "<code>" + html.EscapeString(s.UserPhone) + "</code>"
	}
	userSession := "❌ Not authorized"
	if s.SessionCredential != "" {
		userSession = "✅ Active"
	}
	run := "idle"
	if running {
		run = "⏳ in progress"
	}

	return fmt.Sprintf("<b>📊 Bot Status</b>\n\n"+
		"📤 <b>Source Channel:</b> %s\n"+
		"📥 <b>Target Channel:</b> %s\n"+
		"📱 <b>Phone Number:</b> %s\n"+
		"🔐 <b>User Session:</b> %s\n"+
		"⚡ <b>Mode:</b> %s\n"+
		"🔁 <b>History Run:</b> %s\n"+
		"📊 <b>Messages Forwarded:</b> %d\n\n"+
		"🟢 <b>Bot Status:</b> Active",
		channelText(s.SourceChannel), channelText(s.TargetChannel), phone, userSession,
		modeText(s.Mode), run, s.ForwardCount)
}

const helpText = "<b>ℹ️ Help &amp; Instructions</b>\n\n" +
	"<b>Setup:</b>\n" +
	"1. Set source channel (where to copy from)\n" +
	"2. Set target channel (where to copy to)\n" +
	"3. Choose forwarding mode\n\n" +
	"<b>Modes:</b>\n" +
	"• <b>Live Mode</b> - Auto-forward all new messages\n" +
	"• <b>Send ALL</b> - Copy the whole channel history\n" +
	"• <b>Message Range</b> - Forward <code>START END</code> (or <code>START</code> till latest)\n" +
	"• <b>Till Message</b> - Forward messages 1..N\n" +
	"• <b>Till File</b> - Forward the first N files\n\n" +
	"<b>History access:</b>\n" +
	"Send ALL, open ranges and Till File read the channel with your own account. " +
	"Set your phone number and send the login code, or import a session string " +
	"(the one shown after login, or a Telethon string session).\n\n" +
	"<b>Commands:</b>\n" +
	"/start - Main menu\n" +
	"/fix - Repair channel IDs saved without the -100 prefix\n\n" +
	"✅ Removes forwarded tag\n" +
	"✅ Preserves captions and formatting\n\n" +
	"<b>Note:</b> Bot must be admin in both channels!"

const (
	sourcePrompt = "📤 <b>Set Source Channel</b>\n\n" +
		"Please send me the source channel username or ID.\n" +
		"Examples:\n" +
		"• @channelname\n" +
		"• -1001234567890\n" +
		"• https://t.me/channelname\n\n" +
		"Or forward a message from the channel."
	targetPrompt = "📥 <b>Set Target Channel</b>\n\n" +
		"Please send me the target channel username or ID.\n" +
		"Examples:\n" +
		"• @channelname\n" +
		"• -1001234567890\n\n" +
		"Or forward a message from the channel."
	importPrompt = "🔑 <b>Import Session String</b>\n\n" +
		"Please send your session string.\n\n" +
		"This is the string you received after authorization."
	rangePrompt = "<b>📝 Forward Message Range</b>\n\n" +
		"Send the range in format: <code>START END</code>\n" +
		"Example: <code>1 100</code> to forward messages 1 to 100\n\n" +
		"Or send a single number to forward from that message till latest."
	tillMsgPrompt = "<b>🔢 Forward Till Message</b>\n\n" +
		"Send the message number to forward up to.\n" +
		"Example: <code>500</code> to forward all messages up to message 500"
	tillFilePrompt = "<b>📁 Forward Till File Number</b>\n\n" +
		"Send the number of files to forward.\n" +
		"Example: <code>50</code> to forward the first 50 files"
	phoneMissingText = "⚠️ <b>Phone number not set!</b>\n\n" +
		"Reading this part of the channel history needs your own account:\n" +
		"1. Click 📱 Set Phone Number\n" +
		"2. Send your phone with country code\n\n" +
		"Or import a session string."
	liveEnabledText = "<b>🔴 Live Mode Enabled</b>\n\n" +
		"All new messages from the source channel will be automatically forwarded to the target channel.\n\n" +
		"The forwarded tag will be removed."
	stoppedText = "<b>⏸️ Forwarding Stopped</b>\n\n" +
		"Ongoing forwarding will stop at the next message."
	sendAllText = "<b>📦 Sending ALL Files &amp; Messages</b>\n\n" +
		"⏳ Fetching all messages from source channel...\n" +
		"This may take a while depending on channel size."
)

func phoneSetupText(s models.Session) string {
	phone := "Not set"
	if s.UserPhone != "" {
		phone = html.EscapeString(s.UserPhone)
	}
	userSession := "❌ Not authorized"
	if s.SessionCredential != "" {
		userSession = "✅ Active"
	}
	return fmt.Sprintf("📱 <b>Phone Number Setup</b>\n\n"+
		"📞 Phone: <code>%s</code>\n"+
		"🔐 Session: %s\n\n"+
		"<b>To setup new session:</b>\n"+
		"Send your phone number with country code\n"+
		"Examples: +1234567890, +919876543210\n\n"+
		"<b>Or import existing session:</b>\n"+
		"Click button below to import session string",
		phone, userSession)
}
