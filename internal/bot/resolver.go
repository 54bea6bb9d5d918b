package bot

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"forwarder/internal/forward"
	"forwarder/internal/models"
)

var (
	errEmptyReference = errors.New("send a channel username, ID or link")
	errInviteLink     = errors.New("invite links cannot be resolved, send the channel ID or forward a message from it")

	usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{3,31}$`)
)

// channelRef is a parsed operator reference: either a chat ID or a public
// username
type channelRef struct {
	ID       int64
	Username string
}

// resolvedChannel is a channel the bot can see
type resolvedChannel struct {
	ID    int64
	Title string
}

// parseChannelRef accepts @name, bare names, t.me links (public or /c/ private
// post links) and numeric IDs. Positive numeric IDs are normalized to the
// -100 form.
func parseChannelRef(text string) (channelRef, error) {
	ref := strings.TrimSpace(text)
	if ref == "" {
		return channelRef{}, errEmptyReference
	}

	for _, prefix := range []string{"https://", "http://"} {
		ref = strings.TrimPrefix(ref, prefix)
	}
	for _, host := range []string{"t.me/", "telegram.me/", "telegram.dog/"} {
		if rest, ok := strings.CutPrefix(ref, host); ok {
			return parseLinkPath(rest)
		}
	}

	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		id, _ = models.NormalizeChannelID(id)
		return channelRef{ID: id}, nil
	}

	name := strings.TrimPrefix(ref, "@")
	if !usernamePattern.MatchString(name) {
		return channelRef{}, fmt.Errorf("%q is not a valid channel username or ID", text)
	}
	return channelRef{Username: "@" + name}, nil
}

func parseLinkPath(path string) (channelRef, error) {
	path = strings.Trim(path, "/")
	if strings.HasPrefix(path, "+") || strings.HasPrefix(path, "joinchat/") {
		return channelRef{}, errInviteLink
	}

	parts := strings.Split(path, "/")
	if parts[0] == "c" && len(parts) >= 2 {
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || id <= 0 {
			return channelRef{}, fmt.Errorf("invalid private channel link %q", path)
		}
		id, _ = models.NormalizeChannelID(id)
		return channelRef{ID: id}, nil
	}

	if parts[0] == "s" && len(parts) >= 2 {
		parts = parts[1:]
	}
	if !usernamePattern.MatchString(parts[0]) {
		return channelRef{}, fmt.Errorf("invalid channel link %q", path)
	}
	return channelRef{Username: "@" + parts[0]}, nil
}

// resolveChannel turns the operator's message into a channel and checks that
// the bot administers it. A forwarded message's origin chat takes precedence
// over its text.
func (b *Bot) resolveChannel(message *tgbotapi.Message) (resolvedChannel, forward.Outcome) {
	var ref channelRef
	if message.ForwardFromChat != nil {
		ref = channelRef{ID: message.ForwardFromChat.ID}
	} else {
		parsed, err := parseChannelRef(message.Text)
		if err != nil {
			return resolvedChannel{}, forward.NotFound(err.Error())
		}
		ref = parsed
	}

	chat, err := b.api.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{
		ChatID:             ref.ID,
		SuperGroupUsername: ref.Username,
	}})
	if err != nil {
		return resolvedChannel{}, forward.Classify(err)
	}
	if chat.IsPrivate() {
		return resolvedChannel{}, forward.NotFound("that is a private chat, not a channel")
	}

	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
		ChatID: chat.ID,
		UserID: b.selfID,
	}})
	if err != nil {
		out := forward.Classify(err)
		if out.Kind == forward.KindFailed {
			return resolvedChannel{}, out
		}
		return resolvedChannel{}, forward.PermissionDenied("cannot read the bot's membership: " + out.Error())
	}
	if !member.IsAdministrator() && !member.IsCreator() {
		return resolvedChannel{}, forward.PermissionDenied("bot is not an administrator")
	}

	return resolvedChannel{ID: chat.ID, Title: chat.Title}, forward.Success()
}
