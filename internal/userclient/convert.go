package userclient

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gotd/td/tg"

	"forwarder/internal/forward"
)

// convertMessage maps an MTProto message to the forwarder's payload model
func convertMessage(m *tg.Message) forward.HistoryMessage {
	kind := mediaKind(m.Media)

	var base forward.Content
	switch {
	case kind != "" && m.Message != "":
		base = forward.MediaWithCaption{Kind: kind, Caption: m.Message, Entities: convertEntities(m.Entities)}
	case kind != "":
		base = forward.Media{Kind: kind}
	case m.Message != "":
		base = forward.Text{Body: m.Message, Entities: convertEntities(m.Entities)}
	}

	if markup, ok := convertMarkup(m.ReplyMarkup); ok {
		base = forward.WithMarkup(base, markup)
	}
	return forward.HistoryMessage{ID: m.ID, HasMedia: kind != "", Content: base}
}

// mediaKind returns "" for link previews and empty media, which do not
// count as files
func mediaKind(media tg.MessageMediaClass) forward.MediaKind {
	switch v := media.(type) {
	case nil, *tg.MessageMediaEmpty, *tg.MessageMediaWebPage, *tg.MessageMediaUnsupported:
		return ""
	case *tg.MessageMediaPhoto:
		return forward.MediaPhoto
	case *tg.MessageMediaDocument:
		return documentKind(v)
	case *tg.MessageMediaGeo, *tg.MessageMediaGeoLive, *tg.MessageMediaVenue:
		return forward.MediaLocation
	case *tg.MessageMediaContact:
		return forward.MediaContact
	case *tg.MessageMediaPoll:
		return forward.MediaPoll
	default:
		return forward.MediaOther
	}
}

func documentKind(media *tg.MessageMediaDocument) forward.MediaKind {
	doc, ok := media.Document.(*tg.Document)
	if !ok {
		return forward.MediaDocument
	}

	kind := forward.MediaDocument
	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeSticker:
			return forward.MediaSticker
		case *tg.DocumentAttributeAnimated:
			return forward.MediaAnimation
		case *tg.DocumentAttributeVideo:
			if a.RoundMessage {
				return forward.MediaVideoNote
			}
			kind = forward.MediaVideo
		case *tg.DocumentAttributeAudio:
			if a.Voice {
				return forward.MediaVoice
			}
			kind = forward.MediaAudio
		}
	}
	return kind
}

// convertEntities maps MTProto formatting to Bot API entities. Offsets and
// lengths are UTF-16 code units in both APIs. Entities without a Bot API
// counterpart are dropped.
func convertEntities(entities []tg.MessageEntityClass) []tgbotapi.MessageEntity {
	if len(entities) == 0 {
		return nil
	}

	out := make([]tgbotapi.MessageEntity, 0, len(entities))
	for _, e := range entities {
		entity := tgbotapi.MessageEntity{Offset: e.GetOffset(), Length: e.GetLength()}
		switch v := e.(type) {
		case *tg.MessageEntityBold:
			entity.Type = "bold"
		case *tg.MessageEntityItalic:
			entity.Type = "italic"
		case *tg.MessageEntityUnderline:
			entity.Type = "underline"
		case *tg.MessageEntityStrike:
			entity.Type = "strikethrough"
		case *tg.MessageEntitySpoiler:
			entity.Type = "spoiler"
		case *tg.MessageEntityCode:
			entity.Type = "code"
		case *tg.MessageEntityPre:
			entity.Type = "pre"
			entity.Language = v.Language
		case *tg.MessageEntityTextURL:
			entity.Type = "text_link"
			entity.URL = v.URL
		case *tg.MessageEntityURL:
			entity.Type = "url"
		case *tg.MessageEntityMention:
			entity.Type = "mention"
		case *tg.MessageEntityMentionName:
			entity.Type = "text_mention"
			entity.User = &tgbotapi.User{ID: v.UserID}
		case *tg.MessageEntityHashtag:
			entity.Type = "hashtag"
		case *tg.MessageEntityCashtag:
			entity.Type = "cashtag"
		case *tg.MessageEntityBotCommand:
			entity.Type = "bot_command"
		case *tg.MessageEntityEmail:
			entity.Type = "email"
		case *tg.MessageEntityPhone:
			entity.Type = "phone_number"
		case *tg.MessageEntityBlockquote:
			entity.Type = "blockquote"
		default:
			continue
		}
		out = append(out, entity)
	}
	return out
}

// convertMarkup extracts URL buttons from an inline keyboard
func convertMarkup(markup tg.ReplyMarkupClass) (tgbotapi.InlineKeyboardMarkup, bool) {
	inline, ok := markup.(*tg.ReplyInlineMarkup)
	if !ok {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, row := range inline.Rows {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, b := range row.Buttons {
			if u, ok := b.(*tg.KeyboardButtonURL); ok {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(u.Text, u.URL))
			}
		}
		if len(buttons) > 0 {
			rows = append(rows, buttons)
		}
	}
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}, true
}
