package forward

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Content is the payload of a message to replicate. It is one of Text,
// Media, MediaWithCaption or Interactive. A nil Content means the payload is
// unknown and the message is copied by ID.
type Content interface {
	isContent()
}

// MediaKind names the attachment type of a media message
type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaDocument  MediaKind = "document"
	MediaAudio     MediaKind = "audio"
	MediaVoice     MediaKind = "voice"
	MediaAnimation MediaKind = "animation"
	MediaSticker   MediaKind = "sticker"
	MediaVideoNote MediaKind = "video_note"
	MediaPoll      MediaKind = "poll"
	MediaLocation  MediaKind = "location"
	MediaContact   MediaKind = "contact"
	MediaOther     MediaKind = "other"
)

// Text is a plain message with formatting entities
type Text struct {
	Body     string
	Entities []tgbotapi.MessageEntity
}

// Media is an attachment without a caption
type Media struct {
	Kind MediaKind
}

// MediaWithCaption is an attachment with a formatted caption
type MediaWithCaption struct {
	Kind     MediaKind
	Caption  string
	Entities []tgbotapi.MessageEntity
}

// Interactive wraps another payload with an inline keyboard
type Interactive struct {
	Base   Content
	Markup tgbotapi.InlineKeyboardMarkup
}

func (Text) isContent()             {}
func (Media) isContent()            {}
func (MediaWithCaption) isContent() {}
func (Interactive) isContent()      {}

// ContentOf classifies a Bot API message
func ContentOf(m *tgbotapi.Message) Content {
	if m == nil {
		return nil
	}

	var base Content
	if kind := mediaKindOf(m); kind != "" {
		if m.Caption != "" {
			base = MediaWithCaption{Kind: kind, Caption: m.Caption, Entities: m.CaptionEntities}
		} else {
			base = Media{Kind: kind}
		}
	} else if m.Text != "" {
		base = Text{Body: m.Text, Entities: m.Entities}
	}

	if m.ReplyMarkup != nil {
		return WithMarkup(base, *m.ReplyMarkup)
	}
	return base
}

// WithMarkup wraps base in Interactive when the keyboard has replicable
// buttons left after CopyableMarkup filtering
func WithMarkup(base Content, markup tgbotapi.InlineKeyboardMarkup) Content {
	kept, ok := CopyableMarkup(markup)
	if !ok {
		return base
	}
	return Interactive{Base: base, Markup: kept}
}

// CopyableMarkup keeps URL buttons only. Callback buttons belong to the bot
// that posted the original and would not work in the target.
func CopyableMarkup(markup tgbotapi.InlineKeyboardMarkup) (tgbotapi.InlineKeyboardMarkup, bool) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, row := range markup.InlineKeyboard {
		var kept []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			if button.URL != nil && *button.URL != "" {
				kept = append(kept, tgbotapi.NewInlineKeyboardButtonURL(button.Text, *button.URL))
			}
		}
		if len(kept) > 0 {
			rows = append(rows, kept)
		}
	}
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}, true
}

// HasMedia reports whether the content carries an attachment
func HasMedia(c Content) bool {
	switch v := c.(type) {
	case Media, MediaWithCaption:
		return true
	case Interactive:
		return HasMedia(v.Base)
	default:
		return false
	}
}

func mediaKindOf(m *tgbotapi.Message) MediaKind {
	switch {
	case len(m.Photo) > 0:
		return MediaPhoto
	case m.Video != nil:
		return MediaVideo
	case m.Animation != nil:
		return MediaAnimation
	case m.Document != nil:
		return MediaDocument
	case m.Audio != nil:
		return MediaAudio
	case m.Voice != nil:
		return MediaVoice
	case m.Sticker != nil:
		return MediaSticker
	case m.VideoNote != nil:
		return MediaVideoNote
	case m.Poll != nil:
		return MediaPoll
	case m.Location != nil || m.Venue != nil:
		return MediaLocation
	case m.Contact != nil:
		return MediaContact
	case m.Dice != nil || m.Game != nil:
		return MediaOther
	default:
		return ""
	}
}
