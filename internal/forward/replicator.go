package forward

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender is the part of the Bot API used to write to the target channel.
// *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	CopyMessage(config tgbotapi.CopyMessageConfig) (tgbotapi.MessageID, error)
}

// Envelope identifies one source message and its payload
type Envelope struct {
	From      int64
	MessageID int
	Content   Content
}

// Replicator re-sends source messages to a target without forward attribution
type Replicator struct {
	sender Sender
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewReplicator creates a replicator over sender
func NewReplicator(sender Sender, logger *zap.Logger) *Replicator {
	return &Replicator{sender: sender, logger: logger, sleep: Sleep}
}

// Replicate makes a single attempt.
//
// Text is re-sent as a new message with its entities. Media and
// MediaWithCaption are copied by ID, the latter with its caption set
// explicitly. Interactive is replicated as its base payload with the
// keyboard attached. Unknown payloads are copied by ID.
func (r *Replicator) Replicate(env Envelope, to int64) Outcome {
	_, err := r.send(r.chattable(env, to, env.Content, nil))
	return Classify(err)
}

// Deliver retries rate-limited attempts up to maxRetries times, sleeping for
// the platform-signaled duration in between
func (r *Replicator) Deliver(ctx context.Context, env Envelope, to int64, maxRetries int) Outcome {
	for attempt := 0; ; attempt++ {
		out := r.Replicate(env, to)
		if out.Kind != KindRateLimited || attempt >= maxRetries {
			return out
		}
		r.logger.Info("Rate limited, waiting",
			zap.Int64("target", to),
			zap.Duration("retry_after", out.RetryAfter),
		)
		if err := r.sleep(ctx, out.RetryAfter); err != nil {
			return Failed(err)
		}
	}
}

func (r *Replicator) chattable(env Envelope, to int64, c Content, markup *tgbotapi.InlineKeyboardMarkup) tgbotapi.Chattable {
	switch v := c.(type) {
	case Text:
		msg := tgbotapi.NewMessage(to, v.Body)
		msg.Entities = v.Entities
		if markup != nil {
			msg.ReplyMarkup = *markup
		}
		return msg
	case MediaWithCaption:
		cp := tgbotapi.NewCopyMessage(to, env.From, env.MessageID)
		cp.Caption = v.Caption
		cp.CaptionEntities = v.Entities
		if markup != nil {
			cp.ReplyMarkup = *markup
		}
		return cp
	case Interactive:
		m := v.Markup
		return r.chattable(env, to, v.Base, &m)
	default:
		cp := tgbotapi.NewCopyMessage(to, env.From, env.MessageID)
		if markup != nil {
			cp.ReplyMarkup = *markup
		}
		return cp
	}
}

func (r *Replicator) send(c tgbotapi.Chattable) (int, error) {
	if cp, ok := c.(tgbotapi.CopyMessageConfig); ok {
		id, err := r.sender.CopyMessage(cp)
		return id.MessageID, err
	}
	msg, err := r.sender.Send(c)
	return msg.MessageID, err
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
