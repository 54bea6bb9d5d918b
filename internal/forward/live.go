package forward

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"forwarder/internal/models"
)

// liveRetries bounds rate-limit retries so one slow target cannot hold the
// update loop indefinitely
const liveRetries = 3

// LiveSessions is the registry view the relay needs
type LiveSessions interface {
	Snapshot() []models.Session
	AddForwarded(userID int64, n int64)
	Persist(ctx context.Context, userID int64) error
}

// Relay replicates new source posts for every session in live mode
type Relay struct {
	sessions LiveSessions
	rep      *Replicator
	logger   *zap.Logger
}

// NewRelay creates a live relay
func NewRelay(sessions LiveSessions, rep *Replicator, logger *zap.Logger) *Relay {
	return &Relay{sessions: sessions, rep: rep, logger: logger}
}

// Handle delivers post to every live session whose source is post's chat,
// returning how many targets received it. Failures are logged per session
// and do not affect the others.
func (r *Relay) Handle(ctx context.Context, post *tgbotapi.Message) int {
	if post == nil || post.Chat == nil || post.Chat.IsPrivate() {
		return 0
	}

	env := Envelope{From: post.Chat.ID, MessageID: post.MessageID, Content: ContentOf(post)}
	delivered := 0

	for _, s := range r.sessions.Snapshot() {
		if s.Mode != models.ModeLive || !s.ChannelsConfigured() || s.SourceChannel != post.Chat.ID {
			continue
		}

		out := r.rep.Deliver(ctx, env, s.TargetChannel, liveRetries)
		if !out.OK() {
			r.logger.Warn("Live relay failed",
				zap.Int64("user_id", s.UserID),
				zap.Int64("source", s.SourceChannel),
				zap.Int64("target", s.TargetChannel),
				zap.Int("message_id", post.MessageID),
				zap.Stringer("outcome", out.Kind),
				zap.String("error", out.Error()),
			)
			continue
		}

		delivered++
		r.sessions.AddForwarded(s.UserID, 1)
		if err := r.sessions.Persist(ctx, s.UserID); err != nil {
			r.logger.Error("Failed to persist forward count", zap.Int64("user_id", s.UserID), zap.Error(err))
		}
	}
	return delivered
}
