package bot

import (
	"context"
	"errors"
	"fmt"
	"html"

	"go.uber.org/zap"

	"forwarder/internal/forward"
	"forwarder/internal/models"
	"forwarder/internal/session"
	"forwarder/internal/userclient"
)

type runRequest struct {
	kind   forward.RunKind
	window forward.Window
	files  int

	// onStart runs on the worker before the run, only once it was scheduled
	onStart func()
}

// startRun claims the operator's run slot and hands the run to the runner.
// The slot is released when the task ends or could not be scheduled.
func (b *Bot) startRun(ctx context.Context, userID int64, req runRequest) {
	s, err := b.sessions.Get(ctx, userID)
	if err != nil {
		b.reply(userID, fmt.Sprintf("❌ Error: %v", err))
		return
	}
	if !s.ChannelsConfigured() {
		b.reply(userID, "⚠️ Please set source and target channels first!")
		return
	}

	if err := b.sessions.BeginRun(ctx, userID); err != nil {
		if errors.Is(err, session.ErrRunActive) {
			b.reply(userID, "⚠️ A forwarding run is already active. Stop it from the modes menu before starting another one.")
			return
		}
		b.reply(userID, fmt.Sprintf("❌ Error: %v", err))
		return
	}

	job := forward.Job{
		UserID:    userID,
		Kind:      req.kind,
		Source:    s.SourceChannel,
		Target:    s.TargetChannel,
		Window:    req.window,
		FileLimit: req.files,
	}
	if err := b.runner.Submit(func() { b.run(job, s, req.onStart) }); err != nil {
		b.sessions.EndRun(userID)
		b.logger.Warn("Run not scheduled", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(userID, "⚠️ Too many forwarding runs in progress. Please try again in a moment.")
	}
}

// run is the task body of one historical run
func (b *Bot) run(job forward.Job, s models.Session, onStart func()) {
	defer b.sessions.EndRun(job.UserID)
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in history run", zap.Int64("user_id", job.UserID), zap.Any("panic", r))
			b.reply(job.UserID, "❌ Forwarding failed unexpectedly. Please try again.")
		}
	}()

	if onStart != nil {
		onStart()
	}

	ctx := b.ctx
	source, ok := b.historySource(ctx, s, job.Window)
	if !ok {
		return
	}

	it, err := source.Open(ctx, job.Source, job.Window)
	switch {
	case errors.Is(err, forward.ErrUnboundedProbe):
		b.replyHTML(job.UserID, phoneMissingText, nil)
		return
	case errors.Is(err, userclient.ErrUnauthorized):
		b.discardCredential(ctx, job.UserID, err)
		return
	case err != nil:
		b.logger.Warn("Failed to open source history", zap.Int64("user_id", job.UserID), zap.Error(err))
		b.reply(job.UserID, fmt.Sprintf("❌ Error: %v", err))
		return
	}

	b.reply(job.UserID, "📤 Starting to forward messages...")
	b.history.Run(ctx, job, it)
}

// historySource picks the operator's user session when one is known and falls
// back to probing message IDs with the bot identity. It reports false after
// replying to the operator itself.
func (b *Bot) historySource(ctx context.Context, s models.Session, w forward.Window) (forward.Source, bool) {
	probe := forward.ProbeSource{}
	if b.accounts == nil || (s.SessionCredential == "" && s.UserPhone == "") {
		return probe, true
	}

	source, err := b.accounts.Source(ctx, s.UserID, s.SessionCredential, s.UserPhone)
	switch {
	case err == nil:
		return source, true
	case errors.Is(err, userclient.ErrDisabled):
		return probe, true
	case errors.Is(err, userclient.ErrCodeSent):
		if _, err := b.sessions.SetMode(ctx, s.UserID, models.ModeAwaitingAuthCode); err != nil {
			b.logger.Error("Failed to save mode", zap.Int64("user_id", s.UserID), zap.Error(err))
		}
		b.replyHTML(s.UserID, fmt.Sprintf("📱 <b>Authorization Required</b>\n\n"+
			"A code has been sent to: <code>%s</code>\n\n"+
			"Please send the code here (format: <code>12345</code>), then start the run again.",
			html.EscapeString(s.UserPhone)), nil)
		return nil, false
	default:
		b.logger.Warn("User session unavailable", zap.Int64("user_id", s.UserID), zap.Error(err))
		if w.Bounded() {
			b.reply(s.UserID, fmt.Sprintf("⚠️ Your user session is unavailable (%v). Continuing with the bot account.", err))
			return probe, true
		}
		b.reply(s.UserID, fmt.Sprintf("❌ Your user session is unavailable: %v\n\nSet your phone number again or import a session string.", err))
		return nil, false
	}
}

// discardCredential forgets a session the platform no longer accepts so the
// next run logs in again
func (b *Bot) discardCredential(ctx context.Context, userID int64, cause error) {
	b.logger.Info("User session expired", zap.Int64("user_id", userID), zap.Error(cause))
	b.accounts.Forget(userID)
	if _, err := b.sessions.Update(ctx, userID, func(s *models.Session) {
		s.SessionCredential = ""
	}); err != nil {
		b.logger.Error("Failed to clear session credential", zap.Int64("user_id", userID), zap.Error(err))
	}
	b.reply(userID, "❌ Your user session has expired or was revoked.\n\n"+
		"Start the run again to receive a new login code, or import a new session string.")
}
