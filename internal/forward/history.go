package forward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Window bounds a history run by message ID. Both ends are inclusive; an End
// of zero means up to the latest message.
type Window struct {
	Start int
	End   int
}

func (w Window) Bounded() bool { return w.End > 0 }

func (w Window) Contains(id int) bool {
	return id >= w.Start && (w.End == 0 || id <= w.End)
}

// HistoryMessage is one entry of a source channel's history
type HistoryMessage struct {
	ID       int
	HasMedia bool
	Content  Content
}

// Iter yields history oldest first
type Iter interface {
	Next(ctx context.Context) bool
	Value() HistoryMessage
	Err() error
}

// Source opens history iterators over a channel
type Source interface {
	Open(ctx context.Context, channelID int64, w Window) (Iter, error)
}

// RunKind selects the history variant
type RunKind uint8

const (
	RunSendAll RunKind = iota
	RunRange
	RunTillMessage
	RunTillFile
)

func (k RunKind) String() string {
	switch k {
	case RunSendAll:
		return "send_all"
	case RunRange:
		return "range"
	case RunTillMessage:
		return "till_message"
	case RunTillFile:
		return "till_file"
	default:
		return fmt.Sprintf("run(%d)", uint8(k))
	}
}

type pacing struct {
	every    int  // pause after this many forwarded messages
	progress bool // notify the operator at each pause
}

var pacings = map[RunKind]pacing{
	RunSendAll:     {every: 50, progress: true},
	RunRange:       {every: 10},
	RunTillMessage: {every: 10},
	RunTillFile:    {every: 5},
}

// Job describes one historical run
type Job struct {
	UserID    int64
	Kind      RunKind
	Source    int64
	Target    int64
	Window    Window
	FileLimit int // RunTillFile only
}

// Summary is the result of a run
type Summary struct {
	Forwarded int
	Failed    int
	Skipped   int
	Stopped   bool
	Err       error
}

// Control is the per-operator run state the forwarder reads and updates
type Control interface {
	ResetStop(userID int64)
	ConsumeStop(userID int64) bool
	AddForwarded(userID int64, n int64)
	Persist(ctx context.Context, userID int64) error
}

// Notifier reports run progress to the operator
type Notifier interface {
	Notify(userID int64, text string)
}

// Forwarder replicates historical messages from source to target
type Forwarder struct {
	rep      *Replicator
	control  Control
	notifier Notifier
	logger   *zap.Logger
	pause    time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewForwarder creates a history forwarder
func NewForwarder(rep *Replicator, control Control, notifier Notifier, logger *zap.Logger) *Forwarder {
	return &Forwarder{
		rep:      rep,
		control:  control,
		notifier: notifier,
		logger:   logger,
		pause:    time.Second,
		sleep:    Sleep,
	}
}

// Run drains it into the job's target. Per-message failures are counted and
// never abort the run; a stop request ends it before the next message.
func (f *Forwarder) Run(ctx context.Context, job Job, it Iter) Summary {
	log := f.logger.With(
		zap.Int64("user_id", job.UserID),
		zap.Stringer("kind", job.Kind),
		zap.Int64("source", job.Source),
		zap.Int64("target", job.Target),
	)
	p := pacings[job.Kind]
	var sum Summary

	f.control.ResetStop(job.UserID)
	log.Info("History run started", zap.Int("start", job.Window.Start), zap.Int("end", job.Window.End))

loop:
	for it.Next(ctx) {
		if f.control.ConsumeStop(job.UserID) {
			sum.Stopped = true
			break
		}

		msg := it.Value()
		if job.Kind == RunTillFile && !msg.HasMedia {
			continue
		}

		out, stopped := f.deliver(ctx, job, msg)
		if stopped {
			sum.Stopped = true
			break
		}

		switch out.Kind {
		case KindSuccess:
			sum.Forwarded++
			f.control.AddForwarded(job.UserID, 1)
		case KindNotFound:
			sum.Skipped++
		default:
			if ctx.Err() != nil {
				break loop
			}
			sum.Failed++
			log.Debug("Message not replicated", zap.Int("message_id", msg.ID), zap.String("error", out.Error()))
		}

		if job.Kind == RunTillFile && sum.Forwarded >= job.FileLimit {
			break
		}

		if out.OK() && p.every > 0 && sum.Forwarded%p.every == 0 {
			if p.progress {
				f.notifier.Notify(job.UserID, fmt.Sprintf("📤 Progress: %d forwarded, %d failed", sum.Forwarded, sum.Failed))
			}
			if err := f.sleep(ctx, f.pause); err != nil {
				break
			}
		}
	}

	if err := it.Err(); err != nil && !errors.Is(err, context.Canceled) {
		sum.Err = err
		log.Error("History iteration failed", zap.Error(err))
	}

	if err := f.control.Persist(context.WithoutCancel(ctx), job.UserID); err != nil {
		log.Error("Failed to persist forward count", zap.Error(err))
	}

	log.Info("History run finished",
		zap.Int("forwarded", sum.Forwarded),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped),
		zap.Bool("stopped", sum.Stopped),
	)
	f.notifier.Notify(job.UserID, summaryText(job, sum))
	return sum
}

// deliver retries the same message while rate limited. It reports stopped
// when a stop request arrives during a backoff.
func (f *Forwarder) deliver(ctx context.Context, job Job, msg HistoryMessage) (Outcome, bool) {
	env := Envelope{From: job.Source, MessageID: msg.ID, Content: msg.Content}
	for {
		out := f.rep.Replicate(env, job.Target)
		if out.Kind != KindRateLimited {
			return out, false
		}

		f.notifier.Notify(job.UserID, fmt.Sprintf("⏳ Rate limited. Waiting %d seconds...", int(out.RetryAfter.Seconds())))
		if err := f.sleep(ctx, out.RetryAfter); err != nil {
			return Failed(err), false
		}
		if f.control.ConsumeStop(job.UserID) {
			return Outcome{}, true
		}
	}
}

func summaryText(job Job, sum Summary) string {
	var title string
	switch {
	case sum.Stopped:
		title = "⏹ Forwarding stopped"
	case sum.Err != nil:
		title = "⚠️ Forwarding interrupted"
	default:
		title = "✅ Forwarding complete"
	}

	unit := "messages"
	if job.Kind == RunTillFile {
		unit = "files"
	}

	text := fmt.Sprintf("%s\n\nForwarded: %d %s\nFailed: %d", title, sum.Forwarded, unit, sum.Failed)
	if sum.Skipped > 0 {
		text += fmt.Sprintf("\nSkipped (missing): %d", sum.Skipped)
	}
	if sum.Err != nil {
		text += "\nError: " + sum.Err.Error()
	}
	return text
}
