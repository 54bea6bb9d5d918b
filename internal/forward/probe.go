package forward

import (
	"context"
	"errors"
)

// ErrUnboundedProbe is returned when a run needs history listing that only a
// user session can provide
var ErrUnboundedProbe = errors.New("listing channel history requires a user session")

// ProbeSource walks a bounded ID window with the bot identity alone. It has
// no message metadata, so every ID is copied blindly and gaps surface as
// KindNotFound.
type ProbeSource struct{}

func (ProbeSource) Open(ctx context.Context, channelID int64, w Window) (Iter, error) {
	if !w.Bounded() || w.Start < 1 || w.End < w.Start {
		return nil, ErrUnboundedProbe
	}
	return &probeIter{next: w.Start, end: w.End}, nil
}

type probeIter struct {
	next int
	end  int
	cur  HistoryMessage
	err  error
}

func (it *probeIter) Next(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		it.err = err
		return false
	}
	if it.next > it.end {
		return false
	}
	it.cur = HistoryMessage{ID: it.next}
	it.next++
	return true
}

func (it *probeIter) Value() HistoryMessage { return it.cur }

func (it *probeIter) Err() error { return it.err }
