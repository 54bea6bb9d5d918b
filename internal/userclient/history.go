package userclient

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"go.uber.org/zap"

	"forwarder/internal/forward"
)

// historyAPI is the slice of tg.Client the iterator calls
type historyAPI interface {
	MessagesGetHistory(ctx context.Context, request *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error)
}

// historyIter pages through a channel oldest first. Each request asks for
// the batch of messages at or above the next unseen ID (negative add_offset)
// and the page is re-sorted ascending.
type historyIter struct {
	api    historyAPI
	peer   tg.InputPeerClass
	w      forward.Window
	batch  int
	sleep  func(ctx context.Context, d time.Duration) error
	logger *zap.Logger

	buf  []forward.HistoryMessage
	last int // highest message ID fetched so far
	done bool
	cur  forward.HistoryMessage
	err  error
}

func newHistoryIter(api historyAPI, peer tg.InputPeerClass, w forward.Window, batch int,
	sleep func(ctx context.Context, d time.Duration) error, logger *zap.Logger) *historyIter {
	if w.Start < 1 {
		w.Start = 1
	}
	if batch <= 0 || batch > 100 {
		batch = 100
	}
	return &historyIter{
		api:    api,
		peer:   peer,
		w:      w,
		batch:  batch,
		sleep:  sleep,
		logger: logger,
		last:   w.Start - 1,
	}
}

func (it *historyIter) Next(ctx context.Context) bool {
	for len(it.buf) == 0 {
		if it.done || it.err != nil {
			return false
		}
		if err := it.fetch(ctx); err != nil {
			it.err = err
			return false
		}
	}
	it.cur, it.buf = it.buf[0], it.buf[1:]
	return true
}

func (it *historyIter) Value() forward.HistoryMessage { return it.cur }

func (it *historyIter) Err() error { return it.err }

func (it *historyIter) fetch(ctx context.Context) error {
	req := &tg.MessagesGetHistoryRequest{
		Peer:      it.peer,
		OffsetID:  it.last + 1,
		AddOffset: -it.batch,
		Limit:     it.batch,
		MinID:     it.w.Start - 1,
	}
	if it.w.Bounded() {
		req.MaxID = it.w.End + 1
	}

	var res tg.MessagesMessagesClass
	for {
		var err error
		res, err = it.api.MessagesGetHistory(ctx, req)
		if d, ok := floodWait(err); ok {
			it.logger.Info("History flood wait", zap.Duration("retry_after", d))
			if err := it.sleep(ctx, d); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to get history: %w", err)
		}
		break
	}

	msgs := messagesOf(res)
	highest := it.last
	var page []forward.HistoryMessage
	for _, msg := range msgs {
		id := msg.GetID()
		if id <= it.last || !it.w.Contains(id) {
			continue
		}
		if id > highest {
			highest = id
		}
		if m, ok := msg.(*tg.Message); ok {
			page = append(page, convertMessage(m))
		}
	}
	sort.Slice(page, func(i, j int) bool { return page[i].ID < page[j].ID })

	if highest == it.last || len(msgs) < it.batch || (it.w.Bounded() && highest >= it.w.End) {
		it.done = true
	}
	it.last = highest
	it.buf = page
	return nil
}

func messagesOf(res tg.MessagesMessagesClass) []tg.MessageClass {
	switch v := res.(type) {
	case *tg.MessagesMessages:
		return v.Messages
	case *tg.MessagesMessagesSlice:
		return v.Messages
	case *tg.MessagesChannelMessages:
		return v.Messages
	default:
		return nil
	}
}

func floodWait(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	return tgerr.AsFloodWait(err)
}
