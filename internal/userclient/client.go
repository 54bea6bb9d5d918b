package userclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/maypok86/otter"
	"go.uber.org/zap"

	"forwarder/internal/forward"
	"forwarder/internal/models"
)

const (
	peerCacheSize  = 1024
	peerCacheTTL   = time.Hour
	dialogPageSize = 100
	maxDialogPages = 50
)

// ErrChannelUnknown is returned when the account cannot see the channel
var ErrChannelUnknown = errors.New("channel not found among the account's dialogs")

// Client is a connected MTProto user session
type Client struct {
	tg     *telegram.Client
	store  *memoryStorage
	peers  otter.Cache[int64, *tg.InputPeerChannel]
	batch  int
	logger *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
	stop      context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// dial connects a client over the given session bytes (nil for a fresh login)
// and keeps it running until Close
func dial(ctx context.Context, cfg Config, data []byte, logger *zap.Logger) (*Client, error) {
	peers, err := otter.MustBuilder[int64, *tg.InputPeerChannel](peerCacheSize).
		WithTTL(peerCacheTTL).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build peer cache: %w", err)
	}

	store := &memoryStorage{data: data}
	client := telegram.NewClient(cfg.AppID, cfg.AppHash, telegram.Options{
		SessionStorage: store,
		Logger:         logger.Named("mtproto"),
	})

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		tg:     client,
		store:  store,
		peers:  peers,
		batch:  cfg.BatchSize,
		logger: logger,
		sleep:  forward.Sleep,
		stop:   cancel,
		done:   make(chan struct{}),
	}

	ready := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		defer close(c.done)
		errc <- client.Run(runCtx, func(ctx context.Context) error {
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case <-ready:
		return c, nil
	case err := <-errc:
		cancel()
		peers.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	case <-ctx.Done():
		cancel()
		<-c.done
		peers.Close()
		return nil, ctx.Err()
	}
}

// Close disconnects the client. It is safe to call more than once.
func (c *Client) Close() {
	c.stop()
	<-c.done
	c.closeOnce.Do(c.peers.Close)
}

// Credential exports the current session as a string
func (c *Client) Credential() string {
	return EncodeCredential(c.store.bytes())
}

// Account returns the logged-in user's phone and display name
func (c *Client) Account(ctx context.Context) (Account, error) {
	self, err := c.tg.Self(ctx)
	if err != nil {
		return Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return accountOf(self), nil
}

func (c *Client) authorized(ctx context.Context) (bool, error) {
	status, err := c.tg.Auth().Status(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check authorization: %w", err)
	}
	return status.Authorized, nil
}

// usable reports whether the client is still running and signed in
func (c *Client) usable(ctx context.Context) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	ok, err := c.authorized(ctx)
	if err != nil {
		c.logger.Debug("Authorization check failed", zap.Error(err))
		return false
	}
	return ok
}

// Open implements forward.Source. A revoked session yields ErrUnauthorized.
func (c *Client) Open(ctx context.Context, channelID int64, w forward.Window) (forward.Iter, error) {
	peer, err := c.resolveChannel(ctx, channelID)
	if tgerr.IsCode(err, 401) {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if err != nil {
		return nil, err
	}
	return newHistoryIter(c.tg.API(), peer, w, c.batch, c.sleep, c.logger), nil
}

// resolveChannel finds the access hash for a canonical channel ID by
// scanning the account's dialogs. Every channel seen is cached.
func (c *Client) resolveChannel(ctx context.Context, channelID int64) (*tg.InputPeerChannel, error) {
	if peer, ok := c.peers.Get(channelID); ok {
		return peer, nil
	}

	bare, ok := models.BareChannelID(channelID)
	if !ok {
		return nil, fmt.Errorf("%w: %d is not a channel ID", ErrChannelUnknown, channelID)
	}

	api := c.tg.API()
	offsetDate := 0
	for page := 0; page < maxDialogPages; page++ {
		res, err := api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetDate: offsetDate,
			OffsetPeer: &tg.InputPeerEmpty{},
			Limit:      dialogPageSize,
		})
		if d, ok := floodWait(err); ok {
			if err := c.sleep(ctx, d); err != nil {
				return nil, err
			}
			page--
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list dialogs: %w", err)
		}

		var (
			chats    []tg.ChatClass
			messages []tg.MessageClass
			dialogs  int
		)
		switch d := res.(type) {
		case *tg.MessagesDialogs:
			chats, messages, dialogs = d.Chats, d.Messages, len(d.Dialogs)
		case *tg.MessagesDialogsSlice:
			chats, messages, dialogs = d.Chats, d.Messages, len(d.Dialogs)
		default:
			return nil, ErrChannelUnknown
		}

		var found *tg.InputPeerChannel
		for _, chat := range chats {
			channel, ok := chat.(*tg.Channel)
			if !ok {
				continue
			}
			peer := &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}
			if canonical, ok := models.NormalizeChannelID(channel.ID); ok {
				c.peers.Set(canonical, peer)
			}
			if channel.ID == bare {
				found = peer
			}
		}
		if found != nil {
			return found, nil
		}

		next := oldestDate(messages)
		if dialogs < dialogPageSize || next == 0 || next == offsetDate {
			break
		}
		offsetDate = next
	}
	return nil, fmt.Errorf("%w: %d", ErrChannelUnknown, channelID)
}

func oldestDate(messages []tg.MessageClass) int {
	oldest := 0
	for _, msg := range messages {
		var date int
		switch m := msg.(type) {
		case *tg.Message:
			date = m.Date
		case *tg.MessageService:
			date = m.Date
		default:
			continue
		}
		if oldest == 0 || date < oldest {
			oldest = date
		}
	}
	return oldest
}

func accountOf(u *tg.User) Account {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	phone := u.Phone
	if phone != "" && phone[0] != '+' {
		phone = "+" + phone
	}
	return Account{Phone: phone, Name: name, Username: u.Username}
}
