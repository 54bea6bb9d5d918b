package forward

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"forwarder/internal/models"
)

func newRelayFixture(sessions ...models.Session) (*Relay, *mockSender, *fakeSessions, *sleepRecorder) {
	sender := &mockSender{}
	sleeper := &sleepRecorder{}
	rep := NewReplicator(sender, zap.NewNop())
	rep.sleep = sleeper.sleep
	fs := &fakeSessions{fakeControl: newFakeControl(), sessions: sessions}
	return NewRelay(fs, rep, zap.NewNop()), sender, fs, sleeper
}

func channelPost(chatID int64, id int, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: id,
		Chat:      &tgbotapi.Chat{ID: chatID, Type: "channel"},
		Text:      text,
	}
}

func liveSession(userID, source, target int64) models.Session {
	return models.Session{UserID: userID, SourceChannel: source, TargetChannel: target, Mode: models.ModeLive}
}

func TestRelay_ReplicatesAndCounts(t *testing.T) {
	relay, sender, fs, _ := newRelayFixture(liveSession(1, testSource, testTarget))
	sender.On("Send", mock.Anything).Return(tgbotapi.Message{MessageID: 100}, nil)

	n := relay.Handle(context.Background(), channelPost(testSource, 7, "breaking"))

	assert.Equal(t, 1, n)
	assert.Equal(t, int64(1), fs.count[1])
	assert.Equal(t, 1, fs.persists)

	require.Len(t, sender.Calls, 1)
	msg := sender.Calls[0].Arguments.Get(0).(tgbotapi.MessageConfig)
	assert.Equal(t, testTarget, msg.ChatID)
	assert.Equal(t, "breaking", msg.Text)
}

func TestRelay_MediaIsCopied(t *testing.T) {
	relay, sender, _, _ := newRelayFixture(liveSession(1, testSource, testTarget))
	sender.On("CopyMessage", mock.Anything).Return(tgbotapi.MessageID{MessageID: 100}, nil)

	post := channelPost(testSource, 8, "")
	post.Photo = []tgbotapi.PhotoSize{{FileID: "p"}}

	assert.Equal(t, 1, relay.Handle(context.Background(), post))
	assert.Equal(t, []int{8}, sender.copiedIDs())
}

func TestRelay_SkipsNonMatchingSessions(t *testing.T) {
	relay, sender, fs, _ := newRelayFixture(
		models.Session{UserID: 1, SourceChannel: testSource, TargetChannel: testTarget, Mode: models.ModeIdle},
		models.Session{UserID: 2, SourceChannel: -1005555, TargetChannel: testTarget, Mode: models.ModeLive},
		models.Session{UserID: 3, SourceChannel: testSource, Mode: models.ModeLive},
	)

	assert.Zero(t, relay.Handle(context.Background(), channelPost(testSource, 1, "x")))
	sender.AssertNotCalled(t, "Send", mock.Anything)
	assert.Empty(t, fs.count)
}

func TestRelay_IgnoresPrivateChats(t *testing.T) {
	relay, sender, _, _ := newRelayFixture(liveSession(1, 777, testTarget))

	msg := &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: 777, Type: "private"}, Text: "hi"}
	assert.Zero(t, relay.Handle(context.Background(), msg))
	sender.AssertNotCalled(t, "Send", mock.Anything)
}

func TestRelay_FailureIsolatedPerSession(t *testing.T) {
	const otherTarget = int64(-1002222)
	relay, sender, fs, _ := newRelayFixture(
		liveSession(1, testSource, testTarget),
		liveSession(2, testSource, otherTarget),
	)
	sender.On("Send", mock.MatchedBy(func(c tgbotapi.MessageConfig) bool { return c.ChatID == testTarget })).
		Return(tgbotapi.Message{}, errors.New("target unavailable"))
	sender.On("Send", mock.Anything).Return(tgbotapi.Message{MessageID: 5}, nil)

	assert.Equal(t, 1, relay.Handle(context.Background(), channelPost(testSource, 3, "x")))
	assert.Zero(t, fs.count[1])
	assert.Equal(t, int64(1), fs.count[2])
}

func TestRelay_RetriesRateLimit(t *testing.T) {
	relay, sender, fs, sleeper := newRelayFixture(liveSession(1, testSource, testTarget))
	flood := &tgbotapi.Error{Code: 429, ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 2}}
	sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, flood).Once()
	sender.On("Send", mock.Anything).Return(tgbotapi.Message{MessageID: 5}, nil)

	assert.Equal(t, 1, relay.Handle(context.Background(), channelPost(testSource, 3, "x")))
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeper.slept)
	assert.Equal(t, int64(1), fs.count[1])
}
