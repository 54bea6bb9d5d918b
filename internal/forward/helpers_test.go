package forward

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/mock"

	"forwarder/internal/models"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func (m *mockSender) CopyMessage(c tgbotapi.CopyMessageConfig) (tgbotapi.MessageID, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.MessageID), args.Error(1)
}

// copiedIDs lists source message IDs passed to CopyMessage in call order
func (m *mockSender) copiedIDs() []int {
	var ids []int
	for _, call := range m.Calls {
		if call.Method == "CopyMessage" {
			ids = append(ids, call.Arguments.Get(0).(tgbotapi.CopyMessageConfig).MessageID)
		}
	}
	return ids
}

type fakeControl struct {
	mu       sync.Mutex
	stop     map[int64]bool
	count    map[int64]int64
	persists int
}

func newFakeControl() *fakeControl {
	return &fakeControl{stop: map[int64]bool{}, count: map[int64]int64{}}
}

func (c *fakeControl) ResetStop(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stop[userID] = false
}

func (c *fakeControl) RequestStop(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stop[userID] = true
}

func (c *fakeControl) ConsumeStop(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.stop[userID]
	c.stop[userID] = false
	return was
}

func (c *fakeControl) AddForwarded(userID int64, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count[userID] += n
}

func (c *fakeControl) Persist(ctx context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persists++
	return nil
}

type fakeSessions struct {
	*fakeControl
	sessions []models.Session
}

func (s *fakeSessions) Snapshot() []models.Session { return s.sessions }

type recordingNotifier struct {
	texts []string
}

func (n *recordingNotifier) Notify(userID int64, text string) {
	n.texts = append(n.texts, text)
}

type sliceIter struct {
	msgs []HistoryMessage
	pos  int
	err  error
}

func (it *sliceIter) Next(ctx context.Context) bool {
	if it.pos >= len(it.msgs) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIter) Value() HistoryMessage { return it.msgs[it.pos-1] }

func (it *sliceIter) Err() error { return it.err }

type sleepRecorder struct {
	slept []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return ctx.Err()
}
