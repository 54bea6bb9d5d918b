package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"forwarder/internal/forward"
	"forwarder/internal/models"
	"forwarder/internal/session"
	"forwarder/internal/storage/stubs"
	"forwarder/internal/userclient"
)

const (
	operatorID = int64(100)
	botID      = int64(999)
	sourceID   = int64(-1001111111111)
	targetID   = int64(-1002222222222)
)

// fakeAPI records outgoing calls and serves chats and memberships from maps
type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	copies   []tgbotapi.CopyMessageConfig
	chats    map[string]tgbotapi.Chat
	members  map[int64]string
	nextID   int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{chats: make(map[string]tgbotapi.Chat), members: make(map[int64]string)}
}

func (f *fakeAPI) addChannel(username string, id int64, status string) {
	chat := tgbotapi.Chat{ID: id, Type: "channel", Title: "Channel " + username, UserName: username}
	f.chats[strconv.FormatInt(id, 10)] = chat
	if username != "" {
		f.chats["@"+username] = chat
	}
	f.members[id] = status
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) CopyMessage(c tgbotapi.CopyMessageConfig) (tgbotapi.MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies = append(f.copies, c)
	f.nextID++
	return tgbotapi.MessageID{MessageID: f.nextID}, nil
}

func (f *fakeAPI) GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error) {
	key := config.SuperGroupUsername
	if key == "" {
		key = strconv.FormatInt(config.ChatID, 10)
	}
	chat, ok := f.chats[key]
	if !ok {
		return tgbotapi.Chat{}, &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}
	}
	return chat, nil
}

func (f *fakeAPI) GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	return tgbotapi.ChatMember{User: &tgbotapi.User{ID: config.UserID}, Status: f.members[config.ChatID]}, nil
}

func (f *fakeAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) GetWebhookInfo() (tgbotapi.WebhookInfo, error) { return tgbotapi.WebhookInfo{}, nil }

// texts returns the text of every message sent or edited, in order
func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeAPI) lastText() string {
	texts := f.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (f *fakeAPI) copiedIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int
	for _, c := range f.copies {
		ids = append(ids, c.MessageID)
	}
	return ids
}

// fakeAccounts stands in for the user session manager
type fakeAccounts struct {
	source     forward.Source
	sourceErr  error
	codeErr    error
	credential string
	account    userclient.Account
	codes      []string
	forgotten  []int64
}

func (a *fakeAccounts) Source(ctx context.Context, userID int64, credential, phone string) (forward.Source, error) {
	return a.source, a.sourceErr
}

func (a *fakeAccounts) SubmitCode(ctx context.Context, userID int64, code string) (string, userclient.Account, error) {
	a.codes = append(a.codes, code)
	if a.codeErr != nil {
		return "", userclient.Account{}, a.codeErr
	}
	return a.credential, a.account, nil
}

func (a *fakeAccounts) SubmitPassword(ctx context.Context, userID int64, password string) (string, userclient.Account, error) {
	return a.credential, a.account, nil
}

func (a *fakeAccounts) Import(ctx context.Context, userID int64, credential string) (string, userclient.Account, error) {
	if a.codeErr != nil {
		return "", userclient.Account{}, a.codeErr
	}
	return a.credential, a.account, nil
}

func (a *fakeAccounts) Forget(userID int64) { a.forgotten = append(a.forgotten, userID) }

// syncRunner runs tasks inline so tests observe their effects immediately
type syncRunner struct{}

func (syncRunner) Submit(task func()) error {
	task()
	return nil
}

type fixture struct {
	bot      *Bot
	api      *fakeAPI
	db       *stubs.MockDB
	sessions *session.Registry
	accounts *fakeAccounts
}

func newFixture(t *testing.T, allowed ...int64) *fixture {
	t.Helper()
	logger := zap.NewNop()
	api := newFakeAPI()
	db := stubs.NewMockDB()
	reg := session.NewRegistry(db, logger)
	rep := forward.NewReplicator(api, logger)
	accounts := &fakeAccounts{}

	b := NewBot(Deps{
		API:      api,
		SelfID:   botID,
		Sessions: reg,
		Accounts: accounts,
		History:  forward.NewForwarder(rep, reg, NewNotifier(api, logger), logger),
		Relay:    forward.NewRelay(reg, rep, logger),
		Runner:   syncRunner{},
	}, allowed, logger)
	t.Cleanup(b.Shutdown)

	return &fixture{bot: b, api: api, db: db, sessions: reg, accounts: accounts}
}

// seed stores a session before the registry first sees the operator
func (f *fixture) seed(t *testing.T, s models.Session) {
	t.Helper()
	require.NoError(t, f.db.SaveSession(context.Background(), s))
}

func (f *fixture) session(t *testing.T) models.Session {
	t.Helper()
	s, err := f.sessions.Get(context.Background(), operatorID)
	require.NoError(t, err)
	return s
}

func (f *fixture) text(userID int64, text string) {
	f.bot.HandleUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		Text:      text,
	}})
}

func (f *fixture) command(userID int64, cmd string) {
	f.bot.HandleUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		Text:      cmd,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}})
}

func (f *fixture) click(userID int64, data string) {
	f.bot.HandleUpdate(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "query",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{MessageID: 50, Chat: &tgbotapi.Chat{ID: userID, Type: "private"}},
		Data:    data,
	}})
}

func configured(mode models.Mode) models.Session {
	s := models.NewSession(operatorID)
	s.SourceChannel = sourceID
	s.TargetChannel = targetID
	s.Mode = mode
	return s
}

func TestBot_StartWithEmptyAllowListShowsMenu(t *testing.T) {
	f := newFixture(t)

	f.command(operatorID, "/start")

	require.Len(t, f.api.sent, 1)
	msg, ok := f.api.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Contains(t, msg.Text, "Telegram Forwarder Bot")
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.NotEmpty(t, markup.InlineKeyboard)
	assert.Equal(t, cbSetSource, *markup.InlineKeyboard[0][0].CallbackData)
}

func TestBot_UnauthorizedUserCannotMutate(t *testing.T) {
	f := newFixture(t, operatorID)
	stranger := int64(200)

	f.command(stranger, "/start")
	f.click(stranger, cbSetSource)
	f.text(stranger, "@news")
	f.command(stranger, "/fix")

	assert.Zero(t, f.db.Saves())
	assert.Empty(t, f.sessions.Snapshot())
	for _, text := range f.api.texts() {
		assert.Contains(t, text, "not authorized")
	}
}

func TestBot_AllowListedOperatorIsServed(t *testing.T) {
	f := newFixture(t, operatorID)

	f.click(operatorID, cbSetSource)

	assert.Equal(t, models.ModeAwaitingSource, f.session(t).Mode)
	assert.Contains(t, f.api.lastText(), "Set Source Channel")
}

func TestBot_MalformedRangeDoesNotForward(t *testing.T) {
	inputs := []string{"abc", "1 2 3", "5 x", "10 5", "0", "-3 7", ""}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, configured(models.ModeIdle))

			f.click(operatorID, cbModeRange)
			require.Equal(t, models.ModeAwaitingRange, f.session(t).Mode)

			f.text(operatorID, input)

			assert.Empty(t, f.api.copies)
			assert.Equal(t, models.ModeIdle, f.session(t).Mode)
			assert.Contains(t, f.api.lastText(), "❌")
		})
	}
}

func TestBot_TillMessageForwardsAscending(t *testing.T) {
	f := newFixture(t)
	f.seed(t, configured(models.ModeIdle))

	f.click(operatorID, cbModeTillMsg)
	f.text(operatorID, "5")

	assert.Equal(t, []int{1, 2, 3, 4, 5}, f.api.copiedIDs())
	for _, c := range f.api.copies {
		assert.Equal(t, sourceID, c.FromChatID)
		assert.Equal(t, targetID, c.ChatID)
	}

	stored, err := f.db.GetSession(context.Background(), operatorID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stored.ForwardCount)
	assert.Equal(t, models.ModeIdle, stored.Mode)
	assert.Contains(t, f.api.lastText(), "Forwarded: 5 messages")
	assert.False(t, f.sessions.Running(operatorID))
}

func TestBot_RangeWithEnd(t *testing.T) {
	f := newFixture(t)
	f.seed(t, configured(models.ModeAwaitingRange))

	f.text(operatorID, "3 6")

	assert.Equal(t, []int{3, 4, 5, 6}, f.api.copiedIDs())
}

func TestBot_SendAllWithoutCredentialsAsksForPhone(t *testing.T) {
	f := newFixture(t)
	f.seed(t, configured(models.ModeIdle))

	f.click(operatorID, cbModeSendAll)

	assert.Empty(t, f.api.copies)
	assert.Contains(t, f.api.lastText(), "Phone number not set")
	assert.False(t, f.sessions.Running(operatorID))
}

// revokedSource behaves like a user session the platform has signed out
type revokedSource struct{}

func (revokedSource) Open(ctx context.Context, channelID int64, w forward.Window) (forward.Iter, error) {
	return nil, userclient.ErrUnauthorized
}

// fullRunner refuses every task like a saturated pool
type fullRunner struct{}

func (fullRunner) Submit(task func()) error { return errors.New("too many goroutines blocked on submit or Nonblocking is set") }

func TestBot_SendAllRefusedKeepsLiveMode(t *testing.T) {
	f := newFixture(t)
	f.seed(t, configured(models.ModeLive))
	require.NoError(t, f.sessions.BeginRun(context.Background(), operatorID))

	f.click(operatorID, cbModeSendAll)

	assert.Equal(t, models.ModeLive, f.session(t).Mode)
	assert.Contains(t, f.api.lastText(), "already active")
	for _, text := range f.api.texts() {
		assert.NotContains(t, text, "Sending ALL")
	}
}

func TestBot_SendAllWithFullPoolKeepsLiveMode(t *testing.T) {
	f := newFixture(t)
	f.bot.runner = fullRunner{}
	f.seed(t, configured(models.ModeLive))

	f.click(operatorID, cbModeSendAll)

	assert.Equal(t, models.ModeLive, f.session(t).Mode)
	assert.Contains(t, f.api.lastText(), "Too many forwarding runs")
	assert.False(t, f.sessions.Running(operatorID))
}

func TestBot_RevokedUserSessionIsDiscarded(t *testing.T) {
	f := newFixture(t)
	s := configured(models.ModeIdle)
	s.SessionCredential = "credential"
	s.UserPhone = "+15550000000"
	f.seed(t, s)
	f.accounts.source = revokedSource{}

	f.click(operatorID, cbModeSendAll)

	assert.Empty(t, f.api.copies)
	assert.Equal(t, []int64{operatorID}, f.accounts.forgotten)
	assert.Empty(t, f.session(t).SessionCredential)
	assert.Equal(t, "+15550000000", f.session(t).UserPhone)
	assert.Contains(t, f.api.lastText(), "expired")
	assert.False(t, f.sessions.Running(operatorID))
}

func TestBot_SecondRunIsRefused(t *testing.T) {
	f := newFixture(t)
	f.seed(t, configured(models.ModeAwaitingTillMsg))
	require.NoError(t, f.sessions.BeginRun(context.Background(), operatorID))

	f.text(operatorID, "10")

	assert.Empty(t, f.api.copies)
	assert.Contains(t, f.api.lastText(), "already active")
	assert.True(t, f.sessions.Running(operatorID))
}

func TestBot_LoginCodeRequestedForRun(t *testing.T) {
	f := newFixture(t)
	s := configured(models.ModeAwaitingTillMsg)
	s.UserPhone = "+15550100"
	f.seed(t, s)
	f.accounts.sourceErr = userclient.ErrCodeSent

	f.text(operatorID, "10")

	assert.Empty(t, f.api.copies)
	assert.Equal(t, models.ModeAwaitingAuthCode, f.session(t).Mode)
	assert.Contains(t, f.api.lastText(), "Authorization Required")
}

func TestBot_ModesRequireChannels(t *testing.T) {
	f := newFixture(t)

	f.click(operatorID, cbModes)

	require.Len(t, f.api.requests, 1)
	callback, ok := f.api.requests[0].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.True(t, callback.ShowAlert)
	assert.Contains(t, callback.Text, "set source and target")
	assert.Empty(t, f.api.sent)
}

func TestBot_NonAdminChannelIsRejected(t *testing.T) {
	f := newFixture(t)
	f.seed(t, configured(models.ModeAwaitingSource))
	f.api.addChannel("news", -1005555555555, "member")

	f.text(operatorID, "@news")

	s := f.session(t)
	assert.Equal(t, sourceID, s.SourceChannel)
	assert.Equal(t, models.ModeIdle, s.Mode)
	assert.Contains(t, f.api.lastText(), "not admin in source channel")
}

func TestBot_UnknownChannelIsRejected(t *testing.T) {
	f := newFixture(t)
	f.seed(t, configured(models.ModeAwaitingTarget))

	f.text(operatorID, "-1009999999999")

	s := f.session(t)
	assert.Equal(t, targetID, s.TargetChannel)
	assert.Equal(t, models.ModeIdle, s.Mode)
	assert.Contains(t, f.api.lastText(), "Channel not found")
}

func TestBot_AdminChannelIsStored(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "username", input: "@news"},
		{name: "link", input: "https://t.me/news"},
		{name: "numeric", input: "-1005555555555"},
		{name: "positive short id", input: "5555555555"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, configured(models.ModeAwaitingTarget))
			f.api.addChannel("news", -1005555555555, "administrator")

			f.text(operatorID, tt.input)

			s := f.session(t)
			assert.Equal(t, int64(-1005555555555), s.TargetChannel)
			assert.Equal(t, models.ModeIdle, s.Mode)
			assert.Contains(t, f.api.lastText(), "Target channel set")
		})
	}
}

func TestBot_ForwardedMessageSetsSource(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.Session{UserID: operatorID, Mode: models.ModeAwaitingSource})
	f.api.addChannel("", -1006666666666, "creator")

	f.bot.HandleUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID:       1,
		From:            &tgbotapi.User{ID: operatorID},
		Chat:            &tgbotapi.Chat{ID: operatorID, Type: "private"},
		Text:            "some post",
		ForwardFromChat: &tgbotapi.Chat{ID: -1006666666666, Type: "channel"},
	}})

	assert.Equal(t, int64(-1006666666666), f.session(t).SourceChannel)
}

func TestBot_InvalidPhoneResetsToIdle(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.Session{UserID: operatorID, Mode: models.ModeAwaitingPhone})

	f.text(operatorID, "1234567890")

	s := f.session(t)
	assert.Equal(t, models.ModeIdle, s.Mode)
	assert.Empty(t, s.UserPhone)
	assert.Contains(t, f.api.lastText(), "Invalid phone number format")
}

func TestBot_PhoneIsStored(t *testing.T) {
	f := newFixture(t)
	s := models.Session{UserID: operatorID, Mode: models.ModeAwaitingPhone, UserPhone: "+1999", SessionCredential: "old"}
	f.seed(t, s)

	f.text(operatorID, "+1 555 0100")

	got := f.session(t)
	assert.Equal(t, "+15550100", got.UserPhone)
	assert.Empty(t, got.SessionCredential)
	assert.Equal(t, models.ModeIdle, got.Mode)
	assert.Equal(t, []int64{operatorID}, f.accounts.forgotten)
}

func TestBot_AuthCodeWithoutPendingLoginKeepsMode(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.Session{UserID: operatorID, Mode: models.ModeAwaitingAuthCode, UserPhone: "+15550100"})
	f.accounts.codeErr = userclient.ErrNoPendingLogin

	f.text(operatorID, "12 345")

	assert.Equal(t, models.ModeAwaitingAuthCode, f.session(t).Mode)
	assert.Contains(t, f.api.lastText(), "Login expired")
}

func TestBot_AuthCodeStoresCredential(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.Session{UserID: operatorID, Mode: models.ModeAwaitingAuthCode, UserPhone: "+15550100"})
	f.accounts.credential = "eyJjcmVkIjoxfQ=="
	f.accounts.account = userclient.Account{Phone: "+15550100", Name: "Ada"}

	f.text(operatorID, "12-345")

	assert.Equal(t, []string{"12345"}, f.accounts.codes)
	s := f.session(t)
	assert.Equal(t, "eyJjcmVkIjoxfQ==", s.SessionCredential)
	assert.Equal(t, models.ModeIdle, s.Mode)
	assert.Contains(t, f.api.lastText(), "eyJjcmVkIjoxfQ==")
}

func TestBot_AuthCodeNeedsPassword(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.Session{UserID: operatorID, Mode: models.ModeAwaitingAuthCode})
	f.accounts.codeErr = userclient.ErrPasswordNeeded

	f.text(operatorID, "12345")

	assert.Equal(t, models.ModeAwaitingPassword, f.session(t).Mode)
}

func TestBot_FailedImportResetsToIdle(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.Session{UserID: operatorID, Mode: models.ModeAwaitingSessionString})
	f.accounts.codeErr = userclient.ErrBadCredential

	f.text(operatorID, "garbage")

	s := f.session(t)
	assert.Equal(t, models.ModeIdle, s.Mode)
	assert.Empty(t, s.SessionCredential)
	assert.Contains(t, f.api.lastText(), "Error importing session")
}

func TestBot_FixIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.Session{UserID: operatorID, SourceChannel: 1234567890, TargetChannel: -1009876543210})

	f.command(operatorID, "/fix")

	s := f.session(t)
	assert.Equal(t, int64(-1001234567890), s.SourceChannel)
	assert.Equal(t, int64(-1009876543210), s.TargetChannel)
	assert.Contains(t, f.api.lastText(), "1234567890 → -1001234567890")

	saves := f.db.Saves()
	f.command(operatorID, "/fix")

	again := f.session(t)
	assert.Equal(t, s, again)
	assert.Equal(t, saves, f.db.Saves())
	assert.Contains(t, f.api.lastText(), "already correct")
}

func TestBot_StopRequestsRunCancellation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, configured(models.ModeLive))
	require.NoError(t, f.sessions.BeginRun(context.Background(), operatorID))

	f.click(operatorID, cbModeStop)

	assert.Equal(t, models.ModeIdle, f.session(t).Mode)
	assert.True(t, f.sessions.ConsumeStop(operatorID))
}

func TestBot_LiveRelay(t *testing.T) {
	f := newFixture(t)
	f.seed(t, configured(models.ModeIdle))

	f.click(operatorID, cbModeLive)
	require.Equal(t, models.ModeLive, f.session(t).Mode)

	f.bot.HandleUpdate(tgbotapi.Update{ChannelPost: &tgbotapi.Message{
		MessageID: 7,
		Chat:      &tgbotapi.Chat{ID: sourceID, Type: "channel"},
		Text:      "fresh post",
	}})

	var relayed []tgbotapi.MessageConfig
	for _, c := range f.api.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok && m.ChatID == targetID {
			relayed = append(relayed, m)
		}
	}
	require.Len(t, relayed, 1)
	assert.Equal(t, "fresh post", relayed[0].Text)

	stored, err := f.db.GetSession(context.Background(), operatorID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ForwardCount)
}

func TestBot_TextOutsideInputModeIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.seed(t, configured(models.ModeIdle))
	saves := f.db.Saves()

	f.text(operatorID, "hello")

	assert.Empty(t, f.api.sent)
	assert.Equal(t, saves, f.db.Saves())
}

func TestInputTable_CoversEveryInputMode(t *testing.T) {
	f := newFixture(t)

	for _, m := range models.Modes() {
		_, ok := f.bot.inputs[m]
		assert.Equal(t, m.AwaitingInput(), ok, m.String())
	}
}

func TestButtonTable_CoversEveryKeyboard(t *testing.T) {
	f := newFixture(t)
	keyboards := []tgbotapi.InlineKeyboardMarkup{
		mainMenuKeyboard(), modesKeyboard(), backKeyboard(), backToModesKeyboard(), phoneKeyboard(),
	}

	for _, kb := range keyboards {
		for _, row := range kb.InlineKeyboard {
			for _, btn := range row {
				require.NotNil(t, btn.CallbackData)
				_, ok := f.bot.buttons[*btn.CallbackData]
				assert.True(t, ok, *btn.CallbackData)
			}
		}
	}
}

func TestParseChannelRef(t *testing.T) {
	tests := []struct {
		in      string
		want    channelRef
		wantErr bool
	}{
		{in: "@news_feed", want: channelRef{Username: "@news_feed"}},
		{in: "news_feed", want: channelRef{Username: "@news_feed"}},
		{in: "https://t.me/news_feed", want: channelRef{Username: "@news_feed"}},
		{in: "t.me/s/news_feed", want: channelRef{Username: "@news_feed"}},
		{in: "https://t.me/news_feed/42", want: channelRef{Username: "@news_feed"}},
		{in: "https://t.me/c/1234567890/15", want: channelRef{ID: -1001234567890}},
		{in: " -1001234567890 ", want: channelRef{ID: -1001234567890}},
		{in: "1234567890", want: channelRef{ID: -1001234567890}},
		{in: "https://t.me/+AbCdEf", wantErr: true},
		{in: "@no", wantErr: true},
		{in: "not a channel", wantErr: true},
		{in: "   ", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseChannelRef(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "+1234567890", want: "+1234567890", ok: true},
		{in: " +91 98765 43210 ", want: "+919876543210", ok: true},
		{in: "1234567890"},
		{in: "+12ab5678"},
		{in: "+"},
		{in: "+1-234-567"},
	}

	for _, tt := range tests {
		got, ok := normalizePhone(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseRange(t *testing.T) {
	w, err := parseRange("1 500")
	require.NoError(t, err)
	assert.Equal(t, forward.Window{Start: 1, End: 500}, w)

	w, err = parseRange("  42 ")
	require.NoError(t, err)
	assert.Equal(t, forward.Window{Start: 42}, w)
	assert.False(t, w.Bounded())

	for _, bad := range []string{"", "a", "1 2 3", "0 5", "9 3"} {
		_, err := parseRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestNotifier(t *testing.T) {
	api := newFakeAPI()
	NewNotifier(api, zap.NewNop()).Notify(operatorID, "progress")

	require.Len(t, api.sent, 1)
	msg := api.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, operatorID, msg.ChatID)
	assert.True(t, strings.HasPrefix(msg.Text, "progress"))
}
