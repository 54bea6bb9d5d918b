package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"forwarder/internal/forward"
	"forwarder/internal/models"
	"forwarder/internal/session"
	"forwarder/internal/userclient"
)

// API is the Bot API surface the bot uses. *tgbotapi.BotAPI satisfies it.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	CopyMessage(config tgbotapi.CopyMessageConfig) (tgbotapi.MessageID, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetWebhookInfo() (tgbotapi.WebhookInfo, error)
}

// Accounts manages operators' secondary user sessions. *userclient.Manager
// satisfies it.
type Accounts interface {
	Source(ctx context.Context, userID int64, credential, phone string) (forward.Source, error)
	SubmitCode(ctx context.Context, userID int64, code string) (string, userclient.Account, error)
	SubmitPassword(ctx context.Context, userID int64, password string) (string, userclient.Account, error)
	Import(ctx context.Context, userID int64, credential string) (string, userclient.Account, error)
	Forget(userID int64)
}

// Runner executes historical runs off the update loop. *ants.Pool satisfies it.
type Runner interface {
	Submit(task func()) error
}

// inputHandler consumes the operator's next text message in a given mode
type inputHandler func(ctx context.Context, message *tgbotapi.Message, s models.Session)

// callbackHandler reacts to an inline button
type callbackHandler func(ctx context.Context, query *tgbotapi.CallbackQuery, s models.Session)

// Bot represents the Telegram bot wrapper
type Bot struct {
	api          API
	selfID       int64
	sessions     *session.Registry
	accounts     Accounts
	history      *forward.Forwarder
	relay        *forward.Relay
	runner       Runner
	allowedUsers map[int64]bool
	inputs       map[models.Mode]inputHandler
	buttons      map[string]callbackHandler
	logger       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// Deps groups the collaborators NewBot wires together
type Deps struct {
	API      API
	SelfID   int64
	Sessions *session.Registry
	Accounts Accounts
	History  *forward.Forwarder
	Relay    *forward.Relay
	Runner   Runner
}
