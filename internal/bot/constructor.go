package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"forwarder/internal/forward"
)

const connectAttempts = 5

// Connect creates the Bot API client, waiting out flood waits reported while
// the token is checked
func Connect(ctx context.Context, token string, logger *zap.Logger) (*tgbotapi.BotAPI, error) {
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		api, err := tgbotapi.NewBotAPI(token)
		if err == nil {
			logger.Info("Bot created", zap.String("bot_username", api.Self.UserName))
			return api, nil
		}
		lastErr = err

		out := forward.Classify(err)
		if out.Kind != forward.KindRateLimited {
			break
		}
		wait := out.RetryAfter
		if wait <= 0 {
			wait = time.Duration(attempt) * time.Second
		}
		logger.Warn("Flood wait while connecting to Telegram",
			zap.Int("attempt", attempt),
			zap.Duration("retry_after", wait),
		)
		if err := forward.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	logger.Error("Failed to create bot API", zap.Error(lastErr))
	return nil, fmt.Errorf("failed to create bot: %w", lastErr)
}

// NewBot creates a new Telegram bot. An empty allow-list makes every user an
// operator.
func NewBot(deps Deps, allowedUserIDs []int64, logger *zap.Logger) *Bot {
	allowedUsers := make(map[int64]bool)
	for _, id := range allowedUserIDs {
		allowedUsers[id] = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		api:          deps.API,
		selfID:       deps.SelfID,
		sessions:     deps.Sessions,
		accounts:     deps.Accounts,
		history:      deps.History,
		relay:        deps.Relay,
		runner:       deps.Runner,
		allowedUsers: allowedUsers,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
	b.inputs = b.inputTable()
	b.buttons = b.buttonTable()
	return b
}
