package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"forwarder/internal/bot"
	"forwarder/internal/config"
	"forwarder/internal/forward"
	"forwarder/internal/session"
	"forwarder/internal/storage"
	"forwarder/internal/storage/ch"
	"forwarder/internal/storage/jsonfile"
	"forwarder/internal/storage/stubs"
	"forwarder/internal/userclient"
)

// App represents the application
type App struct {
	config   *config.Config
	logger   *zap.Logger
	db       storage.Storage
	sessions *session.Registry
	accounts *userclient.Manager
	pool     *ants.Pool
	bot      *bot.Bot
	server   *http.Server
}

// New creates and initializes a new application instance
func New() (*App, error) {
	// Load .env file if it exists
	envErr := godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if envErr != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	app := &App{config: cfg, logger: logger}

	logger.Info("Starting Telegram forwarder bot...")

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initBot(); err != nil {
		return nil, err
	}

	app.initHTTPServer()

	return app, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// initDatabase opens the configured session store and preloads sessions so
// live relays resume after a restart
func (a *App) initDatabase() error {
	var db storage.Storage
	switch a.config.StorageBackend {
	case config.BackendMemory:
		a.logger.Info("Using in-memory session store")
		db = stubs.NewMockDB()
	case config.BackendClickHouse:
		a.logger.Info("Connecting to ClickHouse",
			zap.String("host", a.config.ClickHouseHost),
			zap.Int("port", a.config.ClickHousePort),
			zap.String("database", a.config.ClickHouseDatabase),
			zap.String("user", a.config.ClickHouseUser),
			zap.Bool("tls", a.config.ClickHouseUseTLS),
		)
		clickhouseDB, err := ch.NewClickHouseDB(
			a.config.ClickHouseHost,
			a.config.ClickHousePort,
			a.config.ClickHouseDatabase,
			a.config.ClickHouseUser,
			a.config.ClickHousePassword,
			a.config.ClickHouseUseTLS,
		)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		db = clickhouseDB
	default:
		a.logger.Info("Using JSON file session store", zap.String("path", a.config.ConfigFile))
		db = jsonfile.NewFileDB(a.config.ConfigFile, a.logger.Named("store"))
	}

	ctx := context.Background()
	if err := db.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = db

	a.sessions = session.NewRegistry(db, a.logger.Named("sessions"))
	n, err := a.sessions.Warm(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}
	a.logger.Info("Database initialized successfully", zap.Int("sessions", n))
	return nil
}

// initBot connects to the Bot API and wires the forwarding pipeline
func (a *App) initBot() error {
	api, err := bot.Connect(context.Background(), a.config.BotToken, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	pool, err := ants.NewPool(a.config.WorkerPoolSize,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			a.logger.Error("Recovered from panic in worker", zap.Any("panic", p))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	a.pool = pool

	a.accounts = userclient.NewManager(userclient.Config{
		AppID:     a.config.APIID,
		AppHash:   a.config.APIHash,
		BatchSize: a.config.HistoryBatchSize,
	}, a.logger.Named("userclient"))
	if !a.config.UserClientEnabled() {
		a.logger.Info("API_ID/API_HASH not set; history runs use the bot account only")
	}

	rep := forward.NewReplicator(api, a.logger.Named("replicator"))
	notifier := bot.NewNotifier(api, a.logger)

	a.bot = bot.NewBot(bot.Deps{
		API:      api,
		SelfID:   api.Self.ID,
		Sessions: a.sessions,
		Accounts: a.accounts,
		History:  forward.NewForwarder(rep, a.sessions, notifier, a.logger.Named("history")),
		Relay:    forward.NewRelay(a.sessions, rep, a.logger.Named("live")),
		Runner:   pool,
	}, a.config.AdminIDs, a.logger)

	if len(a.config.AdminIDs) == 0 {
		a.logger.Warn("ADMIN_IDS is empty, every user is an operator")
	} else {
		a.logger.Info("Bot created successfully", zap.Int64s("admin_ids", a.config.AdminIDs))
	}
	return nil
}

// initHTTPServer initializes the HTTP server for health checks and webhook
func (a *App) initHTTPServer() {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	})

	// Webhook endpoint (only used in webhook mode)
	mux.HandleFunc("/telegram-webhook", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			a.logger.Warn("Error decoding webhook update", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		// Process update in background to respond quickly to Telegram
		go a.bot.HandleUpdate(update)

		w.WriteHeader(http.StatusOK)
	})

	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		a.logger.Info("Starting HTTP server", zap.String("port", a.config.Port))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if a.config.WebhookMode {
		a.logger.Info("Starting bot in WEBHOOK mode", zap.String("webhook_url", a.config.WebhookURL))
		if err := a.bot.StartWebhook(a.config.WebhookURL); err != nil {
			return fmt.Errorf("failed to setup webhook: %w", err)
		}
	} else {
		go func() {
			if err := a.bot.Start(); err != nil {
				a.logger.Error("Polling stopped", zap.Error(err))
			}
		}()
	}

	<-sigChan

	a.logger.Info("Shutting down...")
	return a.Shutdown()
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	// Stop polling and let active runs observe cancellation
	a.bot.Shutdown()
	if err := a.pool.ReleaseTimeout(5 * time.Second); err != nil {
		a.logger.Warn("Worker pool did not drain", zap.Error(err))
	}
	a.accounts.Close()

	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database", zap.Error(err))
		return err
	}

	a.logger.Info("Shutdown complete")
	_ = a.logger.Sync()
	return nil
}
