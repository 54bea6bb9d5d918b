// Package userclient manages the optional per-operator user account used to
// read channel history that the bot identity cannot list.
package userclient

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"forwarder/internal/forward"
)

var (
	ErrDisabled       = errors.New("user sessions are not configured (API_ID/API_HASH)")
	ErrNoPhone        = errors.New("phone number not set")
	ErrCodeSent       = errors.New("login code sent")
	ErrNoPendingLogin = errors.New("no pending login")
	ErrPasswordNeeded = errors.New("two-factor password required")
	ErrUnauthorized   = errors.New("session is not authorized")
)

// Config holds the application credentials shared by all user clients
type Config struct {
	AppID     int
	AppHash   string
	BatchSize int
}

// Account describes the logged-in user
type Account struct {
	Phone    string
	Name     string
	Username string
}

type pendingLogin struct {
	client   *Client
	phone    string
	codeHash string
}

// Manager owns one client per operator plus in-flight logins. It is safe for
// concurrent use.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	clients map[int64]*Client
	pending map[int64]*pendingLogin
}

// NewManager creates a manager. A zero AppID disables user sessions.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[int64]*Client),
		pending: make(map[int64]*pendingLogin),
	}
}

func (m *Manager) enabled() bool {
	return m.cfg.AppID != 0 && m.cfg.AppHash != ""
}

// Source returns a history source for the operator. A cached client is reused
// while it is connected and authorized. A stored credential is tried next; if there is none or it is no longer authorized and a phone is
// known, a login code is sent and ErrCodeSent returned.
func (m *Manager) Source(ctx context.Context, userID int64, credential, phone string) (forward.Source, error) {
	if !m.enabled() {
		return nil, ErrDisabled
	}

	m.mu.Lock()
	cached := m.clients[userID]
	m.mu.Unlock()
	if cached != nil {
		if cached.usable(ctx) {
			return cached, nil
		}
		m.logger.Info("Dropping disconnected user client", zap.Int64("user_id", userID))
		m.drop(userID, cached)
	}

	if credential != "" {
		client, _, err := m.connect(ctx, credential)
		switch {
		case err == nil:
			m.store(userID, client)
			return client, nil
		case errors.Is(err, ErrUnauthorized):
			m.logger.Info("Stored session is no longer authorized", zap.Int64("user_id", userID))
		default:
			return nil, err
		}
	}

	if phone == "" {
		return nil, ErrNoPhone
	}
	if err := m.StartLogin(ctx, userID, phone); err != nil {
		return nil, err
	}
	return nil, ErrCodeSent
}

// StartLogin requests a login code for phone
func (m *Manager) StartLogin(ctx context.Context, userID int64, phone string) error {
	if !m.enabled() {
		return ErrDisabled
	}

	client, err := dial(ctx, m.cfg, nil, m.logger.With(zap.Int64("user_id", userID)))
	if err != nil {
		return err
	}

	res, err := client.tg.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to send code: %w", err)
	}
	sent, ok := res.(*tg.AuthSentCode)
	if !ok {
		client.Close()
		return fmt.Errorf("unexpected send code response %T", res)
	}

	m.mu.Lock()
	if old := m.pending[userID]; old != nil {
		old.client.Close()
	}
	m.pending[userID] = &pendingLogin{client: client, phone: phone, codeHash: sent.PhoneCodeHash}
	m.mu.Unlock()

	m.logger.Info("Login code sent", zap.Int64("user_id", userID))
	return nil
}

// SubmitCode completes a pending login and returns the exported credential.
// ErrPasswordNeeded keeps the login pending for SubmitPassword; any other
// failure discards it.
func (m *Manager) SubmitCode(ctx context.Context, userID int64, code string) (string, Account, error) {
	m.mu.Lock()
	p := m.pending[userID]
	m.mu.Unlock()
	if p == nil {
		return "", Account{}, ErrNoPendingLogin
	}

	_, err := p.client.tg.Auth().SignIn(ctx, p.phone, code, p.codeHash)
	if errors.Is(err, auth.ErrPasswordAuthNeeded) {
		return "", Account{}, ErrPasswordNeeded
	}
	if err != nil {
		m.dropPending(userID)
		return "", Account{}, fmt.Errorf("sign in failed: %w", err)
	}
	return m.finishLogin(ctx, userID, p)
}

// SubmitPassword completes a two-factor login
func (m *Manager) SubmitPassword(ctx context.Context, userID int64, password string) (string, Account, error) {
	m.mu.Lock()
	p := m.pending[userID]
	m.mu.Unlock()
	if p == nil {
		return "", Account{}, ErrNoPendingLogin
	}

	if _, err := p.client.tg.Auth().Password(ctx, password); err != nil {
		m.dropPending(userID)
		return "", Account{}, fmt.Errorf("password check failed: %w", err)
	}
	return m.finishLogin(ctx, userID, p)
}

// Import connects with an operator-supplied session string and returns the
// canonical exported credential
func (m *Manager) Import(ctx context.Context, userID int64, credential string) (string, Account, error) {
	if !m.enabled() {
		return "", Account{}, ErrDisabled
	}

	client, account, err := m.connect(ctx, credential)
	if err != nil {
		return "", Account{}, err
	}
	m.store(userID, client)
	return client.Credential(), account, nil
}

// Forget disconnects the operator's client and any pending login
func (m *Manager) Forget(userID int64) {
	m.dropPending(userID)

	m.mu.Lock()
	client := m.clients[userID]
	delete(m.clients, userID)
	m.mu.Unlock()
	if client != nil {
		client.Close()
	}
}

// Close disconnects every client
func (m *Manager) Close() {
	m.mu.Lock()
	clients := make([]*Client, 0, len(m.clients)+len(m.pending))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	for _, p := range m.pending {
		clients = append(clients, p.client)
	}
	m.clients = make(map[int64]*Client)
	m.pending = make(map[int64]*pendingLogin)
	m.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}

func (m *Manager) connect(ctx context.Context, credential string) (*Client, Account, error) {
	data, err := DecodeCredential(ctx, credential)
	if err != nil {
		return nil, Account{}, err
	}

	client, err := dial(ctx, m.cfg, data, m.logger)
	if err != nil {
		return nil, Account{}, err
	}

	ok, err := client.authorized(ctx)
	if err == nil && !ok {
		err = ErrUnauthorized
	}
	if err != nil {
		client.Close()
		return nil, Account{}, err
	}

	account, err := client.Account(ctx)
	if err != nil {
		client.Close()
		return nil, Account{}, err
	}
	return client, account, nil
}

func (m *Manager) finishLogin(ctx context.Context, userID int64, p *pendingLogin) (string, Account, error) {
	m.mu.Lock()
	delete(m.pending, userID)
	m.mu.Unlock()

	account, err := p.client.Account(ctx)
	if err != nil {
		m.logger.Warn("Signed in but failed to read account", zap.Int64("user_id", userID), zap.Error(err))
		account = Account{Phone: p.phone}
	}

	m.store(userID, p.client)
	m.logger.Info("User session authorized", zap.Int64("user_id", userID))
	return p.client.Credential(), account, nil
}

func (m *Manager) store(userID int64, client *Client) {
	m.mu.Lock()
	old := m.clients[userID]
	m.clients[userID] = client
	m.mu.Unlock()

	if old != nil && old != client {
		old.Close()
	}
}

// drop removes client from the cache if it is still the operator's client
func (m *Manager) drop(userID int64, client *Client) {
	m.mu.Lock()
	if m.clients[userID] == client {
		delete(m.clients, userID)
	}
	m.mu.Unlock()
	client.Close()
}

func (m *Manager) dropPending(userID int64) {
	m.mu.Lock()
	p := m.pending[userID]
	delete(m.pending, userID)
	m.mu.Unlock()

	if p != nil {
		p.client.Close()
	}
}
