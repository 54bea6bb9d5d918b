package userclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gotd/td/session"
)

// ErrBadCredential is returned for strings that are neither an exported
// session nor a Telethon string session
var ErrBadCredential = errors.New("unrecognized session string")

// memoryStorage implements session.Storage over a byte slice
type memoryStorage struct {
	mu   sync.Mutex
	data []byte
}

func (s *memoryStorage) LoadSession(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.data) == 0 {
		return nil, session.ErrNotFound
	}
	return append([]byte(nil), s.data...), nil
}

func (s *memoryStorage) StoreSession(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = append([]byte(nil), data...)
	return nil
}

func (s *memoryStorage) bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...)
}

// EncodeCredential exports raw session bytes as a copyable string
func EncodeCredential(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeCredential turns an operator-supplied session string into raw
// session bytes. Telethon string sessions (version prefix "1") are converted;
// anything else must be a string produced by EncodeCredential.
func DecodeCredential(ctx context.Context, credential string) ([]byte, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrBadCredential
	}

	if strings.HasPrefix(credential, "1") {
		data, err := session.TelethonSession(credential)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadCredential, err)
		}
		store := &memoryStorage{}
		loader := session.Loader{Storage: store}
		if err := loader.Save(ctx, data); err != nil {
			return nil, fmt.Errorf("failed to convert telethon session: %w", err)
		}
		return store.bytes(), nil
	}

	raw, err := base64.StdEncoding.DecodeString(credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCredential, err)
	}
	if !json.Valid(raw) {
		return nil, ErrBadCredential
	}
	return raw, nil
}
