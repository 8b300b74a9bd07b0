// Package credentials stores third-party access tokens outside the user documents.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/99designs/keyring"
)

const serviceName = "synergysphere"

// Token is an access token for an external provider such as GitHub.
type Token struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType,omitempty"`
	Scope       string    `json:"scope,omitempty"`
	Login       string    `json:"login,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ErrNotFound is returned when no token is stored for the user.
var ErrNotFound = errors.New("credential not found")

type Store interface {
	Put(provider, userID string, token Token) error
	Get(provider, userID string) (*Token, error)
	Delete(provider, userID string) error
	Connected(provider, userID string) (bool, error)
}

// KeyringStore keeps tokens in an encrypted keyring, one item per provider and user.
type KeyringStore struct {
	mu   sync.Mutex
	ring keyring.Keyring
}

// OpenKeyringStore opens a file-backed keyring in dir encrypted with password.
func OpenKeyringStore(dir, password string) (*KeyringStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName:      serviceName,
		AllowedBackends:  []keyring.BackendType{keyring.FileBackend},
		FileDir:          dir,
		FilePasswordFunc: keyring.FixedStringPrompt(password),
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewKeyringStore(ring), nil
}

func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

func itemKey(provider, userID string) string {
	return provider + ":" + userID
}

func (s *KeyringStore) Put(provider, userID string, token Token) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.ring.Set(keyring.Item{
		Key:   itemKey(provider, userID),
		Data:  data,
		Label: provider + " token",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", itemKey(provider, userID), err)
	}
	return nil
}

func (s *KeyringStore) Get(provider, userID string) (*Token, error) {
	s.mu.Lock()
	item, err := s.ring.Get(itemKey(provider, userID))
	s.mu.Unlock()
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting credential %q: %w", itemKey(provider, userID), err)
	}

	var token Token
	if err := json.Unmarshal(item.Data, &token); err != nil {
		return nil, fmt.Errorf("decoding credential: %w", err)
	}
	return &token, nil
}

// Delete removes the token. Deleting a missing token is not an error.
func (s *KeyringStore) Delete(provider, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.ring.Remove(itemKey(provider, userID))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", itemKey(provider, userID), err)
	}
	return nil
}

func (s *KeyringStore) Connected(provider, userID string) (bool, error) {
	_, err := s.Get(provider, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
