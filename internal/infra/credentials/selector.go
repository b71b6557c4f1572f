package credentials

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrNoKeySelected is returned when a selector cannot produce a usable key.
var ErrNoKeySelected = errors.New("credentials: no api key selected")

// Selector is the credential-selection capability injected into the
// generation workflow. HasSelectedKey reports whether a usable key is
// currently selected, OpenSelector attempts to (re)select one, and APIKey
// returns the selected key.
type Selector interface {
	HasSelectedKey(ctx context.Context) (bool, error)
	OpenSelector(ctx context.Context) error
	APIKey(ctx context.Context) (string, error)
}

// StaticSelector serves a fixed key from configuration. OpenSelector cannot
// change anything, so it fails whenever the key is absent.
type StaticSelector struct {
	key string
}

func NewStaticSelector(key string) *StaticSelector {
	return &StaticSelector{key: strings.TrimSpace(key)}
}

func (s *StaticSelector) HasSelectedKey(ctx context.Context) (bool, error) {
	return s.key != "", nil
}

func (s *StaticSelector) OpenSelector(ctx context.Context) error {
	if s.key == "" {
		return ErrNoKeySelected
	}
	return nil
}

func (s *StaticSelector) APIKey(ctx context.Context) (string, error) {
	if s.key == "" {
		return "", ErrNoKeySelected
	}
	return s.key, nil
}

// StoreSelector resolves keys from the Postgres store, caching the last
// selected key. OpenSelector discards the cache, re-reads the store, and
// promotes the configured fallback key into the store when the store is
// empty. This is the server-side analog of the host key picker: selection
// happens out of band (cmd/geminikey or the fallback env key) and the
// selector observes it.
type StoreSelector struct {
	store    *Store
	fallback string

	mu     sync.Mutex
	cached string
}

func NewStoreSelector(store *Store, fallbackKey string) *StoreSelector {
	return &StoreSelector{store: store, fallback: strings.TrimSpace(fallbackKey)}
}

func (s *StoreSelector) HasSelectedKey(ctx context.Context) (bool, error) {
	key, err := s.APIKey(ctx)
	if err != nil {
		if errors.Is(err, ErrNoKeySelected) {
			return false, nil
		}
		return false, err
	}
	return key != "", nil
}

func (s *StoreSelector) OpenSelector(ctx context.Context) error {
	s.mu.Lock()
	s.cached = ""
	s.mu.Unlock()

	key, err := s.store.GeminiAPIKey(ctx)
	if err != nil {
		return err
	}
	if key == "" && s.fallback != "" {
		if err := s.store.SetGeminiAPIKey(ctx, s.fallback); err != nil {
			return err
		}
		key = s.fallback
	}
	if key == "" {
		return ErrNoKeySelected
	}

	s.mu.Lock()
	s.cached = key
	s.mu.Unlock()
	return nil
}

func (s *StoreSelector) APIKey(ctx context.Context) (string, error) {
	s.mu.Lock()
	cached := s.cached
	s.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	key, err := s.store.GeminiAPIKey(ctx)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = s.fallback
	}
	if key == "" {
		return "", ErrNoKeySelected
	}

	s.mu.Lock()
	s.cached = key
	s.mu.Unlock()
	return key, nil
}
