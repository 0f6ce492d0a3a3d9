package tokens

import (
	"context"
	"errors"
	"net/http"
	"sync"
)

// ErrStoreUnavailable is returned by stores that cannot reach their backing storage
var ErrStoreUnavailable = errors.New("token store unavailable")

// Pair is the identity and access token issued together at login
type Pair struct {
	IDToken     string
	AccessToken string
}

// Store is the storage holding the current session's bearer tokens.
// RemoveAuthTokens must remove both tokens in a single call.
type Store interface {
	IDToken(ctx context.Context) (string, error)
	AccessToken(ctx context.Context) (string, error)
	RemoveAuthTokens(ctx context.Context) error
	HasAuthTokens(ctx context.Context) bool
}

// Provider resolves the token store of an HTTP request and persists new pairs after login
type Provider interface {
	ForRequest(w http.ResponseWriter, r *http.Request) Store
	Save(ctx context.Context, w http.ResponseWriter, r *http.Request, pair Pair) error
}

// MemoryStore is a process-wide in-memory store
type MemoryStore struct {
	mu   sync.RWMutex
	pair Pair
}

// NewMemoryStore creates a store seeded with the given pair
func NewMemoryStore(pair Pair) *MemoryStore {
	return &MemoryStore{pair: pair}
}

// IDToken returns the stored identity token, or "" when absent
func (s *MemoryStore) IDToken(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.IDToken, nil
}

// AccessToken returns the stored access token, or "" when absent
func (s *MemoryStore) AccessToken(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.AccessToken, nil
}

// RemoveAuthTokens clears both tokens
func (s *MemoryStore) RemoveAuthTokens(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = Pair{}
	return nil
}

// HasAuthTokens reports whether both tokens are present
func (s *MemoryStore) HasAuthTokens(context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.IDToken != "" && s.pair.AccessToken != ""
}

// SetAuthTokens replaces the stored pair
func (s *MemoryStore) SetAuthTokens(_ context.Context, pair Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = pair
	return nil
}
