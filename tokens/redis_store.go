package tokens

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionCookieName carries the opaque session ID when tokens live in Redis
const SessionCookieName = "session"

const sessionKeyPrefix = "dashboard:session:"

// Connect opens a Redis client from a redis:// URL or a bare host:port
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisProvider keeps token pairs server-side in Redis, keyed by a session cookie
type RedisProvider struct {
	client *redis.Client
	opts   CookieOptions
}

// NewRedisProvider creates a Redis-backed provider
func NewRedisProvider(client *redis.Client, opts CookieOptions) *RedisProvider {
	return &RedisProvider{client: client, opts: opts}
}

// Session returns the store for a session ID
func (p *RedisProvider) Session(sessionID uuid.UUID) *RedisStore {
	return &RedisStore{client: p.client, key: sessionKeyPrefix + sessionID.String()}
}

// ForRequest resolves the session cookie. Requests without a usable session
// get a store that reads as empty.
func (p *RedisProvider) ForRequest(w http.ResponseWriter, r *http.Request) Store {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return &RedisStore{}
	}
	sessionID, err := uuid.Parse(c.Value)
	if err != nil {
		return &RedisStore{}
	}
	store := p.Session(sessionID)
	store.onRemove = func() {
		http.SetCookie(w, cookie(p.opts, SessionCookieName, "", -1))
	}
	return store
}

// Save stores the pair under a new session ID and sets the session cookie
func (p *RedisProvider) Save(ctx context.Context, w http.ResponseWriter, r *http.Request, pair Pair) error {
	if old, err := r.Cookie(SessionCookieName); err == nil {
		if oldID, err := uuid.Parse(old.Value); err == nil {
			_ = p.Session(oldID).RemoveAuthTokens(ctx)
		}
	}

	sessionID := uuid.New()
	if err := p.Session(sessionID).SetAuthTokens(ctx, pair, p.opts.MaxAge); err != nil {
		return err
	}
	http.SetCookie(w, cookie(p.opts, SessionCookieName, sessionID.String(), int(p.opts.MaxAge.Seconds())))
	return nil
}

// RedisStore is the store of one session hash
type RedisStore struct {
	client   *redis.Client
	key      string
	onRemove func()
}

// IDToken returns the session's identity token
func (s *RedisStore) IDToken(ctx context.Context) (string, error) {
	return s.field(ctx, "id_token")
}

// AccessToken returns the session's access token
func (s *RedisStore) AccessToken(ctx context.Context) (string, error) {
	return s.field(ctx, "access_token")
}

// RemoveAuthTokens deletes the session hash, removing both tokens at once
func (s *RedisStore) RemoveAuthTokens(ctx context.Context) error {
	if s.onRemove != nil {
		s.onRemove()
	}
	if s.client == nil {
		return nil
	}
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// HasAuthTokens reports whether both tokens are present
func (s *RedisStore) HasAuthTokens(ctx context.Context) bool {
	if s.client == nil {
		return false
	}
	values, err := s.client.HMGet(ctx, s.key, "id_token", "access_token").Result()
	if err != nil || len(values) != 2 {
		return false
	}
	for _, v := range values {
		if str, ok := v.(string); !ok || str == "" {
			return false
		}
	}
	return true
}

// SetAuthTokens writes both tokens and the session expiry in one transaction
func (s *RedisStore) SetAuthTokens(ctx context.Context, pair Pair, ttl time.Duration) error {
	if s.client == nil {
		return ErrStoreUnavailable
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.key, "id_token", pair.IDToken, "access_token", pair.AccessToken)
		p.Expire(ctx, s.key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) field(ctx context.Context, name string) (string, error) {
	if s.client == nil {
		return "", nil
	}
	value, err := s.client.HGet(ctx, s.key, name).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return value, nil
}
