package tokens

import (
	"context"
	"net/http"
	"sync"
	"time"
)

const (
	// IDTokenCookieName holds the identity token
	IDTokenCookieName = "id_token"
	// AccessTokenCookieName holds the access token
	AccessTokenCookieName = "access_token"
)

// CookieOptions controls the attributes of the token cookies
type CookieOptions struct {
	Secure bool
	Domain string
	MaxAge time.Duration
}

// CookieProvider keeps the token pair in browser cookies
type CookieProvider struct {
	opts CookieOptions
}

// NewCookieProvider creates a cookie-backed provider
func NewCookieProvider(opts CookieOptions) *CookieProvider {
	return &CookieProvider{opts: opts}
}

// ForRequest returns a store reading the request's cookies and writing removals to w
func (p *CookieProvider) ForRequest(w http.ResponseWriter, r *http.Request) Store {
	return &CookieStore{w: w, r: r, opts: p.opts}
}

// Save writes both token cookies
func (p *CookieProvider) Save(_ context.Context, w http.ResponseWriter, _ *http.Request, pair Pair) error {
	http.SetCookie(w, p.cookie(IDTokenCookieName, pair.IDToken, int(p.opts.MaxAge.Seconds())))
	http.SetCookie(w, p.cookie(AccessTokenCookieName, pair.AccessToken, int(p.opts.MaxAge.Seconds())))
	return nil
}

func (p *CookieProvider) cookie(name, value string, maxAge int) *http.Cookie {
	return cookie(p.opts, name, value, maxAge)
}

// CookieStore is the token store of a single HTTP request
type CookieStore struct {
	w    http.ResponseWriter
	r    *http.Request
	opts CookieOptions

	mu      sync.Mutex
	removed bool
}

// IDToken returns the identity token cookie value
func (s *CookieStore) IDToken(context.Context) (string, error) {
	return s.read(IDTokenCookieName), nil
}

// AccessToken returns the access token cookie value
func (s *CookieStore) AccessToken(context.Context) (string, error) {
	return s.read(AccessTokenCookieName), nil
}

// RemoveAuthTokens expires both cookies on the response
func (s *CookieStore) RemoveAuthTokens(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return nil
	}
	s.removed = true
	http.SetCookie(s.w, cookie(s.opts, IDTokenCookieName, "", -1))
	http.SetCookie(s.w, cookie(s.opts, AccessTokenCookieName, "", -1))
	return nil
}

// HasAuthTokens reports whether both cookies are present
func (s *CookieStore) HasAuthTokens(context.Context) bool {
	return s.read(IDTokenCookieName) != "" && s.read(AccessTokenCookieName) != ""
}

func (s *CookieStore) read(name string) string {
	s.mu.Lock()
	removed := s.removed
	s.mu.Unlock()
	if removed {
		return ""
	}
	c, err := s.r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func cookie(opts CookieOptions, name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   opts.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
