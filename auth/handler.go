// Package auth implements the OAuth2 login, callback and logout flows that
// write and clear the dashboard's token pair.
package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/threatprofile-gateway/cognito"
	"github.com/upb/threatprofile-gateway/config"
	"github.com/upb/threatprofile-gateway/services"
	"github.com/upb/threatprofile-gateway/tokens"
	"github.com/upb/threatprofile-gateway/utils"
)

const (
	// StateCookieName is the cookie name for OAuth state (CSRF)
	StateCookieName   = "oauth_state"
	stateCookieMaxAge = 600
)

// PairVerifier verifies the signatures and claims of a freshly issued token pair
type PairVerifier interface {
	VerifyPair(ctx context.Context, pair tokens.Pair) (*cognito.ParsedClaims, error)
}

// ProfileInvalidator drops any cached profile for a token pair
type ProfileInvalidator interface {
	Invalidate(pair tokens.Pair)
}

// Handler handles OAuth2 authentication flows (login, callback, logout).
type Handler struct {
	cfg       *config.Config
	exchanger services.TokenExchanger
	verifier  PairVerifier
	provider  tokens.Provider
	profiles  ProfileInvalidator
	logger    *zap.Logger
}

// NewHandler creates a new auth handler. exchanger, verifier and profiles may be nil.
func NewHandler(
	cfg *config.Config,
	exchanger services.TokenExchanger,
	verifier PairVerifier,
	provider tokens.Provider,
	profiles ProfileInvalidator,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		cfg:       cfg,
		exchanger: exchanger,
		verifier:  verifier,
		provider:  provider,
		profiles:  profiles,
		logger:    logger,
	}
}

// HandleLogin redirects to the Cognito hosted UI for OAuth2 authorization
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Cognito.Domain == "" || h.cfg.Cognito.ClientID == "" {
		h.logger.Error("cognito not configured")
		_ = utils.WriteInternalServerError(w, "Authentication not configured")
		return
	}

	state := uuid.NewString()
	http.SetCookie(w, h.stateCookie(state, stateCookieMaxAge))

	authURL := buildAuthURL(h.cfg.Cognito.Domain, h.cfg.Cognito.ClientID, h.cfg.Cognito.RedirectURI, state)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback exchanges the authorization code for the token pair, verifies
// both tokens and persists them through the token provider
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	if code == "" {
		_ = utils.WriteBadRequest(w, "Missing authorization code", nil)
		return
	}
	if state == "" {
		_ = utils.WriteBadRequest(w, "Missing state parameter", nil)
		return
	}

	stateCookie, err := r.Cookie(StateCookieName)
	if err != nil || stateCookie.Value != state {
		_ = utils.WriteBadRequest(w, "Invalid or expired state", nil)
		return
	}
	http.SetCookie(w, h.stateCookie("", -1))

	if h.exchanger == nil || h.verifier == nil {
		h.logger.Error("token exchange not configured")
		_ = utils.WriteInternalServerError(w, "Authentication not configured")
		return
	}

	pair, err := h.exchanger.ExchangeCode(r.Context(), code, h.cfg.Cognito.RedirectURI)
	if err != nil {
		h.logger.Warn("token exchange failed", zap.Error(err))
		_ = utils.WriteUnauthorized(w, "Authentication failed", h.cfg.Guard.LoginPath)
		return
	}

	claims, err := h.verifier.VerifyPair(r.Context(), pair)
	if err != nil {
		h.logger.Warn("token verification failed", zap.Error(err))
		_ = utils.WriteUnauthorized(w, "Invalid token", h.cfg.Guard.LoginPath)
		return
	}

	if err := h.provider.Save(r.Context(), w, r, pair); err != nil {
		h.logger.Error("failed to store tokens", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to start session")
		return
	}

	h.logger.Info("user signed in", zap.String("sub", claims.Sub))
	http.Redirect(w, r, h.frontEnd(h.cfg.Guard.DashboardPath), http.StatusFound)
}

// HandleLogout removes both tokens, drops the cached profile and redirects to
// the Cognito logout endpoint, or to the login page when Cognito is not configured
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	store := h.provider.ForRequest(w, r)

	if h.profiles != nil {
		idToken, _ := store.IDToken(r.Context())
		accessToken, _ := store.AccessToken(r.Context())
		if idToken != "" {
			h.profiles.Invalidate(tokens.Pair{IDToken: idToken, AccessToken: accessToken})
		}
	}

	if err := store.RemoveAuthTokens(r.Context()); err != nil {
		h.logger.Warn("failed to remove tokens", zap.Error(err))
	}

	if h.cfg.Cognito.Domain == "" || h.cfg.Cognito.ClientID == "" {
		http.Redirect(w, r, h.cfg.Guard.LoginPath, http.StatusFound)
		return
	}
	logoutURL := buildLogoutURL(h.cfg.Cognito.Domain, h.cfg.Cognito.ClientID, h.frontEnd(h.cfg.Guard.LoginPath))
	http.Redirect(w, r, logoutURL, http.StatusFound)
}

func (h *Handler) stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     StateCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *Handler) frontEnd(path string) string {
	base := strings.TrimSuffix(h.cfg.Cognito.FrontEndURL, "/")
	if base == "" {
		return path
	}
	return base + path
}

func buildAuthURL(domain, clientID, redirectURI, state string) string {
	base := strings.TrimSuffix(domain, "/") + "/oauth2/authorize"
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"redirect_uri":  {redirectURI},
		"state":         {state},
		"scope":         {"openid email profile"},
	}
	return base + "?" + params.Encode()
}

func buildLogoutURL(domain, clientID, logoutURI string) string {
	base := strings.TrimSuffix(domain, "/") + "/logout"
	params := url.Values{
		"client_id":  {clientID},
		"logout_uri": {logoutURI},
	}
	return base + "?" + params.Encode()
}
