package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/threatprofile-gateway/cognito"
	"github.com/upb/threatprofile-gateway/guard"
	"github.com/upb/threatprofile-gateway/models"
	"github.com/upb/threatprofile-gateway/notify"
	"github.com/upb/threatprofile-gateway/profile"
	"github.com/upb/threatprofile-gateway/tokens"
	"github.com/upb/threatprofile-gateway/utils"
)

// MessageNoProfile is returned to API callers signed in without a profile
const MessageNoProfile = "Create or join an organization to continue."

// GuardMiddleware runs the route guard for each request. Every request gets
// its own short-lived mount; periodic re-validation belongs to long-lived
// views such as the session watch stream.
type GuardMiddleware struct {
	guard         *guard.Guard
	provider      tokens.Provider
	profiles      profile.Service
	secureCookies bool
	logger        *zap.Logger
}

// NewGuardMiddleware creates a new GuardMiddleware
func NewGuardMiddleware(g *guard.Guard, provider tokens.Provider, profiles profile.Service, secureCookies bool, logger *zap.Logger) *GuardMiddleware {
	return &GuardMiddleware{
		guard:         g,
		provider:      provider,
		profiles:      profiles,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// Result is the outcome of guarding one request
type Result struct {
	Decision guard.Decision
	Profile  *models.UserProfile
	Claims   *cognito.ParsedClaims
}

// Evaluate validates the request's tokens, loads the profile and decides the
// route's state. Token cleanup and the notification are written to w.
func (m *GuardMiddleware) Evaluate(w http.ResponseWriter, r *http.Request, named guard.NamedRoute) Result {
	ctx := r.Context()
	store := m.provider.ForRequest(w, r)
	pair := ReadPair(r, store)

	var notifier notify.Notifier = notify.NewLog(m.logger)
	if !WantsJSON(r) {
		notifier = notify.NewFlash(w, m.secureCookies)
	}

	mount := m.guard.Mount(ctx, named.Route, store,
		guard.WithName(named.Name),
		guard.WithNotifier(notifier),
		guard.WithoutRevalidation(),
		guard.OnCleanup(func() { m.profiles.Invalidate(pair) }),
	)
	defer mount.Unmount()

	snap := profile.Resolved(nil, nil)
	if store.HasAuthTokens(ctx) {
		snap = profile.Resolved(m.profiles.Get(ctx, pair))
	}

	result := Result{
		Decision: mount.Evaluate(ctx, snap),
		Profile:  snap.Data,
	}
	if store.HasAuthTokens(ctx) {
		// unverified; signatures are checked once at login
		if claims, err := cognito.ExtractClaims(pair.IDToken); err == nil {
			result.Claims = claims
		}
	}
	if snap.Error != nil {
		result.Profile = nil
	}
	return result
}

// Protect guards a handler with named's route requirements. Page requests that
// must leave are redirected; API requests get a JSON 401 or 403 carrying the
// redirect target.
func (m *GuardMiddleware) Protect(named guard.NamedRoute) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := m.Evaluate(w, r, named)
			decision := result.Decision

			if decision.State == guard.Ready {
				ctx := WithDecision(r.Context(), decision)
				ctx = WithProfile(ctx, result.Profile)
				if result.Claims != nil {
					ctx = WithClaims(ctx, result.Claims)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			m.logger.Debug("request not allowed",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("route", named.Name),
				zap.Stringer("state", decision.State),
			)
			m.deny(w, r, decision)
		})
	}
}

func (m *GuardMiddleware) deny(w http.ResponseWriter, r *http.Request, d guard.Decision) {
	if !d.State.IsRedirect() {
		// loading states do not reach a synchronous request; report and let the client retry
		_ = utils.WriteError(w, http.StatusServiceUnavailable, "Session is still loading", nil)
		return
	}

	if !WantsJSON(r) {
		http.Redirect(w, r, d.Redirect, http.StatusFound)
		return
	}

	switch d.State {
	case guard.RedirectUnauthenticated:
		_ = utils.WriteUnauthorized(w, d.Message, d.Redirect)
	case guard.RedirectNoProfile:
		_ = utils.WriteForbidden(w, MessageNoProfile, d.Redirect)
	default:
		_ = utils.WriteForbidden(w, d.Message, d.Redirect)
	}
}

// ReadPair returns the tokens currently in store. Read errors yield empty tokens.
func ReadPair(r *http.Request, store tokens.Store) tokens.Pair {
	ctx := r.Context()
	idToken, _ := store.IDToken(ctx)
	accessToken, _ := store.AccessToken(ctx)
	return tokens.Pair{IDToken: idToken, AccessToken: accessToken}
}

// WantsJSON reports whether r is an API request rather than a page navigation
func WantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
