package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/threatprofile-gateway/cognito"
	"github.com/upb/threatprofile-gateway/guard"
	"github.com/upb/threatprofile-gateway/middleware"
	"github.com/upb/threatprofile-gateway/models"
	"github.com/upb/threatprofile-gateway/notify"
	"github.com/upb/threatprofile-gateway/profile"
	"github.com/upb/threatprofile-gateway/roles"
	"github.com/upb/threatprofile-gateway/services"
	"github.com/upb/threatprofile-gateway/tokens"
	"github.com/upb/threatprofile-gateway/utils"
)

// DefaultHeartbeatInterval keeps idle watch streams open through proxies
const DefaultHeartbeatInterval = 25 * time.Second

// SessionUser is the identity shown by the dashboard header
type SessionUser struct {
	Sub         string             `json:"sub"`
	Email       string             `json:"email,omitempty"`
	Username    string             `json:"username,omitempty"`
	UserID      string             `json:"user_id,omitempty"`
	Status      models.UserStatus  `json:"status,omitempty"`
	PrimaryRole models.PrimaryRole `json:"primary_role,omitempty"`
	OrgID       string             `json:"org_id,omitempty"`
}

// SessionResponse describes the session as seen by one route
type SessionResponse struct {
	Route         string             `json:"route"`
	Decision      guard.Decision     `json:"decision"`
	Authenticated bool               `json:"authenticated"`
	User          *SessionUser       `json:"user,omitempty"`
	Capabilities  roles.Capabilities `json:"capabilities"`
}

// SessionHandler serves the session state API and its event stream
type SessionHandler struct {
	guard       *guard.Guard
	guardMW     *middleware.GuardMiddleware
	table       *guard.Table
	provider    tokens.Provider
	profiles    profile.Service
	defaultPath string
	heartbeat   time.Duration
	logger      *zap.Logger
}

// NewSessionHandler creates a new SessionHandler. Requests without a route
// query are answered for defaultPath.
func NewSessionHandler(
	g *guard.Guard,
	guardMW *middleware.GuardMiddleware,
	table *guard.Table,
	provider tokens.Provider,
	profiles profile.Service,
	defaultPath string,
	logger *zap.Logger,
) *SessionHandler {
	return &SessionHandler{
		guard:       g,
		guardMW:     guardMW,
		table:       table,
		provider:    provider,
		profiles:    profiles,
		defaultPath: defaultPath,
		heartbeat:   DefaultHeartbeatInterval,
		logger:      logger,
	}
}

// HandleSession handles GET /api/v1/session?route=/path
func (h *SessionHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	named, ok := h.resolve(w, r)
	if !ok {
		return
	}

	result := h.guardMW.Evaluate(w, r, named)
	_ = utils.WriteOK(w, newSessionResponse(named, result.Decision, result.Profile, result.Claims))
}

// HandleWatch handles GET /api/v1/session/watch?route=/path. The stream
// carries a "decision" event at mount, on profile changes and after every
// periodic token re-validation. It ends after a redirect decision or when
// the client disconnects.
func (h *SessionHandler) HandleWatch(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = utils.WriteInternalServerError(w, "Streaming not supported")
		return
	}
	named, ok := h.resolve(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	logger := h.logger.With(
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("route", named.Name),
	)

	store := h.provider.ForRequest(w, r)
	pair := middleware.ReadPair(r, store)

	revalidated := make(chan bool, 1)
	mount := h.guard.Mount(ctx, named.Route, store,
		guard.WithName(named.Name),
		guard.WithNotifier(notify.NewLog(logger)),
		guard.OnCleanup(func() { h.profiles.Invalidate(pair) }),
		guard.OnRevalidate(func(valid bool) {
			// Unmount waits for the ticker, so never block it.
			select {
			case revalidated <- valid:
			default:
			}
		}),
	)
	defer mount.Unmount()

	live := pair
	if !store.HasAuthTokens(ctx) {
		live = tokens.Pair{}
	}
	query := profile.NewQuery(h.profiles, live)
	query.Refetch(ctx)
	defer query.Wait()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	var claims *cognito.ParsedClaims
	if live.IDToken != "" {
		claims, _ = cognito.ExtractClaims(live.IDToken)
	}

	lastState := guard.State(-1)
	force := true
	for {
		changed := query.Changed()
		snap := query.Snapshot()
		decision := mount.Evaluate(ctx, snap)

		if force || decision.State != lastState {
			if !store.HasAuthTokens(ctx) {
				claims = nil
			}
			data := snap.Data
			if snap.Error != nil {
				data = nil
			}
			if err := writeEvent(w, "decision", newSessionResponse(named, decision, data, claims)); err != nil {
				logger.Debug("watch stream closed", zap.Error(err))
				return
			}
			flusher.Flush()
			lastState = decision.State
		}
		force = false

		if decision.State.IsRedirect() {
			return
		}

	wait:
		for {
			select {
			case <-ctx.Done():
				return
			case <-changed:
				break wait
			case valid := <-revalidated:
				logger.Debug("session revalidated", zap.Bool("valid", valid))
				force = true
				break wait
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

// resolve maps the route query to a guarded route, writing 404 when unknown
func (h *SessionHandler) resolve(w http.ResponseWriter, r *http.Request) (guard.NamedRoute, bool) {
	path := r.URL.Query().Get("route")
	if path == "" {
		path = h.defaultPath
	}
	named, ok := h.table.Match(path)
	if !ok {
		HandleServiceError(w, fmt.Errorf("%w: %s", services.ErrUnknownRoute, path), "", h.logger)
		return guard.NamedRoute{}, false
	}
	return named, true
}

func newSessionResponse(named guard.NamedRoute, d guard.Decision, p *models.UserProfile, claims *cognito.ParsedClaims) SessionResponse {
	resp := SessionResponse{
		Route:         named.Name,
		Decision:      d,
		Authenticated: claims != nil,
		Capabilities:  roles.CapabilitiesOf(p),
	}
	if claims != nil {
		resp.User = &SessionUser{
			Sub:      claims.Sub,
			Email:    claims.Email,
			Username: claims.Username,
			OrgID:    claims.OrgID,
		}
		if p != nil {
			resp.User.UserID = p.UserInfo.UserID
			resp.User.Status = p.UserInfo.Status
			resp.User.PrimaryRole = p.RolesAndPermissions.PrimaryRole
			if p.UserInfo.OrgID != "" {
				resp.User.OrgID = p.UserInfo.OrgID
			}
		}
	}
	return resp
}

func writeEvent(w http.ResponseWriter, event string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
