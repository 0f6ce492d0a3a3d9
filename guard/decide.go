// Package guard gates dashboard routes on token validity, profile hydration
// and role membership.
package guard

import (
	"github.com/upb/threatprofile-gateway/models"
	"github.com/upb/threatprofile-gateway/roles"
)

// User-facing notification texts
const (
	MessageUnauthenticated    = "Please log in to access this page."
	MessageSessionExpired     = "Your session has expired. Please log in again."
	MessageInactive           = "Your account is not active. Please contact your administrator."
	MessageForbidden          = "You do not have permission to access this page."
	MessageProfileFetchFailed = "Failed to fetch profile"
)

// Inputs is everything a single evaluation looks at
type Inputs struct {
	Route Route
	// TokensPresent is true when both tokens are in the store
	TokensPresent bool
	Profile       *models.UserProfile
	// Loading is true while the profile query is loading
	Loading bool
	// Hydrated is true once the profile query has settled since mount
	Hydrated bool
}

// Decide maps inputs to a state. The first matching rule wins.
func Decide(in Inputs) State {
	if in.Route.RequireAuth && !in.TokensPresent {
		return RedirectUnauthenticated
	}

	if !in.Hydrated {
		return Initializing
	}
	if in.Loading {
		return AwaitingProfile
	}

	if in.Route.RequireAuth && in.Profile == nil {
		return RedirectNoProfile
	}

	if in.Route.RequireActive && in.Profile != nil && !in.Profile.IsActive() {
		return RedirectInactive
	}

	if len(in.Route.RequiredRoles) > 0 && !roles.HasAnyRequiredRole(in.Profile, in.Route.RequiredRoles) {
		return RedirectForbidden
	}

	return Ready
}

// Decision is a state together with where to send the user and why
type Decision struct {
	State    State  `json:"state"`
	Redirect string `json:"redirect,omitempty"`
	Message  string `json:"message,omitempty"`
	// Notified is true when this evaluation emitted the notification
	Notified bool `json:"-"`
}
