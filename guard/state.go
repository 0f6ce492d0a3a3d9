package guard

import "fmt"

// State is the outcome of one guard evaluation
type State int

const (
	// Initializing: the profile has not settled since mount
	Initializing State = iota
	// AwaitingProfile: the profile is loading again after having settled once
	AwaitingProfile
	Ready
	RedirectUnauthenticated
	RedirectNoProfile
	RedirectInactive
	RedirectForbidden
)

var stateNames = map[State]string{
	Initializing:            "INITIALIZING",
	AwaitingProfile:         "AWAITING_PROFILE",
	Ready:                   "READY",
	RedirectUnauthenticated: "REDIRECT_UNAUTHENTICATED",
	RedirectNoProfile:       "REDIRECT_NO_PROFILE",
	RedirectInactive:        "REDIRECT_INACTIVE",
	RedirectForbidden:       "REDIRECT_FORBIDDEN",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsLoading reports whether the state renders a loading indicator
func (s State) IsLoading() bool {
	return s == Initializing || s == AwaitingProfile
}

// IsRedirect reports whether the state navigates away from the route
func (s State) IsRedirect() bool {
	return s >= RedirectUnauthenticated
}

// notifies reports whether entering the state raises a user notification
func (s State) notifies() bool {
	return s == RedirectUnauthenticated || s == RedirectInactive || s == RedirectForbidden
}
