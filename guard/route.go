package guard

import (
	"sort"
	"strings"

	"github.com/upb/threatprofile-gateway/roles"
)

// Route describes what a guarded route requires of the session
type Route struct {
	RequireAuth   bool
	RequiredRoles []roles.Tag
	RequireActive bool
}

// NewRoute returns an authenticated route requiring an active user holding any of the given roles
func NewRoute(required ...roles.Tag) Route {
	return Route{
		RequireAuth:   true,
		RequiredRoles: required,
		RequireActive: true,
	}
}

// Targets are the paths the guard redirects to
type Targets struct {
	Login              string
	CreateOrganization string
	Inactive           string
	Forbidden          string
}

// DefaultTargets returns the dashboard's standard redirect paths
func DefaultTargets() Targets {
	return Targets{
		Login:              "/auth",
		CreateOrganization: "/organization/create",
		Inactive:           "/dashboard",
		Forbidden:          "/dashboard",
	}
}

// For returns the redirect target of a state, or "" for non-redirect states
func (t Targets) For(s State) string {
	switch s {
	case RedirectUnauthenticated:
		return t.Login
	case RedirectNoProfile:
		return t.CreateOrganization
	case RedirectInactive:
		return t.Inactive
	case RedirectForbidden:
		return t.Forbidden
	default:
		return ""
	}
}

// NamedRoute is a Route registered under a path prefix
type NamedRoute struct {
	Name   string
	Prefix string
	Route  Route
}

// Table resolves request paths to guarded routes by longest matching prefix
type Table struct {
	routes []NamedRoute
}

// NewTable creates a table from the given routes
func NewTable(routes ...NamedRoute) *Table {
	sorted := append([]NamedRoute(nil), routes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &Table{routes: sorted}
}

// DashboardRoutes returns the dashboard's guarded page routes
func DashboardRoutes() *Table {
	return NewTable(
		// Inactive users are parked here, so it must not require an active status.
		NamedRoute{Name: "dashboard", Prefix: "/dashboard", Route: Route{RequireAuth: true}},
		NamedRoute{Name: "organization", Prefix: "/organization", Route: NewRoute(roles.TagOrgAdmin, roles.TagRunner, roles.TagOrgViewer)},
		// Users without a profile are sent here to create one.
		NamedRoute{Name: "organization_create", Prefix: "/organization/create", Route: Route{}},
		NamedRoute{Name: "profiling", Prefix: "/profiling", Route: NewRoute(roles.TagOrgAdmin, roles.TagRunner)},
		NamedRoute{Name: "platform_admin", Prefix: "/admin", Route: NewRoute(roles.TagPlatformAdmin, roles.TagSuperAdmin)},
		NamedRoute{Name: "law_enforcement", Prefix: "/le", Route: NewRoute(roles.TagLawEnforcementMaster)},
	)
}

// Match returns the route guarding path
func (t *Table) Match(path string) (NamedRoute, bool) {
	for _, r := range t.routes {
		if path == r.Prefix || strings.HasPrefix(path, strings.TrimSuffix(r.Prefix, "/")+"/") {
			return r, true
		}
	}
	return NamedRoute{}, false
}

// Routes returns the registered routes, longest prefix first
func (t *Table) Routes() []NamedRoute {
	return append([]NamedRoute(nil), t.routes...)
}
