// Package roles derives coarse capabilities from a user profile.
//
// The upstream profile service can grant the same capability through a
// permission bit, a feature entitlement, or the user type. Each predicate
// reconciles those signals into a single boolean; callers should not read the
// raw profile fields for authorization decisions. Every predicate returns
// false for a nil profile.
package roles

import (
	"github.com/upb/threatprofile-gateway/models"
)

// IsPlatformAdmin reports platform administration access
func IsPlatformAdmin(p *models.UserProfile) bool {
	if p == nil {
		return false
	}
	return p.Permission(models.PermissionPlatformAdmin) ||
		p.Feature(models.FeaturePlatformAdminPanel)
}

// IsSuperAdmin reports access to super-admin functions
func IsSuperAdmin(p *models.UserProfile) bool {
	if p == nil {
		return false
	}
	return p.Feature(models.FeatureSuperAdminFunctions)
}

// IsLawEnforcementMaster reports a law-enforcement controller able to manage LE organizations
func IsLawEnforcementMaster(p *models.UserProfile) bool {
	if p == nil {
		return false
	}
	return p.UserInfo.UserType == models.UserTypeLawEnforcement ||
		p.Permission(models.PermissionCreateLEOrgs) ||
		p.Feature(models.FeatureLEOrganizationCreation) ||
		p.Permission(models.PermissionMultiOrgController)
}

// IsOrgAdmin reports the admin role within the user's organization
func IsOrgAdmin(p *models.UserProfile) bool {
	return p != nil && p.RolesAndPermissions.PrimaryRole == models.RoleAdmin
}

// IsOrgViewer reports the viewer role within the user's organization
func IsOrgViewer(p *models.UserProfile) bool {
	return p != nil && p.RolesAndPermissions.PrimaryRole == models.RoleViewer
}

// IsRunner reports the runner role, allowed to trigger profiling jobs
func IsRunner(p *models.UserProfile) bool {
	return p != nil && p.RolesAndPermissions.PrimaryRole == models.RoleRunner
}

// Capabilities is the set of derived flags exposed to the dashboard
type Capabilities struct {
	PlatformAdmin        bool `json:"platform_admin"`
	SuperAdmin           bool `json:"super_admin"`
	LawEnforcementMaster bool `json:"law_enforcement_master"`
	OrgAdmin             bool `json:"org_admin"`
	OrgViewer            bool `json:"org_viewer"`
	Runner               bool `json:"runner"`
}

// CapabilitiesOf evaluates every predicate for p
func CapabilitiesOf(p *models.UserProfile) Capabilities {
	return Capabilities{
		PlatformAdmin:        IsPlatformAdmin(p),
		SuperAdmin:           IsSuperAdmin(p),
		LawEnforcementMaster: IsLawEnforcementMaster(p),
		OrgAdmin:             IsOrgAdmin(p),
		OrgViewer:            IsOrgViewer(p),
		Runner:               IsRunner(p),
	}
}
