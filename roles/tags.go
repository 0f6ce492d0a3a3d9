package roles

import (
	"github.com/upb/threatprofile-gateway/models"
)

// Tag names a role a route may require
type Tag string

// Canonical tags
const (
	TagOrgAdmin             Tag = "admin"
	TagOrgViewer            Tag = "viewer"
	TagRunner               Tag = "runner"
	TagPlatformAdmin        Tag = "platform_admin"
	TagSuperAdmin           Tag = "super_admin"
	TagLawEnforcementMaster Tag = "le_master"
)

// Predicate derives one capability from a profile
type Predicate func(*models.UserProfile) bool

// predicates maps canonical and legacy spellings to their predicate
var predicates = map[Tag]Predicate{
	TagOrgAdmin:  IsOrgAdmin,
	"org_admin":  IsOrgAdmin,
	TagOrgViewer: IsOrgViewer,
	"org_viewer": IsOrgViewer,
	TagRunner:    IsRunner,

	TagPlatformAdmin: IsPlatformAdmin,
	"platformAdmin":  IsPlatformAdmin,
	TagSuperAdmin:    IsSuperAdmin,
	"superAdmin":     IsSuperAdmin,

	TagLawEnforcementMaster:  IsLawEnforcementMaster,
	"leMaster":               IsLawEnforcementMaster,
	"law_enforcement_master": IsLawEnforcementMaster,
	"le_admin":               IsLawEnforcementMaster,
	"LE_ADMIN":               IsLawEnforcementMaster,
}

// HasAnyRequiredRole reports whether p satisfies at least one of the
// required tags. No required tags means the route is open to everyone,
// including anonymous users. With tags present, a nil profile never matches.
func HasAnyRequiredRole(p *models.UserProfile, required []Tag) bool {
	if len(required) == 0 {
		return true
	}
	if p == nil {
		return false
	}
	for _, tag := range required {
		if pred := predicates[tag]; pred != nil && pred(p) {
			return true
		}
	}
	return false
}
