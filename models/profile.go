package models

// UserStatus is the lifecycle status of a dashboard user
type UserStatus string

const (
	StatusActive    UserStatus = "active"
	StatusPending   UserStatus = "pending"
	StatusSuspended UserStatus = "suspended"
	StatusInactive  UserStatus = "inactive"
)

// UserType distinguishes standard customers from law-enforcement users
type UserType string

const (
	UserTypeStandard       UserType = "standard"
	UserTypeLawEnforcement UserType = "LE"
)

// PrimaryRole represents the role of a user within their organization
type PrimaryRole string

const (
	RoleAdmin  PrimaryRole = "admin"
	RoleViewer PrimaryRole = "viewer"
	RoleRunner PrimaryRole = "runner"
)

// Permission and feature names read by the role predicates
const (
	PermissionPlatformAdmin       = "can_access_platform_admin"
	PermissionCreateLEOrgs        = "can_create_le_orgs"
	PermissionMultiOrgController  = "is_multi_org_controller"
	FeaturePlatformAdminPanel     = "platform_admin_panel"
	FeatureSuperAdminFunctions    = "super_admin_functions"
	FeatureLEOrganizationCreation = "le_organization_creation"
)

// UserProfile is the profile document served by the upstream profile service.
// It is treated as read-only once decoded.
type UserProfile struct {
	UserInfo                UserInfo                 `json:"user_info" validate:"required"`
	RolesAndPermissions     RolesAndPermissions      `json:"roles_and_permissions"`
	FeatureAccess           map[string]bool          `json:"feature_access"`
	AccessibleOrganizations []AccessibleOrganization `json:"accessible_organizations"`
	Subscriptions           []Subscription           `json:"subscriptions"`
}

// UserInfo holds identity fields of the profile
type UserInfo struct {
	UserID     string     `json:"user_id" validate:"required"`
	Email      string     `json:"email"`
	FirstName  string     `json:"first_name,omitempty"`
	LastName   string     `json:"last_name,omitempty"`
	Status     UserStatus `json:"status"` // anything but "active" is inactive
	UserType   UserType   `json:"user_type,omitempty"`
	OrgID      string     `json:"org_id,omitempty"`
	CognitoSub string     `json:"cognito_sub,omitempty"`
}

// RolesAndPermissions holds the role and named permission flags of the profile
type RolesAndPermissions struct {
	PrimaryRole  PrimaryRole            `json:"primary_role"`
	Permissions  map[string]bool        `json:"permissions"`
	AccessLevels map[string]interface{} `json:"access_levels,omitempty"`
}

// AccessibleOrganization is an organization the user may switch into
type AccessibleOrganization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// Subscription is a product subscription attached to the profile
type Subscription struct {
	Plan   string `json:"plan"`
	Status string `json:"status"`
}

// IsActive returns true if the user's status is active
func (p *UserProfile) IsActive() bool {
	return p != nil && p.UserInfo.Status == StatusActive
}

// Permission reports a named permission flag; missing flags are false
func (p *UserProfile) Permission(name string) bool {
	if p == nil {
		return false
	}
	return p.RolesAndPermissions.Permissions[name]
}

// Feature reports a named feature entitlement; missing entitlements are false
func (p *UserProfile) Feature(name string) bool {
	if p == nil {
		return false
	}
	return p.FeatureAccess[name]
}
