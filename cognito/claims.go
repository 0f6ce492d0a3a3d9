package cognito

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingClaim is returned when a required claim is missing
var ErrMissingClaim = errors.New("missing required claim")

// Claims are the Cognito id and access token claims the gateway reads
type Claims struct {
	jwt.RegisteredClaims
	Email           string   `json:"email,omitempty"`
	EmailVerified   bool     `json:"email_verified,omitempty"`
	TokenUse        string   `json:"token_use"`
	AuthTime        int64    `json:"auth_time,omitempty"`
	CognitoUsername string   `json:"cognito:username,omitempty"`
	Username        string   `json:"username,omitempty"`
	ClientID        string   `json:"client_id,omitempty"`
	Groups          []string `json:"cognito:groups,omitempty"`
	OrgID           string   `json:"custom:tenantId,omitempty"`
}

// ParsedClaims is the identity carried by a verified token
type ParsedClaims struct {
	Sub           string    `json:"sub"`
	Email         string    `json:"email,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	Username      string    `json:"username,omitempty"`
	Groups        []string  `json:"groups,omitempty"`
	OrgID         string    `json:"org_id,omitempty"`
	TokenUse      string    `json:"-"`
	IssuedAt      time.Time `json:"-"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// ExtractClaims reads the claims of a token without verifying it. Only use
// it on tokens that were verified when they entered the session.
func ExtractClaims(tokenString string) (*ParsedClaims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	return parseClaims(claims)
}

func parseClaims(claims *Claims) (*ParsedClaims, error) {
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	username := claims.CognitoUsername
	if username == "" {
		// access tokens name the user in "username"
		username = claims.Username
	}

	parsed := &ParsedClaims{
		Sub:           claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Username:      username,
		Groups:        claims.Groups,
		OrgID:         claims.OrgID,
		TokenUse:      claims.TokenUse,
	}
	if claims.IssuedAt != nil {
		parsed.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		parsed.ExpiresAt = claims.ExpiresAt.Time
	}

	return parsed, nil
}
