package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/upb/threatprofile-gateway/cognito"
	"github.com/upb/threatprofile-gateway/guard"
	"github.com/upb/threatprofile-gateway/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// ProfileKey is the context key for the signed-in user's profile
	ProfileKey contextKey = "profile"

	// DecisionKey is the context key for the guard decision of the request
	DecisionKey contextKey = "guard_decision"

	// ClaimsKey is the context key for the identity token claims
	ClaimsKey contextKey = "claims"
)

// GetRequestIDFromContext returns the ID assigned by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// GetProfileFromContext retrieves the user profile from context
func GetProfileFromContext(ctx context.Context) *models.UserProfile {
	if val := ctx.Value(ProfileKey); val != nil {
		if p, ok := val.(*models.UserProfile); ok {
			return p
		}
	}
	return nil
}

// WithProfile adds the user profile to the context
func WithProfile(ctx context.Context, p *models.UserProfile) context.Context {
	return context.WithValue(ctx, ProfileKey, p)
}

// GetDecisionFromContext retrieves the guard decision from context
func GetDecisionFromContext(ctx context.Context) (guard.Decision, bool) {
	d, ok := ctx.Value(DecisionKey).(guard.Decision)
	return d, ok
}

// WithDecision adds the guard decision to the context
func WithDecision(ctx context.Context, d guard.Decision) context.Context {
	return context.WithValue(ctx, DecisionKey, d)
}

// GetClaimsFromContext retrieves the identity token claims from context
func GetClaimsFromContext(ctx context.Context) *cognito.ParsedClaims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(*cognito.ParsedClaims); ok {
			return claims
		}
	}
	return nil
}

// WithClaims adds the identity token claims to the context
func WithClaims(ctx context.Context, claims *cognito.ParsedClaims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}
