package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// DefaultClockSkew is subtracted from a token's lifetime when checking expiry
const DefaultClockSkew = 30 * time.Second

var (
	// ErrMissing is reported when no token is stored
	ErrMissing = errors.New("token missing")

	// ErrUndecodable is reported when the token payload cannot be decoded
	ErrUndecodable = errors.New("token undecodable")

	// ErrNoExpiry is reported when the payload carries no exp claim
	ErrNoExpiry = errors.New("token has no expiration")

	// ErrExpired is reported when exp falls within the clock-skew window
	ErrExpired = errors.New("token expired")
)

// Result is the outcome of validating a single token
type Result struct {
	IsValid   bool
	IsExpired bool
	Payload   jwt.MapClaims
	Err       error
}

// PairResult is the outcome of validating the identity and access tokens together
type PairResult struct {
	IDToken     Result
	AccessToken Result
	BothValid   bool
}

// Metrics receives token validation outcomes
type Metrics interface {
	RecordTokenValidation(kind, outcome string)
	RecordTokenCleanup()
}

// Validator checks the tokens held by a Store
type Validator struct {
	store   Store
	logger  *zap.Logger
	now     func() time.Time
	skew    time.Duration
	metrics Metrics
}

// Option configures a Validator
type Option func(*Validator)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// WithClockSkew overrides the expiry buffer
func WithClockSkew(skew time.Duration) Option {
	return func(v *Validator) {
		v.skew = skew
	}
}

// WithMetrics records validation outcomes
func WithMetrics(m Metrics) Option {
	return func(v *Validator) {
		v.metrics = m
	}
}

// NewValidator creates a validator over the given store
func NewValidator(store Store, logger *zap.Logger, opts ...Option) *Validator {
	v := &Validator{
		store:  store,
		logger: logger,
		now:    time.Now,
		skew:   DefaultClockSkew,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate decodes a token and checks its expiry against now plus the clock skew.
// An empty string is treated as a missing token.
func (v *Validator) Validate(token string) Result {
	if token == "" {
		return Result{Err: ErrMissing}
	}

	payload := Decode(token)
	if payload == nil {
		return Result{Err: ErrUndecodable}
	}

	exp, ok := expiry(payload)
	if !ok {
		return Result{Payload: payload, Err: ErrNoExpiry}
	}

	// now in whole seconds since epoch; exp keeps any fraction
	now := float64(v.now().Unix())
	expired := exp <= now+v.skew.Seconds()
	result := Result{
		IsValid:   !expired,
		IsExpired: expired,
		Payload:   payload,
	}
	if expired {
		result.Err = ErrExpired
	}
	return result
}

// ValidateBoth validates the stored identity and access tokens independently.
// A store read failure counts as a missing token.
func (v *Validator) ValidateBoth(ctx context.Context) PairResult {
	idToken, err := v.store.IDToken(ctx)
	if err != nil {
		v.logger.Warn("failed to read id token", zap.Error(err))
		idToken = ""
	}
	accessToken, err := v.store.AccessToken(ctx)
	if err != nil {
		v.logger.Warn("failed to read access token", zap.Error(err))
		accessToken = ""
	}

	result := PairResult{
		IDToken:     v.Validate(idToken),
		AccessToken: v.Validate(accessToken),
	}
	result.BothValid = result.IDToken.IsValid && result.AccessToken.IsValid

	if v.metrics != nil {
		v.metrics.RecordTokenValidation("id", outcome(result.IDToken))
		v.metrics.RecordTokenValidation("access", outcome(result.AccessToken))
	}
	return result
}

// ValidateAndCleanup returns true when both tokens are valid. Otherwise it
// removes both tokens from the store and returns false.
func (v *Validator) ValidateAndCleanup(ctx context.Context) bool {
	result := v.ValidateBoth(ctx)
	if result.BothValid {
		return true
	}

	v.logger.Info("clearing auth tokens",
		zap.String("id_token", outcome(result.IDToken)),
		zap.String("access_token", outcome(result.AccessToken)))

	if err := v.store.RemoveAuthTokens(ctx); err != nil {
		v.logger.Error("failed to remove auth tokens", zap.Error(err))
	}
	if v.metrics != nil {
		v.metrics.RecordTokenCleanup()
	}
	return false
}

// expiry reads the numeric exp claim. Absent or non-numeric values report false.
func expiry(payload jwt.MapClaims) (float64, bool) {
	switch exp := payload["exp"].(type) {
	case float64:
		return exp, true
	case json.Number:
		f, err := exp.Float64()
		return f, err == nil
	case int64:
		return float64(exp), true
	case int:
		return float64(exp), true
	default:
		return 0, false
	}
}

// outcome is a short label for a validation result
func outcome(r Result) string {
	switch {
	case r.IsValid:
		return "valid"
	case errors.Is(r.Err, ErrMissing):
		return "missing"
	case errors.Is(r.Err, ErrUndecodable):
		return "undecodable"
	case errors.Is(r.Err, ErrNoExpiry):
		return "no_exp"
	default:
		return "expired"
	}
}
