package cognito

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unsignedToken(t *testing.T, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return tokenString
}

func TestExtractClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tokenString := unsignedToken(t, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_test",
			Subject:   "6b1d0f9e-3f0c-4a55-8d43-1f0e6c1d2a10",
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Email:           "test@example.com",
		EmailVerified:   true,
		TokenUse:        TokenUseID,
		CognitoUsername: "testuser",
		OrgID:           "org-1",
	})

	parsed, err := ExtractClaims(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "6b1d0f9e-3f0c-4a55-8d43-1f0e6c1d2a10", parsed.Sub)
	assert.Equal(t, "test@example.com", parsed.Email)
	assert.Equal(t, "org-1", parsed.OrgID)
	assert.Equal(t, "testuser", parsed.Username)
	assert.Equal(t, TokenUseID, parsed.TokenUse)
	assert.True(t, parsed.EmailVerified)
	assert.True(t, exp.Equal(parsed.ExpiresAt))
}

func TestExtractClaims_AccessTokenUsername(t *testing.T) {
	parsed, err := ExtractClaims(unsignedToken(t, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-1"},
		TokenUse:         TokenUseAccess,
		Username:         "analyst",
		Groups:           []string{"admins", "runners"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "analyst", parsed.Username)
	assert.Equal(t, []string{"admins", "runners"}, parsed.Groups)
	assert.True(t, parsed.ExpiresAt.IsZero())
}

func TestExtractClaims_MissingSub(t *testing.T) {
	_, err := ExtractClaims(unsignedToken(t, &Claims{TokenUse: TokenUseID}))
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestExtractClaims_Malformed(t *testing.T) {
	_, err := ExtractClaims("a.b")
	assert.Error(t, err)
}
