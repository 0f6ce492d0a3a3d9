package tokens

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func fixedClock() time.Time { return fixedNow }

// signToken creates an HS256 token with the given claims
func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func tokenExpiringAt(t *testing.T, exp int64) string {
	return signToken(t, jwt.MapClaims{"sub": "user-1", "exp": exp, "iat": fixedNow.Unix() - 60})
}

func newTestValidator(store Store) *Validator {
	return NewValidator(store, zap.NewNop(), WithClock(fixedClock))
}

// MockStore is a mock implementation of Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) IDToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockStore) AccessToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockStore) RemoveAuthTokens(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) HasAuthTokens(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func TestDecode(t *testing.T) {
	t.Run("valid token returns payload", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{"sub": "abc", "exp": 123})
		claims := Decode(token)
		require.NotNil(t, claims)
		assert.Equal(t, "abc", claims["sub"])
	})

	tests := []struct {
		name  string
		token string
	}{
		{"empty string", ""},
		{"single segment", "abc"},
		{"two segments", "abc.def"},
		{"four segments", "a.b.c.d"},
		{"payload not base64", "eyJhbGciOiJIUzI1NiJ9.!!!.sig"},
		{"payload not json", "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".sig"},
		{"payload json array", "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte(`[1,2]`)) + ".sig"},
		{"payload json null", "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte(`null`)) + ".sig"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, Decode(tt.token))
		})
	}

	t.Run("only the payload segment is decoded", func(t *testing.T) {
		payload := base64.RawURLEncoding.EncodeToString([]byte(`{"exp":42}`))
		claims := Decode("garbage." + payload + ".garbage")
		require.NotNil(t, claims)
		assert.EqualValues(t, 42, claims["exp"])
	})
}

func TestValidate(t *testing.T) {
	v := newTestValidator(NewMemoryStore(Pair{}))

	t.Run("missing token", func(t *testing.T) {
		r := v.Validate("")
		assert.False(t, r.IsValid)
		assert.False(t, r.IsExpired)
		assert.Nil(t, r.Payload)
		assert.ErrorIs(t, r.Err, ErrMissing)
	})

	t.Run("undecodable token", func(t *testing.T) {
		r := v.Validate("not-a-token")
		assert.False(t, r.IsValid)
		assert.False(t, r.IsExpired)
		assert.Nil(t, r.Payload)
		assert.ErrorIs(t, r.Err, ErrUndecodable)
	})

	t.Run("token without exp is invalid but not expired", func(t *testing.T) {
		for _, claims := range []jwt.MapClaims{
			{"sub": "user-1"},
			{"sub": "user-1", "exp": "tomorrow"},
			{"sub": "user-1", "exp": nil},
		} {
			r := v.Validate(signToken(t, claims))
			assert.False(t, r.IsValid)
			assert.False(t, r.IsExpired)
			assert.NotNil(t, r.Payload)
			assert.ErrorIs(t, r.Err, ErrNoExpiry)
		}
	})

	t.Run("exp at or inside the skew window is expired", func(t *testing.T) {
		for _, exp := range []int64{
			0,
			fixedNow.Unix() - 1,
			fixedNow.Unix(),
			fixedNow.Unix() + 29,
			fixedNow.Unix() + 30,
		} {
			r := v.Validate(tokenExpiringAt(t, exp))
			assert.True(t, r.IsExpired, "exp=%d", exp)
			assert.False(t, r.IsValid, "exp=%d", exp)
			assert.ErrorIs(t, r.Err, ErrExpired)
		}
	})

	t.Run("exp beyond the skew window is valid", func(t *testing.T) {
		for _, exp := range []int64{fixedNow.Unix() + 31, fixedNow.Unix() + 3600} {
			r := v.Validate(tokenExpiringAt(t, exp))
			assert.True(t, r.IsValid, "exp=%d", exp)
			assert.False(t, r.IsExpired, "exp=%d", exp)
			assert.NoError(t, r.Err)
			assert.NotNil(t, r.Payload)
		}
	})

	t.Run("fractional exp is compared without truncation", func(t *testing.T) {
		now := float64(fixedNow.Unix())
		r := v.Validate(signToken(t, jwt.MapClaims{"exp": now + 30.5}))
		assert.True(t, r.IsValid)
		assert.False(t, r.IsExpired)

		r = v.Validate(signToken(t, jwt.MapClaims{"exp": now + 29.5}))
		assert.True(t, r.IsExpired)
	})

	t.Run("sub-second clock is truncated to whole seconds", func(t *testing.T) {
		clock := func() time.Time { return fixedNow.Add(900 * time.Millisecond) }
		v := NewValidator(NewMemoryStore(Pair{}), zap.NewNop(), WithClock(clock))
		r := v.Validate(tokenExpiringAt(t, fixedNow.Unix()+31))
		assert.True(t, r.IsValid)
	})

	t.Run("custom skew", func(t *testing.T) {
		v := NewValidator(NewMemoryStore(Pair{}), zap.NewNop(), WithClock(fixedClock), WithClockSkew(0))
		assert.True(t, v.Validate(tokenExpiringAt(t, fixedNow.Unix()+1)).IsValid)
		assert.True(t, v.Validate(tokenExpiringAt(t, fixedNow.Unix())).IsExpired)
	})
}

func TestValidateBoth(t *testing.T) {
	valid := tokenExpiringAt(t, fixedNow.Unix()+3600)
	expired := tokenExpiringAt(t, fixedNow.Unix()-1)

	tests := []struct {
		name      string
		pair      Pair
		bothValid bool
	}{
		{"both valid", Pair{IDToken: valid, AccessToken: valid}, true},
		{"id expired", Pair{IDToken: expired, AccessToken: valid}, false},
		{"access expired", Pair{IDToken: valid, AccessToken: expired}, false},
		{"access missing", Pair{IDToken: valid}, false},
		{"both missing", Pair{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestValidator(NewMemoryStore(tt.pair))
			result := v.ValidateBoth(context.Background())
			assert.Equal(t, tt.bothValid, result.BothValid)
			assert.Equal(t, result.IDToken.IsValid && result.AccessToken.IsValid, result.BothValid)
		})
	}

	t.Run("store read failure counts as missing", func(t *testing.T) {
		store := new(MockStore)
		store.On("IDToken", mock.Anything).Return("", ErrStoreUnavailable)
		store.On("AccessToken", mock.Anything).Return(valid, nil)

		result := newTestValidator(store).ValidateBoth(context.Background())
		assert.False(t, result.BothValid)
		assert.ErrorIs(t, result.IDToken.Err, ErrMissing)
		assert.True(t, result.AccessToken.IsValid)
	})
}

func TestValidateAndCleanup(t *testing.T) {
	ctx := context.Background()
	valid := tokenExpiringAt(t, fixedNow.Unix()+3600)
	expired := tokenExpiringAt(t, fixedNow.Unix()-1)

	t.Run("valid pair is left untouched", func(t *testing.T) {
		store := NewMemoryStore(Pair{IDToken: valid, AccessToken: valid})
		assert.True(t, newTestValidator(store).ValidateAndCleanup(ctx))
		assert.True(t, store.HasAuthTokens(ctx))
	})

	t.Run("one invalid token clears both", func(t *testing.T) {
		store := NewMemoryStore(Pair{IDToken: valid, AccessToken: expired})
		assert.False(t, newTestValidator(store).ValidateAndCleanup(ctx))

		id, _ := store.IDToken(ctx)
		access, _ := store.AccessToken(ctx)
		assert.Empty(t, id)
		assert.Empty(t, access)
	})

	t.Run("returns false exactly when tokens were cleared", func(t *testing.T) {
		pairs := []Pair{
			{IDToken: valid, AccessToken: valid},
			{IDToken: expired, AccessToken: valid},
			{IDToken: "garbage", AccessToken: valid},
			{IDToken: valid, AccessToken: ""},
		}
		for _, pair := range pairs {
			store := new(MockStore)
			store.On("IDToken", mock.Anything).Return(pair.IDToken, nil)
			store.On("AccessToken", mock.Anything).Return(pair.AccessToken, nil)
			store.On("RemoveAuthTokens", mock.Anything).Return(nil)

			ok := newTestValidator(store).ValidateAndCleanup(ctx)
			if ok {
				store.AssertNotCalled(t, "RemoveAuthTokens", mock.Anything)
			} else {
				store.AssertNumberOfCalls(t, "RemoveAuthTokens", 1)
			}
		}
	})

	t.Run("removal failure still fails closed", func(t *testing.T) {
		store := new(MockStore)
		store.On("IDToken", mock.Anything).Return("", nil)
		store.On("AccessToken", mock.Anything).Return("", nil)
		store.On("RemoveAuthTokens", mock.Anything).Return(errors.New("boom"))

		assert.False(t, newTestValidator(store).ValidateAndCleanup(ctx))
		store.AssertExpectations(t)
	})

	t.Run("cleanup is recorded", func(t *testing.T) {
		metrics := &recordingMetrics{}
		store := NewMemoryStore(Pair{IDToken: expired, AccessToken: expired})
		v := NewValidator(store, zap.NewNop(), WithClock(fixedClock), WithMetrics(metrics))

		assert.False(t, v.ValidateAndCleanup(ctx))
		assert.Equal(t, 1, metrics.cleanups)
		assert.Equal(t, []string{"id:expired", "access:expired"}, metrics.validations)
	})
}

type recordingMetrics struct {
	validations []string
	cleanups    int
}

func (m *recordingMetrics) RecordTokenValidation(kind, outcome string) {
	m.validations = append(m.validations, kind+":"+outcome)
}

func (m *recordingMetrics) RecordTokenCleanup() {
	m.cleanups++
}
