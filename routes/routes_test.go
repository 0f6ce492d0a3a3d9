package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/threatprofile-gateway/app"
	"github.com/upb/threatprofile-gateway/config"
)

// newTestServer wires the gateway in front of a fake dashboard frontend
func newTestServer(t *testing.T, metricsEnabled bool) *httptest.Server {
	t.Helper()

	frontend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "page "+r.URL.Path)
	}))
	t.Cleanup(frontend.Close)

	cfg := &config.Config{
		Environment: "test",
		Cognito: config.CognitoConfig{
			Region:      "us-east-1",
			UserPoolID:  "us-east-1_test",
			ClientID:    "test-client",
			Domain:      "https://test.auth.us-east-1.amazoncognito.com",
			RedirectURI: "http://localhost:8080/oauth2/idpresponse",
			FrontEndURL: frontend.URL,
		},
		ProfileService: config.ProfileServiceConfig{
			URL:       "http://127.0.0.1:1/api/v1",
			Timeout:   time.Second,
			CacheTTL:  time.Minute,
			CacheSize: 10,
		},
		Session: config.SessionConfig{TokenStore: config.TokenStoreCookie, TTL: time.Hour},
		Guard: config.GuardConfig{
			RevalidateInterval: time.Minute,
			LoginPath:          "/auth",
			CreateOrgPath:      "/organization/create",
			DashboardPath:      "/dashboard",
		},
		Observability: config.ObservabilityConfig{LogLevel: "error", MetricsEnabled: metricsEnabled},
	}

	deps, err := app.NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(context.Background()) })

	ts := httptest.NewServer(SetupRoutes(deps))
	t.Cleanup(ts.Close)
	return ts
}

// noRedirectClient returns the first response instead of following redirects
func noRedirectClient(ts *httptest.Server) *http.Client {
	client := ts.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return client
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, false)

	t.Run("health check returns healthy", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		var body struct {
			Data struct{ Status string }
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "healthy", body.Data.Status)
	})

	t.Run("readiness with cookie store", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/readyz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestPageRoutes(t *testing.T) {
	ts := newTestServer(t, false)
	client := noRedirectClient(ts)

	testCases := []struct {
		name             string
		path             string
		accept           string
		expectedStatus   int
		expectedLocation string
		expectedBody     string
	}{
		{"guarded page redirects to login", "/profiling/runs", "", http.StatusFound, "/auth", ""},
		{"guarded prefix root redirects to login", "/admin", "", http.StatusFound, "/auth", ""},
		{"guarded page asked for JSON", "/le/cases", "application/json", http.StatusUnauthorized, "", `"redirect":"/auth"`},
		{"login page is public", "/auth", "", http.StatusOK, "", "page /auth"},
		{"organization creation is public", "/organization/create", "", http.StatusOK, "", "page /organization/create"},
		{"unknown page falls through to the frontend", "/assets/app.js", "", http.StatusOK, "", "page /assets/app.js"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, ts.URL+tc.path, nil)
			require.NoError(t, err)
			if tc.accept != "" {
				req.Header.Set("Accept", tc.accept)
			}

			resp, err := client.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.expectedStatus, resp.StatusCode)
			if tc.expectedLocation != "" {
				assert.Equal(t, tc.expectedLocation, resp.Header.Get("Location"))
			}
			if tc.expectedBody != "" {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Contains(t, string(body), tc.expectedBody)
			}
		})
	}
}

func TestAPIEndpoints(t *testing.T) {
	ts := newTestServer(t, false)
	client := noRedirectClient(ts)

	t.Run("anonymous session", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/v1/session?route=/profiling")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			Data struct {
				Route    string
				Decision struct{ State string }
			}
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "profiling", body.Data.Route)
		assert.Equal(t, "REDIRECT_UNAUTHENTICATED", body.Data.Decision.State)
	})

	t.Run("unknown API path", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/v1/nonexistent")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	})

	t.Run("login redirects to the hosted UI", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/auth/login")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "https://test.auth.us-east-1.amazoncognito.com/oauth2/authorize"))
	})

	t.Run("callback without code", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/oauth2/idpresponse")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		ts := newTestServer(t, true)

		// record one guard decision first
		resp, err := noRedirectClient(ts).Get(ts.URL + "/profiling")
		require.NoError(t, err)
		resp.Body.Close()

		resp, err = http.Get(ts.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `guard_decisions_total{route="profiling",state="REDIRECT_UNAUTHENTICATED"} 1`)
	})

	t.Run("disabled", func(t *testing.T) {
		ts := newTestServer(t, false)

		resp, err := http.Get(ts.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()

		// falls through to the frontend
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "page /metrics", string(body))
	})
}

func TestCORSMiddleware(t *testing.T) {
	ts := newTestServer(t, false)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/session", nil)
	require.NoError(t, err)
	origin := "http://dashboard.example.com"
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", "GET")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"), "only the dashboard origin is allowed")
}

func TestAllowedOrigins(t *testing.T) {
	assert.Equal(t, []string{"https://dash.example.com"}, allowedOrigins("https://dash.example.com/"))
	assert.Equal(t, []string{"http://localhost:*"}, allowedOrigins(""))
}
