// Package profile fetches the signed-in user's profile from the upstream
// profile service and exposes it as the query snapshot the route guard reads.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/threatprofile-gateway/models"
	"github.com/upb/threatprofile-gateway/services"
	"github.com/upb/threatprofile-gateway/tokens"
	"github.com/upb/threatprofile-gateway/utils"
)

// AccessTokenHeader carries the access token next to the identity bearer token
const AccessTokenHeader = "X-Access-Token"

// Fetcher loads the profile of the session identified by pair.
// A nil profile with a nil error means the user has no profile yet.
type Fetcher interface {
	Fetch(ctx context.Context, pair tokens.Pair) (*models.UserProfile, error)
}

// HTTPClient calls GET {baseURL}/profile/me on the profile service
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a profile service client
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{},
		},
	}
}

// Fetch implements Fetcher
func (c *HTTPClient) Fetch(ctx context.Context, pair tokens.Pair) (*models.UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/profile/me", nil)
	if err != nil {
		return nil, fmt.Errorf("create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+pair.IDToken)
	req.Header.Set(AccessTokenHeader, pair.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", services.ErrProfileServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, services.WrapExternal("read profile response", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: profile service returned %d", services.ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", services.ErrProfileServiceUnavailable, resp.StatusCode)
	}

	var p models.UserProfile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", services.ErrInvalidProfile, err)
	}
	if err := utils.ValidateStruct(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrInvalidProfile, utils.GetValidationFields(err))
	}

	return &p, nil
}
