package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/upb/threatprofile-gateway/config"
	"github.com/upb/threatprofile-gateway/tokens"
)

// TokenResponse represents the OAuth2 token endpoint response from Cognito
type TokenResponse struct {
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// TokenExchanger turns an authorization code into a token pair
type TokenExchanger interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (tokens.Pair, error)
}

// CognitoTokenExchanger exchanges authorization codes for tokens via Cognito
type CognitoTokenExchanger struct {
	cfg        config.CognitoConfig
	httpClient *http.Client
}

// NewCognitoTokenExchanger creates a new token exchanger
func NewCognitoTokenExchanger(cfg config.CognitoConfig) *CognitoTokenExchanger {
	return &CognitoTokenExchanger{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: &http.Transport{},
		},
	}
}

// ExchangeCode exchanges an authorization code for the identity and access tokens
func (e *CognitoTokenExchanger) ExchangeCode(ctx context.Context, code, redirectURI string) (tokens.Pair, error) {
	if e.cfg.Domain == "" || e.cfg.ClientID == "" {
		return tokens.Pair{}, NewDomainError(ErrorTypeInternal, "cognito not configured", nil)
	}

	tokenURL := strings.TrimSuffix(e.cfg.Domain, "/") + "/oauth2/token"
	data := url.Values{
		"grant_type":   {"authorization_code"},
		"client_id":    {e.cfg.ClientID},
		"code":         {code},
		"redirect_uri": {redirectURI},
	}

	if e.cfg.ClientSecret != "" {
		data.Set("client_secret", e.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return tokens.Pair{}, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return tokens.Pair{}, fmt.Errorf("%w: %w", ErrTokenExchangeFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tokens.Pair{}, fmt.Errorf("%w: %w", ErrTokenExchangeFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return tokens.Pair{}, fmt.Errorf("%w: status %d, body: %s", ErrTokenExchangeFailed, resp.StatusCode, string(body))
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return tokens.Pair{}, fmt.Errorf("%w: parse token response: %w", ErrTokenExchangeFailed, err)
	}

	// a session needs both tokens; a half pair is never stored
	if tokenResp.IDToken == "" || tokenResp.AccessToken == "" {
		return tokens.Pair{}, fmt.Errorf("%w: incomplete token response", ErrTokenExchangeFailed)
	}

	return tokens.Pair{IDToken: tokenResp.IDToken, AccessToken: tokenResp.AccessToken}, nil
}
