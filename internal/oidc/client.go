// Package oidc talks to the external OpenID Connect identity provider and
// normalizes its responses at the trust boundary. Provider-native claim maps
// never leave this package.
package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrRefreshRejected signals the provider explicitly refused the refresh
// grant (revoked or expired refresh token); retrying cannot succeed.
var ErrRefreshRejected = errors.New("oidc: refresh token rejected")

// Provider holds the endpoints and client credentials of the identity
// provider this deployment authenticates against.
type Provider struct {
	IssuerURL        string
	ClientID         string
	ClientSecret     string
	AuthorizationURL string
	TokenURL         string
	UserinfoURL      string
	EndSessionURL    string
	Scopes           []string
}

// TokenResponse models the provider token endpoint response.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	TokenType    string
	Scope        string
	ExpiresIn    int64
}

// UserInfo is the normalized profile shape returned by the userinfo endpoint.
type UserInfo struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
}

// Client encapsulates outbound calls to the identity provider.
type Client interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
	FetchUserInfo(ctx context.Context, accessToken string) (*UserInfo, error)
}

// HTTPClient is the default HTTP implementation of Client.
type HTTPClient struct {
	provider   Provider
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient constructs the default client. A nil http.Client gets a
// bounded-timeout default; provider calls must never hang a request task.
func NewHTTPClient(provider Provider, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{provider: provider, httpClient: client}
}

// AuthorizationURL builds the redirect-based login URL for the given state.
func (c *HTTPClient) AuthorizationURL(redirectURI, state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.provider.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	scopes := c.provider.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}
	q.Set("scope", strings.Join(scopes, " "))
	return c.provider.AuthorizationURL + "?" + q.Encode()
}

// EndSessionURL builds the provider logout redirect, empty when unsupported.
func (c *HTTPClient) EndSessionURL(idToken, postLogoutRedirectURI string) string {
	if strings.TrimSpace(c.provider.EndSessionURL) == "" {
		return ""
	}
	q := url.Values{}
	q.Set("client_id", c.provider.ClientID)
	if idToken != "" {
		q.Set("id_token_hint", idToken)
	}
	if postLogoutRedirectURI != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	}
	return c.provider.EndSessionURL + "?" + q.Encode()
}

// ExchangeCode redeems an authorization code for a token set.
func (c *HTTPClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", redirectURI)
	return c.tokenRequest(ctx, data)
}

// Refresh performs the refresh_token grant.
func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, fmt.Errorf("%w: empty refresh token", ErrRefreshRejected)
	}
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	return c.tokenRequest(ctx, data)
}

func (c *HTTPClient) tokenRequest(ctx context.Context, data url.Values) (*TokenResponse, error) {
	if strings.TrimSpace(c.provider.TokenURL) == "" {
		return nil, fmt.Errorf("token url missing")
	}
	data.Set("client_id", c.provider.ClientID)
	if c.provider.ClientSecret != "" {
		data.Set("client_secret", c.provider.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.provider.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, fmt.Errorf("%w: status=%d", ErrRefreshRejected, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token request failed: status=%d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	token := &TokenResponse{
		AccessToken:  stringValue(raw["access_token"]),
		RefreshToken: stringValue(raw["refresh_token"]),
		IDToken:      stringValue(raw["id_token"]),
		TokenType:    stringValue(raw["token_type"]),
		Scope:        stringValue(raw["scope"]),
	}
	if exp := raw["expires_in"]; exp != nil {
		token.ExpiresIn = int64Value(exp)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return token, nil
}

// FetchUserInfo loads the userinfo endpoint profile.
func (c *HTTPClient) FetchUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	if strings.TrimSpace(c.provider.UserinfoURL) == "" {
		return nil, fmt.Errorf("userinfo url missing")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.provider.UserinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read userinfo: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("userinfo failed: status=%d", resp.StatusCode)
	}

	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	return &info, nil
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
