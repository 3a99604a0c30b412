package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/layer-3/dropgate/core"
)

const defaultTimeout = 15 * time.Second

// Client talks to the dropgate HTTP API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// New creates a client for baseURL. apiKey is sent as X-Api-Key when set.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Verify submits a signed challenge
func (c *Client) Verify(ctx context.Context, req core.VerifyRequest) (*core.Grant, error) {
	var grant core.Grant
	if err := c.do(ctx, http.MethodPost, "/auth/verify", "", req, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// Refresh rotates refreshToken
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*core.Grant, error) {
	var grant core.Grant
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", "", body, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// Logout revokes refreshToken
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	body := map[string]string{"refresh_token": refreshToken}
	return c.do(ctx, http.MethodPost, "/auth/logout", "", body, nil)
}

// FetchProfile returns the profile of the session behind accessToken
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (*core.Profile, error) {
	var profile core.Profile
	if err := c.do(ctx, http.MethodGet, "/api/me", accessToken, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// AdminLogin checks the admin password
func (c *Client) AdminLogin(ctx context.Context, password string) (*core.AdminGrant, error) {
	var grant core.AdminGrant
	body := map[string]string{"password": password}
	if err := c.do(ctx, http.MethodPost, "/admin/login", "", body, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return decodeError(method, path, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}

	return nil
}

// decodeError restores the core error named by the response code
func decodeError(method, path string, resp *http.Response) error {
	var e errorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e)

	if sentinel := core.ErrorFromCode(e.Code); sentinel != nil {
		return fmt.Errorf("%s %s: %w", method, path, sentinel)
	}

	if e.Error == "" {
		e.Error = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, e.Error)
}
