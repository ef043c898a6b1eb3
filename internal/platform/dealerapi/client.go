package dealerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient matches net/http.Client Do signature for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the car-dealer REST API. All requests carry the session's
// bearer token when one is held; a single 401 per request triggers one
// silent refresh-and-retry.
type Client struct {
	baseURL    *url.URL
	httpClient HTTPClient
	session    *Session
}

// Config defines settings for the API client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// New creates an API client. A nil httpClient falls back to a default with
// the configured timeout.
func New(httpClient HTTPClient, session *Session, cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if session == nil {
		session = &Session{}
	}
	return &Client{baseURL: base, httpClient: httpClient, session: session}, nil
}

// Session exposes the client's session context.
func (c *Client) Session() *Session {
	return c.session
}

// APIError is a non-2xx response from the upstream API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Body)
}

// resolve turns a path or a paginator-supplied URL (relative or absolute)
// into an absolute request URL.
func (c *Client) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", ref, err)
	}
	return c.baseURL.ResolveReference(u).String(), nil
}

// do issues one request, decoding a JSON response into out when out is
// non-nil. On a 401 with a live session it refreshes once and retries.
func (c *Client) do(ctx context.Context, method, ref string, body []byte, contentType string, out any) error {
	endpoint, err := c.resolve(ref)
	if err != nil {
		return err
	}

	retried := false
	for {
		access := c.session.AccessToken()
		resp, err := c.send(ctx, method, endpoint, body, contentType, access)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusUnauthorized && !retried && access != "" {
			drain(resp)
			if err := c.session.refreshAfter401(ctx, access, c.exchangeRefreshToken); err != nil {
				return err
			}
			retried = true
			continue
		}

		return decodeResponse(resp, out)
	}
}

func (c *Client) send(ctx context.Context, method, endpoint string, body []byte, contentType, access string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, endpoint, err)
	}
	return resp, nil
}

// exchangeRefreshToken swaps the refresh token for a new access token. The
// exchange itself is unauthenticated and is never retried.
func (c *Client) exchangeRefreshToken(ctx context.Context, refresh string) (string, error) {
	payload, _ := json.Marshal(map[string]string{"refresh": refresh})
	resp, err := c.send(ctx, http.MethodPost, mustResolve(c, "token/refresh/"), payload, "application/json", "")
	if err != nil {
		return "", err
	}
	var result struct {
		Access string `json:"access"`
	}
	if err := decodeResponse(resp, &result); err != nil {
		return "", err
	}
	if result.Access == "" {
		return "", fmt.Errorf("refresh response carried no access token")
	}
	return result.Access, nil
}

func mustResolve(c *Client, ref string) string {
	endpoint, err := c.resolve(ref)
	if err != nil {
		// ref is a compile-time constant path here.
		panic(err)
	}
	return endpoint
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func (c *Client) getJSON(ctx context.Context, ref string, out any) error {
	return c.do(ctx, http.MethodGet, ref, nil, "", out)
}

func (c *Client) postJSON(ctx context.Context, ref string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return c.do(ctx, http.MethodPost, ref, body, "application/json", out)
}

func (c *Client) patchJSON(ctx context.Context, ref string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return c.do(ctx, http.MethodPatch, ref, body, "application/json", out)
}

func (c *Client) deleteJSON(ctx context.Context, ref string) error {
	return c.do(ctx, http.MethodDelete, ref, nil, "", nil)
}
