// Package provider is the client for the hosted auth provider: password-grant
// credential operations and the event stream contract. The provider protocol
// itself (OAuth/OIDC) stays on the provider's side; this package only calls
// its REST endpoints.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"talent-hub/backend/internal/authevent"
)

const defaultTimeout = 15 * time.Second

// Session is the provider's credential material plus the session snapshot for
// the authenticated principal.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *authevent.SessionPayload
}

// SignUpData is the registration input forwarded to the provider.
type SignUpData struct {
	Email    string
	Password string
	Metadata map[string]any
}

// Client calls the hosted auth provider's auth endpoints. It tracks the
// current session so SignOut can revoke it, mirroring the provider's own SDK.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client

	mu      sync.Mutex
	current *Session
}

// NewClient returns a client for the provider at baseURL using the given API key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// tokenResponse is the provider's session grant shape.
type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int           `json:"expires_in"`
	User         *providerUser `json:"user"`
}

type providerUser struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata"`
}

// errorResponse is the provider's error shape; fields vary by endpoint.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e *errorResponse) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// SignIn performs the password grant and returns the new session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]any{"email": email, "password": password}
	sess, err := c.grant(ctx, "/token?grant_type=password", body)
	if err != nil {
		return nil, err
	}
	c.setCurrent(sess)
	return sess, nil
}

// SignUp registers the principal and returns its session.
func (c *Client) SignUp(ctx context.Context, data SignUpData) (*Session, error) {
	body := map[string]any{"email": data.Email, "password": data.Password}
	if len(data.Metadata) > 0 {
		body["data"] = data.Metadata
	}
	sess, err := c.grant(ctx, "/signup", body)
	if err != nil {
		return nil, err
	}
	c.setCurrent(sess)
	return sess, nil
}

// SignOut revokes the current session on the provider. No-op when there is no
// current session.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	sess := c.current
	c.current = nil
	c.mu.Unlock()
	if sess == nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	req.Header.Set("apikey", c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("provider: %s", readError(resp))
	}
	return nil
}

func (c *Client) grant(ctx context.Context, path string, body map[string]any) (*Session, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider: %s", readError(resp))
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("provider: decode session: %w", err)
	}
	if tr.User == nil || tr.User.ID == "" {
		return nil, fmt.Errorf("provider: session grant without user")
	}
	return &Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    time.Now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second),
		User: &authevent.SessionPayload{
			UserID:   tr.User.ID,
			Email:    tr.User.Email,
			Metadata: tr.User.Metadata,
		},
	}, nil
}

func (c *Client) setCurrent(sess *Session) {
	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()
}

// readError extracts the provider's error text from a non-200 response,
// falling back to the status and raw body.
func readError(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var er errorResponse
	if err := json.Unmarshal(b, &er); err == nil {
		if s := er.text(); s != "" {
			return s
		}
	}
	return fmt.Sprintf("request failed status=%d body=%s", resp.StatusCode, string(b))
}
