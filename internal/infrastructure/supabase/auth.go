package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"accessdesk/internal/domain/request"
)

const defaultTimeout = 10 * time.Second

type Config struct {
	// URL is the project base URL, e.g. https://<project>.supabase.co.
	URL     string
	AnonKey string
	Timeout time.Duration
}

// Client talks to the Supabase auth (GoTrue) endpoints. The rest of the
// system treats sign-in, sign-out and session validation as opaque
// primitives of this external identity provider.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SignInWithPassword exchanges email/password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	if err := c.checkConfig(); err != nil {
		return Session{}, err
	}

	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return Session{}, fmt.Errorf("encode sign-in payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL()+"/auth/v1/token?grant_type=password", bytes.NewReader(payload))
	if err != nil {
		return Session{}, fmt.Errorf("build sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(req, "")

	var session Session
	if err := c.do(req, "sign in", &session); err != nil {
		return Session{}, err
	}
	if session.AccessToken == "" {
		return Session{}, &request.IntegrationError{Service: "supabase", Message: "sign in: empty access token"}
	}
	return session, nil
}

// SignOut revokes the session behind the access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if err := c.checkConfig(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/auth/v1/logout", nil)
	if err != nil {
		return fmt.Errorf("build sign-out request: %w", err)
	}
	c.setAuthHeaders(req, accessToken)

	return c.do(req, "sign out", nil)
}

// GetUser validates an access token and returns the user behind it. Any
// non-success response means the session is absent or invalid.
func (c *Client) GetUser(ctx context.Context, accessToken string) (User, error) {
	if err := c.checkConfig(); err != nil {
		return User{}, err
	}
	if accessToken == "" {
		return User{}, &request.IntegrationError{Service: "supabase", StatusCode: http.StatusUnauthorized, Message: "missing access token"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/auth/v1/user", nil)
	if err != nil {
		return User{}, fmt.Errorf("build user request: %w", err)
	}
	c.setAuthHeaders(req, accessToken)

	var user User
	if err := c.do(req, "get user", &user); err != nil {
		return User{}, err
	}
	if user.ID == "" {
		return User{}, &request.IntegrationError{Service: "supabase", Message: "get user: empty user id"}
	}
	return user, nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &request.IntegrationError{Service: "supabase", Message: fmt.Sprintf("%s: %v", op, err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := op + " failed"
		var apiErr struct {
			Message  string `json:"msg"`
			ErrorMsg string `json:"error_description"`
		}
		if json.Unmarshal(body, &apiErr) == nil {
			if apiErr.Message != "" {
				message = apiErr.Message
			} else if apiErr.ErrorMsg != "" {
				message = apiErr.ErrorMsg
			}
		}
		return &request.IntegrationError{Service: "supabase", StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &request.IntegrationError{Service: "supabase", Message: fmt.Sprintf("decode %s response: %v", op, err)}
	}
	return nil
}

func (c *Client) setAuthHeaders(req *http.Request, accessToken string) {
	req.Header.Set("apikey", c.cfg.AnonKey)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AnonKey)
	}
}

func (c *Client) checkConfig() error {
	if c.cfg.URL == "" || c.cfg.AnonKey == "" {
		return &request.ConfigError{Missing: "supabase url or anon key"}
	}
	return nil
}

func (c *Client) baseURL() string {
	return strings.TrimSuffix(c.cfg.URL, "/")
}
