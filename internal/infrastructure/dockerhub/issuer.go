package dockerhub

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

const (
	defaultBaseURL = "https://hub.docker.com"
	defaultTimeout = 15 * time.Second

	tokenScope = "repo:read"
)

type Config struct {
	// Username and Token are the service credentials used to authenticate;
	// minted tokens belong to this account, not to the principal.
	Username string
	Token    string
	// BaseURL overrides the Docker Hub endpoint. Used by tests.
	BaseURL string
	Timeout time.Duration
}

// Issuer mints scoped, time-limited pull tokens against the Docker Hub API.
// Issuance is a two-call protocol: authenticate with the service credential,
// then create an access token with the short-lived session it returns.
type Issuer struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

func NewIssuer(cfg Config) *Issuer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Issuer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// Issue mints a new read-only pull token for the principal. The token label
// embeds the principal and issuance time so repeated issuance never collides,
// and the token expires six months after issuance.
func (i *Issuer) Issue(ctx context.Context, principal string) (string, error) {
	if i.cfg.Username == "" || i.cfg.Token == "" {
		return "", &request.ConfigError{Missing: "docker hub service credentials"}
	}

	session, err := i.authenticate(ctx)
	if err != nil {
		return "", err
	}
	return i.createToken(ctx, session, principal)
}

func (i *Issuer) authenticate(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"identifier": i.cfg.Username,
		"secret":     i.cfg.Token,
	})
	if err != nil {
		return "", fmt.Errorf("encode auth payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.baseURL()+"/v2/auth/token", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return "", &request.IntegrationError{Service: "dockerhub", Message: fmt.Sprintf("authenticate: %v", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &request.IntegrationError{
			Service:    "dockerhub",
			StatusCode: resp.StatusCode,
			Message:    "authenticate: " + compact(body),
		}
	}

	var auth struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &auth); err != nil {
		return "", &request.IntegrationError{Service: "dockerhub", Message: fmt.Sprintf("decode auth response: %v", err)}
	}
	if auth.AccessToken == "" {
		return "", &request.IntegrationError{Service: "dockerhub", Message: "authenticate: empty access token"}
	}
	return auth.AccessToken, nil
}

func (i *Issuer) createToken(ctx context.Context, session, principal string) (string, error) {
	expiresAt := i.now().UTC().AddDate(0, request.SupportMonths, 0)
	label := fmt.Sprintf("access-%s-%d", principal, i.now().UnixMilli())

	payload, err := json.Marshal(map[string]any{
		"token_label": label,
		"scopes":      []string{tokenScope},
		"expires_at":  expiresAt.Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("encode token payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.baseURL()+"/v2/access-tokens", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+session)
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return "", &request.IntegrationError{Service: "dockerhub", Message: fmt.Sprintf("create access token: %v", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &request.IntegrationError{
			Service:    "dockerhub",
			StatusCode: resp.StatusCode,
			Message:    "create access token: " + compact(body),
		}
	}

	var minted struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &minted); err != nil {
		return "", &request.IntegrationError{Service: "dockerhub", Message: fmt.Sprintf("decode token response: %v", err)}
	}
	if minted.Token == "" {
		return "", &request.IntegrationError{Service: "dockerhub", Message: "create access token: empty token"}
	}
	return minted.Token, nil
}

func (i *Issuer) baseURL() string {
	if i.cfg.BaseURL != "" {
		return strings.TrimSuffix(i.cfg.BaseURL, "/")
	}
	return defaultBaseURL
}

func compact(body []byte) string {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return "empty response body"
	}
	return s
}
