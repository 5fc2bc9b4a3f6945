package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gogithub "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"accessdesk/internal/domain/request"
)

const defaultTimeout = 15 * time.Second

type Config struct {
	// Token is the static bearer credential used for every grant call.
	Token string
	// Owner and Repos name the protected repositories principals are added to.
	Owner string
	Repos []string
	// BaseURL overrides the GitHub API endpoint. Used by tests.
	BaseURL string
	Timeout time.Duration
}

// Grantor adds principals as read-only collaborators via the GitHub API.
type Grantor struct {
	cfg    Config
	client *gogithub.Client
}

func NewGrantor(cfg Config) (*Grantor, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var httpClient *http.Client
	if cfg.Token != "" {
		httpClient = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: cfg.Token},
		))
	} else {
		httpClient = &http.Client{}
	}
	httpClient.Timeout = timeout

	client := gogithub.NewClient(httpClient)
	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		client.BaseURL = base
	}

	return &Grantor{cfg: cfg, client: client}, nil
}

// Grant adds the principal to every configured repository with pull
// permission. Repositories are granted in parallel; the call succeeds only
// when every grant succeeds. Grants already applied are not reverted on a
// later failure.
func (g *Grantor) Grant(ctx context.Context, principal string) error {
	if g.cfg.Token == "" {
		return &request.ConfigError{Missing: "github token"}
	}
	if g.cfg.Owner == "" || len(g.cfg.Repos) == 0 {
		return &request.ConfigError{Missing: "github target repositories"}
	}

	grantErrs := make([]error, len(g.cfg.Repos))
	var wg sync.WaitGroup
	for i, repo := range g.cfg.Repos {
		wg.Add(1)
		go func(i int, repo string) {
			defer wg.Done()
			grantErrs[i] = g.grantOne(ctx, principal, repo)
		}(i, repo)
	}
	wg.Wait()

	return errors.Join(grantErrs...)
}

func (g *Grantor) grantOne(ctx context.Context, principal, repo string) error {
	opts := &gogithub.RepositoryAddCollaboratorOptions{Permission: "pull"}

	// A nil invitation with a 204 response means the principal already
	// collaborates on the repository; the API treats the call as a no-op.
	_, _, err := g.client.Repositories.AddCollaborator(ctx, g.cfg.Owner, repo, principal, opts)
	if err == nil {
		return nil
	}

	status := 0
	message := err.Error()
	var apiErr *gogithub.ErrorResponse
	if errors.As(err, &apiErr) {
		message = apiErr.Message
		if apiErr.Response != nil {
			status = apiErr.Response.StatusCode
		}
	}

	return &request.IntegrationError{
		Service:    "github",
		StatusCode: status,
		Message:    fmt.Sprintf("add collaborator %s to %s/%s: %s", principal, g.cfg.Owner, repo, message),
	}
}
