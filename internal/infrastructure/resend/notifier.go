package resend

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	resendgo "github.com/resend/resend-go/v2"

	"accessdesk/internal/domain/request"
)

const (
	defaultFrom    = "Access Desk <onboarding@resend.dev>"
	defaultTimeout = 15 * time.Second

	subject = "Your private repository access is ready"
)

type Config struct {
	APIKey string
	// From is the sender identity, "Name <address>".
	From string
	// Repository is the granted source repository shown in the message,
	// "owner/name".
	Repository string
	// RegistryUsername and Image describe how to use the minted pull token.
	RegistryUsername string
	Image            string
	// BaseURL overrides the Resend endpoint. Used by tests.
	BaseURL string
	Timeout time.Duration
}

// Notifier sends the access-granted email through the Resend API.
type Notifier struct {
	cfg     Config
	client  *resendgo.Client
	tmpl    *template.Template
	timeout time.Duration
}

func NewNotifier(cfg Config) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := resendgo.NewClient(cfg.APIKey)
	if cfg.BaseURL != "" {
		if base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/"); err == nil {
			client.BaseURL = base
		}
	}

	return &Notifier{
		cfg:     cfg,
		client:  client,
		tmpl:    template.Must(template.New("access-email").Parse(bodyTemplate)),
		timeout: timeout,
	}
}

type bodyData struct {
	Principal        string
	Repository       string
	RegistryUsername string
	Image            string
	Token            string
}

// Notify composes and sends a single message carrying the granted repository,
// the registry credentials and the pull command. One attempt, no retry.
func (n *Notifier) Notify(ctx context.Context, recipient, principal, credential string) error {
	if n.cfg.APIKey == "" {
		return &request.ConfigError{Missing: "resend api key"}
	}

	var html bytes.Buffer
	if err := n.tmpl.Execute(&html, bodyData{
		Principal:        principal,
		Repository:       n.cfg.Repository,
		RegistryUsername: n.cfg.RegistryUsername,
		Image:            n.cfg.Image,
		Token:            credential,
	}); err != nil {
		return fmt.Errorf("render email body: %w", err)
	}

	from := n.cfg.From
	if from == "" {
		from = defaultFrom
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	params := &resendgo.SendEmailRequest{
		From:    from,
		To:      []string{recipient},
		Subject: subject,
		Html:    html.String(),
	}
	if _, err := n.client.Emails.SendWithContext(ctx, params); err != nil {
		return &request.IntegrationError{
			Service: "resend",
			Message: fmt.Sprintf("send email: %v", err),
		}
	}
	return nil
}

const bodyTemplate = `<!DOCTYPE html>
<html>
  <body style="font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
      <h1>Welcome{{if .Principal}}, {{.Principal}}{{end}}!</h1>
      <p>Your access request has been approved.</p>

      {{if .Repository}}
      <h3>Source repository</h3>
      <p>You have been added as a read-only collaborator to
        <code>{{.Repository}}</code>.</p>
      {{end}}

      {{if .Token}}
      <h3>Registry credentials</h3>
      <p>Username: <strong>{{.RegistryUsername}}</strong></p>
      <p>Token: <code>{{.Token}}</code></p>
      <p>Pull the private image with:</p>
      <pre>docker pull {{.Image}}</pre>
      {{end}}

      <p style="color: #92400e;"><strong>Security note:</strong> keep these
        credentials safe and do not share them publicly.</p>
      <p style="color: #666; font-size: 12px;">If you have any questions,
        contact our support team.</p>
    </div>
  </body>
</html>`
