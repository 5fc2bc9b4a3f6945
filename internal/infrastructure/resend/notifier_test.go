package resend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"accessdesk/internal/domain/request"
)

func TestNotifySendsCredentialEmail(t *testing.T) {
	var sent struct {
		From    string   `json:"from"`
		To      []string `json:"to"`
		Subject string   `json:"subject"`
		HTML    string   `json:"html"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer re_test" {
			t.Errorf("authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&sent); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "email-1"})
	}))
	defer srv.Close()

	notifier := NewNotifier(Config{
		APIKey:           "re_test",
		From:             "Access Desk <access@acme.dev>",
		Repository:       "acme/api-pro",
		RegistryUsername: "acme-registry",
		Image:            "acme/api-pro:latest",
		BaseURL:          srv.URL,
	})

	if err := notifier.Notify(context.Background(), "alice@x.com", "alice", "dckr_pat_123"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if len(sent.To) != 1 || sent.To[0] != "alice@x.com" {
		t.Fatalf("to = %v", sent.To)
	}
	if sent.From != "Access Desk <access@acme.dev>" {
		t.Fatalf("from = %q", sent.From)
	}
	if sent.Subject == "" {
		t.Fatalf("subject must not be empty")
	}
	for _, want := range []string{"acme/api-pro", "acme-registry", "dckr_pat_123", "docker pull acme/api-pro:latest"} {
		if !strings.Contains(sent.HTML, want) {
			t.Fatalf("html body must contain %q", want)
		}
	}
}

func TestNotifyUpstreamRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"invalid to address"}`))
	}))
	defer srv.Close()

	notifier := NewNotifier(Config{APIKey: "re_test", BaseURL: srv.URL})

	err := notifier.Notify(context.Background(), "not-an-email", "alice", "tok")
	var intErr *request.IntegrationError
	if !errors.As(err, &intErr) {
		t.Fatalf("Notify() error = %T, want IntegrationError", err)
	}
	if intErr.Service != "resend" {
		t.Fatalf("service = %q", intErr.Service)
	}
	if intErr.Message == "" {
		t.Fatalf("rejection must carry the upstream error")
	}
}

func TestNotifyMissingAPIKey(t *testing.T) {
	notifier := NewNotifier(Config{})

	err := notifier.Notify(context.Background(), "alice@x.com", "alice", "tok")
	var cfgErr *request.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Notify() error = %v, want ConfigError", err)
	}
}
