package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"accessdesk/internal/bootstrap"
	"accessdesk/internal/bootstrap/logging"
	"accessdesk/internal/domain/request"
	"accessdesk/internal/errs"
	"accessdesk/internal/infrastructure/supabase"
	"accessdesk/internal/usecase/fulfillment"
)

const sessionCookie = "ad_session"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the access request HTTP API",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *fulfillment.Service, authn *supabase.Client) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		addr, _ := cmd.Flags().GetString("addr")
		addr = strings.TrimSpace(addr)
		if addr == "" {
			addr = app.Config.HTTP.Addr
		}

		server := &http.Server{
			Addr:    addr,
			Handler: newAccessHandler(ctx, svc, authn),
		}

		runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		logging.Info(ctx, "access api server started", slog.String("addr", addr))

		if err := runServer(runCtx, server); err != nil {
			logging.Error(ctx, "access api server failed", slog.Any("err", errs.Loggable(err)))
			return err
		}
		logging.Info(ctx, "access api server stopped")
		return nil
	}),
}

// runServer serves until the listener fails or ctx is cancelled, then drains
// in-flight requests before returning.
func runServer(ctx context.Context, server *http.Server) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errs.Wrap(err, "serve access api")
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errs.Wrap(err, "shutdown access api")
		}
		<-serveErr
		return nil
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (defaults to http.addr from config)")
}

type accessService interface {
	Submit(ctx context.Context, input fulfillment.SubmitInput) (fulfillment.SubmitResult, error)
	List(ctx context.Context) ([]fulfillment.RequestView, error)
}

type identityClient interface {
	SignInWithPassword(ctx context.Context, email, password string) (supabase.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (supabase.User, error)
}

type accessHTTPHandler struct {
	baseCtx context.Context
	svc     accessService
	authn   identityClient
}

func newAccessHandler(ctx context.Context, svc accessService, authn identityClient) http.Handler {
	h := &accessHTTPHandler{
		baseCtx: ctx,
		svc:     svc,
		authn:   authn,
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/api/auth/login", h.handleLogin)
	r.Post("/api/auth/logout", h.handleLogout)
	r.Get("/api/auth/check", h.handleAuthCheck)

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireSession)
		pr.Post("/api/access-requests", h.handleSubmit)
		pr.Get("/api/access-requests", h.handleList)
	})

	return r
}

// requireSession gates every non-public route on a valid session. API calls
// get a 401, everything else is redirected to the login page.
func (h *accessHTTPHandler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token != "" {
			if _, err := h.authn.GetUser(r.Context(), token); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		if strings.HasPrefix(r.URL.Path, "/api/") {
			writeAPIError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		// Every gated route today lives under /api/, so this only fires
		// once page routes are mounted behind the session check.
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	})
}

func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

type submitPayload struct {
	GithubUsername string   `json:"github_username"`
	Email          string   `json:"email"`
	DockerToken    string   `json:"docker_token"`
	ValorVenda     *float64 `json:"valor_venda"`
	Observacao     string   `json:"observacao"`
}

func (h *accessHTTPHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload submitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Submit(r.Context(), fulfillment.SubmitInput{
		GithubUsername: payload.GithubUsername,
		Email:          payload.Email,
		DockerToken:    payload.DockerToken,
		ValorVenda:     payload.ValorVenda,
		Observacao:     payload.Observacao,
	})
	if err != nil {
		logging.Warn(h.baseCtx, "access request submission failed",
			slog.String("request_id", result.RequestID),
			slog.Any("err", errs.Loggable(err)),
		)
		writeAPIError(w, submitStatusCode(err), err.Error())
		return
	}

	writeAPIJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "access granted and notification sent",
	})
}

// submitStatusCode maps the error taxonomy onto response codes: 400 for
// anything the caller or operator can act on, 500 otherwise.
func submitStatusCode(err error) int {
	if errors.Is(err, request.ErrNoActionableField) {
		return http.StatusBadRequest
	}

	var cfgErr *request.ConfigError
	var intErr *request.IntegrationError
	if errors.As(err, &cfgErr) || errors.As(err, &intErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *accessHTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.List(r.Context())
	if err != nil {
		logging.Error(h.baseCtx, "list access requests failed", slog.Any("err", errs.Loggable(err)))
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rows := make([]requestRow, 0, len(views))
	for _, view := range views {
		rows = append(rows, requestRowFromView(view))
	}
	writeAPIJSON(w, http.StatusOK, map[string]any{"data": rows})
}

type requestRow struct {
	ID               string   `json:"id"`
	GithubUsername   string   `json:"github_username,omitempty"`
	Email            string   `json:"email,omitempty"`
	Status           string   `json:"status"`
	DockerToken      string   `json:"docker_token,omitempty"`
	ValorVenda       *float64 `json:"valor_venda,omitempty"`
	Observacao       string   `json:"observacao,omitempty"`
	CreatedAt        string   `json:"created_at"`
	SupportExpiresAt string   `json:"support_expires_at"`
	SupportActive    bool     `json:"support_active"`
}

func requestRowFromView(view fulfillment.RequestView) requestRow {
	return requestRow{
		ID:               view.ID,
		GithubUsername:   view.GithubUsername,
		Email:            view.Email,
		Status:           string(view.Status),
		DockerToken:      view.DockerToken,
		ValorVenda:       view.ValorVenda,
		Observacao:       view.Observacao,
		CreatedAt:        view.CreatedAt.UTC().Format(time.RFC3339),
		SupportExpiresAt: view.SupportExpiresAt.UTC().Format(time.RFC3339),
		SupportActive:    view.SupportActive,
	}
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *accessHTTPHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Email == "" || payload.Password == "" {
		writeAPIError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	session, err := h.authn.SignInWithPassword(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeAPIError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	maxAge := session.ExpiresIn
	if maxAge <= 0 {
		maxAge = 3600
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.AccessToken,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeAPIJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *accessHTTPHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if err := h.authn.SignOut(r.Context(), token); err != nil {
			logging.Warn(h.baseCtx, "sign out failed", slog.Any("err", errs.Loggable(err)))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeAPIJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *accessHTTPHandler) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if token == "" {
		writeAPIJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	user, err := h.authn.GetUser(r.Context(), token)
	if err != nil {
		writeAPIJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeAPIJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"email":         user.Email,
	})
}

func writeAPIJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	writeAPIJSON(w, status, map[string]string{"error": message})
}
