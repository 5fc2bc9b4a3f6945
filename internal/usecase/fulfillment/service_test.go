package fulfillment

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"accessdesk/internal/domain/request"
	"accessdesk/internal/infrastructure/persistence/sqlite/model"
	sqliterepo "accessdesk/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "accessdesk/internal/infrastructure/persistence/sqlite/uow"
	"accessdesk/internal/ports"
)

type fakeGrantor struct {
	err        error
	principals []string
}

func (g *fakeGrantor) Grant(_ context.Context, principal string) error {
	g.principals = append(g.principals, principal)
	return g.err
}

type fakeIssuer struct {
	token string
	err   error
	calls int
}

func (i *fakeIssuer) Issue(_ context.Context, _ string) (string, error) {
	i.calls++
	if i.err != nil {
		return "", i.err
	}
	return i.token, nil
}

type notification struct {
	recipient  string
	principal  string
	credential string
}

type fakeNotifier struct {
	err  error
	sent []notification
}

func (n *fakeNotifier) Notify(_ context.Context, recipient, principal, credential string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification{recipient, principal, credential})
	return nil
}

type collaborators struct {
	grantor  *fakeGrantor
	issuer   *fakeIssuer
	notifier *fakeNotifier
}

func setupService(t *testing.T) (*Service, *collaborators, ports.RequestRepository) {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "accessdesk.sqlite")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.AccessRequest{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	c := &collaborators{
		grantor:  &fakeGrantor{},
		issuer:   &fakeIssuer{token: "dckr_pat_minted"},
		notifier: &fakeNotifier{},
	}
	repo := sqliterepo.NewRequestRepository(db)
	svc := NewService(repo, sqliteuow.NewUnitOfWork(db), c.grantor, c.issuer, c.notifier)
	return svc, c, repo
}

// brokenStatusRepo accepts the pending insert but fails every terminal
// status write.
type brokenStatusRepo struct {
	created   ports.AccessRequest
	statusErr error
}

func (r *brokenStatusRepo) Create(_ context.Context, input ports.AccessRequestCreate) (ports.AccessRequest, error) {
	r.created = ports.AccessRequest{
		ID:             "req-1",
		GithubUsername: input.GithubUsername,
		Email:          input.Email,
		Status:         request.StatusPending,
		CreatedAt:      time.Now().UTC(),
	}
	return r.created, nil
}

func (r *brokenStatusRepo) Get(_ context.Context, _ string) (ports.AccessRequest, error) {
	return r.created, nil
}

func (r *brokenStatusRepo) SetStatus(_ context.Context, _ string, _ request.Status, _ string) error {
	return r.statusErr
}

func (r *brokenStatusRepo) List(_ context.Context) ([]ports.AccessRequest, error) {
	return []ports.AccessRequest{r.created}, nil
}

type passthroughUOW struct{}

func (passthroughUOW) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func TestSubmitRejectsWithoutActionableField(t *testing.T) {
	svc, _, repo := setupService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitInput{Observacao: "nothing to do"})
	if !errors.Is(err, request.ErrNoActionableField) {
		t.Fatalf("Submit() error = %v, want ErrNoActionableField", err)
	}

	rows, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rejected submission must not create a row, got %d", len(rows))
	}
}

func TestSubmitFullSuccess(t *testing.T) {
	svc, c, repo := setupService(t)
	ctx := context.Background()

	result, err := svc.Submit(ctx, SubmitInput{GithubUsername: "alice", Email: "alice@x.com"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if result.Status != request.StatusApproved {
		t.Fatalf("Submit() status = %q, want approved", result.Status)
	}

	stored, err := repo.Get(ctx, result.RequestID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Status != request.StatusApproved {
		t.Fatalf("stored status = %q, want approved", stored.Status)
	}
	if stored.DockerToken != "dckr_pat_minted" {
		t.Fatalf("stored docker token = %q", stored.DockerToken)
	}
	if stored.GithubUsername != "alice" {
		t.Fatalf("stored github username = %q", stored.GithubUsername)
	}

	if len(c.grantor.principals) != 1 || c.grantor.principals[0] != "alice" {
		t.Fatalf("grantor principals = %v", c.grantor.principals)
	}
	if c.issuer.calls != 1 {
		t.Fatalf("issuer calls = %d, want 1", c.issuer.calls)
	}
	if len(c.notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(c.notifier.sent))
	}
	if got := c.notifier.sent[0]; got.recipient != "alice@x.com" || got.credential != "dckr_pat_minted" {
		t.Fatalf("notification = %+v", got)
	}
}

func TestSubmitGrantFailureMarksFailed(t *testing.T) {
	svc, c, repo := setupService(t)
	ctx := context.Background()

	c.grantor.err = &request.IntegrationError{Service: "github", StatusCode: 403, Message: "blocked"}

	result, err := svc.Submit(ctx, SubmitInput{GithubUsername: "alice", Email: "alice@x.com"})
	if err == nil {
		t.Fatalf("Submit() must surface the grant failure")
	}
	var intErr *request.IntegrationError
	if !errors.As(err, &intErr) {
		t.Fatalf("Submit() error = %T, want IntegrationError in chain", err)
	}

	stored, getErr := repo.Get(ctx, result.RequestID)
	if getErr != nil {
		t.Fatalf("Get() error = %v", getErr)
	}
	if stored.Status != request.StatusFailed {
		t.Fatalf("stored status = %q, want failed", stored.Status)
	}
	if stored.DockerToken != "" {
		t.Fatalf("failed request must never hold a token, got %q", stored.DockerToken)
	}

	if c.issuer.calls != 0 {
		t.Fatalf("issuer must not run after a grant failure")
	}
	if len(c.notifier.sent) != 0 {
		t.Fatalf("notifier must not run after a grant failure")
	}
}

func TestSubmitNotifierFailureMarksFailed(t *testing.T) {
	svc, c, repo := setupService(t)
	ctx := context.Background()

	c.notifier.err = &request.IntegrationError{Service: "resend", StatusCode: http.StatusUnprocessableEntity, Message: "invalid to address"}

	result, err := svc.Submit(ctx, SubmitInput{GithubUsername: "alice", Email: "alice@x.com"})
	if err == nil {
		t.Fatalf("Submit() must surface the notification failure")
	}

	stored, getErr := repo.Get(ctx, result.RequestID)
	if getErr != nil {
		t.Fatalf("Get() error = %v", getErr)
	}
	if stored.Status != request.StatusFailed {
		t.Fatalf("stored status = %q, want failed", stored.Status)
	}
	if stored.DockerToken != "" {
		t.Fatalf("credential must not persist when notification fails")
	}
}

func TestSubmitEmailOnlySkipsGrantAndIssuance(t *testing.T) {
	svc, c, repo := setupService(t)
	ctx := context.Background()

	result, err := svc.Submit(ctx, SubmitInput{Email: "alice@x.com"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if result.Status != request.StatusApproved {
		t.Fatalf("Submit() status = %q, want approved", result.Status)
	}

	if len(c.grantor.principals) != 0 {
		t.Fatalf("grantor must not run without a github username")
	}
	if c.issuer.calls != 0 {
		t.Fatalf("issuer must not run without a github username")
	}
	if len(c.notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(c.notifier.sent))
	}

	stored, err := repo.Get(ctx, result.RequestID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Status != request.StatusApproved {
		t.Fatalf("stored status = %q, want approved", stored.Status)
	}
}

func TestSubmitCallerSuppliedTokenSkipsIssuance(t *testing.T) {
	svc, c, repo := setupService(t)
	ctx := context.Background()

	result, err := svc.Submit(ctx, SubmitInput{
		GithubUsername: "alice",
		Email:          "alice@x.com",
		DockerToken:    "dckr_pat_supplied",
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if c.issuer.calls != 0 {
		t.Fatalf("issuer must not run when the caller supplied a token")
	}
	if got := c.notifier.sent[0].credential; got != "dckr_pat_supplied" {
		t.Fatalf("notified credential = %q", got)
	}

	stored, err := repo.Get(ctx, result.RequestID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.DockerToken != "dckr_pat_supplied" {
		t.Fatalf("stored docker token = %q", stored.DockerToken)
	}
}

func TestSubmitApprovalWriteFailureStillReportsSuccess(t *testing.T) {
	ctx := context.Background()

	repo := &brokenStatusRepo{
		statusErr: &request.StorageError{Op: "update access request status", Err: errors.New("disk full")},
	}
	c := &collaborators{
		grantor:  &fakeGrantor{},
		issuer:   &fakeIssuer{token: "dckr_pat_minted"},
		notifier: &fakeNotifier{},
	}
	svc := NewService(repo, passthroughUOW{}, c.grantor, c.issuer, c.notifier)

	result, err := svc.Submit(ctx, SubmitInput{GithubUsername: "alice", Email: "alice@x.com"})
	if err != nil {
		t.Fatalf("Submit() error = %v, approval write failures are logged only", err)
	}
	if result.Status != request.StatusApproved {
		t.Fatalf("Submit() status = %q, want approved", result.Status)
	}
	if result.RequestID != "req-1" {
		t.Fatalf("Submit() request id = %q", result.RequestID)
	}

	// The integration phase ran to completion before the write failed.
	if len(c.grantor.principals) != 1 {
		t.Fatalf("grantor principals = %v", c.grantor.principals)
	}
	if len(c.notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(c.notifier.sent))
	}
}

func TestSubmitTwiceCreatesIndependentRequests(t *testing.T) {
	svc, c, repo := setupService(t)
	ctx := context.Background()

	input := SubmitInput{GithubUsername: "alice", Email: "alice@x.com"}
	for range 2 {
		if _, err := svc.Submit(ctx, input); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	rows, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 independent requests", len(rows))
	}
	if c.issuer.calls != 2 {
		t.Fatalf("issuer calls = %d, want 2", c.issuer.calls)
	}
}

func TestListViewsCarrySupportWindow(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	result, err := svc.Submit(ctx, SubmitInput{GithubUsername: "alice", Email: "alice@x.com"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	views, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("views = %d, want 1", len(views))
	}

	view := views[0]
	if view.ID != result.RequestID {
		t.Fatalf("view id = %q", view.ID)
	}
	if want := view.CreatedAt.AddDate(0, 6, 0); !view.SupportExpiresAt.Equal(want) {
		t.Fatalf("support expiry = %v, want %v", view.SupportExpiresAt, want)
	}
	if !view.SupportActive {
		t.Fatalf("freshly created request must be inside the support window")
	}

	svc.now = func() time.Time { return view.CreatedAt.AddDate(0, 7, 0) }
	views, err = svc.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if views[0].SupportActive {
		t.Fatalf("support must lapse after six months")
	}
}
