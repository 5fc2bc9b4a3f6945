package fulfillment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"accessdesk/internal/bootstrap/logging"
	"accessdesk/internal/domain/request"
	"accessdesk/internal/errs"
	"accessdesk/internal/ports"
)

// Service orchestrates request fulfillment: persist the request, drive the
// external integrations, and record the terminal status.
type Service struct {
	repo     ports.RequestRepository
	uow      ports.UnitOfWork
	grantor  ports.AccessGrantor
	issuer   ports.CredentialIssuer
	notifier ports.Notifier
	now      func() time.Time
}

func NewService(
	repo ports.RequestRepository,
	uow ports.UnitOfWork,
	grantor ports.AccessGrantor,
	issuer ports.CredentialIssuer,
	notifier ports.Notifier,
) *Service {
	return &Service{
		repo:     repo,
		uow:      uow,
		grantor:  grantor,
		issuer:   issuer,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type SubmitInput struct {
	GithubUsername string
	Email          string
	DockerToken    string
	ValorVenda     *float64
	Observacao     string
}

type SubmitResult struct {
	RequestID string
	Status    request.Status
}

// Submit runs one fulfillment attempt.
//
// The pending row is written first; nothing happens if that write fails. The
// integration phase then runs each step only when its input is present:
// collaborator grant for a github username, credential issuance unless the
// caller supplied a token, notification for an email address. Any integration
// failure marks the request failed without persisting a credential; external
// side effects already applied are not rolled back. A failed terminal write
// after a successful integration phase is logged only, since the grants and
// email have already happened.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (SubmitResult, error) {
	input.GithubUsername = strings.TrimSpace(input.GithubUsername)
	input.Email = strings.TrimSpace(input.Email)
	input.DockerToken = strings.TrimSpace(input.DockerToken)

	if !request.HasActionableField(input.GithubUsername, input.Email, input.DockerToken) {
		return SubmitResult{}, request.ErrNoActionableField
	}

	created, err := s.repo.Create(ctx, ports.AccessRequestCreate{
		GithubUsername: input.GithubUsername,
		Email:          input.Email,
		ValorVenda:     input.ValorVenda,
		Observacao:     input.Observacao,
	})
	if err != nil {
		return SubmitResult{}, errs.Wrap(err, "create access request")
	}

	ctx = logging.WithAttrs(ctx, slog.String("request_id", created.ID))

	credential, err := s.fulfill(ctx, input)
	if err != nil {
		if setErr := s.finalize(ctx, created.ID, request.StatusFailed, ""); setErr != nil {
			logging.Error(ctx, "mark request failed", slog.Any("err", errs.Loggable(setErr)))
		}
		logging.Warn(ctx, "request fulfillment failed", slog.Any("err", errs.Loggable(err)))
		return SubmitResult{RequestID: created.ID, Status: request.StatusFailed}, err
	}

	if err := s.finalize(ctx, created.ID, request.StatusApproved, credential); err != nil {
		// The grants and email already happened; the caller still gets
		// success and the stuck pending row is left for operators.
		logging.Error(ctx, "approve request after fulfillment", slog.Any("err", errs.Loggable(err)))
	}

	logging.Info(ctx, "request fulfilled",
		slog.String("principal", input.GithubUsername),
		slog.Bool("notified", input.Email != ""),
	)
	return SubmitResult{RequestID: created.ID, Status: request.StatusApproved}, nil
}

// fulfill drives the integration phase and returns the credential to persist
// alongside approval, which may be empty for notification-only requests.
func (s *Service) fulfill(ctx context.Context, input SubmitInput) (string, error) {
	if input.GithubUsername != "" {
		if err := s.grantor.Grant(ctx, input.GithubUsername); err != nil {
			return "", errs.Wrap(err, "grant repository access")
		}
	}

	credential := input.DockerToken
	if credential == "" && input.GithubUsername != "" {
		minted, err := s.issuer.Issue(ctx, input.GithubUsername)
		if err != nil {
			return "", errs.Wrap(err, "issue registry credential")
		}
		credential = minted
	}

	if input.Email != "" {
		if err := s.notifier.Notify(ctx, input.Email, input.GithubUsername, credential); err != nil {
			return "", errs.Wrap(err, "send access notification")
		}
	}

	return credential, nil
}

// finalize writes the terminal status inside a transaction so the
// pending -> terminal transition is checked and applied atomically.
func (s *Service) finalize(ctx context.Context, id string, status request.Status, credential string) error {
	return s.uow.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransition(status) {
			return fmt.Errorf("%w: %s -> %s", request.ErrStatusFinal, current.Status, status)
		}
		return s.repo.SetStatus(ctx, id, status, credential)
	})
}

// RequestView is a listing row with the derived support-coverage window.
type RequestView struct {
	ID               string
	GithubUsername   string
	Email            string
	Status           request.Status
	DockerToken      string
	ValorVenda       *float64
	Observacao       string
	CreatedAt        time.Time
	SupportExpiresAt time.Time
	SupportActive    bool
}

// List returns every request, newest first. Pure read, no side effects.
func (s *Service) List(ctx context.Context) ([]RequestView, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, errs.Wrap(err, "list access requests")
	}

	now := s.now()
	views := make([]RequestView, 0, len(rows))
	for _, row := range rows {
		views = append(views, RequestView{
			ID:               row.ID,
			GithubUsername:   row.GithubUsername,
			Email:            row.Email,
			Status:           row.Status,
			DockerToken:      row.DockerToken,
			ValorVenda:       row.ValorVenda,
			Observacao:       row.Observacao,
			CreatedAt:        row.CreatedAt,
			SupportExpiresAt: request.SupportExpiry(row.CreatedAt),
			SupportActive:    request.SupportActive(row.CreatedAt, now),
		})
	}
	return views, nil
}
