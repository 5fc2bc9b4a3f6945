package ports

import (
	"context"
	"errors"
	"time"

	"accessdesk/internal/domain/request"
)

var ErrRequestNotFound = errors.New("access request not found")

// AccessRequest is the persisted request record as seen by usecases.
type AccessRequest struct {
	ID             string
	GithubUsername string
	Email          string
	Status         request.Status
	DockerToken    string
	ValorVenda     *float64
	Observacao     string
	CreatedAt      time.Time
}

// AccessRequestCreate carries the caller-supplied fields of a new request.
// The store assigns ID, CreatedAt and the initial pending status.
type AccessRequestCreate struct {
	GithubUsername string
	Email          string
	ValorVenda     *float64
	Observacao     string
}

type RequestRepository interface {
	// Create inserts a new pending request and returns it with the
	// store-assigned id and creation time.
	Create(ctx context.Context, input AccessRequestCreate) (AccessRequest, error)

	Get(ctx context.Context, id string) (AccessRequest, error)

	// SetStatus writes a terminal status. The docker token is persisted only
	// when non-empty, alongside the approved status.
	SetStatus(ctx context.Context, id string, status request.Status, dockerToken string) error

	// List returns every request ordered by creation time descending.
	List(ctx context.Context) ([]AccessRequest, error)
}
