package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"accessdesk/internal/domain/request"
	"accessdesk/internal/infrastructure/persistence/sqlite/model"
	"accessdesk/internal/ports"
)

type RequestRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *RequestRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return r.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

func (r *RequestRepository) Create(ctx context.Context, input ports.AccessRequestCreate) (ports.AccessRequest, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.AccessRequest{}, err
	}

	row := model.AccessRequest{
		ID:             uuid.NewString(),
		GithubUsername: strings.TrimSpace(input.GithubUsername),
		Email:          strings.TrimSpace(input.Email),
		Status:         string(request.StatusPending),
		ValorVenda:     input.ValorVenda,
		Observacao:     strings.TrimSpace(input.Observacao),
		CreatedAt:      r.now(),
	}

	if err := db.Create(&row).Error; err != nil {
		return ports.AccessRequest{}, &request.StorageError{Op: "insert access request", Err: err}
	}
	return mapRequest(row), nil
}

func (r *RequestRepository) Get(ctx context.Context, id string) (ports.AccessRequest, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.AccessRequest{}, err
	}

	var row model.AccessRequest
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.AccessRequest{}, ports.ErrRequestNotFound
		}
		return ports.AccessRequest{}, &request.StorageError{Op: "get access request", Err: err}
	}
	return mapRequest(row), nil
}

func (r *RequestRepository) SetStatus(ctx context.Context, id string, status request.Status, dockerToken string) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	if !status.Valid() {
		return fmt.Errorf("%w: %q", request.ErrInvalidStatus, status)
	}

	updates := map[string]any{"status": string(status)}
	if dockerToken != "" {
		updates["docker_token"] = dockerToken
	}

	res := db.Model(&model.AccessRequest{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return &request.StorageError{Op: "update access request status", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return ports.ErrRequestNotFound
	}
	return nil
}

func (r *RequestRepository) List(ctx context.Context) ([]ports.AccessRequest, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.AccessRequest
	if err := db.Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, &request.StorageError{Op: "list access requests", Err: err}
	}

	items := make([]ports.AccessRequest, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapRequest(row))
	}
	return items, nil
}

func mapRequest(row model.AccessRequest) ports.AccessRequest {
	return ports.AccessRequest{
		ID:             row.ID,
		GithubUsername: row.GithubUsername,
		Email:          row.Email,
		Status:         request.Status(row.Status),
		DockerToken:    row.DockerToken,
		ValorVenda:     row.ValorVenda,
		Observacao:     row.Observacao,
		CreatedAt:      row.CreatedAt,
	}
}
