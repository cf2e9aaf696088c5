// Package rights is the right-listing collaborator the deal-room workflow
// reports status changes to.
package rights

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealroom-backend/pkg/errors"
)

// StatusSetter is the only contract the workflow needs from the listing side.
type StatusSetter interface {
	SetStatus(ctx context.Context, tx *gorm.DB, rightID uuid.UUID, status enums.RightStatus) error
}

type Service interface {
	StatusSetter
	Get(ctx context.Context, rightID uuid.UUID) (*models.Right, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "rights repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, rightID uuid.UUID) (*models.Right, error) {
	if rightID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "right id required")
	}
	right, err := s.repo.FindByID(ctx, rightID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "right not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load right")
	}
	return right, nil
}

// SetStatus moves the right to status using tx when provided.
func (s *service) SetStatus(ctx context.Context, tx *gorm.DB, rightID uuid.UUID, status enums.RightStatus) error {
	if rightID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "right id required")
	}
	if !status.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid right status %q", status)
	}
	updated, err := s.repo.WithTx(tx).UpdateStatus(ctx, rightID, status)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update right status")
	}
	if updated == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "right not found")
	}
	return nil
}
