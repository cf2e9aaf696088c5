// Package feepolicies is the read-only fee-policy store consumed by settlements.
package feepolicies

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dealroom-backend/pkg/errors"
)

// Resolver returns the policy the settlement cascade applies.
type Resolver interface {
	Current(ctx context.Context, tx *gorm.DB) (*models.FeePolicy, error)
}

type Service interface {
	Resolver
	ListActive(ctx context.Context) ([]models.FeePolicy, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "fee policy repository required")
	}
	return &service{repo: repo}, nil
}

// Current returns the most recently created active policy, or nil when none is active.
func (s *service) Current(ctx context.Context, tx *gorm.DB) (*models.FeePolicy, error) {
	policy, err := s.repo.WithTx(tx).MostRecentActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active fee policy")
	}
	return policy, nil
}

func (s *service) ListActive(ctx context.Context) ([]models.FeePolicy, error) {
	policies, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list fee policies")
	}
	return policies, nil
}
