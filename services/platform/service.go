package platform

import (
	"context"
	"time"

	"gigpay-backend/pkg/errutil"
	"gigpay-backend/pkg/repository"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Service struct {
	repo repository.Repository[Platform]
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{
		repo: repository.ProvideStore[Platform](p.DB),
	}
}

// FindByAPIKey resolves the platform for an inbound webhook call. A missing
// key is an authentication failure, not an internal error.
func (s *Service) FindByAPIKey(ctx context.Context, apiKey string) (*Platform, error) {
	if apiKey == "" {
		return nil, errutil.Unauthorized("missing API key", nil)
	}

	p, err := s.repo.FindOne(ctx, &Platform{APIKeyID: apiKey})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errutil.Unauthorized("unknown API key", nil)
	}

	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Platform, error) {
	p, err := s.repo.FindOne(ctx, &Platform{ID: id})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errutil.NotFound("platform not found", nil)
	}
	return p, nil
}

// Location resolves the platform's configured timezone, defaulting to UTC.
func (p *Platform) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
