package gigtask

import (
	"context"

	"gigpay-backend/pkg/errutil"
	"gigpay-backend/pkg/repository"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Service struct {
	repo repository.Repository[Task]
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{
		repo: repository.ProvideStore[Task](p.DB),
	}
}

// Record persists the task from a webhook delivery. Duplicate deliveries of
// the same task id are tolerated: the existing row wins and is returned.
func (s *Service) Record(ctx context.Context, t *Task) (*Task, bool, error) {
	existing, err := s.repo.FindOne(ctx, &Task{ID: t.ID})
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if err := s.repo.Create(ctx, t); err != nil {
		// A concurrent delivery can win the insert race; surface the stored row.
		if winner, ferr := s.repo.FindOne(ctx, &Task{ID: t.ID}); ferr == nil && winner != nil {
			return winner, false, nil
		}
		return nil, false, err
	}
	return t, true, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	t, err := s.repo.FindOne(ctx, &Task{ID: id})
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errutil.NotFound("task not found", nil)
	}
	return t, nil
}

// SetVerificationStatus records the verdict on the task row. Payment status is
// owned by the payment executor and is not touched here.
func (s *Service) SetVerificationStatus(ctx context.Context, id string, status VerificationStatus) error {
	return s.repo.Update(ctx, id, map[string]any{"verification_status": status})
}
