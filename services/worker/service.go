package worker

import (
	"context"

	"gigpay-backend/pkg/db/option"
	"gigpay-backend/pkg/errutil"
	"gigpay-backend/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	workers repository.Repository[Worker]
	events  repository.Repository[ReputationEvent]
	loans   repository.Repository[Loan]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		workers: repository.ProvideStore[Worker](p.DB),
		events:  repository.ProvideStore[ReputationEvent](p.DB),
		loans:   repository.ProvideStore[Loan](p.DB),
	}
}

func (s *Service) Get(ctx context.Context, id string) (*Worker, error) {
	w, err := s.workers.FindOne(ctx, &Worker{ID: id})
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, errutil.NotFound("worker not found", nil)
	}
	return w, nil
}

func (s *Service) ActiveLoans(ctx context.Context, workerID string) ([]*Loan, error) {
	return s.loans.Find(ctx, &Loan{WorkerID: workerID, Status: LoanStatusActive})
}

func (s *Service) Loans(ctx context.Context, workerID string) ([]*Loan, error) {
	return s.loans.Find(ctx, &Loan{WorkerID: workerID})
}

func clampScore(score int) int {
	if score < ReputationMin {
		return ReputationMin
	}
	if score > ReputationMax {
		return ReputationMax
	}
	return score
}

// ApplyReputationDelta loads the worker under a row lock, moves the score by
// delta clamped to [0,1000], and appends the ReputationEvent. It must run
// inside the caller's transaction so the event commits together with the
// payment state.
func (s *Service) ApplyReputationDelta(ctx context.Context, tx *gorm.DB, workerID string, delta int, cause string) (*ReputationEvent, error) {
	workersTx := s.workers.WithTrx(tx)
	eventsTx := s.events.WithTrx(tx)

	w, err := workersTx.FindOne(ctx, &Worker{ID: workerID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, errutil.NotFound("worker not found", nil)
	}

	previous := w.ReputationScore
	next := clampScore(previous + delta)

	event := &ReputationEvent{
		ID:            s.node.Generate().String(),
		WorkerID:      workerID,
		Delta:         delta,
		PreviousScore: previous,
		NewScore:      next,
		Cause:         cause,
	}

	if err := eventsTx.Create(ctx, event); err != nil {
		return nil, err
	}

	if err := workersTx.Update(ctx, workerID, map[string]any{"reputation_score": next}); err != nil {
		return nil, err
	}

	return event, nil
}

// DisputeCount counts dispute-caused reputation events for the worker.
func (s *Service) DisputeCount(ctx context.Context, workerID string) (int64, error) {
	return s.events.Count(ctx, &ReputationEvent{WorkerID: workerID, Cause: CauseDispute})
}
