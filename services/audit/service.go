package audit

import (
	"context"
	"encoding/json"

	"gigpay-backend/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry is the write model used by callers; the service assigns the ID and
// timestamp.
type Entry struct {
	Actor        string
	Action       string
	ResourceType string
	ResourceID   string
	Success      bool
	Metadata     map[string]any
}

// Recorder is the cross-cutting audit contract consumed by every pipeline
// stage. Record never fails the caller; RecordTx participates in the caller's
// transaction and does return an error, for writes that must commit together
// with the business state.
type Recorder interface {
	Record(ctx context.Context, e Entry)
	RecordTx(ctx context.Context, tx *gorm.DB, e Entry) error
}

type Service struct {
	node *snowflake.Node
	repo repository.Repository[AuditLogEntry]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node: p.Node,
		repo: repository.ProvideStore[AuditLogEntry](p.DB),
	}
}

func (s *Service) build(e Entry) *AuditLogEntry {
	var meta datatypes.JSON
	if e.Metadata != nil {
		if b, err := json.Marshal(e.Metadata); err == nil {
			meta = datatypes.JSON(b)
		}
	}

	return &AuditLogEntry{
		ID:           s.node.Generate().String(),
		Actor:        e.Actor,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Success:      e.Success,
		Metadata:     meta,
	}
}

func (s *Service) Record(ctx context.Context, e Entry) {
	if err := s.repo.Create(ctx, s.build(e)); err != nil {
		zap.L().Error("failed to write audit log entry",
			zap.String("action", e.Action),
			zap.String("resource_id", e.ResourceID),
			zap.Error(err),
		)
	}
}

func (s *Service) RecordTx(ctx context.Context, tx *gorm.DB, e Entry) error {
	return s.repo.WithTrx(tx).Create(ctx, s.build(e))
}
