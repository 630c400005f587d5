package payout

import (
	"context"
	"encoding/json"
	"time"

	"gigpay-backend/pkg/db/option"
	"gigpay-backend/pkg/db/pagination"
	"gigpay-backend/pkg/errutil"
	"gigpay-backend/pkg/repository"
	"gigpay-backend/services/audit"
	"gigpay-backend/services/gigtask"

	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func taskPayload(t *gigtask.Task) datatypes.JSON {
	b, _ := json.Marshal(map[string]any{
		"taskId":      t.ID,
		"workerId":    t.WorkerID,
		"platformId":  t.PlatformID,
		"amountCents": t.AmountCents,
		"completedAt": t.CompletedAt,
	})
	return datatypes.JSON(b)
}

// DLQ exposes the dead letter queue for inspection and manual replay.
type DLQ struct {
	entries  repository.Repository[DeadLetterEntry]
	executor *Executor
	audit    audit.Recorder
}

type DLQParams struct {
	fx.In
	DB       *gorm.DB
	Executor *Executor
	Audit    audit.Recorder
}

func NewDLQ(p DLQParams) *DLQ {
	return &DLQ{
		entries:  repository.ProvideStore[DeadLetterEntry](p.DB),
		executor: p.Executor,
		audit:    p.Audit,
	}
}

// List returns unresolved entries for the platform, newest first.
func (q *DLQ) List(ctx context.Context, platformID string, page pagination.Params) ([]*DeadLetterEntry, *pagination.PageInfo, error) {
	page = page.Normalize()

	query := &DeadLetterEntry{PlatformID: platformID}
	entries, err := q.entries.Find(ctx, query,
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		option.WithLimit(page.Limit, page.Offset),
	)
	if err != nil {
		return nil, nil, err
	}

	total, err := q.entries.Count(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	info := pagination.BuildPageInfo(page, total)
	return entries, &info, nil
}

// Replay re-invokes the payment executor with the dead-lettered payload and
// marks the entry resolved when the payment settles.
func (q *DLQ) Replay(ctx context.Context, platformID, entryID string) (*Transaction, error) {
	entry, err := q.entries.FindOne(ctx, &DeadLetterEntry{ID: entryID})
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.PlatformID != platformID {
		return nil, errutil.NotFound("dead letter entry not found", nil)
	}
	if entry.Resolved {
		return nil, errutil.Conflict("dead letter entry already resolved", nil)
	}

	txn, err := q.executor.Execute(ctx, entry.TaskID, entry.WorkerID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := q.entries.Update(ctx, entry.ID, map[string]any{
		"resolved":    true,
		"resolved_at": now,
	}); err != nil {
		return nil, err
	}

	q.audit.Record(ctx, audit.Entry{
		Actor:        "dead-letter-replay",
		Action:       audit.ActionDeadLetterReplayed,
		ResourceType: audit.ResourceDeadLetter,
		ResourceID:   entry.ID,
		Success:      true,
		Metadata: map[string]any{
			"task_id":        entry.TaskID,
			"worker_id":      entry.WorkerID,
			"transaction_id": txn.ID,
		},
	})

	return txn, nil
}
