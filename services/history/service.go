package history

import (
	"context"
	"time"

	"gigpay-backend/pkg/cache"
	"gigpay-backend/pkg/db/option"
	"gigpay-backend/pkg/rediskey"
	"gigpay-backend/pkg/repository"
	"gigpay-backend/services/gigtask"
	"gigpay-backend/services/worker"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

const (
	cacheTTL = 5 * time.Minute

	fingerprintSample = 20
	trailingWindow    = 30 * 24 * time.Hour
)

// Aggregator rebuilds worker history snapshots from stored state. Reads are
// collapsed and cached for up to five minutes; scoring tolerates slightly
// stale aggregates.
type Aggregator struct {
	db      *gorm.DB
	workers *worker.Service
	tasks   repository.Repository[gigtask.Task]
	cache   *cache.TTLCache[*Snapshot]
}

type AggregatorParams struct {
	fx.In
	DB      *gorm.DB
	Workers *worker.Service
}

func NewAggregator(p AggregatorParams) *Aggregator {
	return &Aggregator{
		db:      p.DB,
		workers: p.Workers,
		tasks:   repository.ProvideStore[gigtask.Task](p.DB),
		cache:   cache.New[*Snapshot]("worker_history", cacheTTL),
	}
}

func (a *Aggregator) Snapshot(ctx context.Context, workerID string) (*Snapshot, error) {
	key := rediskey.BuildWorkerHistoryKey(workerID)
	return a.cache.GetOrLoad(ctx, key, func(ctx context.Context) (*Snapshot, error) {
		return a.build(ctx, workerID)
	})
}

// Invalidate drops the cached snapshot so the next read observes a task
// completion or loan repayment that just changed the underlying history.
func (a *Aggregator) Invalidate(workerID string) {
	a.cache.Invalidate(rediskey.BuildWorkerHistoryKey(workerID))
}

func (a *Aggregator) build(ctx context.Context, workerID string) (*Snapshot, error) {
	w, err := a.workers.Get(ctx, workerID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	windowStart := now.Add(-trailingWindow)

	snap := &Snapshot{
		WorkerID:        workerID,
		ReputationScore: w.ReputationScore,
		AccountAge:      now.Sub(w.CreatedAt),
		GeneratedAt:     now,
	}

	snap.TasksLast24h, err = a.countTasksSince(ctx, workerID, gigtask.TaskStatusCompleted, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}

	snap.CompletedCount, err = a.tasks.Count(ctx, &gigtask.Task{WorkerID: workerID, Status: gigtask.TaskStatusCompleted})
	if err != nil {
		return nil, err
	}
	snap.CancelledCount, err = a.tasks.Count(ctx, &gigtask.Task{WorkerID: workerID, Status: gigtask.TaskStatusCancelled})
	if err != nil {
		return nil, err
	}

	snap.DisputeCount, err = a.workers.DisputeCount(ctx, workerID)
	if err != nil {
		return nil, err
	}

	recent, err := a.tasks.Find(ctx,
		&gigtask.Task{WorkerID: workerID, Status: gigtask.TaskStatusCompleted},
		option.ApplyOperator(option.Condition{Field: "completed_at", Operator: option.GTE, Value: windowStart}),
		option.WithSortBy(option.QuerySortBy{SortBy: "completed_at", OrderBy: "desc", Allow: map[string]bool{"completed_at": true}}),
	)
	if err != nil {
		return nil, err
	}

	var totalCents int64
	for _, t := range recent {
		totalCents += t.AmountCents
	}
	snap.Trailing30dEarningsCents = totalCents
	if len(recent) > 0 {
		snap.AvgAmountCents = totalCents / int64(len(recent))
	}

	sample := recent
	if len(sample) > fingerprintSample {
		sample = sample[:fingerprintSample]
	}
	snap.RecentFingerprints = make([]TaskFingerprint, 0, len(sample))
	for _, t := range sample {
		snap.RecentFingerprints = append(snap.RecentFingerprints, TaskFingerprint{
			AmountCents:     t.AmountCents,
			GPSLat:          t.GPSLat,
			GPSLng:          t.GPSLng,
			DurationMinutes: t.DurationMinutes,
			CompletedAt:     t.CompletedAt,
		})
	}

	snap.DailyEarnings = bucketByDay(recent, now)

	return snap, nil
}

func (a *Aggregator) countTasksSince(ctx context.Context, workerID string, status gigtask.TaskStatus, since time.Time) (int64, error) {
	var n int64
	err := a.db.WithContext(ctx).
		Model(&gigtask.Task{}).
		Where(&gigtask.Task{WorkerID: workerID, Status: status}).
		Where("completed_at >= ?", since).
		Count(&n).Error
	return n, err
}

// bucketByDay folds the trailing-window tasks into 30 per-day totals, oldest
// first, with explicit zeros for empty days so downstream regression sees the
// full calendar.
func bucketByDay(tasks []*gigtask.Task, now time.Time) []DailyEarning {
	const days = 30

	start := now.AddDate(0, 0, -(days - 1))
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())

	totals := make(map[string]int64, days)
	for _, t := range tasks {
		totals[t.CompletedAt.Format("2006-01-02")] += t.AmountCents
	}

	out := make([]DailyEarning, 0, days)
	for i := 0; i < days; i++ {
		day := startDay.AddDate(0, 0, i)
		out = append(out, DailyEarning{Day: day, Cents: totals[day.Format("2006-01-02")]})
	}
	return out
}
