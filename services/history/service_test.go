package history

import (
	"context"
	"testing"
	"time"

	"gigpay-backend/services/gigtask"
	"gigpay-backend/services/testutil"
	"gigpay-backend/services/worker"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestAggregator(t *testing.T) (*Aggregator, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t,
		&worker.Worker{},
		&worker.ReputationEvent{},
		&worker.Loan{},
		&gigtask.Task{},
	)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	workers := worker.NewService(worker.ServiceParams{DB: db, Node: node})
	return NewAggregator(AggregatorParams{DB: db, Workers: workers}), db
}

func seedWorker(t *testing.T, db *gorm.DB, createdAt time.Time) {
	t.Helper()
	w := &worker.Worker{
		ID:              "worker-1",
		WalletAddress:   "0xworker",
		ReputationScore: 720,
	}
	require.NoError(t, db.Create(w).Error)
	require.NoError(t, db.Model(w).Update("created_at", createdAt).Error)
}

func seedTask(t *testing.T, db *gorm.DB, id string, status gigtask.TaskStatus, cents int64, completedAt time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&gigtask.Task{
		ID:          id,
		PlatformID:  "platform-1",
		WorkerID:    "worker-1",
		AmountCents: cents,
		Status:      status,
		CompletedAt: completedAt,
	}).Error)
}

func TestSnapshotAggregation(t *testing.T) {
	agg, db := newTestAggregator(t)
	now := time.Now()
	seedWorker(t, db, now.Add(-40*24*time.Hour))

	seedTask(t, db, "t1", gigtask.TaskStatusCompleted, 20_00, now.Add(-2*time.Hour))
	seedTask(t, db, "t2", gigtask.TaskStatusCompleted, 40_00, now.Add(-20*time.Hour))
	seedTask(t, db, "t3", gigtask.TaskStatusCompleted, 30_00, now.Add(-5*24*time.Hour))
	seedTask(t, db, "t4", gigtask.TaskStatusCancelled, 10_00, now.Add(-3*24*time.Hour))

	snap, err := agg.Snapshot(context.Background(), "worker-1")
	require.NoError(t, err)

	require.Equal(t, 720, snap.ReputationScore)
	require.Equal(t, int64(2), snap.TasksLast24h)
	require.Equal(t, int64(3), snap.CompletedCount)
	require.Equal(t, int64(1), snap.CancelledCount)
	require.InDelta(t, 0.75, snap.CompletionRate(), 0.001)
	require.Equal(t, int64(90_00), snap.Trailing30dEarningsCents)
	require.Equal(t, int64(30_00), snap.AvgAmountCents)
	require.Equal(t, 40, snap.AccountAgeDays())
	require.Len(t, snap.RecentFingerprints, 3)
	require.Len(t, snap.DailyEarnings, 30)
}

func TestSnapshotDisputeCount(t *testing.T) {
	agg, db := newTestAggregator(t)
	seedWorker(t, db, time.Now().Add(-30*24*time.Hour))

	for i, cause := range []string{worker.CauseDispute, worker.CauseDispute, worker.CauseTaskCompletion} {
		require.NoError(t, db.Create(&worker.ReputationEvent{
			ID:       string(rune('a' + i)),
			WorkerID: "worker-1",
			Cause:    cause,
		}).Error)
	}

	snap, err := agg.Snapshot(context.Background(), "worker-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), snap.DisputeCount)
}

func TestSnapshotCachedUntilInvalidated(t *testing.T) {
	agg, db := newTestAggregator(t)
	now := time.Now()
	seedWorker(t, db, now.Add(-30*24*time.Hour))
	ctx := context.Background()

	first, err := agg.Snapshot(ctx, "worker-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), first.CompletedCount)

	seedTask(t, db, "t1", gigtask.TaskStatusCompleted, 20_00, now.Add(-time.Hour))

	// Still the cached rollup.
	cached, err := agg.Snapshot(ctx, "worker-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), cached.CompletedCount)

	agg.Invalidate("worker-1")

	fresh, err := agg.Snapshot(ctx, "worker-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), fresh.CompletedCount)
}

func TestSnapshotUnknownWorker(t *testing.T) {
	agg, _ := newTestAggregator(t)
	_, err := agg.Snapshot(context.Background(), "nobody")
	require.Error(t, err)
}

func TestCompletionRateDefaultsToOne(t *testing.T) {
	s := &Snapshot{}
	require.Equal(t, 1.0, s.CompletionRate())
}
