package gigtask

import (
	"context"
	"testing"
	"time"

	"gigpay-backend/services/testutil"

	"github.com/stretchr/testify/require"
)

func TestRecordAndGet(t *testing.T) {
	db := testutil.NewTestDB(t, &Task{})
	svc := NewService(ServiceParams{DB: db})
	ctx := context.Background()

	task := &Task{
		ID:          "task-1",
		PlatformID:  "platform-1",
		WorkerID:    "worker-1",
		AmountCents: 45_67,
		CompletedAt: time.Now().Add(-time.Hour),
		Status:      TaskStatusCompleted,
	}

	stored, created, err := svc.Record(ctx, task)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "task-1", stored.ID)

	got, err := svc.Get(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, int64(45_67), got.AmountCents)
}

func TestRecordDuplicateKeepsExisting(t *testing.T) {
	db := testutil.NewTestDB(t, &Task{})
	svc := NewService(ServiceParams{DB: db})
	ctx := context.Background()

	first := &Task{ID: "task-1", PlatformID: "platform-1", WorkerID: "worker-1", AmountCents: 45_67, CompletedAt: time.Now()}
	_, created, err := svc.Record(ctx, first)
	require.NoError(t, err)
	require.True(t, created)

	// Redelivery with a different amount must not overwrite the stored row.
	dup := &Task{ID: "task-1", PlatformID: "platform-1", WorkerID: "worker-1", AmountCents: 99_99, CompletedAt: time.Now()}
	stored, created, err := svc.Record(ctx, dup)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, int64(45_67), stored.AmountCents)
}

func TestGetMissingTask(t *testing.T) {
	db := testutil.NewTestDB(t, &Task{})
	svc := NewService(ServiceParams{DB: db})

	_, err := svc.Get(context.Background(), "nope")
	require.Error(t, err)
}

func TestSetVerificationStatus(t *testing.T) {
	db := testutil.NewTestDB(t, &Task{})
	svc := NewService(ServiceParams{DB: db})
	ctx := context.Background()

	_, _, err := svc.Record(ctx, &Task{ID: "task-1", PlatformID: "p", WorkerID: "w", AmountCents: 100, CompletedAt: time.Now()})
	require.NoError(t, err)

	require.NoError(t, svc.SetVerificationStatus(ctx, "task-1", VerificationStatusApproved))

	got, err := svc.Get(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, VerificationStatusApproved, got.VerificationStatus)
}
