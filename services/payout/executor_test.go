package payout

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gigpay-backend/pkg/config"
	"gigpay-backend/pkg/idempotency"
	"gigpay-backend/services/audit"
	"gigpay-backend/services/gigtask"
	"gigpay-backend/services/ledgergw"
	"gigpay-backend/services/platform"
	"gigpay-backend/services/testutil"
	"gigpay-backend/services/worker"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeGateway struct {
	mu        sync.Mutex
	calls     int
	stamps    []time.Time
	transient int   // fail this many leading calls with a transient error
	alwaysErr error // non-nil: every call fails with this error
}

func (g *fakeGateway) Transfer(_ context.Context, req ledgergw.TransferRequest) (*ledgergw.TransferResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.stamps = append(g.stamps, time.Now())

	if g.alwaysErr != nil {
		return nil, g.alwaysErr
	}
	if g.calls <= g.transient {
		return nil, ledgergw.Transient(fmt.Errorf("connection reset"))
	}
	return &ledgergw.TransferResult{
		TransferID: fmt.Sprintf("transfer-%d", g.calls),
		StatusRef:  "0xabc",
		Status:     ledgergw.TransferStatusConfirmed,
	}, nil
}

func (g *fakeGateway) GetStatus(context.Context, string) (ledgergw.TransferStatus, error) {
	return ledgergw.TransferStatusConfirmed, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// attemptGaps returns the elapsed time between consecutive Transfer calls.
func (g *fakeGateway) attemptGaps() []time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	gaps := make([]time.Duration, 0, len(g.stamps))
	for i := 1; i < len(g.stamps); i++ {
		gaps = append(gaps, g.stamps[i].Sub(g.stamps[i-1]))
	}
	return gaps
}

func newTestExecutor(t *testing.T, gw *fakeGateway) (*Executor, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t,
		&gigtask.Task{},
		&Transaction{},
		&DeadLetterEntry{},
		&worker.Worker{},
		&worker.ReputationEvent{},
		&worker.Loan{},
		&platform.Platform{},
		&audit.AuditLogEntry{},
	)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Payout.FeeRateBps = 250
	cfg.Payout.MaxAttempts = 3
	cfg.Payout.RetryBaseDelay = time.Millisecond
	cfg.Payout.IdempotencyTTL = time.Hour

	workers := worker.NewService(worker.ServiceParams{DB: db, Node: node})
	platforms := platform.NewService(platform.ServiceParams{DB: db})
	recorder := audit.NewService(audit.ServiceParams{DB: db, Node: node})

	exec := NewExecutor(ExecutorParams{
		Config:    cfg,
		DB:        db,
		Node:      node,
		Idem:      idempotency.NewMemoryStore(),
		Gateway:   gw,
		Workers:   workers,
		Platforms: platforms,
		Audit:     recorder,
	})
	return exec, db
}

func seedPayment(t *testing.T, db *gorm.DB) *gigtask.Task {
	t.Helper()

	require.NoError(t, db.Create(&worker.Worker{
		ID:              "worker-1",
		WalletAddress:   "0xworker",
		ReputationScore: 500,
		Status:          worker.WorkerStatusActive,
	}).Error)
	require.NoError(t, db.Create(&platform.Platform{
		ID:            "platform-1",
		Name:          "Acme Gigs",
		APIKeyID:      "key-1",
		WebhookSecret: "secret",
		WalletAddress: "0xplatform",
		Status:        platform.PlatformStatusActive,
	}).Error)

	task := &gigtask.Task{
		ID:            "task-1",
		PlatformID:    "platform-1",
		WorkerID:      "worker-1",
		AmountCents:   100_00,
		CompletedAt:   time.Now().Add(-time.Hour),
		Status:        gigtask.TaskStatusCompleted,
		PaymentStatus: gigtask.PaymentStatusUnpaid,
	}
	require.NoError(t, db.Create(task).Error)
	return task
}

func TestExecuteSuccess(t *testing.T) {
	gw := &fakeGateway{}
	exec, db := newTestExecutor(t, gw)
	seedPayment(t, db)
	ctx := context.Background()

	txn, err := exec.Execute(ctx, "task-1", "worker-1")
	require.NoError(t, err)
	require.Equal(t, int64(100_00), txn.AmountCents)
	require.Equal(t, int64(2_50), txn.FeeCents)
	require.Equal(t, int64(97_50), txn.NetCents)
	require.Equal(t, TxnStatusConfirmed, txn.Status)
	require.NotEmpty(t, txn.TransferID)
	require.Equal(t, 1, gw.callCount())

	var task gigtask.Task
	require.NoError(t, db.First(&task, "id = ?", "task-1").Error)
	require.Equal(t, gigtask.PaymentStatusPaid, task.PaymentStatus)

	var w worker.Worker
	require.NoError(t, db.First(&w, "id = ?", "worker-1").Error)
	require.Equal(t, 510, w.ReputationScore)

	var events int64
	require.NoError(t, db.Model(&worker.ReputationEvent{}).Where("worker_id = ?", "worker-1").Count(&events).Error)
	require.Equal(t, int64(1), events)

	var entries int64
	require.NoError(t, db.Model(&audit.AuditLogEntry{}).
		Where("action = ?", audit.ActionPaymentCompleted).Count(&entries).Error)
	require.Equal(t, int64(1), entries)
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	gw := &fakeGateway{transient: 2}
	exec, db := newTestExecutor(t, gw)
	seedPayment(t, db)

	txn, err := exec.Execute(context.Background(), "task-1", "worker-1")
	require.NoError(t, err)
	require.Equal(t, 3, gw.callCount())

	var count int64
	require.NoError(t, db.Model(&Transaction{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
	require.Equal(t, TxnStatusConfirmed, txn.Status)
}

func TestExecuteBackoffDelaysDouble(t *testing.T) {
	gw := &fakeGateway{transient: 2}
	exec, db := newTestExecutor(t, gw)
	// Large enough to dominate scheduler jitter in the gap measurements.
	exec.cfg.Payout.RetryBaseDelay = 40 * time.Millisecond
	seedPayment(t, db)

	_, err := exec.Execute(context.Background(), "task-1", "worker-1")
	require.NoError(t, err)

	gaps := gw.attemptGaps()
	require.Len(t, gaps, 2)
	// Schedule is base, then 2x base; sleeps can only run long.
	require.GreaterOrEqual(t, gaps[0], 40*time.Millisecond)
	require.GreaterOrEqual(t, gaps[1], 80*time.Millisecond)
	require.Greater(t, gaps[1], gaps[0])
}

func TestExecuteDeadLettersOnExhaustedRetries(t *testing.T) {
	gw := &fakeGateway{transient: 100}
	exec, db := newTestExecutor(t, gw)
	seedPayment(t, db)

	_, err := exec.Execute(context.Background(), "task-1", "worker-1")
	require.Error(t, err)
	require.Equal(t, 3, gw.callCount())

	var entry DeadLetterEntry
	require.NoError(t, db.First(&entry, "task_id = ?", "task-1").Error)
	require.Equal(t, 3, entry.RetryAttempts)
	require.Equal(t, FailureClassExhausted, entry.FailureClass)
	require.True(t, entry.ManualReview)
	require.False(t, entry.Resolved)

	var task gigtask.Task
	require.NoError(t, db.First(&task, "id = ?", "task-1").Error)
	require.Equal(t, gigtask.PaymentStatusFailed, task.PaymentStatus)

	var txns int64
	require.NoError(t, db.Model(&Transaction{}).Count(&txns).Error)
	require.Equal(t, int64(0), txns)

	var audited int64
	require.NoError(t, db.Model(&audit.AuditLogEntry{}).
		Where("action = ?", audit.ActionPaymentDeadLettered).Count(&audited).Error)
	require.Equal(t, int64(1), audited)
}

func TestExecuteNonTransientFailsImmediately(t *testing.T) {
	gw := &fakeGateway{alwaysErr: fmt.Errorf("insufficient platform balance")}
	exec, db := newTestExecutor(t, gw)
	seedPayment(t, db)

	_, err := exec.Execute(context.Background(), "task-1", "worker-1")
	require.Error(t, err)
	require.Equal(t, 1, gw.callCount())

	var entry DeadLetterEntry
	require.NoError(t, db.First(&entry, "task_id = ?", "task-1").Error)
	require.Equal(t, 1, entry.RetryAttempts)
	require.Equal(t, FailureClassRejected, entry.FailureClass)
}

func TestExecutePaidTaskReturnsOriginalTransaction(t *testing.T) {
	gw := &fakeGateway{}
	exec, db := newTestExecutor(t, gw)
	seedPayment(t, db)
	ctx := context.Background()

	first, err := exec.Execute(ctx, "task-1", "worker-1")
	require.NoError(t, err)

	second, err := exec.Execute(ctx, "task-1", "worker-1")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, gw.callCount())

	var count int64
	require.NoError(t, db.Model(&Transaction{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestExecuteWrongWorkerConflicts(t *testing.T) {
	gw := &fakeGateway{}
	exec, db := newTestExecutor(t, gw)
	seedPayment(t, db)

	_, err := exec.Execute(context.Background(), "task-1", "worker-2")
	require.Error(t, err)
	require.Equal(t, 0, gw.callCount())
}

func TestExecuteConcurrentDuplicates(t *testing.T) {
	gw := &fakeGateway{}
	exec, db := newTestExecutor(t, gw)
	seedPayment(t, db)

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _ = exec.Execute(context.Background(), "task-1", "worker-1")
		}()
	}
	wg.Wait()

	require.Equal(t, 1, gw.callCount())

	var txns int64
	require.NoError(t, db.Model(&Transaction{}).Count(&txns).Error)
	require.Equal(t, int64(1), txns)

	var task gigtask.Task
	require.NoError(t, db.First(&task, "id = ?", "task-1").Error)
	require.Equal(t, gigtask.PaymentStatusPaid, task.PaymentStatus)

	var events int64
	require.NoError(t, db.Model(&worker.ReputationEvent{}).Count(&events).Error)
	require.Equal(t, int64(1), events)
}

func TestReplayResolvesDeadLetter(t *testing.T) {
	gw := &fakeGateway{transient: 3} // exhaust the first run, succeed on replay
	exec, db := newTestExecutor(t, gw)
	seedPayment(t, db)
	ctx := context.Background()

	_, err := exec.Execute(ctx, "task-1", "worker-1")
	require.Error(t, err)

	var entry DeadLetterEntry
	require.NoError(t, db.First(&entry, "task_id = ?", "task-1").Error)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	recorder := audit.NewService(audit.ServiceParams{DB: db, Node: node})
	dlq := NewDLQ(DLQParams{DB: db, Executor: exec, Audit: recorder})

	txn, err := dlq.Replay(ctx, "platform-1", entry.ID)
	require.NoError(t, err)
	require.Equal(t, TxnStatusConfirmed, txn.Status)

	require.NoError(t, db.First(&entry, "id = ?", entry.ID).Error)
	require.True(t, entry.Resolved)
	require.NotNil(t, entry.ResolvedAt)

	// A second replay of the resolved entry is refused.
	_, err = dlq.Replay(ctx, "platform-1", entry.ID)
	require.Error(t, err)
}
