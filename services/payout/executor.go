package payout

import (
	"context"
	"fmt"
	"time"

	"gigpay-backend/pkg/config"
	"gigpay-backend/pkg/errutil"
	"gigpay-backend/pkg/idempotency"
	"gigpay-backend/pkg/rediskey"
	"gigpay-backend/pkg/repository"
	"gigpay-backend/services/audit"
	"gigpay-backend/services/gigtask"
	"gigpay-backend/services/ledgergw"
	"gigpay-backend/services/platform"
	"gigpay-backend/services/risk"
	"gigpay-backend/services/worker"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Executor performs the at-most-once transfer for an approved task. The
// idempotency store is the single point of mutual exclusion between duplicate
// deliveries; the persisted Transaction row is the durable backstop once the
// store entry expires.
type Executor struct {
	cfg     *config.Config
	db      *gorm.DB
	node    *snowflake.Node
	idem    idempotency.Store
	gateway ledgergw.Gateway

	tasks       repository.Repository[gigtask.Task]
	txns        repository.Repository[Transaction]
	deadLetters repository.Repository[DeadLetterEntry]

	workers   *worker.Service
	platforms *platform.Service
	audit     audit.Recorder
	risk      *risk.Estimator
}

type ExecutorParams struct {
	fx.In
	Config    *config.Config
	DB        *gorm.DB
	Node      *snowflake.Node
	Idem      idempotency.Store
	Gateway   ledgergw.Gateway
	Workers   *worker.Service
	Platforms *platform.Service
	Audit     audit.Recorder
	Risk      *risk.Estimator
}

func NewExecutor(p ExecutorParams) *Executor {
	return &Executor{
		cfg:         p.Config,
		db:          p.DB,
		node:        p.Node,
		idem:        p.Idem,
		gateway:     p.Gateway,
		tasks:       repository.ProvideStore[gigtask.Task](p.DB),
		txns:        repository.ProvideStore[Transaction](p.DB),
		deadLetters: repository.ProvideStore[DeadLetterEntry](p.DB),
		workers:     p.Workers,
		platforms:   p.Platforms,
		audit:       p.Audit,
		risk:        p.Risk,
	}
}

// Execute pays the worker for the task. Calling it again for the same
// (task, worker) pair returns the original Transaction without moving funds.
func (e *Executor) Execute(ctx context.Context, taskID, workerID string) (*Transaction, error) {
	t, err := e.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.WorkerID != workerID {
		return nil, errutil.Conflict("task is not owned by worker", nil)
	}

	// A task already paid short-circuits to the settled transaction. This
	// also covers duplicate deliveries arriving after the idempotency entry
	// expired.
	if t.PaymentStatus == gigtask.PaymentStatusPaid {
		return e.existingTransaction(ctx, taskID)
	}

	key := idempotency.Key(taskID, workerID, "payment")
	storeKey := rediskey.BuildPayoutIdemKey(key)

	began, err := e.idem.Begin(ctx, storeKey, e.cfg.Payout.IdempotencyTTL)
	if err != nil {
		return nil, err
	}
	if !began {
		return e.resolveDuplicate(ctx, storeKey, taskID)
	}

	txn, err := e.execute(ctx, t, key)
	if err != nil {
		// The payment did not settle; drop the in-flight mark so the task is
		// safe to reprocess.
		if rerr := e.idem.Release(ctx, storeKey); rerr != nil {
			zap.L().Error("failed to release idempotency key",
				zap.String("task_id", taskID),
				zap.Error(rerr),
			)
		}
		return nil, err
	}

	if err := e.idem.Complete(ctx, storeKey, txn.ID, e.cfg.Payout.IdempotencyTTL); err != nil {
		zap.L().Error("failed to mark idempotency key completed",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
	}
	return txn, nil
}

func (e *Executor) loadTask(ctx context.Context, taskID string) (*gigtask.Task, error) {
	t, err := e.tasks.FindOne(ctx, &gigtask.Task{ID: taskID})
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errutil.NotFound("task not found", nil)
	}
	return t, nil
}

func (e *Executor) existingTransaction(ctx context.Context, taskID string) (*Transaction, error) {
	txn, err := e.txns.FindOne(ctx, &Transaction{TaskID: taskID})
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, errutil.Conflict("task marked paid but transaction is missing", nil)
	}
	return txn, nil
}

// resolveDuplicate handles the losing side of two near-simultaneous
// deliveries: return the settled transaction when the winner finished, or a
// conflict while it is still running.
func (e *Executor) resolveDuplicate(ctx context.Context, storeKey, taskID string) (*Transaction, error) {
	status, txnID, err := e.idem.Get(ctx, storeKey)
	if err != nil {
		return nil, err
	}
	if status == idempotency.StatusCompleted && txnID != "" {
		txn, err := e.txns.FindOne(ctx, &Transaction{ID: txnID})
		if err != nil {
			return nil, err
		}
		if txn != nil {
			return txn, nil
		}
	}
	return nil, errutil.Conflict("payment already in progress", nil)
}

func (e *Executor) execute(ctx context.Context, t *gigtask.Task, key string) (*Transaction, error) {
	w, err := e.workers.Get(ctx, t.WorkerID)
	if err != nil {
		return nil, err
	}
	p, err := e.platforms.Get(ctx, t.PlatformID)
	if err != nil {
		return nil, err
	}

	fee := t.AmountCents * int64(e.cfg.Payout.FeeRateBps) / 10_000
	net := t.AmountCents - fee

	result, attempts, err := e.transferWithRetry(ctx, ledgergw.TransferRequest{
		FromWallet:  p.WalletAddress,
		ToWallet:    w.WalletAddress,
		AmountCents: net,
		Reference:   key,
	})
	if err != nil {
		e.escalate(ctx, t, attempts, err)
		return nil, err
	}

	ref, err := GenerateReference()
	if err != nil {
		return nil, err
	}

	txn := &Transaction{
		ID:             e.node.Generate().String(),
		Reference:      ref,
		TaskID:         t.ID,
		WorkerID:       t.WorkerID,
		PlatformID:     t.PlatformID,
		AmountCents:    t.AmountCents,
		FeeCents:       fee,
		NetCents:       net,
		TransferID:     result.TransferID,
		SettlementRef:  result.StatusRef,
		IdempotencyKey: key,
		Status:         TxnStatusConfirmed,
	}

	// The four writes settle together or not at all: transaction row, task
	// paid flag, reputation event, audit entry.
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.txns.WithTrx(tx).Create(ctx, txn); err != nil {
			return err
		}

		res := tx.Model(&gigtask.Task{}).
			Where("id = ? AND payment_status <> ?", t.ID, gigtask.PaymentStatusPaid).
			Update("payment_status", gigtask.PaymentStatusPaid)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return errutil.Conflict("task was paid concurrently", nil)
		}

		if _, err := e.workers.ApplyReputationDelta(ctx, tx, t.WorkerID, worker.DeltaTaskCompletion, worker.CauseTaskCompletion); err != nil {
			return err
		}

		return e.audit.RecordTx(ctx, tx, audit.Entry{
			Actor:        "payment-executor",
			Action:       audit.ActionPaymentCompleted,
			ResourceType: audit.ResourceTxn,
			ResourceID:   txn.ID,
			Success:      true,
			Metadata: map[string]any{
				"task_id":     t.ID,
				"worker_id":   t.WorkerID,
				"platform_id": t.PlatformID,
				"amount":      t.AmountCents,
				"fee":         fee,
				"net":         net,
				"transfer_id": result.TransferID,
				"attempts":    attempts,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if e.risk != nil {
		e.risk.Invalidate(t.WorkerID)
	}

	zap.L().Info("payment completed",
		zap.String("task_id", t.ID),
		zap.String("worker_id", t.WorkerID),
		zap.String("transaction_id", txn.ID),
		zap.Int64("net_cents", net),
		zap.Int("attempts", attempts),
	)
	return txn, nil
}

// transferWithRetry attempts the ledger transfer up to the configured number
// of times, doubling the delay between attempts. Only transient failures are
// retried; a validation reject from the ledger fails immediately.
func (e *Executor) transferWithRetry(ctx context.Context, req ledgergw.TransferRequest) (*ledgergw.TransferResult, int, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.Payout.RetryBaseDelay
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.Reset()

	var lastErr error
	maxAttempts := e.cfg.Payout.MaxAttempts

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := e.gateway.Transfer(ctx, req)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		if !ledgergw.IsTransient(err) {
			return nil, attempt, err
		}
		if attempt == maxAttempts {
			break
		}

		zap.L().Warn("transient transfer failure, backing off",
			zap.String("reference", req.Reference),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}

	return nil, maxAttempts, fmt.Errorf("transfer failed after %d attempts: %w", maxAttempts, lastErr)
}

// escalate records the failed payment in the dead letter queue and flips the
// task to failed so it is visible as unsettled. A permanent ledger reject
// skips the retry loop and lands here after one attempt, classed apart from
// exhausted retries.
func (e *Executor) escalate(ctx context.Context, t *gigtask.Task, attempts int, cause error) {
	class := FailureClassRejected
	if ledgergw.IsTransient(cause) {
		class = FailureClassExhausted
	}

	entry := &DeadLetterEntry{
		ID:            e.node.Generate().String(),
		TaskID:        t.ID,
		WorkerID:      t.WorkerID,
		PlatformID:    t.PlatformID,
		Payload:       taskPayload(t),
		FailureReason: cause.Error(),
		FailureClass:  class,
		RetryAttempts: attempts,
		ManualReview:  true,
	}
	if err := e.deadLetters.Create(ctx, entry); err != nil {
		zap.L().Error("failed to write dead letter entry",
			zap.String("task_id", t.ID),
			zap.Error(err),
		)
	}

	if err := e.tasks.Update(ctx, t.ID, map[string]any{"payment_status": gigtask.PaymentStatusFailed}); err != nil {
		zap.L().Error("failed to mark task payment failed",
			zap.String("task_id", t.ID),
			zap.Error(err),
		)
	}

	e.audit.Record(ctx, audit.Entry{
		Actor:        "payment-executor",
		Action:       audit.ActionPaymentDeadLettered,
		ResourceType: audit.ResourceDeadLetter,
		ResourceID:   entry.ID,
		Success:      false,
		Metadata: map[string]any{
			"task_id":       t.ID,
			"worker_id":     t.WorkerID,
			"attempts":      attempts,
			"failure_class": class,
			"reason":        cause.Error(),
		},
	})

	zap.L().Error("payment dead-lettered",
		zap.String("task_id", t.ID),
		zap.String("worker_id", t.WorkerID),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
}
