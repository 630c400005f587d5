package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"gigpay-backend/pkg/task"
	"gigpay-backend/pkg/taskname"
	"gigpay-backend/services/gigtask"
	"gigpay-backend/services/payout"
	"gigpay-backend/services/verification"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Handlers wires the two pipeline hops: verify the task, then pay it. The
// webhook handler already acknowledged the caller before either hop runs.
type Handlers struct {
	tasks    *gigtask.Service
	engine   *verification.Engine
	executor *payout.Executor
	enqueuer task.Enqueuer
}

type HandlersParams struct {
	fx.In
	Tasks    *gigtask.Service
	Engine   *verification.Engine
	Executor *payout.Executor
	Enqueuer task.Enqueuer
}

func NewHandlers(p HandlersParams) *Handlers {
	return &Handlers{
		tasks:    p.Tasks,
		engine:   p.Engine,
		executor: p.Executor,
		enqueuer: p.Enqueuer,
	}
}

// HandleVerify runs the verification engine and, on approval, hands the task
// to the payment hop. The verdict row is written before the payment task is
// enqueued.
func (h *Handlers) HandleVerify(ctx context.Context, t *asynq.Task) error {
	var payload VerifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal verify payload: %w", err)
	}

	gt, err := h.tasks.Get(ctx, payload.TaskID)
	if err != nil {
		return err
	}

	result, err := h.engine.Verify(ctx, gt)
	if err != nil {
		return err
	}

	zap.L().Info("task verified",
		zap.String("task_id", gt.ID),
		zap.String("verdict", string(result.Verdict)),
		zap.Int("confidence", result.Confidence),
		zap.String("fraud_level", result.FraudLevel),
	)

	if result.Verdict != verification.VerdictApprove {
		return nil
	}

	execTask, err := NewExecuteTask(gt.ID, gt.WorkerID)
	if err != nil {
		return err
	}
	if _, err := h.enqueuer.Enqueue(ctx, execTask); err != nil {
		return fmt.Errorf("enqueue payment: %w", err)
	}
	return nil
}

// HandleExecute runs the payment executor. Expected failures — exhausted
// retries, conflicts — were already escalated or short-circuited by the
// executor, so they are not surfaced back to asynq.
func (h *Handlers) HandleExecute(ctx context.Context, t *asynq.Task) error {
	var payload ExecutePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal execute payload: %w", err)
	}

	if _, err := h.executor.Execute(ctx, payload.TaskID, payload.WorkerID); err != nil {
		zap.L().Error("payment execution failed",
			zap.String("task_id", payload.TaskID),
			zap.String("worker_id", payload.WorkerID),
			zap.Error(err),
		)
	}
	return nil
}

func registerHandlers(mux *asynq.ServeMux, h *Handlers) {
	mux.HandleFunc(taskname.PayoutVerify, h.HandleVerify)
	mux.HandleFunc(taskname.PayoutExecute, h.HandleExecute)
}

var Module = fx.Module("pipeline",
	fx.Provide(NewHandlers),
	fx.Invoke(registerHandlers),
)
