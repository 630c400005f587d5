package pipeline

import (
	"encoding/json"

	"gigpay-backend/pkg/taskname"

	"github.com/hibiken/asynq"
)

type VerifyPayload struct {
	TaskID string `json:"task_id"`
}

type ExecutePayload struct {
	TaskID   string `json:"task_id"`
	WorkerID string `json:"worker_id"`
}

// NewVerifyTask schedules verification for a freshly accepted webhook. Asynq
// retries it a couple of times on infrastructure failures; a verdict is only
// written once per attempt.
func NewVerifyTask(taskID string) (*asynq.Task, error) {
	payload, err := json.Marshal(VerifyPayload{TaskID: taskID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.PayoutVerify, payload,
		asynq.Queue("default"),
		asynq.MaxRetry(2),
	), nil
}

// NewExecuteTask schedules the payment for an approved task. Retry and
// dead-lettering belong to the payment executor, so asynq itself never
// re-runs it.
func NewExecuteTask(taskID, workerID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ExecutePayload{TaskID: taskID, WorkerID: workerID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.PayoutExecute, payload,
		asynq.Queue("critical"),
		asynq.MaxRetry(0),
	), nil
}
