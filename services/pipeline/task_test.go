package pipeline

import (
	"encoding/json"
	"testing"

	"gigpay-backend/pkg/taskname"

	"github.com/stretchr/testify/require"
)

func TestNewVerifyTask(t *testing.T) {
	task, err := NewVerifyTask("task-1")
	require.NoError(t, err)
	require.Equal(t, taskname.PayoutVerify, task.Type())

	var payload VerifyPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "task-1", payload.TaskID)
}

func TestNewExecuteTask(t *testing.T) {
	task, err := NewExecuteTask("task-1", "worker-1")
	require.NoError(t, err)
	require.Equal(t, taskname.PayoutExecute, task.Type())

	var payload ExecutePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "task-1", payload.TaskID)
	require.Equal(t, "worker-1", payload.WorkerID)
}
