package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gigpay-backend/pkg/config"
	"gigpay-backend/pkg/middleware"
	"gigpay-backend/services/audit"
	"gigpay-backend/services/gigtask"
	"gigpay-backend/services/payout"
	"gigpay-backend/services/platform"
	"gigpay-backend/services/testutil"
	"gigpay-backend/services/verification"
	"gigpay-backend/services/worker"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testAPIKey = "gp_live_test"
	testSecret = "whsec_test"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, t *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, t)
	return &asynq.TaskInfo{ID: fmt.Sprintf("%d", len(f.tasks))}, nil
}

func (f *fakeEnqueuer) enqueued() []*asynq.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*asynq.Task(nil), f.tasks...)
}

func newTestServer(t *testing.T) (*gin.Engine, *gorm.DB, *fakeEnqueuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t,
		&platform.Platform{},
		&gigtask.Task{},
		&payout.Transaction{},
		&payout.DeadLetterEntry{},
		&verification.VerificationResult{},
		&worker.Worker{},
		&worker.ReputationEvent{},
		&audit.AuditLogEntry{},
	)

	require.NoError(t, db.Create(&platform.Platform{
		ID:              "platform-1",
		Name:            "Acme Gigs",
		APIKeyID:        testAPIKey,
		WebhookSecret:   testSecret,
		WebhooksEnabled: true,
		Status:          platform.PlatformStatusActive,
		WalletAddress:   "0xplatform",
	}).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Webhook.EstimatedProcessing = "30s"

	enq := &fakeEnqueuer{}
	h := NewHandler(HandlerParams{
		Config:    cfg,
		DB:        db,
		Platforms: platform.NewService(platform.ServiceParams{DB: db}),
		Tasks:     gigtask.NewService(gigtask.ServiceParams{DB: db}),
		Enqueuer:  enq,
		Audit:     audit.NewService(audit.ServiceParams{DB: db, Node: node}),
	})

	r := gin.New()
	r.Use(middleware.Error())
	registerRoutes(r, h)
	return r, db, enq
}

func deliveryBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"taskId":         "task-1",
		"workerId":       "worker-1",
		"externalTaskId": "acme-42",
		"amount":         45.67,
		"completedAt":    time.Now().Add(-time.Hour).Format(time.RFC3339),
		"completionProof": map[string]any{
			"photoUrl": "https://cdn.example.com/proof.jpg",
			"duration": 35,
			"gpsCoordinates": map[string]float64{
				"lat": 40.7128,
				"lng": -74.0060,
			},
		},
		"rating": 5,
	})
	require.NoError(t, err)
	return body
}

func deliver(r *gin.Engine, body []byte, apiKey, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/task-completed", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	if signature != "" {
		req.Header.Set("X-Signature", signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTaskCompletedAccepted(t *testing.T) {
	r, db, enq := newTestServer(t)
	body := deliveryBody(t)

	w := deliver(r, body, testAPIKey, Sign(testSecret, body))
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "accepted", resp["status"])
	require.Equal(t, "task-1", resp["taskId"])
	require.Equal(t, "30s", resp["estimatedProcessingTime"])

	var task gigtask.Task
	require.NoError(t, db.First(&task, "id = ?", "task-1").Error)
	require.Equal(t, int64(45_67), task.AmountCents)
	require.Equal(t, "platform-1", task.PlatformID)
	require.Equal(t, gigtask.PaymentStatusUnpaid, task.PaymentStatus)
	require.NotNil(t, task.DurationMinutes)
	require.Equal(t, 35, *task.DurationMinutes)
	require.True(t, task.HasGPS())

	tasks := enq.enqueued()
	require.Len(t, tasks, 1)
	require.Equal(t, "payout:verify", tasks[0].Type())
}

func TestTaskCompletedMissingAPIKey(t *testing.T) {
	r, _, enq := newTestServer(t)
	body := deliveryBody(t)

	w := deliver(r, body, "", Sign(testSecret, body))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, enq.enqueued())
}

func TestTaskCompletedUnknownAPIKey(t *testing.T) {
	r, _, enq := newTestServer(t)
	body := deliveryBody(t)

	w := deliver(r, body, "gp_live_bogus", Sign(testSecret, body))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, enq.enqueued())
}

func TestTaskCompletedBadSignature(t *testing.T) {
	r, db, enq := newTestServer(t)
	body := deliveryBody(t)

	w := deliver(r, body, testAPIKey, Sign("wrong-secret", body))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Empty(t, enq.enqueued())

	var count int64
	require.NoError(t, db.Model(&gigtask.Task{}).Count(&count).Error)
	require.Equal(t, int64(0), count)

	// The rejection is auditable.
	var rejected int64
	require.NoError(t, db.Model(&audit.AuditLogEntry{}).
		Where("action = ?", audit.ActionWebhookRejected).Count(&rejected).Error)
	require.Equal(t, int64(1), rejected)
}

func TestTaskCompletedWebhooksDisabled(t *testing.T) {
	r, db, enq := newTestServer(t)
	require.NoError(t, db.Model(&platform.Platform{}).
		Where("id = ?", "platform-1").
		Update("webhooks_enabled", false).Error)

	body := deliveryBody(t)
	w := deliver(r, body, testAPIKey, Sign(testSecret, body))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Empty(t, enq.enqueued())
}

func TestTaskCompletedSchemaValidation(t *testing.T) {
	r, _, enq := newTestServer(t)

	body, err := json.Marshal(map[string]any{
		"taskId": "task-1",
		// workerId missing
		"amount":      45.67,
		"completedAt": time.Now().Format(time.RFC3339),
	})
	require.NoError(t, err)

	w := deliver(r, body, testAPIKey, Sign(testSecret, body))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, enq.enqueued())
}

func TestTaskCompletedMalformedJSON(t *testing.T) {
	r, _, _ := newTestServer(t)
	body := []byte("{not-json")

	w := deliver(r, body, testAPIKey, Sign(testSecret, body))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTaskCompletedDuplicateDelivery(t *testing.T) {
	r, db, enq := newTestServer(t)
	body := deliveryBody(t)
	sig := Sign(testSecret, body)

	require.Equal(t, http.StatusAccepted, deliver(r, body, testAPIKey, sig).Code)
	require.Equal(t, http.StatusAccepted, deliver(r, body, testAPIKey, sig).Code)

	var count int64
	require.NoError(t, db.Model(&gigtask.Task{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	// Only the first delivery schedules pipeline work.
	require.Len(t, enq.enqueued(), 1)
}

func TestTaskStatusEndpoint(t *testing.T) {
	r, db, _ := newTestServer(t)
	body := deliveryBody(t)
	require.Equal(t, http.StatusAccepted, deliver(r, body, testAPIKey, Sign(testSecret, body)).Code)

	require.NoError(t, db.Create(&verification.VerificationResult{
		ID:         "vr-1",
		TaskID:     "task-1",
		WorkerID:   "worker-1",
		Verdict:    verification.VerdictApprove,
		Confidence: 92,
		FraudLevel: "low",
		Method:     verification.MethodHeuristic,
	}).Error)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/tasks/task-1", nil)
	req.Header.Set("X-API-Key", testAPIKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "task-1", resp["taskId"])
	require.Contains(t, resp, "verification")
}

func TestTaskStatusScopedToPlatform(t *testing.T) {
	r, db, _ := newTestServer(t)

	require.NoError(t, db.Create(&gigtask.Task{
		ID:          "task-other",
		PlatformID:  "platform-2",
		WorkerID:    "worker-1",
		AmountCents: 10_00,
		CompletedAt: time.Now(),
	}).Error)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/tasks/task-other", nil)
	req.Header.Set("X-API-Key", testAPIKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSignatureRoundTrip(t *testing.T) {
	body := []byte(`{"taskId":"task-1"}`)

	sig := Sign("secret", body)
	require.True(t, strings.HasPrefix(sig, "sha256="))
	require.True(t, VerifySignature("secret", body, sig))
	require.False(t, VerifySignature("other", body, sig))
	require.False(t, VerifySignature("secret", []byte(`{}`), sig))
	require.False(t, VerifySignature("secret", body, "sha256=zz"))
	require.False(t, VerifySignature("secret", body, ""))
}
