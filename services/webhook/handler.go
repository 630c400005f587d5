package webhook

import (
	"context"
	"encoding/json"
	"net/http"

	"gigpay-backend/pkg/config"
	"gigpay-backend/pkg/db/option"
	"gigpay-backend/pkg/db/pagination"
	"gigpay-backend/pkg/errutil"
	"gigpay-backend/pkg/repository"
	"gigpay-backend/pkg/task"
	"gigpay-backend/services/audit"
	"gigpay-backend/services/gigtask"
	"gigpay-backend/services/payout"
	"gigpay-backend/services/pipeline"
	"gigpay-backend/services/platform"
	"gigpay-backend/services/verification"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const platformContextKey = "webhook.platform"

// Handler is the HTTP boundary of the pipeline. It authenticates the caller,
// verifies message integrity, runs cheap structural checks, and acknowledges
// before any verification or payment work starts.
type Handler struct {
	cfg       *config.Config
	platforms *platform.Service
	tasks     *gigtask.Service
	enqueuer  task.Enqueuer
	audit     audit.Recorder
	dlq       *payout.DLQ
	txns      repository.Repository[payout.Transaction]
	results   repository.Repository[verification.VerificationResult]
}

type HandlerParams struct {
	fx.In
	Config    *config.Config
	DB        *gorm.DB
	Platforms *platform.Service
	Tasks     *gigtask.Service
	Enqueuer  task.Enqueuer
	Audit     audit.Recorder
	DLQ       *payout.DLQ
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		cfg:       p.Config,
		platforms: p.Platforms,
		tasks:     p.Tasks,
		enqueuer:  p.Enqueuer,
		audit:     p.Audit,
		dlq:       p.DLQ,
		txns:      repository.ProvideStore[payout.Transaction](p.DB),
		results:   repository.ProvideStore[verification.VerificationResult](p.DB),
	}
}

// Authenticate resolves the platform from X-API-Key. It guards every webhook
// route; signature verification stays in the delivery handler because it
// needs the raw body.
func (h *Handler) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := h.platforms.FindByAPIKey(c.Request.Context(), c.GetHeader("X-API-Key"))
		if err != nil {
			h.rejectAuth(c, err, "invalid API key")
			return
		}
		if !p.Active() {
			h.rejectAuth(c, errutil.Forbidden("platform is suspended", nil), "platform suspended")
			return
		}
		c.Set(platformContextKey, p)
		c.Next()
	}
}

func (h *Handler) rejectAuth(c *gin.Context, err error, reason string) {
	h.audit.Record(c.Request.Context(), audit.Entry{
		Actor:        "webhook-intake",
		Action:       audit.ActionWebhookRejected,
		ResourceType: audit.ResourceWebhook,
		Success:      false,
		Metadata: map[string]any{
			"reason": reason,
			"path":   c.FullPath(),
		},
	})
	_ = c.Error(err)
	c.Abort()
}

func currentPlatform(c *gin.Context) *platform.Platform {
	return c.MustGet(platformContextKey).(*platform.Platform)
}

// TaskCompleted handles POST /webhooks/task-completed. The 202 is written
// before the verification task is observable by any worker; downstream
// failures surface only through the audit log and the dead letter queue.
func (h *Handler) TaskCompleted(c *gin.Context) {
	ctx := c.Request.Context()
	p := currentPlatform(c)

	if !p.WebhooksEnabled {
		h.rejectAuth(c, errutil.Forbidden("webhooks are disabled for this platform", nil), "webhooks disabled")
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		_ = c.Error(errutil.BadRequest("failed to read request body", err))
		return
	}

	if !VerifySignature(p.WebhookSecret, body, c.GetHeader("X-Signature")) {
		h.rejectAuth(c, errutil.Forbidden("invalid signature", nil), "bad signature")
		return
	}

	var payload TaskCompletedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		_ = c.Error(errutil.ValidationFailed("malformed JSON body", err))
		return
	}

	t, err := payload.Normalize(p.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	stored, created, err := h.tasks.Record(ctx, t)
	if err != nil {
		_ = c.Error(err)
		return
	}

	// Duplicate delivery of an already-recorded task: acknowledge again
	// without scheduling a second pipeline run. A failed enqueue is not the
	// platform's problem; the task row persists and the failure is audited
	// for operator replay.
	if created {
		if err := h.schedule(ctx, stored); err != nil {
			h.audit.Record(ctx, audit.Entry{
				Actor:        "webhook-intake",
				Action:       audit.ActionWebhookEnqueueFailed,
				ResourceType: audit.ResourceTask,
				ResourceID:   stored.ID,
				Success:      false,
				Metadata: map[string]any{
					"platform_id": p.ID,
					"error":       err.Error(),
				},
			})
		}
	}

	h.audit.Record(ctx, audit.Entry{
		Actor:        "webhook-intake",
		Action:       audit.ActionWebhookAccepted,
		ResourceType: audit.ResourceTask,
		ResourceID:   stored.ID,
		Success:      true,
		Metadata: map[string]any{
			"platform_id": p.ID,
			"worker_id":   stored.WorkerID,
			"amount":      stored.AmountCents,
			"duplicate":   !created,
		},
	})

	c.JSON(http.StatusAccepted, gin.H{
		"status":                  "accepted",
		"taskId":                  stored.ID,
		"estimatedProcessingTime": h.cfg.Webhook.EstimatedProcessing,
	})
}

func (h *Handler) schedule(ctx context.Context, t *gigtask.Task) error {
	verifyTask, err := pipeline.NewVerifyTask(t.ID)
	if err != nil {
		return err
	}
	if _, err := h.enqueuer.Enqueue(ctx, verifyTask); err != nil {
		zap.L().Error("failed to enqueue verification",
			zap.String("task_id", t.ID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// TaskStatus handles GET /webhooks/tasks/:taskId: the poll endpoint platforms
// use to observe asynchronous outcomes of an acknowledged delivery.
func (h *Handler) TaskStatus(c *gin.Context) {
	ctx := c.Request.Context()
	p := currentPlatform(c)

	t, err := h.tasks.Get(ctx, c.Param("taskId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if t.PlatformID != p.ID {
		_ = c.Error(errutil.NotFound("task not found", nil))
		return
	}

	resp := gin.H{
		"taskId":             t.ID,
		"paymentStatus":      t.PaymentStatus,
		"verificationStatus": t.VerificationStatus,
	}

	result, err := h.results.FindOne(ctx, &verification.VerificationResult{TaskID: t.ID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if result != nil {
		resp["verification"] = gin.H{
			"verdict":    result.Verdict,
			"confidence": result.Confidence,
			"fraudLevel": result.FraudLevel,
			"method":     result.Method,
			"createdAt":  result.CreatedAt,
		}
	}

	txn, err := h.txns.FindOne(ctx, &payout.Transaction{TaskID: t.ID})
	if err != nil {
		_ = c.Error(err)
		return
	}
	if txn != nil {
		resp["transaction"] = gin.H{
			"id":         txn.ID,
			"netCents":   txn.NetCents,
			"feeCents":   txn.FeeCents,
			"status":     txn.Status,
			"transferId": txn.TransferID,
		}
	}

	c.JSON(http.StatusOK, resp)
}

// DeadLetterQueue handles GET /webhooks/dead-letter-queue, scoped to the
// authenticated platform.
func (h *Handler) DeadLetterQueue(c *gin.Context) {
	p := currentPlatform(c)

	var page pagination.Params
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination parameters", err))
		return
	}

	entries, info, err := h.dlq.List(c.Request.Context(), p.ID, page)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":   entries,
		"page_info": info,
	})
}

// Retry handles POST /webhooks/retry/:id, replaying a dead-lettered payment.
func (h *Handler) Retry(c *gin.Context) {
	p := currentPlatform(c)

	txn, err := h.dlq.Replay(c.Request.Context(), p.ID, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "replayed",
		"transaction": gin.H{
			"id":         txn.ID,
			"taskId":     txn.TaskID,
			"netCents":   txn.NetCents,
			"feeCents":   txn.FeeCents,
			"status":     txn.Status,
			"transferId": txn.TransferID,
		},
	})
}

func registerRoutes(r *gin.Engine, h *Handler) {
	g := r.Group("/webhooks", h.Authenticate())
	g.POST("/task-completed", h.TaskCompleted)
	g.GET("/tasks/:taskId", h.TaskStatus)
	g.GET("/dead-letter-queue", h.DeadLetterQueue)
	g.POST("/retry/:id", h.Retry)
}

var Module = fx.Module("webhook",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)
