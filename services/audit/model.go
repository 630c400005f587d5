package audit

import (
	"time"

	"gorm.io/datatypes"
)

// Actions recorded by the pipeline.
const (
	ActionWebhookRejected      = "webhook.rejected"
	ActionWebhookAccepted      = "webhook.accepted"
	ActionWebhookEnqueueFailed = "webhook.enqueue_failed"
	ActionVerificationVerdict  = "verification.verdict"
	ActionPaymentCompleted     = "payment.completed"
	ActionPaymentFailed        = "payment.failed"
	ActionPaymentDeadLettered  = "payment.dead_lettered"
	ActionDeadLetterReplayed   = "dead_letter.replayed"
)

// Resource types referenced by audit entries.
const (
	ResourceTask       = "task"
	ResourceTxn        = "transaction"
	ResourceDeadLetter = "dead_letter_entry"
	ResourceWebhook    = "webhook"
)

// AuditLogEntry is append-only; rows are never updated or deleted.
type AuditLogEntry struct {
	ID           string         `gorm:"column:id;primaryKey"`
	Actor        string         `gorm:"column:actor;not null;index"`
	Action       string         `gorm:"column:action;not null;index"`
	ResourceType string         `gorm:"column:resource_type;not null"`
	ResourceID   string         `gorm:"column:resource_id;index"`
	Success      bool           `gorm:"column:success;not null"`
	Metadata     datatypes.JSON `gorm:"column:metadata"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (AuditLogEntry) TableName() string { return "audit_log_entries" }
