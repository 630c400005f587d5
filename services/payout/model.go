package payout

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type TxnStatus string

const (
	TxnStatusPending   TxnStatus = "pending"
	TxnStatusSubmitted TxnStatus = "submitted"
	TxnStatusConfirmed TxnStatus = "confirmed"
	TxnStatusFailed    TxnStatus = "failed"
)

// Transaction is created exactly once per approved task; the idempotency key
// over (task, worker) enforces that. Duplicate requests get the existing row.
type Transaction struct {
	ID             string    `gorm:"column:id;primaryKey"`
	Reference      string    `gorm:"column:reference;uniqueIndex;not null"` // YYYYMMDD-XXXXXX, shown to platforms
	TaskID         string    `gorm:"column:task_id;not null;uniqueIndex"`
	WorkerID       string    `gorm:"column:worker_id;not null;index"`
	PlatformID     string    `gorm:"column:platform_id;not null;index"`
	AmountCents    int64     `gorm:"column:amount_cents;not null"`
	FeeCents       int64     `gorm:"column:fee_cents;not null"`
	NetCents       int64     `gorm:"column:net_cents;not null"`
	TransferID     string    `gorm:"column:transfer_id"`
	SettlementRef  string    `gorm:"column:settlement_ref"`
	IdempotencyKey string    `gorm:"column:idempotency_key;not null;index"`
	Status         TxnStatus `gorm:"column:status;default:'pending';not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Transaction) TableName() string { return "transactions" }

// GenerateReference produces the human-readable transaction reference.
func GenerateReference() (string, error) {
	datePart := time.Now().Format("20060102")

	r := make([]byte, 3) // 3 bytes = 6 hex chars
	if _, err := rand.Read(r); err != nil {
		return "", err
	}
	randomPart := strings.ToUpper(fmt.Sprintf("%x", r))

	return fmt.Sprintf("%s-%s", datePart, randomPart), nil
}

// Dead letter failure classes. Exhausted entries burned every retry on
// transient errors; rejected entries were refused outright by the ledger and
// dead-letter after a single attempt.
const (
	FailureClassExhausted = "retries_exhausted"
	FailureClassRejected  = "rejected"
)

// DeadLetterEntry holds a payment that could not settle. It leaves the queue
// only through a manual replay that succeeds.
type DeadLetterEntry struct {
	ID            string         `gorm:"column:id;primaryKey"`
	TaskID        string         `gorm:"column:task_id;not null;index"`
	WorkerID      string         `gorm:"column:worker_id;not null"`
	PlatformID    string         `gorm:"column:platform_id;not null;index"`
	Payload       datatypes.JSON `gorm:"column:payload;not null"`
	FailureReason string         `gorm:"column:failure_reason;not null"`
	FailureClass  string         `gorm:"column:failure_class;not null"`
	RetryAttempts int            `gorm:"column:retry_attempts;not null"`
	ManualReview  bool           `gorm:"column:manual_review;not null"`
	Resolved      bool           `gorm:"column:resolved;default:false;not null"`
	ResolvedAt    *time.Time     `gorm:"column:resolved_at"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (DeadLetterEntry) TableName() string { return "dead_letter_entries" }
