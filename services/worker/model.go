package worker

import (
	"time"
)

type WorkerStatus string

const (
	WorkerStatusActive    WorkerStatus = "active"
	WorkerStatusSuspended WorkerStatus = "suspended"
)

// Worker holds the payout wallet and the current reputation score. The score
// itself is derived state; ReputationEvent rows are the authoritative history.
type Worker struct {
	ID              string       `gorm:"column:id;primaryKey"`
	WalletAddress   string       `gorm:"column:wallet_address;not null"`
	ReputationScore int          `gorm:"column:reputation_score;default:500;not null"`
	Status          WorkerStatus `gorm:"column:status;default:'active';not null"`
	CreatedAt       time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

func (Worker) TableName() string { return "workers" }

// Reputation score bounds and deltas.
const (
	ReputationMin = 0
	ReputationMax = 1000

	DeltaTaskCompletion = 10
)

// Causes for reputation events.
const (
	CauseTaskCompletion   = "task_completion"
	CauseDispute          = "dispute"
	CauseManualAdjustment = "manual_adjustment"
)

// ReputationEvent is append-only; rows are never mutated or deleted.
type ReputationEvent struct {
	ID            string    `gorm:"column:id;primaryKey"`
	WorkerID      string    `gorm:"column:worker_id;not null;index"`
	Delta         int       `gorm:"column:delta;not null"`
	PreviousScore int       `gorm:"column:previous_score;not null"`
	NewScore      int       `gorm:"column:new_score;not null"`
	Cause         string    `gorm:"column:cause;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

func (ReputationEvent) TableName() string { return "reputation_events" }

type LoanStatus string

const (
	LoanStatusActive LoanStatus = "active"
	LoanStatusRepaid LoanStatus = "repaid"
)

// Loan is a cash advance against forecast earnings.
type Loan struct {
	ID               string     `gorm:"column:id;primaryKey"`
	WorkerID         string     `gorm:"column:worker_id;not null;index"`
	PrincipalCents   int64      `gorm:"column:principal_cents;not null"`
	OutstandingCents int64      `gorm:"column:outstanding_cents;not null"`
	FeeRateBps       int        `gorm:"column:fee_rate_bps;not null"`
	Status           LoanStatus `gorm:"column:status;default:'active';not null"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	RepaidAt         *time.Time `gorm:"column:repaid_at"`
}

func (Loan) TableName() string { return "loans" }
