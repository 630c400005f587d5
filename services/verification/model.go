package verification

import (
	"time"

	"gorm.io/datatypes"
)

type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictFlag    Verdict = "flag"
	VerdictReject  Verdict = "reject"
)

type Method string

const (
	MethodHeuristic Method = "heuristic"
	MethodExternal  Method = "external"
)

// VerificationResult is append-only: one row per verification attempt. A task
// that is reprocessed gets a fresh row.
type VerificationResult struct {
	ID              string         `gorm:"column:id;primaryKey"`
	TaskID          string         `gorm:"column:task_id;not null;index"`
	WorkerID        string         `gorm:"column:worker_id;not null;index"`
	Verdict         Verdict        `gorm:"column:verdict;not null"`
	Confidence      int            `gorm:"column:confidence;not null"`
	FraudScore      int            `gorm:"column:fraud_score;not null"`
	FraudLevel      string         `gorm:"column:fraud_level;not null"`
	MatchedPatterns datatypes.JSON `gorm:"column:matched_patterns"`
	FailureReason   string         `gorm:"column:failure_reason"`
	Method          Method         `gorm:"column:method;not null"`
	LatencyMS       int64          `gorm:"column:latency_ms;not null"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (VerificationResult) TableName() string { return "verification_results" }
