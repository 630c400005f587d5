package gigtask

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusFailed PaymentStatus = "failed"
)

type VerificationStatus string

const (
	VerificationStatusPending  VerificationStatus = "pending"
	VerificationStatusApproved VerificationStatus = "approved"
	VerificationStatusFlagged  VerificationStatus = "flagged"
	VerificationStatusRejected VerificationStatus = "rejected"
)

type TaskStatus string

const (
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task is created by the platform notification and mutated only by the
// payment outcome. A paid task is immutable.
type Task struct {
	ID                 string             `gorm:"column:id;primaryKey"`
	ExternalTaskID     string             `gorm:"column:external_task_id;index"`
	PlatformID         string             `gorm:"column:platform_id;not null;index"`
	WorkerID           string             `gorm:"column:worker_id;not null;index"`
	AmountCents        int64              `gorm:"column:amount_cents;not null"`
	CompletedAt        time.Time          `gorm:"column:completed_at;not null;index"`
	Status             TaskStatus         `gorm:"column:status;default:'completed';not null"`
	PaymentStatus      PaymentStatus      `gorm:"column:payment_status;default:'unpaid';not null"`
	VerificationStatus VerificationStatus `gorm:"column:verification_status;default:'pending';not null"`
	DurationMinutes    *int               `gorm:"column:duration_minutes"`
	PhotoURL           string             `gorm:"column:photo_url"`
	GPSLat             *float64           `gorm:"column:gps_lat"`
	GPSLng             *float64           `gorm:"column:gps_lng"`
	Rating             *int               `gorm:"column:rating"`
	Metadata           datatypes.JSON     `gorm:"column:metadata"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Task) TableName() string { return "tasks" }

func (t *Task) HasGPS() bool {
	return t.GPSLat != nil && t.GPSLng != nil
}
