package webhook

import (
	"encoding/json"
	"math"
	"time"

	"gigpay-backend/pkg/errutil"
	"gigpay-backend/services/gigtask"

	"gorm.io/datatypes"
)

type GPSCoordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type CompletionProof struct {
	PhotoURL       string          `json:"photoUrl"`
	GPSCoordinates *GPSCoordinates `json:"gpsCoordinates"`
	Duration       *int            `json:"duration"` // minutes
}

// TaskCompletedPayload is the raw webhook body. It is the only loosely-typed
// surface: Normalize turns it into a validated Task and everything downstream
// works on that.
type TaskCompletedPayload struct {
	TaskID          string           `json:"taskId"`
	WorkerID        string           `json:"workerId"`
	PlatformID      string           `json:"platformId"`
	ExternalTaskID  string           `json:"externalTaskId"`
	Amount          json.Number      `json:"amount"` // decimal dollars
	CompletedAt     string           `json:"completedAt"`
	CompletionProof *CompletionProof `json:"completionProof"`
	Rating          *int             `json:"rating"`
	Metadata        map[string]any   `json:"metadata"`
}

// Normalize validates the payload and converts it into a Task owned by the
// authenticated platform. Amounts are converted from decimal dollars to
// integer cents here; no float leaves this function.
func (p *TaskCompletedPayload) Normalize(platformID string) (*gigtask.Task, error) {
	var details []errutil.Detail
	field := func(name, msg string) {
		details = append(details, errutil.Detail{Field: name, Message: msg})
	}

	if p.TaskID == "" {
		field("taskId", "required")
	}
	if p.WorkerID == "" {
		field("workerId", "required")
	}
	if p.PlatformID != "" && p.PlatformID != platformID {
		field("platformId", "does not match the authenticated platform")
	}

	amountCents, err := dollarsToCents(p.Amount)
	if err != nil {
		field("amount", "must be a decimal dollar amount")
	}

	var completedAt time.Time
	if p.CompletedAt == "" {
		field("completedAt", "required")
	} else {
		completedAt, err = time.Parse(time.RFC3339, p.CompletedAt)
		if err != nil {
			field("completedAt", "must be an ISO-8601 timestamp")
		}
	}

	if p.Rating != nil && (*p.Rating < 1 || *p.Rating > 5) {
		field("rating", "must be between 1 and 5")
	}

	if len(details) > 0 {
		return nil, errutil.ValidationFailed("invalid webhook payload", nil, errutil.WithDetails(details...))
	}

	t := &gigtask.Task{
		ID:             p.TaskID,
		ExternalTaskID: p.ExternalTaskID,
		PlatformID:     platformID,
		WorkerID:       p.WorkerID,
		AmountCents:    amountCents,
		CompletedAt:    completedAt,
		Status:         gigtask.TaskStatusCompleted,
		PaymentStatus:  gigtask.PaymentStatusUnpaid,
		Rating:         p.Rating,
	}

	if proof := p.CompletionProof; proof != nil {
		t.PhotoURL = proof.PhotoURL
		t.DurationMinutes = proof.Duration
		if gps := proof.GPSCoordinates; gps != nil {
			lat, lng := gps.Lat, gps.Lng
			t.GPSLat = &lat
			t.GPSLng = &lng
		}
	}

	if p.Metadata != nil {
		if b, err := json.Marshal(p.Metadata); err == nil {
			t.Metadata = datatypes.JSON(b)
		}
	}

	return t, nil
}

func dollarsToCents(amount json.Number) (int64, error) {
	f, err := amount.Float64()
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f * 100)), nil
}
