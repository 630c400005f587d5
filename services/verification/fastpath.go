package verification

import (
	"fmt"
	"time"

	"gigpay-backend/services/gigtask"
)

// Fast-path bounds. Anything outside rejects immediately, before any history
// lookup or scoring work.
const (
	maxFutureSkew  = 5 * time.Minute
	maxPastAge     = 24 * time.Hour
	minAmountCents = 1
	maxAmountCents = 1000_00
	minDurationMin = 1
	maxDurationMin = 480
)

// FastPathValidate runs the cheap structural checks. A non-nil error is a
// hard failure: the task is rejected without running fraud detection or
// confidence scoring.
func FastPathValidate(t *gigtask.Task, now time.Time) error {
	if t.ID == "" || t.WorkerID == "" || t.PlatformID == "" {
		return fmt.Errorf("missing required task fields")
	}

	if t.CompletedAt.IsZero() {
		return fmt.Errorf("missing completion timestamp")
	}
	if t.CompletedAt.After(now.Add(maxFutureSkew)) {
		return fmt.Errorf("completion timestamp too far in the future")
	}
	if t.CompletedAt.Before(now.Add(-maxPastAge)) {
		return fmt.Errorf("completion timestamp older than 24 hours")
	}

	if t.AmountCents < minAmountCents || t.AmountCents > maxAmountCents {
		return fmt.Errorf("amount %d out of range [%d, %d] cents", t.AmountCents, minAmountCents, maxAmountCents)
	}

	if t.DurationMinutes != nil {
		if d := *t.DurationMinutes; d < minDurationMin || d > maxDurationMin {
			return fmt.Errorf("duration %d out of range [%d, %d] minutes", d, minDurationMin, maxDurationMin)
		}
	}

	if t.GPSLat != nil || t.GPSLng != nil {
		if !t.HasGPS() {
			return fmt.Errorf("incomplete gps coordinates")
		}
		if lat := *t.GPSLat; lat < -90 || lat > 90 {
			return fmt.Errorf("latitude %f out of range", lat)
		}
		if lng := *t.GPSLng; lng < -180 || lng > 180 {
			return fmt.Errorf("longitude %f out of range", lng)
		}
	}

	return nil
}
