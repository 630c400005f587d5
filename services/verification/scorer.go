package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"gigpay-backend/services/gigtask"
	"gigpay-backend/services/history"
)

// Scorer computes a 0-100 confidence that a task completion is legitimate.
// The engine always keeps the heuristic scorer as a guaranteed fallback, so
// an implementation may fail freely on unavailability.
type Scorer interface {
	Score(ctx context.Context, t *gigtask.Task, s *history.Snapshot) (int, error)
	Method() Method
}

const (
	baseConfidence = 50
	positiveCap    = 85
	negativeCap    = 120
)

// HeuristicScorer is the explainable rule-based combiner. Positive and
// negative contributions are capped before the final clamp to [0,100].
type HeuristicScorer struct{}

func (HeuristicScorer) Method() Method { return MethodHeuristic }

func (HeuristicScorer) Score(_ context.Context, t *gigtask.Task, s *history.Snapshot) (int, error) {
	var pos, neg int

	switch {
	case s.ReputationScore >= 800:
		pos += 20
	case s.ReputationScore >= 650:
		pos += 10
	}

	switch rate := s.CompletionRate(); {
	case rate >= 0.95:
		pos += 15
	case rate >= 0.85:
		pos += 8
	}

	if s.DisputeCount == 0 {
		pos += 10
	}
	if t.AmountCents <= 20_00 {
		pos += 10
	}
	if t.PhotoURL != "" {
		pos += 15
	}
	if t.HasGPS() {
		pos += 10
	}
	if s.AccountAge >= 90*24*time.Hour {
		pos += 5
	}

	switch {
	case s.DisputeCount > 5:
		neg += 30
	case s.DisputeCount > 2:
		neg += 15
	}

	if t.DurationMinutes != nil && *t.DurationMinutes < 5 {
		neg += 20
	}

	if s.AvgAmountCents > 0 {
		switch {
		case t.AmountCents > 5*s.AvgAmountCents:
			neg += 40
		case t.AmountCents > 3*s.AvgAmountCents:
			neg += 20
		}
	}

	if s.AccountAge < 7*24*time.Hour && t.AmountCents > 50_00 {
		neg += 25
	}
	if s.ReputationScore < 400 {
		neg += 20
	}

	if pos > positiveCap {
		pos = positiveCap
	}
	if neg > negativeCap {
		neg = negativeCap
	}

	confidence := baseConfidence + pos - neg
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	return confidence, nil
}

// ExternalScorer calls an out-of-process model service. Any transport or
// schema failure surfaces as an error and the engine degrades to the
// heuristic.
type ExternalScorer struct {
	url    string
	client *http.Client
}

func NewExternalScorer(url string, timeout time.Duration) *ExternalScorer {
	return &ExternalScorer{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *ExternalScorer) Method() Method { return MethodExternal }

type scoreRequest struct {
	TaskID          string   `json:"task_id"`
	WorkerID        string   `json:"worker_id"`
	AmountCents     int64    `json:"amount_cents"`
	AvgAmountCents  int64    `json:"avg_amount_cents"`
	ReputationScore int      `json:"reputation_score"`
	CompletionRate  float64  `json:"completion_rate"`
	DisputeCount    int64    `json:"dispute_count"`
	AccountAgeDays  int      `json:"account_age_days"`
	TasksLast24h    int64    `json:"tasks_last_24h"`
	DurationMinutes *int     `json:"duration_minutes,omitempty"`
	GPSLat          *float64 `json:"gps_lat,omitempty"`
	GPSLng          *float64 `json:"gps_lng,omitempty"`
	HasPhoto        bool     `json:"has_photo"`
}

type scoreResponse struct {
	Confidence int `json:"confidence"`
}

func (s *ExternalScorer) Score(ctx context.Context, t *gigtask.Task, snap *history.Snapshot) (int, error) {
	body, err := json.Marshal(scoreRequest{
		TaskID:          t.ID,
		WorkerID:        t.WorkerID,
		AmountCents:     t.AmountCents,
		AvgAmountCents:  snap.AvgAmountCents,
		ReputationScore: snap.ReputationScore,
		CompletionRate:  snap.CompletionRate(),
		DisputeCount:    snap.DisputeCount,
		AccountAgeDays:  snap.AccountAgeDays(),
		TasksLast24h:    snap.TasksLast24h,
		DurationMinutes: t.DurationMinutes,
		GPSLat:          t.GPSLat,
		GPSLng:          t.GPSLng,
		HasPhoto:        t.PhotoURL != "",
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("scorer responded %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var out scoreResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, err
	}
	if out.Confidence < 0 || out.Confidence > 100 {
		return 0, fmt.Errorf("scorer returned confidence %d out of range", out.Confidence)
	}
	return out.Confidence, nil
}
