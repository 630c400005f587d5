package fraud

import (
	"math"
	"time"

	"gigpay-backend/services/gigtask"
	"gigpay-backend/services/history"
)

type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Pattern names, stable identifiers recorded in verification results and
// audit entries.
const (
	PatternVelocity            = "velocity"
	PatternAmountSpike         = "amount_spike"
	PatternLocationFarming     = "location_farming"
	PatternOffHours            = "off_hours"
	PatternNewAccountHighValue = "new_account_high_value"
	PatternReputationDisputes  = "reputation_disputes"
	PatternLowCompletion       = "low_completion"
	PatternDurationAnomaly     = "duration_anomaly"
)

type Match struct {
	Pattern string `json:"pattern"`
	Points  int    `json:"points"`
}

type Result struct {
	Score   int     `json:"score"`
	Level   Level   `json:"level"`
	Matches []Match `json:"matches"`
}

func (r Result) Matched() []string {
	names := make([]string, 0, len(r.Matches))
	for _, m := range r.Matches {
		names = append(names, m.Pattern)
	}
	return names
}

// Patterns that disqualify a task on their own, whatever the aggregate
// score works out to.
var hardPatterns = map[string]bool{
	PatternVelocity: true,
}

// HardMatch reports whether any matched pattern is disqualifying by itself.
func (r Result) HardMatch() bool {
	for _, m := range r.Matches {
		if hardPatterns[m.Pattern] {
			return true
		}
	}
	return false
}

const (
	velocityThreshold      = 50
	amountSpikeMultiplier  = 3
	locationFarmThreshold  = 10
	offHoursStart          = 2
	offHoursEnd            = 5
	newAccountMaxAge       = 7 * 24 * time.Hour
	newAccountAmountCents  = 100_00
	lowReputationThreshold = 500
	disputeThreshold       = 2
	lowCompletionRate      = 0.80
	durationAnomalyRatio   = 0.30
	durationMinSample      = 3
)

type check struct {
	name   string
	points int
	hit    func(t *gigtask.Task, s *history.Snapshot, loc *time.Location) bool
}

// Checks are independent and additive, not mutually exclusive.
var checks = []check{
	{PatternVelocity, 30, func(t *gigtask.Task, s *history.Snapshot, _ *time.Location) bool {
		return s.TasksLast24h > velocityThreshold
	}},
	{PatternAmountSpike, 25, func(t *gigtask.Task, s *history.Snapshot, _ *time.Location) bool {
		return s.AvgAmountCents > 0 && t.AmountCents > amountSpikeMultiplier*s.AvgAmountCents
	}},
	{PatternLocationFarming, 25, func(t *gigtask.Task, s *history.Snapshot, _ *time.Location) bool {
		return locationFarming(t, s)
	}},
	{PatternOffHours, 10, func(t *gigtask.Task, _ *history.Snapshot, loc *time.Location) bool {
		h := t.CompletedAt.In(loc).Hour()
		return h >= offHoursStart && h < offHoursEnd
	}},
	{PatternNewAccountHighValue, 20, func(t *gigtask.Task, s *history.Snapshot, _ *time.Location) bool {
		return s.AccountAge < newAccountMaxAge && t.AmountCents > newAccountAmountCents
	}},
	{PatternReputationDisputes, 20, func(_ *gigtask.Task, s *history.Snapshot, _ *time.Location) bool {
		return s.ReputationScore < lowReputationThreshold && s.DisputeCount > disputeThreshold
	}},
	{PatternLowCompletion, 15, func(_ *gigtask.Task, s *history.Snapshot, _ *time.Location) bool {
		return s.CompletionRate() < lowCompletionRate
	}},
	{PatternDurationAnomaly, 15, func(t *gigtask.Task, s *history.Snapshot, _ *time.Location) bool {
		return durationAnomaly(t, s)
	}},
}

// Detect evaluates every pattern against a single task and the worker's
// history snapshot. It is a pure function: no I/O, no stored state. The
// location resolves "local time" for the off-hours window, normally the
// platform's configured timezone.
func Detect(t *gigtask.Task, s *history.Snapshot, loc *time.Location) Result {
	if loc == nil {
		loc = time.UTC
	}

	res := Result{Matches: []Match{}}
	for _, c := range checks {
		if c.hit(t, s, loc) {
			res.Score += c.points
			res.Matches = append(res.Matches, Match{Pattern: c.name, Points: c.points})
		}
	}
	res.Level = levelFor(res.Score)
	return res
}

func levelFor(score int) Level {
	switch {
	case score >= 50:
		return LevelHigh
	case score >= 25:
		return LevelMedium
	default:
		return LevelLow
	}
}

func sameCoordinates(aLat, aLng, bLat, bLng float64) bool {
	// ~11m resolution; close enough to call two reports the same spot.
	const eps = 1e-4
	return math.Abs(aLat-bLat) < eps && math.Abs(aLng-bLng) < eps
}

func locationFarming(t *gigtask.Task, s *history.Snapshot) bool {
	if !t.HasGPS() {
		return false
	}
	var same int
	for _, fp := range s.RecentFingerprints {
		if fp.GPSLat == nil || fp.GPSLng == nil {
			continue
		}
		if sameCoordinates(*t.GPSLat, *t.GPSLng, *fp.GPSLat, *fp.GPSLng) {
			same++
		}
	}
	return same > locationFarmThreshold
}

func durationAnomaly(t *gigtask.Task, s *history.Snapshot) bool {
	if t.DurationMinutes == nil {
		return false
	}

	var sum, n int
	for _, fp := range s.RecentFingerprints {
		if fp.DurationMinutes != nil {
			sum += *fp.DurationMinutes
			n++
		}
	}
	if n < durationMinSample {
		return false
	}

	avg := float64(sum) / float64(n)
	return float64(*t.DurationMinutes) < durationAnomalyRatio*avg
}
