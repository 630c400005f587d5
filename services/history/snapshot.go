package history

import "time"

// TaskFingerprint is the minimal shape of a recent task used for pattern
// comparison: amount, location, and how long it took.
type TaskFingerprint struct {
	AmountCents     int64
	GPSLat          *float64
	GPSLng          *float64
	DurationMinutes *int
	CompletedAt     time.Time
}

type DailyEarning struct {
	Day   time.Time
	Cents int64
}

// Snapshot is a derived rollup of a worker's recent behavior. It is rebuilt
// on demand from stored tasks, reputation events and loans, and cached
// briefly; it is never persisted as its own entity.
type Snapshot struct {
	WorkerID        string
	ReputationScore int
	AccountAge      time.Duration
	TasksLast24h    int64
	AvgAmountCents  int64
	CompletedCount  int64
	CancelledCount  int64
	DisputeCount    int64

	// Trailing30dEarningsCents sums completed-task amounts over the last 30
	// days. DailyEarnings holds the same window broken down per day, oldest
	// first, with zero-filled gaps.
	Trailing30dEarningsCents int64
	DailyEarnings            []DailyEarning

	RecentFingerprints []TaskFingerprint
	GeneratedAt        time.Time
}

// CompletionRate is completed / (completed + cancelled). A worker with no
// finished tasks has no evidence either way, so the rate defaults to 1.
func (s *Snapshot) CompletionRate() float64 {
	total := s.CompletedCount + s.CancelledCount
	if total == 0 {
		return 1
	}
	return float64(s.CompletedCount) / float64(total)
}

func (s *Snapshot) AccountAgeDays() int {
	return int(s.AccountAge.Hours() / 24)
}
