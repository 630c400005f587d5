package fraud

import (
	"testing"
	"time"

	"gigpay-backend/services/gigtask"
	"gigpay-backend/services/history"

	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func cleanSnapshot() *history.Snapshot {
	return &history.Snapshot{
		ReputationScore: 800,
		AccountAge:      90 * 24 * time.Hour,
		TasksLast24h:    5,
		AvgAmountCents:  25_00,
		CompletedCount:  100,
		CancelledCount:  2,
		DisputeCount:    0,
	}
}

func baseTask() *gigtask.Task {
	return &gigtask.Task{
		ID:          "task-1",
		WorkerID:    "worker-1",
		AmountCents: 25_00,
		CompletedAt: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
	}
}

func TestDetectCleanTask(t *testing.T) {
	res := Detect(baseTask(), cleanSnapshot(), time.UTC)
	require.Equal(t, 0, res.Score)
	require.Equal(t, LevelLow, res.Level)
	require.Empty(t, res.Matches)
}

func TestDetectVelocity(t *testing.T) {
	snap := cleanSnapshot()
	snap.TasksLast24h = 51

	res := Detect(baseTask(), snap, time.UTC)
	require.Equal(t, 30, res.Score)
	require.Contains(t, res.Matched(), PatternVelocity)

	snap.TasksLast24h = 50
	res = Detect(baseTask(), snap, time.UTC)
	require.NotContains(t, res.Matched(), PatternVelocity)
}

func TestVelocityIsHardMatch(t *testing.T) {
	snap := cleanSnapshot()
	snap.TasksLast24h = 51

	res := Detect(baseTask(), snap, time.UTC)
	require.True(t, res.HardMatch())

	// Other patterns never disqualify on their own.
	task := baseTask()
	task.AmountCents = 200_00 // amount spike, 25 points
	res = Detect(task, cleanSnapshot(), time.UTC)
	require.Contains(t, res.Matched(), PatternAmountSpike)
	require.False(t, res.HardMatch())
}

func TestDetectAmountSpike(t *testing.T) {
	task := baseTask()
	task.AmountCents = 76_00 // avg is $25, spike needs > 3x

	res := Detect(task, cleanSnapshot(), time.UTC)
	require.Contains(t, res.Matched(), PatternAmountSpike)

	task.AmountCents = 75_00
	res = Detect(task, cleanSnapshot(), time.UTC)
	require.NotContains(t, res.Matched(), PatternAmountSpike)
}

func TestDetectAmountSpikeNoHistory(t *testing.T) {
	snap := cleanSnapshot()
	snap.AvgAmountCents = 0

	task := baseTask()
	task.AmountCents = 900_00

	res := Detect(task, snap, time.UTC)
	require.NotContains(t, res.Matched(), PatternAmountSpike)
}

func TestDetectLocationFarming(t *testing.T) {
	task := baseTask()
	task.GPSLat = ptr(40.7128)
	task.GPSLng = ptr(-74.0060)

	snap := cleanSnapshot()
	for i := 0; i < 11; i++ {
		snap.RecentFingerprints = append(snap.RecentFingerprints, history.TaskFingerprint{
			AmountCents: 25_00,
			GPSLat:      ptr(40.7128),
			GPSLng:      ptr(-74.0060),
		})
	}

	res := Detect(task, snap, time.UTC)
	require.Contains(t, res.Matched(), PatternLocationFarming)

	// 10 shared spots is still under the bar.
	snap.RecentFingerprints = snap.RecentFingerprints[:10]
	res = Detect(task, snap, time.UTC)
	require.NotContains(t, res.Matched(), PatternLocationFarming)
}

func TestDetectOffHours(t *testing.T) {
	task := baseTask()
	task.CompletedAt = time.Date(2026, 3, 10, 3, 30, 0, 0, time.UTC)

	res := Detect(task, cleanSnapshot(), time.UTC)
	require.Contains(t, res.Matched(), PatternOffHours)

	task.CompletedAt = time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC)
	res = Detect(task, cleanSnapshot(), time.UTC)
	require.NotContains(t, res.Matched(), PatternOffHours)
}

func TestDetectNewAccountHighValue(t *testing.T) {
	snap := cleanSnapshot()
	snap.AccountAge = 3 * 24 * time.Hour

	task := baseTask()
	task.AmountCents = 150_00

	res := Detect(task, snap, time.UTC)
	require.Contains(t, res.Matched(), PatternNewAccountHighValue)

	task.AmountCents = 100_00
	res = Detect(task, snap, time.UTC)
	require.NotContains(t, res.Matched(), PatternNewAccountHighValue)
}

func TestDetectReputationDisputes(t *testing.T) {
	snap := cleanSnapshot()
	snap.ReputationScore = 400
	snap.DisputeCount = 3

	res := Detect(baseTask(), snap, time.UTC)
	require.Contains(t, res.Matched(), PatternReputationDisputes)

	snap.DisputeCount = 2
	res = Detect(baseTask(), snap, time.UTC)
	require.NotContains(t, res.Matched(), PatternReputationDisputes)
}

func TestDetectLowCompletion(t *testing.T) {
	snap := cleanSnapshot()
	snap.CompletedCount = 70
	snap.CancelledCount = 30

	res := Detect(baseTask(), snap, time.UTC)
	require.Contains(t, res.Matched(), PatternLowCompletion)
}

func TestDetectDurationAnomaly(t *testing.T) {
	snap := cleanSnapshot()
	for i := 0; i < 5; i++ {
		snap.RecentFingerprints = append(snap.RecentFingerprints, history.TaskFingerprint{
			DurationMinutes: ptr(60),
		})
	}

	task := baseTask()
	task.DurationMinutes = ptr(10)

	res := Detect(task, snap, time.UTC)
	require.Contains(t, res.Matched(), PatternDurationAnomaly)

	task.DurationMinutes = ptr(18) // exactly 30% of 60
	res = Detect(task, snap, time.UTC)
	require.NotContains(t, res.Matched(), PatternDurationAnomaly)
}

func TestDetectAdditiveScoring(t *testing.T) {
	snap := cleanSnapshot()
	snap.TasksLast24h = 60           // velocity, 30
	snap.ReputationScore = 300       // with disputes below, 20
	snap.DisputeCount = 5            //
	snap.CompletedCount = 50         // low completion, 15
	snap.CancelledCount = 50         //

	res := Detect(baseTask(), snap, time.UTC)
	require.Equal(t, 65, res.Score)
	require.Equal(t, LevelHigh, res.Level)
	require.Len(t, res.Matches, 3)
}

func TestLevelBoundaries(t *testing.T) {
	require.Equal(t, LevelLow, levelFor(0))
	require.Equal(t, LevelLow, levelFor(24))
	require.Equal(t, LevelMedium, levelFor(25))
	require.Equal(t, LevelMedium, levelFor(49))
	require.Equal(t, LevelHigh, levelFor(50))
	require.Equal(t, LevelHigh, levelFor(160))
}
