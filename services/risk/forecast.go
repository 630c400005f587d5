package risk

import (
	"context"
	"math"
	"time"

	"gigpay-backend/pkg/cache"
	"gigpay-backend/pkg/rediskey"
	"gigpay-backend/services/history"

	"go.uber.org/fx"
)

type ConfidenceTier string

const (
	ConfidenceLow    ConfidenceTier = "low"
	ConfidenceMedium ConfidenceTier = "medium"
	ConfidenceHigh   ConfidenceTier = "high"
)

type DayForecast struct {
	Day       time.Time `json:"day"`
	Cents     int64     `json:"cents"`
	LowCents  int64     `json:"lowCents"`
	HighCents int64     `json:"highCents"`
}

// EarningsPrediction is derived, cached state; safe to discard and regenerate
// from task history at any time.
type EarningsPrediction struct {
	WorkerID    string         `json:"workerId"`
	TotalCents  int64          `json:"totalCents"`
	Daily       []DayForecast  `json:"daily"`
	Confidence  ConfidenceTier `json:"confidence"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

const (
	forecastDays     = 7
	forecastCacheTTL = 24 * time.Hour

	trendWindow      = 14
	seasonalWeight   = 0.6
	trendWeight      = 0.4
	trendDamping     = 0.9
	minHistoryDays   = 14
	highTierMinCV    = 0.5
	mediumTierMinCV  = 1.0
	highTierMinDays  = 20
)

// Forecaster predicts the next seven days of earnings by blending day-of-week
// seasonal averages with a damped short-window trend.
type Forecaster struct {
	history *history.Aggregator
	cache   *cache.TTLCache[*EarningsPrediction]
}

type ForecasterParams struct {
	fx.In
	History *history.Aggregator
}

func NewForecaster(p ForecasterParams) *Forecaster {
	return &Forecaster{
		history: p.History,
		cache:   cache.New[*EarningsPrediction]("earnings_forecast", forecastCacheTTL),
	}
}

func (f *Forecaster) Predict(ctx context.Context, workerID string) (*EarningsPrediction, error) {
	key := rediskey.NamespaceKey(rediskey.WorkerForecastPrefix, workerID)
	return f.cache.GetOrLoad(ctx, key, func(ctx context.Context) (*EarningsPrediction, error) {
		snap, err := f.history.Snapshot(ctx, workerID)
		if err != nil {
			return nil, err
		}
		return forecastFromSnapshot(snap), nil
	})
}

func (f *Forecaster) Invalidate(workerID string) {
	f.cache.Invalidate(rediskey.NamespaceKey(rediskey.WorkerForecastPrefix, workerID))
}

func forecastFromSnapshot(snap *history.Snapshot) *EarningsPrediction {
	now := snap.GeneratedAt
	if now.IsZero() {
		now = time.Now()
	}

	pred := &EarningsPrediction{
		WorkerID:    snap.WorkerID,
		Confidence:  ConfidenceLow,
		GeneratedAt: now,
	}

	// No completed tasks at all: conservative zero.
	if snap.CompletedCount == 0 || len(snap.DailyEarnings) == 0 {
		pred.Daily = zeroDays(now)
		return pred
	}

	seasonal := weekdayAverages(snap.DailyEarnings)
	recent := lastN(snap.DailyEarnings, trendWindow)
	mean, slope := linearTrend(recent)
	slope *= trendDamping

	cv := coefficientOfVariation(recent)
	band := cv
	if band > 1 {
		band = 1
	}

	pred.Daily = make([]DayForecast, 0, forecastDays)
	for i := 1; i <= forecastDays; i++ {
		day := now.AddDate(0, 0, i)
		trendVal := mean + slope*float64(i)
		blended := seasonalWeight*seasonal[day.Weekday()] + trendWeight*trendVal
		if blended < 0 {
			blended = 0
		}

		cents := int64(math.Round(blended))
		low := int64(math.Round(blended * (1 - band)))
		high := int64(math.Round(blended * (1 + band)))
		if low < 0 {
			low = 0
		}

		pred.Daily = append(pred.Daily, DayForecast{Day: day, Cents: cents, LowCents: low, HighCents: high})
		pred.TotalCents += cents
	}

	pred.Confidence = confidenceTier(snap, cv)
	return pred
}

// confidenceTier is driven by data volume and earnings variability. Under 14
// days of history the tier is forced to low no matter how stable the numbers
// look.
func confidenceTier(snap *history.Snapshot, cv float64) ConfidenceTier {
	if snap.AccountAgeDays() < minHistoryDays {
		return ConfidenceLow
	}

	var activeDays int
	for _, d := range snap.DailyEarnings {
		if d.Cents > 0 {
			activeDays++
		}
	}

	switch {
	case cv < highTierMinCV && activeDays >= highTierMinDays:
		return ConfidenceHigh
	case cv < mediumTierMinCV:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func zeroDays(now time.Time) []DayForecast {
	out := make([]DayForecast, 0, forecastDays)
	for i := 1; i <= forecastDays; i++ {
		out = append(out, DayForecast{Day: now.AddDate(0, 0, i)})
	}
	return out
}

func weekdayAverages(days []history.DailyEarning) map[time.Weekday]float64 {
	sums := make(map[time.Weekday]float64)
	counts := make(map[time.Weekday]int)
	for _, d := range days {
		wd := d.Day.Weekday()
		sums[wd] += float64(d.Cents)
		counts[wd]++
	}

	out := make(map[time.Weekday]float64, len(sums))
	for wd, sum := range sums {
		out[wd] = sum / float64(counts[wd])
	}
	return out
}

func lastN(days []history.DailyEarning, n int) []history.DailyEarning {
	if len(days) <= n {
		return days
	}
	return days[len(days)-n:]
}

// linearTrend fits cents = mean + slope*(i - center) by least squares over the
// window, returning the window mean and the per-day slope.
func linearTrend(days []history.DailyEarning) (mean, slope float64) {
	n := float64(len(days))
	if n == 0 {
		return 0, 0
	}

	var sum float64
	for _, d := range days {
		sum += float64(d.Cents)
	}
	mean = sum / n

	center := (n - 1) / 2
	var num, den float64
	for i, d := range days {
		x := float64(i) - center
		num += x * (float64(d.Cents) - mean)
		den += x * x
	}
	if den == 0 {
		return mean, 0
	}
	return mean, num / den
}

func coefficientOfVariation(days []history.DailyEarning) float64 {
	n := float64(len(days))
	if n == 0 {
		return 0
	}

	var sum float64
	for _, d := range days {
		sum += float64(d.Cents)
	}
	mean := sum / n
	if mean == 0 {
		return 0
	}

	var ss float64
	for _, d := range days {
		diff := float64(d.Cents) - mean
		ss += diff * diff
	}
	return math.Sqrt(ss/n) / mean
}
