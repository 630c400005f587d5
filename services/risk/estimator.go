package risk

import (
	"context"
	"math"
	"time"

	"gigpay-backend/pkg/cache"
	"gigpay-backend/pkg/config"
	"gigpay-backend/pkg/rediskey"
	"gigpay-backend/services/history"
	"gigpay-backend/services/worker"

	"go.uber.org/fx"
)

type FactorBreakdown struct {
	Reputation  int `json:"reputation"`
	Maturity    int `json:"maturity"`
	Volume      int `json:"volume"`
	Performance int `json:"performance"`
	Disputes    int `json:"disputes"`
	Adjustments int `json:"adjustments"`
}

// RiskScoreOutput is derived, cached state; not authoritative, recomputed
// from task/reputation/loan history on demand.
type RiskScoreOutput struct {
	WorkerID          string              `json:"workerId"`
	Score             int                 `json:"score"`
	Eligible          bool                `json:"eligible"`
	IneligibleReasons []string            `json:"ineligibleReasons,omitempty"`
	MaxAdvanceCents   int64               `json:"maxAdvanceCents"`
	FeeRateBps        int                 `json:"feeRateBps"`
	Factors           FactorBreakdown     `json:"factors"`
	Forecast          *EarningsPrediction `json:"forecast"`
	GeneratedAt       time.Time           `json:"generatedAt"`
}

const (
	riskCacheTTL = 5 * time.Minute

	// Component weights, expressed as the maximum points each contributes
	// to the 0-1000 score.
	reputationWeight  = 300
	maturityWeight    = 150
	volumeWeight      = 250
	performanceWeight = 200
	disputeWeight     = 100
	adjustmentBound   = 50

	maturityFullDays = 90
	volumeFullTasks  = 100
	disputeFullCount = 5

	eligibleMinScore       = 600
	eligibleMinAgeDays     = 7
	eligibleMinCompletion  = 0.80
	eligibleMinForecastCts = 50_00

	feeRateTopBps = 200
	feeRateMidBps = 350
	feeRateLowBps = 500
)

// Estimator produces the creditworthiness score and the advance eligibility
// decision. It shares the history aggregator and caching discipline with the
// forecaster but is otherwise independent of it.
type Estimator struct {
	cfg        *config.Config
	history    *history.Aggregator
	workers    *worker.Service
	forecaster *Forecaster
	cache      *cache.TTLCache[*RiskScoreOutput]
}

type EstimatorParams struct {
	fx.In
	Config     *config.Config
	History    *history.Aggregator
	Workers    *worker.Service
	Forecaster *Forecaster
}

func NewEstimator(p EstimatorParams) *Estimator {
	return &Estimator{
		cfg:        p.Config,
		history:    p.History,
		workers:    p.Workers,
		forecaster: p.Forecaster,
		cache:      cache.New[*RiskScoreOutput]("risk_score", riskCacheTTL),
	}
}

func (e *Estimator) Assess(ctx context.Context, workerID string) (*RiskScoreOutput, error) {
	key := rediskey.NamespaceKey(rediskey.WorkerRiskPrefix, workerID)
	return e.cache.GetOrLoad(ctx, key, func(ctx context.Context) (*RiskScoreOutput, error) {
		return e.assess(ctx, workerID)
	})
}

// Invalidate drops the cached risk and forecast outputs after a task
// completion or loan repayment changed the underlying history.
func (e *Estimator) Invalidate(workerID string) {
	e.cache.Invalidate(rediskey.NamespaceKey(rediskey.WorkerRiskPrefix, workerID))
	e.forecaster.Invalidate(workerID)
	e.history.Invalidate(workerID)
}

func (e *Estimator) assess(ctx context.Context, workerID string) (*RiskScoreOutput, error) {
	snap, err := e.history.Snapshot(ctx, workerID)
	if err != nil {
		return nil, err
	}

	loans, err := e.workers.Loans(ctx, workerID)
	if err != nil {
		return nil, err
	}

	forecast, err := e.forecaster.Predict(ctx, workerID)
	if err != nil {
		return nil, err
	}

	factors := scoreFactors(snap, loans)
	score := clampScore(factors.Reputation + factors.Maturity + factors.Volume +
		factors.Performance + factors.Disputes + factors.Adjustments)

	out := &RiskScoreOutput{
		WorkerID:    workerID,
		Score:       score,
		FeeRateBps:  feeRateFor(score),
		Factors:     factors,
		Forecast:    forecast,
		GeneratedAt: time.Now(),
	}

	activeLoans := 0
	for _, l := range loans {
		if l.Status == worker.LoanStatusActive {
			activeLoans++
		}
	}

	out.IneligibleReasons = eligibilityFailures(score, activeLoans, snap, forecast)
	out.Eligible = len(out.IneligibleReasons) == 0
	if out.Eligible {
		out.MaxAdvanceCents = e.maxAdvance(score, snap, forecast)
	}

	return out, nil
}

func scoreFactors(snap *history.Snapshot, loans []*worker.Loan) FactorBreakdown {
	f := FactorBreakdown{
		Reputation:  int(math.Round(float64(snap.ReputationScore) / float64(worker.ReputationMax) * reputationWeight)),
		Maturity:    int(math.Round(ratio(float64(snap.AccountAgeDays()), maturityFullDays) * maturityWeight)),
		Volume:      int(math.Round(ratio(float64(snap.CompletedCount), volumeFullTasks) * volumeWeight)),
		Performance: int(math.Round(snap.CompletionRate() * performanceWeight)),
		Disputes:    int(math.Round((1 - ratio(float64(snap.DisputeCount), disputeFullCount)) * disputeWeight)),
	}

	// Bounded bonuses: repaid loans show repayment history, a steady daily
	// earnings stream shows consistency.
	var adj int
	var repaid int
	for _, l := range loans {
		if l.Status == worker.LoanStatusRepaid {
			repaid++
		}
	}
	if repaid > 0 {
		adj += 25
	}

	if snap.AccountAgeDays() >= minHistoryDays {
		cv := coefficientOfVariation(lastN(snap.DailyEarnings, trendWindow))
		switch {
		case cv > 0 && cv < 0.5:
			adj += 25
		case cv > 1.5:
			adj -= 25
		}
	}

	if adj > adjustmentBound {
		adj = adjustmentBound
	}
	if adj < -adjustmentBound {
		adj = -adjustmentBound
	}
	f.Adjustments = adj
	return f
}

func eligibilityFailures(score, activeLoans int, snap *history.Snapshot, forecast *EarningsPrediction) []string {
	var reasons []string
	if score < eligibleMinScore {
		reasons = append(reasons, "risk score below 600")
	}
	if activeLoans > 0 {
		reasons = append(reasons, "worker has an active loan")
	}
	if snap.AccountAgeDays() < eligibleMinAgeDays {
		reasons = append(reasons, "account younger than 7 days")
	}
	if snap.CompletionRate() < eligibleMinCompletion {
		reasons = append(reasons, "completion rate below 80%")
	}
	if forecast.TotalCents < eligibleMinForecastCts {
		reasons = append(reasons, "7-day earnings forecast below $50")
	}
	return reasons
}

// maxAdvance takes the smaller of a score-scaled share of trailing earnings
// and a confidence-scaled share of the forecast, under the configured hard
// cap. Both shares run 50% to 80%.
func (e *Estimator) maxAdvance(score int, snap *history.Snapshot, forecast *EarningsPrediction) int64 {
	scoreScale := 0.5 + 0.3*ratio(float64(score-eligibleMinScore), float64(worker.ReputationMax-eligibleMinScore))
	riskCap := int64(math.Round(float64(snap.Trailing30dEarningsCents) * scoreScale))

	forecastCap := int64(math.Round(float64(forecast.TotalCents) * confidenceScale(forecast.Confidence)))

	advance := riskCap
	if forecastCap < advance {
		advance = forecastCap
	}
	if hardCap := e.cfg.Payout.AdvanceCapCents; advance > hardCap {
		advance = hardCap
	}
	return advance
}

func confidenceScale(tier ConfidenceTier) float64 {
	switch tier {
	case ConfidenceHigh:
		return 0.8
	case ConfidenceMedium:
		return 0.65
	default:
		return 0.5
	}
}

func feeRateFor(score int) int {
	switch {
	case score >= 800:
		return feeRateTopBps
	case score >= eligibleMinScore:
		return feeRateMidBps
	default:
		return feeRateLowBps
	}
}

func ratio(v, full float64) float64 {
	if full <= 0 {
		return 0
	}
	r := v / full
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > worker.ReputationMax {
		return worker.ReputationMax
	}
	return s
}
