package verification

import (
	"context"
	"encoding/json"
	"time"

	"gigpay-backend/pkg/config"
	"gigpay-backend/pkg/repository"
	"gigpay-backend/services/audit"
	"gigpay-backend/services/fraud"
	"gigpay-backend/services/gigtask"
	"gigpay-backend/services/history"
	"gigpay-backend/services/platform"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var verdictCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{Name: "gigpay_verification_verdicts_total"},
	[]string{"verdict"},
)

// Verdict gating thresholds.
const (
	rejectBelowConfidence  = 50
	flagConfidence         = 70
	autoApproveConfidence  = 90
	autoApproveAmountCents = 200_00
)

// Engine runs the three-stage verification pipeline: fast-path validation,
// fraud detection, confidence scoring. Every verdict is persisted as a
// VerificationResult and an audit entry, regardless of outcome.
type Engine struct {
	node      *snowflake.Node
	history   *history.Aggregator
	platforms *platform.Service
	tasks     *gigtask.Service
	audit     audit.Recorder
	results   repository.Repository[VerificationResult]

	heuristic Scorer
	external  Scorer
}

type EngineParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Config    *config.Config
	History   *history.Aggregator
	Platforms *platform.Service
	Tasks     *gigtask.Service
	Audit     audit.Recorder
}

func NewEngine(p EngineParams) *Engine {
	e := &Engine{
		node:      p.Node,
		history:   p.History,
		platforms: p.Platforms,
		tasks:     p.Tasks,
		audit:     p.Audit,
		results:   repository.ProvideStore[VerificationResult](p.DB),
		heuristic: HeuristicScorer{},
	}
	if url := p.Config.Verification.ScorerURL; url != "" {
		e.external = NewExternalScorer(url, p.Config.Verification.ScorerTimeout)
	}
	return e
}

// Verify evaluates the task and persists the verdict. The returned result is
// the stored row; callers gate payment on result.Verdict.
func (e *Engine) Verify(ctx context.Context, t *gigtask.Task) (*VerificationResult, error) {
	started := time.Now()

	if err := FastPathValidate(t, started); err != nil {
		return e.record(ctx, t, &VerificationResult{
			Verdict:       VerdictReject,
			FailureReason: err.Error(),
			FraudLevel:    string(fraud.LevelLow),
			Method:        MethodHeuristic,
		}, started)
	}

	snap, err := e.history.Snapshot(ctx, t.WorkerID)
	if err != nil {
		return nil, err
	}

	loc := time.UTC
	if p, perr := e.platforms.Get(ctx, t.PlatformID); perr == nil {
		loc = p.Location()
	}

	fraudRes := fraud.Detect(t, snap, loc)
	confidence, method := e.score(ctx, t, snap)
	verdict := resolveVerdict(fraudRes, confidence, t.AmountCents)

	matched, _ := json.Marshal(fraudRes.Matches)
	return e.record(ctx, t, &VerificationResult{
		Verdict:         verdict,
		Confidence:      confidence,
		FraudScore:      fraudRes.Score,
		FraudLevel:      string(fraudRes.Level),
		MatchedPatterns: datatypes.JSON(matched),
		Method:          method,
	}, started)
}

// score prefers the external model when configured, degrading to the
// heuristic on any error.
func (e *Engine) score(ctx context.Context, t *gigtask.Task, snap *history.Snapshot) (int, Method) {
	if e.external != nil {
		confidence, err := e.external.Score(ctx, t, snap)
		if err == nil {
			return confidence, e.external.Method()
		}
		zap.L().Warn("external scorer unavailable, falling back to heuristic",
			zap.String("task_id", t.ID),
			zap.Error(err),
		)
	}

	confidence, _ := e.heuristic.Score(ctx, t, snap)
	return confidence, e.heuristic.Method()
}

// resolveVerdict is evaluated in order; the first match wins. A hard fraud
// match (velocity) rejects outright, no confidence score can rescue it.
func resolveVerdict(f fraud.Result, confidence int, amountCents int64) Verdict {
	switch {
	case f.HardMatch() || f.Level == fraud.LevelHigh || confidence < rejectBelowConfidence:
		return VerdictReject
	case confidence >= autoApproveConfidence && f.Level == fraud.LevelLow && amountCents <= autoApproveAmountCents:
		return VerdictApprove
	case confidence >= flagConfidence:
		return VerdictFlag
	default:
		return VerdictReject
	}
}

func (e *Engine) record(ctx context.Context, t *gigtask.Task, res *VerificationResult, started time.Time) (*VerificationResult, error) {
	res.ID = e.node.Generate().String()
	res.TaskID = t.ID
	res.WorkerID = t.WorkerID
	res.LatencyMS = time.Since(started).Milliseconds()

	if err := e.results.Create(ctx, res); err != nil {
		return nil, err
	}
	verdictCounter.WithLabelValues(string(res.Verdict)).Inc()

	if err := e.tasks.SetVerificationStatus(ctx, t.ID, statusFor(res.Verdict)); err != nil {
		zap.L().Error("failed to update task verification status",
			zap.String("task_id", t.ID),
			zap.Error(err),
		)
	}

	e.audit.Record(ctx, audit.Entry{
		Actor:        "verification-engine",
		Action:       audit.ActionVerificationVerdict,
		ResourceType: audit.ResourceTask,
		ResourceID:   t.ID,
		Success:      res.Verdict != VerdictReject,
		Metadata: map[string]any{
			"verdict":          res.Verdict,
			"confidence":       res.Confidence,
			"fraud_score":      res.FraudScore,
			"fraud_level":      res.FraudLevel,
			"matched_patterns": json.RawMessage(res.MatchedPatterns),
			"failure_reason":   res.FailureReason,
			"method":           res.Method,
			"latency_ms":       res.LatencyMS,
		},
	})

	return res, nil
}

func statusFor(v Verdict) gigtask.VerificationStatus {
	switch v {
	case VerdictApprove:
		return gigtask.VerificationStatusApproved
	case VerdictFlag:
		return gigtask.VerificationStatusFlagged
	default:
		return gigtask.VerificationStatusRejected
	}
}
