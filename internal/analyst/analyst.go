// Package analyst scores leads against the ideal customer profile with a
// reasoning model.
package analyst

import (
	"context"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/pharmhunter/internal/llm"
	"github.com/sells-group/pharmhunter/internal/model"
	"github.com/sells-group/pharmhunter/internal/resilience"
)

const (
	// DefaultQualifyThreshold is the ICP score at which a lead qualifies.
	DefaultQualifyThreshold = 75
	// DefaultConcurrency bounds parallel scoring calls.
	DefaultConcurrency = 4

	defaultSignal = "No specific trigger identified"
	defaultOffer  = "Imaging Readiness Sprint"
)

// Analyst scores candidates.
type Analyst struct {
	llm         llm.Completer
	retry       resilience.RetryConfig
	icp         string
	threshold   int
	concurrency int
	now         func() time.Time
}

// Option configures an Analyst.
type Option func(*Analyst)

// WithICP replaces the built-in ICP definition. Blank text is ignored.
func WithICP(icp string) Option {
	return func(a *Analyst) {
		if strings.TrimSpace(icp) != "" {
			a.icp = icp
		}
	}
}

// WithThreshold sets the qualifying score.
func WithThreshold(t int) Option {
	return func(a *Analyst) {
		if t > 0 && t <= 100 {
			a.threshold = t
		}
	}
}

// WithConcurrency bounds parallel scoring in ScoreAll.
func WithConcurrency(n int) Option {
	return func(a *Analyst) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithRetry sets the retry policy for each scoring call.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(a *Analyst) { a.retry = cfg }
}

// WithClock overrides time.Now (for testing).
func WithClock(now func() time.Time) Option {
	return func(a *Analyst) { a.now = now }
}

// New creates an Analyst backed by c.
func New(c llm.Completer, opts ...Option) *Analyst {
	a := &Analyst{
		llm:         c,
		retry:       resilience.DefaultRetryConfig(),
		icp:         DefaultICP,
		threshold:   DefaultQualifyThreshold,
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.retry.ShouldRetry = resilience.RetryAll
	if a.retry.OnRetry == nil {
		a.retry.OnRetry = resilience.RetryLogger("llm", "score")
	}
	return a
}

// Threshold returns the qualifying score in use.
func (a *Analyst) Threshold() int { return a.threshold }

type breakdownReply struct {
	BaseCompanyFit     float64 `json:"base_company_fit"`
	PhaseMatch         float64 `json:"phase_match"`
	ImagingMateriality float64 `json:"imaging_materiality"`
	WhyNowTrigger      float64 `json:"why_now_trigger"`
	ComplexityBonus    float64 `json:"complexity_bonus"`
}

type scoreReply struct {
	ICPScore               *float64       `json:"icp_score"`
	Breakdown              breakdownReply `json:"score_breakdown"`
	Explanation            string         `json:"score_explanation"`
	Qualified              *bool          `json:"is_qualified"`
	DisqualificationReason *string        `json:"disqualification_reason"`
	BuyingSignal           string         `json:"buying_signal"`
	RecommendedOffer       string         `json:"recommended_offer"`
	ReasoningChain         string         `json:"reasoning_chain"`
}

// Score rates one candidate. The model's own qualified verdict wins when it
// gives one; otherwise the lead qualifies at or above the threshold.
func (a *Analyst) Score(ctx context.Context, c model.Candidate) (*model.Scoring, error) {
	ctx, span := otel.Tracer("github.com/sells-group/pharmhunter/internal/analyst").
		Start(ctx, "analyst.score")
	defer span.End()
	span.SetAttributes(attribute.String("company", c.CompanyName))

	system, user := buildPrompts(c, a.icp, a.threshold)
	reply, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (scoreReply, error) {
		text, err := a.llm.Complete(ctx, llm.Prompt{
			System:      system,
			User:        user,
			Tier:        llm.Reasoning,
			Temperature: 0.3,
			Stage:       "scoring",
		})
		if err != nil {
			return scoreReply{}, err
		}
		var r scoreReply
		if err := llm.DecodeJSON(text, &r); err != nil {
			return scoreReply{}, err
		}
		return r, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, eris.Wrapf(err, "analyst: score %s", c.CompanyName)
	}

	s := a.toScoring(reply)
	span.SetAttributes(attribute.Int("icp_score", s.ICPScore), attribute.Bool("qualified", s.Qualified))
	return s, nil
}

func (a *Analyst) toScoring(r scoreReply) *model.Scoring {
	b := model.ScoreBreakdown{
		BaseCompanyFit:     clamp(r.Breakdown.BaseCompanyFit, 40),
		PhaseMatch:         clamp(r.Breakdown.PhaseMatch, 20),
		ImagingMateriality: clamp(r.Breakdown.ImagingMateriality, 20),
		WhyNowTrigger:      clamp(r.Breakdown.WhyNowTrigger, 15),
		ComplexityBonus:    clamp(r.Breakdown.ComplexityBonus, 5),
	}

	score := b.Total()
	if r.ICPScore != nil {
		score = clamp(*r.ICPScore, 100)
	}

	qualified := score >= a.threshold
	if r.Qualified != nil {
		qualified = *r.Qualified
	}

	s := &model.Scoring{
		ICPScore:         score,
		Qualified:        qualified,
		BuyingSignal:     firstNonEmpty(r.BuyingSignal, defaultSignal),
		RecommendedOffer: firstNonEmpty(r.RecommendedOffer, defaultOffer),
		ReasoningChain:   r.ReasoningChain,
		Breakdown:        b,
		Explanation:      r.Explanation,
		ScoredAt:         a.now(),
	}
	if r.DisqualificationReason != nil && !qualified {
		s.DisqualificationReason = *r.DisqualificationReason
	}
	return s
}

// failed is the scoring recorded when a lead could not be analysed.
func (a *Analyst) failed(err error) *model.Scoring {
	return &model.Scoring{
		DisqualificationReason: "Analysis error: " + err.Error(),
		ReasoningChain:         "Analysis failed: " + err.Error(),
		Explanation:            "Analysis failed: " + err.Error(),
		ScoredAt:               a.now(),
	}
}

// ScoreAll scores every lead in parallel, preserving order. A lead whose
// scoring fails is kept with a zero, unqualified score. Only context
// cancellation aborts the batch.
func (a *Analyst) ScoreAll(ctx context.Context, leads []model.Lead) ([]model.Lead, error) {
	out := make([]model.Lead, len(leads))
	copy(out, leads)
	if len(out) == 0 {
		return out, nil
	}

	log := zap.L().With(zap.Int("leads", len(leads)))
	log.Info("analyst: scoring leads", zap.Int("concurrency", a.concurrency))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	var failed atomic.Int64
	for i := range out {
		g.Go(func() error {
			s, err := a.Score(gctx, out[i].Candidate)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				zap.L().Warn("analyst: scoring failed",
					zap.String("company", out[i].CompanyName),
					zap.Error(err),
				)
				s = a.failed(err)
			}
			out[i].Scoring = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, eris.Wrap(err, "analyst: score all")
	}

	qualified := 0
	for _, l := range out {
		if l.IsQualified() {
			qualified++
		}
	}
	log.Info("analyst: scoring complete",
		zap.Int("qualified", qualified),
		zap.Int64("failed", failed.Load()),
	)
	return out, nil
}

func clamp(v float64, hi int) int {
	n := int(math.Round(v))
	if n < 0 {
		return 0
	}
	if n > hi {
		return hi
	}
	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
