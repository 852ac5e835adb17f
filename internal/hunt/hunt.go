// Package hunt runs the full lead pipeline: discovery, ICP scoring,
// outreach drafting and persistence into company history.
package hunt

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/sells-group/pharmhunter/internal/discovery"
	"github.com/sells-group/pharmhunter/internal/history"
	"github.com/sells-group/pharmhunter/internal/model"
)

// Discoverer finds new candidates.
type Discoverer interface {
	Discover(ctx context.Context, params model.HuntParams) (*discovery.Result, error)
}

// Scorer attaches ICP scoring to leads.
type Scorer interface {
	ScoreAll(ctx context.Context, leads []model.Lead) ([]model.Lead, error)
}

// Drafter attaches outreach drafts to qualified leads.
type Drafter interface {
	DraftAll(ctx context.Context, leads []model.Lead) ([]model.Lead, error)
}

// Recorder persists what a hunt learned.
type Recorder interface {
	ApplyEncounter(ctx context.Context, e history.Encounter, now time.Time) (*history.Record, bool, error)
	SaveHunt(ctx context.Context, h history.HuntSummary) error
}

// StageFunc is notified when a stage starts.
type StageFunc func(huntID, stage string)

// Runner wires the stages together. Scorer and Drafter are optional; a nil
// stage is skipped.
type Runner struct {
	discoverer Discoverer
	scorer     Scorer
	drafter    Drafter
	recorder   Recorder
	onStage    StageFunc
	now        func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithScorer enables ICP scoring.
func WithScorer(s Scorer) Option { return func(r *Runner) { r.scorer = s } }

// WithDrafter enables outreach drafting.
func WithDrafter(d Drafter) Option { return func(r *Runner) { r.drafter = d } }

// WithStageHook registers a stage-start callback.
func WithStageHook(fn StageFunc) Option { return func(r *Runner) { r.onStage = fn } }

// WithClock overrides time.Now (for testing).
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// New creates a Runner.
func New(d Discoverer, rec Recorder, opts ...Option) *Runner {
	r := &Runner{discoverer: d, recorder: rec, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one hunt. The returned state is always non-nil once params
// validate, and carries partial results when a stage is interrupted.
func (r *Runner) Run(ctx context.Context, params model.HuntParams) (*model.PipelineState, error) {
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, eris.Wrap(err, "hunt: params")
	}
	return r.RunState(ctx, model.NewPipelineState(params))
}

// RunState executes a hunt into a state the caller created, so the hunt id
// is known before the run starts.
func (r *Runner) RunState(ctx context.Context, st *model.PipelineState) (*model.PipelineState, error) {
	ctx, span := otel.Tracer("github.com/sells-group/pharmhunter/internal/hunt").Start(ctx, "hunt.run")
	defer span.End()
	span.SetAttributes(attribute.String("hunt_id", st.HuntID))

	log := zap.L().With(zap.String("hunt_id", st.HuntID))
	log.Info("hunt: starting",
		zap.String("focus", st.Params.Focus),
		zap.String("phase", st.Params.Phase),
		zap.Int("quota", st.Params.Quota),
	)
	defer st.Finish()

	fail := func(err error, stage string) (*model.PipelineState, error) {
		st.AddError("%s: %v", stage, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		log.Error("hunt: stage failed", zap.String("stage", stage), zap.Error(err))
		return st, eris.Wrapf(err, "hunt: %s", stage)
	}

	// Discovery.
	r.stage(st, model.StageDiscovery)
	res, err := r.discoverer.Discover(ctx, st.Params)
	if res != nil {
		st.Ledger = res.Ledger
		st.TopOfFunnelCount = len(res.Accumulated)
		for _, c := range res.Accumulated {
			st.TopOfFunnelCompanies = append(st.TopOfFunnelCompanies, c.CompanyName)
		}
	}
	if err != nil {
		return fail(err, model.StageDiscovery)
	}
	st.DuplicatesFiltered = res.Ledger.DuplicatesFiltered
	st.DuplicateDetails = res.Ledger.DuplicateDetails
	st.NewCompaniesFound = len(res.Leads)
	st.CompleteStage(model.StageDiscovery, res.Ledger.TotalResultsFound, len(res.Leads), map[string]any{
		"rounds":              res.Ledger.SearchRounds,
		"queries":             res.Ledger.TotalQueries,
		"failed_queries":      res.Ledger.FailedQueries(),
		"history_unavailable": res.Ledger.HistoryUnavailable,
	})
	if res.Ledger.HistoryUnavailable {
		st.AddError("history unavailable, duplicates were not filtered: %s", res.Ledger.HistoryError)
	}

	leads := make([]model.Lead, len(res.Leads))
	for i, c := range res.Leads {
		leads[i] = model.NewLead(c)
	}

	// Scoring.
	if r.scorer != nil && len(leads) > 0 {
		r.stage(st, model.StageScoring)
		leads, err = r.scorer.ScoreAll(ctx, leads)
		st.Leads = leads
		if err != nil {
			return fail(err, model.StageScoring)
		}
		for _, l := range leads {
			if !l.IsScored() {
				continue
			}
			st.ScoredCount++
			if l.IsQualified() {
				st.QualifiedCount++
			} else {
				st.DisqualifiedCount++
			}
		}
		st.CompleteStage(model.StageScoring, len(leads), st.QualifiedCount, map[string]any{
			"disqualified": st.DisqualifiedCount,
		})
	}

	// Drafting.
	if r.drafter != nil && st.QualifiedCount > 0 {
		r.stage(st, model.StageDrafting)
		leads, err = r.drafter.DraftAll(ctx, leads)
		st.Leads = leads
		if err != nil {
			return fail(err, model.StageDrafting)
		}
		for _, l := range leads {
			if l.IsDrafted() {
				st.DraftedCount++
			}
		}
		st.CompleteStage(model.StageDrafting, st.QualifiedCount, st.DraftedCount, nil)
	}
	st.Leads = leads

	// Persistence.
	r.stage(st, model.StagePersist)
	created, updated := r.persist(ctx, st, log)
	st.CompleteStage(model.StagePersist, len(leads), created+updated, map[string]any{
		"created": created,
		"updated": updated,
	})

	span.SetAttributes(
		attribute.Int("new_companies", st.NewCompaniesFound),
		attribute.Int("qualified", st.QualifiedCount),
	)
	log.Info("hunt: complete",
		zap.Int("top_of_funnel", st.TopOfFunnelCount),
		zap.Int("new_companies", st.NewCompaniesFound),
		zap.Int("duplicates", st.DuplicatesFiltered),
		zap.Int("qualified", st.QualifiedCount),
		zap.Int("drafted", st.DraftedCount),
		zap.Int("errors", len(st.ErrorList())),
	)
	return st, nil
}

// persist applies one encounter per lead and saves the hunt summary. Store
// failures are recorded on the state and do not fail the hunt.
func (r *Runner) persist(ctx context.Context, st *model.PipelineState, log *zap.Logger) (created, updated int) {
	if r.recorder == nil {
		return 0, 0
	}
	now := r.now()
	for _, l := range st.Leads {
		_, isNew, err := r.recorder.ApplyEncounter(ctx, history.EncounterFrom(l, st.HuntID), now)
		if err != nil {
			st.AddError("persist %s: %v", l.CompanyName, err)
			log.Warn("hunt: history update failed", zap.String("company", l.CompanyName), zap.Error(err))
			continue
		}
		if isNew {
			created++
		} else {
			updated++
		}
	}

	summary := history.HuntSummary{
		HuntID:             st.HuntID,
		Timestamp:          now,
		CompaniesFound:     st.TopOfFunnelCount,
		NewCompanies:       st.NewCompaniesFound,
		DuplicatesFiltered: st.DuplicatesFiltered,
		QualifiedCount:     st.QualifiedCount,
		Params:             st.Params.AsMap(),
	}
	if err := r.recorder.SaveHunt(ctx, summary); err != nil {
		st.AddError("save hunt summary: %v", err)
		log.Warn("hunt: save summary failed", zap.Error(err))
	}
	return created, updated
}

func (r *Runner) stage(st *model.PipelineState, name string) {
	st.StartStage(name)
	if r.onStage != nil {
		r.onStage(st.HuntID, name)
	}
}
