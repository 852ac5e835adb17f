// Package discovery runs the multi-round lead search loop: it walks the
// planner's source tiers until the quota is met or the round budget runs
// out, then filters the accumulated candidates against company history.
package discovery

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/pharmhunter/internal/extract"
	"github.com/sells-group/pharmhunter/internal/history"
	"github.com/sells-group/pharmhunter/internal/model"
	"github.com/sells-group/pharmhunter/internal/planner"
	"github.com/sells-group/pharmhunter/internal/resilience"
	"github.com/sells-group/pharmhunter/internal/search"
)

const (
	// MinResultsPerQuery is the floor for each query's max_results.
	MinResultsPerQuery = 5
	// DefaultRoundDelay is the pause between rounds.
	DefaultRoundDelay = time.Second
	// DefaultQueryRate is the default query pacing, in queries per second.
	DefaultQueryRate = 2.0
)

// HistorySource supplies the company snapshot used for cross-run dedup.
type HistorySource interface {
	LoadAll(ctx context.Context) ([]history.Record, error)
}

// Result is the outcome of one discovery call.
type Result struct {
	// Leads are the new candidates, at most quota of them.
	Leads []model.Candidate
	// Accumulated is every unique candidate gathered before history dedup.
	Accumulated []model.Candidate
	Ledger      *model.SearchLedger
}

// Controller drives the persistence loop. It is safe for sequential reuse;
// each Discover call owns its own state.
type Controller struct {
	planner    *planner.Planner
	searcher   search.Searcher
	extractor  extract.Extractor
	history    HistorySource
	resolver   history.Resolver
	retry      resilience.RetryConfig
	limiter    *rate.Limiter
	roundDelay time.Duration
	progress   ProgressFunc
	now        func() time.Time
	tracer     trace.Tracer
}

// New builds a controller. A nil history source behaves like an empty
// history.
func New(p *planner.Planner, s search.Searcher, e extract.Extractor, h HistorySource, opts ...Option) *Controller {
	c := &Controller{
		planner:    p,
		searcher:   s,
		extractor:  e,
		history:    h,
		resolver:   history.NewResolver(history.DefaultMatchThreshold),
		retry:      resilience.DefaultRetryConfig(),
		limiter:    rate.NewLimiter(rate.Limit(DefaultQueryRate), 1),
		roundDelay: DefaultRoundDelay,
		now:        time.Now,
		tracer:     otel.Tracer("github.com/sells-group/pharmhunter/internal/discovery"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.planner == nil {
		c.planner = planner.Default()
	}
	c.retry.ShouldRetry = retrySearch
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger(s.Name(), "search")
	}
	return c
}

// retrySearch retries everything except cancellation and an open breaker.
func retrySearch(err error) bool {
	return resilience.RetryAll(err) && !errors.Is(err, resilience.ErrCircuitOpen)
}

// run is the per-call loop state.
type run struct {
	params      model.HuntParams
	ledger      *model.SearchLedger
	accumulated []model.Candidate
	seen        map[string]bool
}

func (r *run) remaining() int {
	return r.params.Quota - len(r.accumulated)
}

// Discover runs rounds 1..MaxRounds until the quota is met, then resolves
// the accumulated candidates against history. On cancellation it returns the
// partial result together with the context error and skips the history
// step.
func (c *Controller) Discover(ctx context.Context, params model.HuntParams) (*Result, error) {
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, eris.Wrap(err, "discovery: params")
	}

	ctx, span := c.tracer.Start(ctx, "discovery.discover", trace.WithAttributes(
		attribute.Int("quota", params.Quota),
		attribute.Int("max_rounds", params.MaxRounds),
		attribute.String("focus", params.Focus),
		attribute.String("phase", params.Phase),
	))
	defer span.End()

	st := &run{
		params: params,
		ledger: model.NewSearchLedger(c.now()),
		seen:   make(map[string]bool),
	}
	log := zap.L().With(
		zap.String("search_id", st.ledger.SearchID),
		zap.String("focus", params.Focus),
		zap.String("phase", params.Phase),
	)
	log.Info("discovery: starting",
		zap.Int("quota", params.Quota),
		zap.Int("max_rounds", params.MaxRounds),
	)

	for round := 1; st.remaining() > 0 && round <= params.MaxRounds; round++ {
		if round > 1 {
			if err := sleep(ctx, c.roundDelay); err != nil {
				return c.interrupted(span, st, err)
			}
		}
		st.ledger.SearchRounds = round
		if err := c.round(ctx, st, round); err != nil {
			return c.interrupted(span, st, err)
		}
		log.Info("discovery: round complete",
			zap.Int("round", round),
			zap.Int("accumulated", len(st.accumulated)),
			zap.Int("quota", params.Quota),
		)
	}

	st.ledger.Finalize(c.now())
	st.ledger.UniqueResultsFound = len(st.accumulated)

	leads := c.resolve(ctx, st, log)
	if len(leads) > params.Quota {
		leads = leads[:params.Quota]
	}
	st.ledger.NewLeads = len(leads)
	if len(leads) == 0 {
		st.ledger.Message = zeroLeadsMessage(st.ledger)
	}

	span.SetAttributes(
		attribute.Int("rounds", st.ledger.SearchRounds),
		attribute.Int("new_leads", len(leads)),
		attribute.Int("duplicates", st.ledger.DuplicatesFiltered),
	)
	log.Info("discovery: finished",
		zap.Int("rounds", st.ledger.SearchRounds),
		zap.Int("queries", st.ledger.TotalQueries),
		zap.Int("unique", st.ledger.UniqueResultsFound),
		zap.Int("duplicates", st.ledger.DuplicatesFiltered),
		zap.Int("new_leads", len(leads)),
		zap.Duration("duration", st.ledger.Duration()),
	)
	c.emit(Progress{
		Round: st.ledger.SearchRounds, MaxRounds: params.MaxRounds,
		Accumulated: len(st.accumulated), Quota: params.Quota,
		Message: "discovery complete",
	})

	return &Result{Leads: leads, Accumulated: st.accumulated, Ledger: st.ledger}, nil
}

func (c *Controller) interrupted(span trace.Span, st *run, err error) (*Result, error) {
	st.ledger.Finalize(c.now())
	st.ledger.UniqueResultsFound = len(st.accumulated)
	span.RecordError(err)
	span.SetStatus(codes.Error, "interrupted")
	zap.L().Warn("discovery: interrupted",
		zap.String("search_id", st.ledger.SearchID),
		zap.Int("rounds", st.ledger.SearchRounds),
		zap.Int("accumulated", len(st.accumulated)),
		zap.Error(err),
	)
	return &Result{Accumulated: st.accumulated, Ledger: st.ledger}, err
}

// round issues every query of the round's plan, then extracts and merges.
// The only error it returns is a context error.
func (c *Controller) round(ctx context.Context, st *run, r int) error {
	plan := c.planner.Round(r, st.params)

	ctx, span := c.tracer.Start(ctx, "discovery.round", trace.WithAttributes(
		attribute.Int("round", r),
		attribute.Int("tier", plan.Tier),
		attribute.String("source", plan.Source.Name),
		attribute.Int("queries", len(plan.Queries)),
	))
	defer span.End()

	// Expanded rounds search the open web; earlier tiers stay on their domains.
	var domains []string
	if plan.Tier < planner.TierExpanded {
		domains = plan.Domains
	}

	var hits []extract.Hit
	urls := make(map[string]bool)
	for i, q := range plan.Queries {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		c.emit(Progress{
			Round: r, MaxRounds: st.params.MaxRounds, Tier: plan.Tier,
			Query: q, QueryIndex: i + 1, QueryCount: len(plan.Queries),
			Accumulated: len(st.accumulated), Quota: st.params.Quota,
			Message: "searching " + plan.Source.Name,
		})

		results, err := c.query(ctx, st, plan, q, domains)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		for _, res := range results {
			if res.URL == "" || urls[res.URL] {
				continue
			}
			urls[res.URL] = true
			hits = append(hits, extract.Hit{
				URL:            res.URL,
				Title:          res.Title,
				Content:        res.Content,
				Rank:           len(hits) + 1,
				SourceName:     c.planner.SourceForDomain(res.URL).Name,
				SourcePriority: plan.Tier,
				Query:          q,
			})
		}
	}
	span.SetAttributes(attribute.Int("unique_results", len(hits)))

	if len(hits) == 0 {
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	candidates, err := c.extractor.Extract(ctx, extract.BuildContext(hits), st.remaining(), st.params)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		span.RecordError(err)
		zap.L().Warn("discovery: extraction failed, round yields no candidates",
			zap.Int("round", r),
			zap.Error(err),
		)
		return nil
	}

	added := c.merge(st, plan, hits, candidates)
	span.SetAttributes(attribute.Int("added", added))
	return nil
}

// query runs one search with retries and records it in the ledger whatever
// the outcome.
func (c *Controller) query(ctx context.Context, st *run, plan planner.RoundPlan, q string, domains []string) ([]search.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := c.tracer.Start(ctx, "discovery.query", trace.WithAttributes(
		attribute.Int("round", plan.Round),
		attribute.String("query", q),
	))
	defer span.End()

	req := search.Request{
		Query:      q,
		MaxResults: max(MinResultsPerQuery, st.remaining()),
		Domains:    domains,
	}
	rec := model.SourceRecord{
		SourceName:      plan.Source.Name,
		SourcePriority:  plan.Tier,
		QueryText:       q,
		QueryTimestamp:  c.now(),
		DomainsSearched: append([]string{}, domains...),
		Round:           plan.Round,
	}

	results, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]search.Result, error) {
		return c.searcher.Search(ctx, req)
	})
	if err != nil {
		rec.ErrorMessage = err.Error()
		st.ledger.AddSource(rec)
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		zap.L().Warn("discovery: query failed",
			zap.Int("round", plan.Round),
			zap.String("query", q),
			zap.Error(err),
		)
		return nil, err
	}

	rec.WasSuccessful = true
	rec.ResultsCount = len(results)
	st.ledger.AddSource(rec)
	span.SetAttributes(attribute.Int("results", len(results)))
	zap.L().Debug("discovery: query done",
		zap.Int("round", plan.Round),
		zap.String("query", q),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// merge attaches provenance to the round's candidates and appends the ones
// not already gathered in this run. It returns how many were added.
func (c *Controller) merge(st *run, plan planner.RoundPlan, hits []extract.Hit, candidates []model.Candidate) int {
	added := 0
	for _, cand := range candidates {
		name := strings.TrimSpace(cand.CompanyName)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if st.seen[key] {
			continue
		}
		st.seen[key] = true

		cand.CompanyName = name
		cand.Provenance = c.provenance(plan, hits, cand.SourceURL)
		cand.Rank = len(st.accumulated) + 1
		st.accumulated = append(st.accumulated, cand)
		added++
	}
	return added
}

func (c *Controller) provenance(plan planner.RoundPlan, hits []extract.Hit, sourceURL string) *model.Provenance {
	p := &model.Provenance{
		SourceName:     plan.Source.Name,
		SourceURL:      sourceURL,
		SourcePriority: plan.Tier,
		DiscoveredAt:   c.now(),
		Round:          plan.Round,
	}
	if sourceURL == "" {
		return p
	}
	if src := c.planner.SourceForDomain(sourceURL); src.Name != planner.UnknownSource {
		p.SourceName = src.Name
	}
	want := canonicalURL(sourceURL)
	if want == "" {
		return p
	}
	for _, h := range hits {
		if canonicalURL(h.URL) == want {
			p.Query = h.Query
			p.SourcePriority = h.SourcePriority
			break
		}
	}
	return p
}

var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_content", "utm_term", "fbclid", "gclid"}

// canonicalURL reduces a URL to host and path for equality checks. Scheme,
// a leading "www.", a trailing slash, the fragment and tracking parameters
// are ignored. Unparseable input yields "".
func canonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	out := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.") +
		strings.TrimSuffix(u.EscapedPath(), "/")
	q := u.Query()
	for _, k := range trackingParams {
		q.Del(k)
	}
	if enc := q.Encode(); enc != "" {
		out += "?" + enc
	}
	return out
}

// resolve filters the accumulated set against history. A history that
// cannot be read is treated as empty and flagged on the ledger.
func (c *Controller) resolve(ctx context.Context, st *run, log *zap.Logger) []model.Candidate {
	var snapshot []history.Record
	if c.history != nil {
		recs, err := c.history.LoadAll(ctx)
		if err != nil {
			st.ledger.HistoryUnavailable = true
			st.ledger.HistoryError = err.Error()
			log.Warn("discovery: history unavailable, skipping cross-run dedup", zap.Error(err))
		} else {
			snapshot = recs
		}
	}

	res := c.resolver.Resolve(st.accumulated, snapshot)
	st.ledger.DuplicatesFiltered = res.DuplicateCount
	st.ledger.DuplicateDetails = res.Details
	st.ledger.UnidentifiedNames = res.Unidentified
	if len(res.Unidentified) > 0 {
		log.Warn("discovery: dropped names with no identity",
			zap.Strings("names", res.Unidentified),
		)
	}
	if res.DuplicateCount > 0 {
		log.Info("discovery: duplicates filtered",
			zap.Int("duplicates", res.DuplicateCount),
			zap.Int("history_size", len(snapshot)),
		)
	}
	return res.Kept
}

func zeroLeadsMessage(l *model.SearchLedger) string {
	switch {
	case l.UniqueResultsFound == 0:
		return "No companies were found for these criteria. Try a broader focus or phase."
	case l.DuplicatesFiltered > 0:
		return "Every company found is already in history. Try different criteria to surface new prospects."
	default:
		return "No new companies were found."
	}
}

func (c *Controller) emit(p Progress) {
	if c.progress != nil {
		c.progress(p)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
