// Package crm pushes qualified companies from history into external CRMs.
package crm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/sells-group/pharmhunter/internal/history"
)

// Result counts what a sink did with one push.
type Result struct {
	Sink    string   `json:"sink"`
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

func (r *Result) fail(company string, msg string) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", company, msg))
}

// Sink receives history records. Per-record rejections are reported in the
// Result; an error means the push as a whole could not proceed.
type Sink interface {
	Name() string
	Push(ctx context.Context, recs []history.Record) (*Result, error)
}

// Qualified keeps the records that have ever qualified.
func Qualified(recs []history.Record) []history.Record {
	var out []history.Record
	for _, r := range recs {
		if r.WasQualified {
			out = append(out, r)
		}
	}
	return out
}

// PushAll sends recs to every sink in turn. A failing sink does not stop
// the others; the returned error names every sink that failed.
func PushAll(ctx context.Context, sinks []Sink, recs []history.Record) ([]*Result, error) {
	tracer := otel.Tracer("github.com/sells-group/pharmhunter/internal/crm")
	var (
		results []*Result
		failed  []string
	)
	for _, s := range sinks {
		if err := ctx.Err(); err != nil {
			return results, eris.Wrap(err, "crm: push")
		}

		sctx, span := tracer.Start(ctx, "crm.push")
		span.SetAttributes(attribute.String("crm.sink", s.Name()), attribute.Int("crm.records", len(recs)))
		res, err := s.Push(sctx, recs)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "push failed")
			span.End()
			zap.L().Error("crm: push failed", zap.String("sink", s.Name()), zap.Error(err))
			failed = append(failed, fmt.Sprintf("%s: %v", s.Name(), err))
			if res != nil {
				results = append(results, res)
			}
			continue
		}
		span.SetAttributes(attribute.Int("crm.created", res.Created), attribute.Int("crm.updated", res.Updated), attribute.Int("crm.failed", res.Failed))
		span.End()

		zap.L().Info("crm: pushed",
			zap.String("sink", s.Name()),
			zap.Int("created", res.Created),
			zap.Int("updated", res.Updated),
			zap.Int("failed", res.Failed),
		)
		results = append(results, res)
	}
	if len(failed) > 0 {
		return results, eris.Errorf("crm: %s", strings.Join(failed, "; "))
	}
	return results, nil
}

// describe summarises a record for free-text CRM fields.
func describe(r history.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Discovered %d time(s)", r.TimesDiscovered)
	if !r.FirstSeen.IsZero() {
		fmt.Fprintf(&b, ", first %s, last %s", r.FirstSeen.Format("2006-01-02"), r.LastSeen.Format("2006-01-02"))
	}
	b.WriteString(".")
	if r.BestScore != nil {
		fmt.Fprintf(&b, " Best ICP score %d.", *r.BestScore)
	}
	if len(r.TherapeuticAreas) > 0 {
		fmt.Fprintf(&b, " Areas: %s.", strings.Join(r.TherapeuticAreas, ", "))
	}
	if len(r.ClinicalPhases) > 0 {
		fmt.Fprintf(&b, " Phases: %s.", strings.Join(r.ClinicalPhases, ", "))
	}
	if len(r.SourceURLs) > 0 {
		fmt.Fprintf(&b, " Sources: %s", strings.Join(r.SourceURLs, " "))
	}
	return b.String()
}
