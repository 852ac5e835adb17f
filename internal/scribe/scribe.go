// Package scribe drafts outreach copy for qualified leads.
package scribe

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"

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
	// MaxLinkedInChars caps the LinkedIn connection message.
	MaxLinkedInChars = 350
	// DefaultConcurrency bounds parallel drafting calls.
	DefaultConcurrency = 4

	defaultPersona = "VP of Clinical Operations"
)

// Scribe writes outreach drafts.
type Scribe struct {
	llm         llm.Completer
	retry       resilience.RetryConfig
	valueProp   string
	concurrency int
}

// Option configures a Scribe.
type Option func(*Scribe)

// WithValueProp replaces the built-in value proposition. Blank text is
// ignored.
func WithValueProp(vp string) Option {
	return func(s *Scribe) {
		if strings.TrimSpace(vp) != "" {
			s.valueProp = vp
		}
	}
}

// WithConcurrency bounds parallel drafting in DraftAll.
func WithConcurrency(n int) Option {
	return func(s *Scribe) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRetry sets the retry policy for each drafting call.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(s *Scribe) { s.retry = cfg }
}

// New creates a Scribe backed by c.
func New(c llm.Completer, opts ...Option) *Scribe {
	s := &Scribe{
		llm:         c,
		retry:       resilience.DefaultRetryConfig(),
		valueProp:   DefaultValueProp,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retry.ShouldRetry = resilience.RetryAll
	if s.retry.OnRetry == nil {
		s.retry.OnRetry = resilience.RetryLogger("llm", "draft")
	}
	return s
}

// subjects accepts either a list or a single subject line.
type subjects []string

func (s *subjects) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*s = list
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	if one != "" {
		*s = []string{one}
	}
	return nil
}

type draftReply struct {
	ContactPersona  string   `json:"contact_persona"`
	ContactName     *string  `json:"contact_name"`
	ContactTitle    *string  `json:"contact_title"`
	ContactLinkedIn *string  `json:"contact_linkedin"`
	SubjectOptions  subjects `json:"email_subject_options"`
	PrimaryEmail    string   `json:"email_body_primary"`
	Variant1        string   `json:"email_variant_1"`
	Variant2        string   `json:"email_variant_2"`
	LinkedInMessage string   `json:"linkedin_message"`
	FollowUpEmail   string   `json:"follow_up_email"`
}

// Draft writes outreach for one lead.
func (s *Scribe) Draft(ctx context.Context, l model.Lead) (*model.Draft, error) {
	ctx, span := otel.Tracer("github.com/sells-group/pharmhunter/internal/scribe").
		Start(ctx, "scribe.draft")
	defer span.End()
	span.SetAttributes(attribute.String("company", l.CompanyName))

	system, user := buildPrompts(l, s.valueProp)
	r, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (draftReply, error) {
		text, err := s.llm.Complete(ctx, llm.Prompt{
			System:      system,
			User:        user,
			Tier:        llm.Chat,
			Temperature: 0.7,
			Stage:       "drafting",
		})
		if err != nil {
			return draftReply{}, err
		}
		var r draftReply
		if err := llm.DecodeJSON(text, &r); err != nil {
			return draftReply{}, err
		}
		return r, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, eris.Wrapf(err, "scribe: draft %s", l.CompanyName)
	}

	persona := r.ContactPersona
	if strings.TrimSpace(persona) == "" {
		persona = defaultPersona
	}
	return &model.Draft{
		ContactPersona:  persona,
		ContactName:     deref(r.ContactName),
		ContactTitle:    deref(r.ContactTitle),
		ContactLinkedIn: deref(r.ContactLinkedIn),
		SubjectOptions:  []string(r.SubjectOptions),
		PrimaryEmail:    r.PrimaryEmail,
		Variant1:        r.Variant1,
		Variant2:        r.Variant2,
		LinkedInMessage: truncate(r.LinkedInMessage, MaxLinkedInChars),
		FollowUpEmail:   r.FollowUpEmail,
	}, nil
}

// placeholder is the draft kept when generation fails, so the lead still
// shows up for manual follow-up.
func placeholder(err error) *model.Draft {
	return &model.Draft{
		ContactPersona: defaultPersona,
		SubjectOptions: []string{"Follow up on imaging partnership"},
		PrimaryEmail:   "[Draft generation failed: " + err.Error() + ". Please manually compose outreach.]",
	}
}

// DraftAll drafts every qualified lead in parallel and returns all leads in
// their original order. Unqualified leads pass through undrafted.
func (s *Scribe) DraftAll(ctx context.Context, leads []model.Lead) ([]model.Lead, error) {
	out := make([]model.Lead, len(leads))
	copy(out, leads)

	var todo []int
	for i, l := range out {
		if l.IsQualified() {
			todo = append(todo, i)
		}
	}
	if len(todo) == 0 {
		zap.L().Info("scribe: no qualified leads to draft")
		return out, nil
	}
	zap.L().Info("scribe: drafting outreach", zap.Int("qualified", len(todo)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	var failed atomic.Int64
	for _, i := range todo {
		g.Go(func() error {
			d, err := s.Draft(gctx, out[i])
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				zap.L().Warn("scribe: drafting failed",
					zap.String("company", out[i].CompanyName),
					zap.Error(err),
				)
				d = placeholder(err)
			}
			out[i].Draft = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, eris.Wrap(err, "scribe: draft all")
	}

	zap.L().Info("scribe: drafting complete",
		zap.Int("drafted", len(todo)),
		zap.Int64("failed", failed.Load()),
	)
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	v := strings.TrimSpace(*s)
	if strings.EqualFold(v, "null") || strings.EqualFold(v, "none") {
		return ""
	}
	return v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
