package analyst

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pharmhunter/internal/llm"
	"github.com/sells-group/pharmhunter/internal/model"
	"github.com/sells-group/pharmhunter/internal/resilience"
)

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, p llm.Prompt) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

var scoredAt = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestAnalyst(c llm.Completer, opts ...Option) *Analyst {
	base := []Option{
		WithRetry(resilience.RetryConfig{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}),
		WithClock(func() time.Time { return scoredAt }),
	}
	return New(c, append(base, opts...)...)
}

func forCompany(name string) any {
	return mock.MatchedBy(func(p llm.Prompt) bool {
		return strings.Contains(p.User, name)
	})
}

const orbitReply = `{
  "icp_score": 92,
  "score_breakdown": {"base_company_fit": 38, "phase_match": 20, "imaging_materiality": 19, "why_now_trigger": 12, "complexity_bonus": 3},
  "score_explanation": "Strong radiopharma fit.",
  "is_qualified": true,
  "disqualification_reason": null,
  "buying_signal": "Series B closed to fund Phase 2 PET dosimetry",
  "recommended_offer": "Imaging Readiness Sprint",
  "reasoning_chain": "1. Biopharma. 2. Phase 2."
}`

func TestScore_ParsesReply(t *testing.T) {
	m := &mockCompleter{}
	m.On("Complete", mock.Anything, mock.MatchedBy(func(p llm.Prompt) bool {
		return p.Tier == llm.Reasoning && p.Stage == "scoring" &&
			strings.Contains(p.System, "Orbit Therapeutics") &&
			strings.Contains(p.System, "Website: N/A") &&
			strings.Contains(p.System, "ICP 1 Definition")
	})).Return("```json\n"+orbitReply+"\n```", nil).Once()

	s, err := newTestAnalyst(m).Score(context.Background(), model.Candidate{
		CompanyName: "Orbit Therapeutics", TherapeuticArea: "Radiopharma", ClinicalPhase: "Phase 2",
	})
	require.NoError(t, err)

	assert.Equal(t, 92, s.ICPScore)
	assert.True(t, s.Qualified)
	assert.Empty(t, s.DisqualificationReason)
	assert.Equal(t, 38, s.Breakdown.BaseCompanyFit)
	assert.Equal(t, 3, s.Breakdown.ComplexityBonus)
	assert.Equal(t, "Imaging Readiness Sprint", s.RecommendedOffer)
	assert.Equal(t, scoredAt, s.ScoredAt)
	m.AssertExpectations(t)
}

func TestScore_QualificationFallsBackToThreshold(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		threshold int
		score     int
		qualified bool
	}{
		{"at threshold", `{"icp_score": 75}`, 75, 75, true},
		{"below threshold", `{"icp_score": 74.4}`, 75, 74, false},
		{"custom threshold", `{"icp_score": 80}`, 85, 80, false},
		{"model overrides", `{"icp_score": 90, "is_qualified": false, "disqualification_reason": "device company"}`, 75, 90, false},
		{"score from breakdown", `{"score_breakdown": {"base_company_fit": 50, "phase_match": 20, "imaging_materiality": 20, "why_now_trigger": 15, "complexity_bonus": 5}}`, 75, 100, true},
		{"clamped", `{"icp_score": 140}`, 75, 100, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockCompleter{}
			m.On("Complete", mock.Anything, mock.Anything).Return(tt.reply, nil)

			s, err := newTestAnalyst(m, WithThreshold(tt.threshold)).Score(context.Background(), model.Candidate{CompanyName: "Acme"})
			require.NoError(t, err)
			assert.Equal(t, tt.score, s.ICPScore)
			assert.Equal(t, tt.qualified, s.Qualified)
			assert.Equal(t, defaultSignal, s.BuyingSignal)
		})
	}
}

func TestScore_DisqualificationReasonKept(t *testing.T) {
	m := &mockCompleter{}
	m.On("Complete", mock.Anything, mock.Anything).
		Return(`{"icp_score": 40, "disqualification_reason": "Preclinical only"}`, nil)

	s, err := newTestAnalyst(m).Score(context.Background(), model.Candidate{CompanyName: "Acme"})
	require.NoError(t, err)
	assert.False(t, s.Qualified)
	assert.Equal(t, "Preclinical only", s.DisqualificationReason)
}

func TestScore_RetriesUnparseableReply(t *testing.T) {
	m := &mockCompleter{}
	m.On("Complete", mock.Anything, mock.Anything).Return("thinking...", nil).Once()
	m.On("Complete", mock.Anything, mock.Anything).Return(`{"icp_score": 81}`, nil).Once()

	s, err := newTestAnalyst(m).Score(context.Background(), model.Candidate{CompanyName: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, 81, s.ICPScore)
	m.AssertNumberOfCalls(t, "Complete", 2)
}

func TestScoreAll_KeepsOrderAndRecordsFailures(t *testing.T) {
	m := &mockCompleter{}
	m.On("Complete", mock.Anything, forCompany("Orbit")).Return(orbitReply, nil)
	m.On("Complete", mock.Anything, forCompany("Fizzle")).Return("", errors.New("model down"))
	m.On("Complete", mock.Anything, forCompany("Median")).Return(`{"icp_score": 60}`, nil)

	leads := []model.Lead{
		model.NewLead(model.Candidate{CompanyName: "Orbit Therapeutics"}),
		model.NewLead(model.Candidate{CompanyName: "Fizzle Bio"}),
		model.NewLead(model.Candidate{CompanyName: "Median Pharma"}),
	}

	out, err := newTestAnalyst(m, WithConcurrency(2)).ScoreAll(context.Background(), leads)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "Orbit Therapeutics", out[0].CompanyName)
	assert.True(t, out[0].IsQualified())

	require.True(t, out[1].IsScored())
	assert.Equal(t, 0, out[1].Scoring.ICPScore)
	assert.False(t, out[1].IsQualified())
	assert.Contains(t, out[1].Scoring.DisqualificationReason, "Analysis error")
	assert.Contains(t, out[1].Scoring.DisqualificationReason, "model down")

	assert.Equal(t, 60, out[2].Scoring.ICPScore)
	assert.False(t, out[2].IsQualified())

	// Inputs are untouched.
	assert.False(t, leads[0].IsScored())
}

func TestScoreAll_Empty(t *testing.T) {
	out, err := newTestAnalyst(&mockCompleter{}).ScoreAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestScoreAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := &mockCompleter{}
	m.On("Complete", mock.Anything, mock.Anything).Return("", context.Canceled).Maybe()

	_, err := newTestAnalyst(m).ScoreAll(ctx, []model.Lead{model.NewLead(model.Candidate{CompanyName: "Acme"})})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithICP(t *testing.T) {
	a := New(&mockCompleter{}, WithICP("  "))
	assert.Equal(t, DefaultICP, a.icp)

	a = New(&mockCompleter{}, WithICP("custom profile"))
	assert.Equal(t, "custom profile", a.icp)
	assert.Equal(t, DefaultQualifyThreshold, a.Threshold())
}
