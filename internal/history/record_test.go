package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pharmhunter/internal/model"
)

func intPtr(v int) *int { return &v }

var (
	t0 = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(48 * time.Hour)
)

func TestEncounterFrom_CandidateOnly(t *testing.T) {
	lead := model.NewLead(model.Candidate{
		CompanyName:     "Orbit Therapeutics",
		TherapeuticArea: "Oncology",
		ClinicalPhase:   "Phase 2",
		Provenance:      &model.Provenance{SourceURL: "https://clinicaltrials.gov/study/NCT1"},
	})

	e := EncounterFrom(lead, "hunt-1")

	assert.Equal(t, "hunt-1", e.HuntID)
	assert.Equal(t, "https://clinicaltrials.gov/study/NCT1", e.SourceURL)
	assert.Nil(t, e.ICPScore)
	assert.False(t, e.Qualified)
	assert.Equal(t, "orbit", e.NormalizedName())
}

func TestEncounterFrom_Scored(t *testing.T) {
	lead := model.NewLead(model.Candidate{CompanyName: "Orbit", SourceURL: "https://a.com"})
	lead.Scoring = &model.Scoring{ICPScore: 82, Qualified: true}

	e := EncounterFrom(lead, "hunt-1")

	require.NotNil(t, e.ICPScore)
	assert.Equal(t, 82, *e.ICPScore)
	assert.True(t, e.Qualified)
	assert.Equal(t, "https://a.com", e.SourceURL)
}

func TestNewRecord(t *testing.T) {
	r := NewRecord(Encounter{
		CompanyName:     "Orbit Therapeutics, Inc.",
		HuntID:          "h1",
		Website:         "https://orbit.bio",
		TherapeuticArea: "Oncology",
		ICPScore:        intPtr(70),
	}, t0)

	assert.Equal(t, "Orbit Therapeutics, Inc.", r.CompanyName)
	assert.Equal(t, "orbit", r.NormalizedName)
	assert.Equal(t, 1, r.TimesDiscovered)
	assert.Equal(t, t0, r.FirstSeen)
	assert.Equal(t, t0, r.LastSeen)
	assert.Equal(t, []string{"h1"}, r.HuntIDs)
	assert.Equal(t, []string{"Oncology"}, r.TherapeuticAreas)
	assert.Empty(t, r.ClinicalPhases)
	assert.Equal(t, []int{70}, r.ICPScores)
	require.NotNil(t, r.BestScore)
	assert.Equal(t, 70, *r.BestScore)
	assert.False(t, r.WasQualified)
}

func TestApply_GrowsListsAndKeepsWebsite(t *testing.T) {
	r := NewRecord(Encounter{CompanyName: "Orbit", HuntID: "h1", Website: "https://orbit.bio",
		TherapeuticArea: "Oncology", ICPScore: intPtr(70)}, t0)

	r.Apply(Encounter{CompanyName: "Orbit Inc", HuntID: "h2", Website: "https://other.com",
		TherapeuticArea: "Radiopharma", ClinicalPhase: "Phase 1", SourceURL: "https://b.com",
		ICPScore: intPtr(88), Qualified: true}, t1)
	r.Apply(Encounter{CompanyName: "Orbit", HuntID: "h2", TherapeuticArea: "Oncology", ICPScore: intPtr(60)}, t1)

	assert.Equal(t, "Orbit", r.CompanyName)
	assert.Equal(t, "https://orbit.bio", r.Website)
	assert.Equal(t, 3, r.TimesDiscovered)
	assert.Equal(t, t0, r.FirstSeen)
	assert.Equal(t, t1, r.LastSeen)
	assert.Equal(t, []string{"h1", "h2"}, r.HuntIDs)
	assert.Equal(t, []string{"Oncology", "Radiopharma"}, r.TherapeuticAreas)
	assert.Equal(t, []string{"Phase 1"}, r.ClinicalPhases)
	assert.Equal(t, []string{"https://b.com"}, r.SourceURLs)
	assert.Equal(t, []int{70, 88, 60}, r.ICPScores)
	assert.Equal(t, 88, *r.BestScore)
	assert.True(t, r.WasQualified)
}

func TestApply_FillsEmptyWebsite(t *testing.T) {
	r := NewRecord(Encounter{CompanyName: "Orbit"}, t0)
	r.Apply(Encounter{CompanyName: "Orbit", Website: "https://orbit.bio"}, t1)
	assert.Equal(t, "https://orbit.bio", r.Website)
}

func TestApply_UnscoredEncounterLeavesScores(t *testing.T) {
	r := NewRecord(Encounter{CompanyName: "Orbit", ICPScore: intPtr(80), Qualified: true}, t0)
	r.Apply(Encounter{CompanyName: "Orbit", Qualified: false}, t1)

	assert.Equal(t, []int{80}, r.ICPScores)
	assert.True(t, r.WasQualified)
}

func TestMerge_Idempotent(t *testing.T) {
	base := NewRecord(Encounter{CompanyName: "Orbit", HuntID: "h1", TherapeuticArea: "Oncology", ICPScore: intPtr(70)}, t1)
	other := NewRecord(Encounter{CompanyName: "Orbit", HuntID: "h0", TherapeuticArea: "CNS", ICPScore: intPtr(90), Qualified: true}, t0)
	other.TimesDiscovered = 4

	base.Merge(other)
	once := base
	once.HuntIDs = append([]string(nil), base.HuntIDs...)
	base.Merge(other)

	assert.Equal(t, t0, base.FirstSeen)
	assert.Equal(t, t1, base.LastSeen)
	assert.Equal(t, 4, base.TimesDiscovered)
	assert.Equal(t, []string{"h1", "h0"}, base.HuntIDs)
	assert.Equal(t, []string{"Oncology", "CNS"}, base.TherapeuticAreas)
	assert.Equal(t, 90, *base.BestScore)
	assert.True(t, base.WasQualified)
	assert.Equal(t, once.HuntIDs, base.HuntIDs)
}

func TestComputeStatistics(t *testing.T) {
	records := []Record{
		{TherapeuticAreas: []string{"Oncology"}, BestScore: intPtr(80), WasQualified: true},
		{TherapeuticAreas: []string{"Oncology", "CNS"}, BestScore: intPtr(71)},
		{TherapeuticAreas: nil},
	}

	st := ComputeStatistics(records, 2)

	assert.Equal(t, 3, st.TotalCompanies)
	assert.Equal(t, 2, st.TotalHunts)
	assert.Equal(t, 1, st.QualifiedCompanies)
	assert.Equal(t, 2, st.DisqualifiedCompanies)
	assert.InDelta(t, 75.5, st.AverageBestScore, 0.001)
	assert.Equal(t, map[string]int{"Oncology": 2, "CNS": 1}, st.AreaDistribution)
}

func TestComputeStatistics_Empty(t *testing.T) {
	st := ComputeStatistics(nil, 0)
	assert.Zero(t, st.AverageBestScore)
	assert.Empty(t, st.AreaDistribution)
}
