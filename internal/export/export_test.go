package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/pharmhunter/internal/history"
	"github.com/sells-group/pharmhunter/internal/model"
)

func intPtr(v int) *int { return &v }

func sampleRecords() []history.Record {
	first := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	return []history.Record{
		{
			CompanyName: "Orbit Therapeutics", NormalizedName: "orbit", Website: "https://orbit.example",
			FirstSeen: first, LastSeen: first.Add(48 * time.Hour), TimesDiscovered: 2,
			HuntIDs: []string{"h1", "h2"}, TherapeuticAreas: []string{"Oncology", "Radiopharma"},
			ClinicalPhases: []string{"Phase 2"}, ICPScores: []int{70, 88}, BestScore: intPtr(88),
			WasQualified: true, SourceURLs: []string{"https://clinicaltrials.gov/study/NCT1"},
		},
		{
			CompanyName: "Quasar, Inc.", NormalizedName: "quasar",
			FirstSeen: first, LastSeen: first, TimesDiscovered: 1, HuntIDs: []string{"h1"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" XLSX ")
	require.NoError(t, err)
	assert.Equal(t, XLSX, f)

	_, err = ParseFormat("pdf")
	assert.Error(t, err)

	assert.Equal(t, XLSX, FormatForPath("out/companies.XLSX"))
	assert.Equal(t, CSV, FormatForPath("companies.txt"))
}

func TestCompanies_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Companies(&buf, CSV, sampleRecords()))

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Company Name", rows[0][0])
	assert.Equal(t, "Orbit Therapeutics", rows[1][0])
	assert.Equal(t, "2026-01-05T09:00:00Z", rows[1][3])
	assert.Equal(t, "Oncology; Radiopharma", rows[1][6])
	assert.Equal(t, "70; 88", rows[1][8])
	assert.Equal(t, "88", rows[1][9])
	assert.Equal(t, "true", rows[1][10])
	assert.Equal(t, "Quasar, Inc.", rows[2][0])
	assert.Equal(t, "", rows[2][9])
}

func TestCompanies_EmptyWritesHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Companies(&buf, CSV, nil))
	assert.True(t, strings.HasPrefix(buf.String(), "Company Name,Normalized Name,"))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestReadCompaniesCSV_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := sampleRecords()
	require.NoError(t, Companies(&buf, CSV, in))

	out, err := ReadCompaniesCSV(&buf)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[0], out[0])
	assert.Equal(t, "Quasar, Inc.", out[1].CompanyName)
	assert.Nil(t, out[1].BestScore)
	assert.Empty(t, out[1].ICPScores)
}

func TestReadCompaniesCSV_BadScore(t *testing.T) {
	data := "Company Name,ICP Scores\nOrbit,seventy\n"
	_, err := ReadCompaniesCSV(strings.NewReader(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "icp score")
}

func TestReadCompaniesCSV_Empty(t *testing.T) {
	out, err := ReadCompaniesCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCompanies_XLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Companies(&buf, XLSX, sampleRecords()))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	sheet, ok := f.Sheet["Companies"]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "Company Name", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "Orbit Therapeutics", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "h1; h2", sheet.Rows[1].Cells[11].String())
}

func TestLeads(t *testing.T) {
	scored := model.NewLead(model.Candidate{
		CompanyName: "Orbit Therapeutics", ClinicalPhase: "Phase 2",
		Provenance: &model.Provenance{SourceName: "ClinicalTrials.gov", SourceURL: "https://clinicaltrials.gov/study/NCT1", SourcePriority: 1, Round: 1},
	})
	scored.Scoring = &model.Scoring{
		ICPScore: 88, Qualified: true, BuyingSignal: "Series B",
		ReasoningChain: strings.Repeat("r", 600),
		Breakdown:      model.ScoreBreakdown{BaseCompanyFit: 35, PhaseMatch: 20, ImagingMateriality: 18, WhyNowTrigger: 12, ComplexityBonus: 3},
	}
	scored.Draft = &model.Draft{ContactPersona: "VP Clinical Ops", SubjectOptions: []string{"A", "B"}, PrimaryEmail: "Hello,\nthere"}
	bare := model.NewLead(model.Candidate{CompanyName: "Quasar"})

	row := LeadRowFrom(scored)
	assert.Equal(t, "https://clinicaltrials.gov/study/NCT1", row.SourceURL)
	assert.Equal(t, "1", row.SearchRound)
	assert.Equal(t, "Yes", row.Qualified)
	assert.Len(t, row.Reasoning, maxReasoning+3)
	assert.Contains(t, row.ScoreBreakdown, "phase_match: 20")
	assert.Equal(t, "A; B", row.Subjects)

	empty := LeadRowFrom(bare)
	assert.Empty(t, empty.ICPScore)
	assert.Empty(t, empty.Qualified)
	assert.Empty(t, empty.ContactPersona)

	var buf bytes.Buffer
	require.NoError(t, Leads(&buf, CSV, []model.Lead{scored, bare}))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Hello,\nthere", rows[1][21])
}
