package export

import (
	"fmt"
	"io"

	"github.com/sells-group/pharmhunter/internal/model"
)

// maxReasoning caps the reasoning column.
const maxReasoning = 500

// LeadRow is one hunt lead with its scoring and draft.
type LeadRow struct {
	CompanyName      string `csv:"Company Name"`
	Website          string `csv:"Website"`
	TherapeuticArea  string `csv:"Therapeutic Area"`
	ClinicalPhase    string `csv:"Clinical Phase"`
	ImagingSignal    string `csv:"Imaging Signal"`
	SourceURL        string `csv:"Source URL"`
	DiscoverySource  string `csv:"Discovery Source"`
	SourcePriority   string `csv:"Source Priority"`
	SearchRound      string `csv:"Search Round"`
	ICPScore         string `csv:"ICP Score"`
	ScoreBreakdown   string `csv:"Score Breakdown"`
	Qualified        string `csv:"Qualified"`
	Disqualification string `csv:"Disqualification Reason"`
	BuyingSignal     string `csv:"Buying Signal"`
	RecommendedOffer string `csv:"Recommended Offer"`
	Reasoning        string `csv:"Reasoning Summary"`
	ContactPersona   string `csv:"Contact Persona"`
	ContactName      string `csv:"Contact Name"`
	ContactTitle     string `csv:"Contact Title"`
	ContactLinkedIn  string `csv:"Contact LinkedIn"`
	Subjects         string `csv:"Subject Lines"`
	PrimaryEmail     string `csv:"Primary Email"`
	Variant1         string `csv:"Email Variant 1 (De-risk)"`
	Variant2         string `csv:"Email Variant 2 (Scale-up)"`
	LinkedInMessage  string `csv:"LinkedIn Message"`
	FollowUpEmail    string `csv:"Follow-up Email"`
}

// LeadRowFrom flattens a lead. Unscored and undrafted leads leave the
// corresponding columns empty.
func LeadRowFrom(l model.Lead) LeadRow {
	row := LeadRow{
		CompanyName:     l.CompanyName,
		Website:         l.Website,
		TherapeuticArea: l.TherapeuticArea,
		ClinicalPhase:   l.ClinicalPhase,
		ImagingSignal:   l.ImagingSignal,
		SourceURL:       l.SourceURL,
	}
	if p := l.Provenance; p != nil {
		row.DiscoverySource = p.SourceName
		row.SourcePriority = fmt.Sprint(p.SourcePriority)
		row.SearchRound = fmt.Sprint(p.Round)
		if row.SourceURL == "" {
			row.SourceURL = p.SourceURL
		}
	}
	if s := l.Scoring; s != nil {
		b := s.Breakdown
		row.ICPScore = fmt.Sprint(s.ICPScore)
		row.ScoreBreakdown = fmt.Sprintf("base_company_fit: %d; phase_match: %d; imaging_materiality: %d; why_now_trigger: %d; complexity_bonus: %d",
			b.BaseCompanyFit, b.PhaseMatch, b.ImagingMateriality, b.WhyNowTrigger, b.ComplexityBonus)
		row.Qualified = "No"
		if s.Qualified {
			row.Qualified = "Yes"
		}
		row.Disqualification = s.DisqualificationReason
		row.BuyingSignal = s.BuyingSignal
		row.RecommendedOffer = s.RecommendedOffer
		row.Reasoning = s.ReasoningChain
		if r := []rune(row.Reasoning); len(r) > maxReasoning {
			row.Reasoning = string(r[:maxReasoning]) + "..."
		}
	}
	if d := l.Draft; d != nil {
		row.ContactPersona = d.ContactPersona
		row.ContactName = d.ContactName
		row.ContactTitle = d.ContactTitle
		row.ContactLinkedIn = d.ContactLinkedIn
		row.Subjects = joinList(d.SubjectOptions)
		row.PrimaryEmail = d.PrimaryEmail
		row.Variant1 = d.Variant1
		row.Variant2 = d.Variant2
		row.LinkedInMessage = d.LinkedInMessage
		row.FollowUpEmail = d.FollowUpEmail
	}
	return row
}

// Leads writes hunt leads in the given format.
func Leads(w io.Writer, f Format, leads []model.Lead) error {
	rows := make([]LeadRow, len(leads))
	for i, l := range leads {
		rows[i] = LeadRowFrom(l)
	}
	return write(w, f, "Leads", rows)
}
