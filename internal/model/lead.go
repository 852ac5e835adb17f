package model

import "time"

// Provenance records where a candidate was discovered.
type Provenance struct {
	SourceName     string    `json:"discovered_from_source"`
	SourceURL      string    `json:"source_url"`
	SourcePriority int       `json:"source_priority"`
	DiscoveredAt   time.Time `json:"discovery_timestamp"`
	Round          int       `json:"search_round"`
	Query          string    `json:"search_query,omitempty"`
}

// Candidate is a company surfaced by discovery before any scoring or
// persistence. Candidates are immutable once extracted.
type Candidate struct {
	CompanyName     string      `json:"company_name"`
	Website         string      `json:"website,omitempty"`
	TherapeuticArea string      `json:"therapeutic_area"`
	ClinicalPhase   string      `json:"clinical_phase"`
	ImagingSignal   string      `json:"imaging_signal"`
	SourceURL       string      `json:"source_url,omitempty"`
	Provenance      *Provenance `json:"provenance,omitempty"`
	Rank            int         `json:"raw_search_rank,omitempty"`
}

// ScoreBreakdown splits an ICP score into its rubric components.
type ScoreBreakdown struct {
	BaseCompanyFit     int `json:"base_company_fit"`
	PhaseMatch         int `json:"phase_match"`
	ImagingMateriality int `json:"imaging_materiality"`
	WhyNowTrigger      int `json:"why_now_trigger"`
	ComplexityBonus    int `json:"complexity_bonus"`
}

// Total sums all breakdown components.
func (b ScoreBreakdown) Total() int {
	return b.BaseCompanyFit + b.PhaseMatch + b.ImagingMateriality + b.WhyNowTrigger + b.ComplexityBonus
}

// Scoring is the ICP qualification result for a candidate.
type Scoring struct {
	ICPScore               int            `json:"icp_score"`
	Qualified              bool           `json:"is_qualified"`
	DisqualificationReason string         `json:"disqualification_reason,omitempty"`
	BuyingSignal           string         `json:"buying_signal"`
	RecommendedOffer       string         `json:"recommended_offer"`
	ReasoningChain         string         `json:"reasoning_chain,omitempty"`
	Breakdown              ScoreBreakdown `json:"score_breakdown"`
	Explanation            string         `json:"score_explanation,omitempty"`
	ScoredAt               time.Time      `json:"scoring_timestamp"`
}

// Draft is the outreach copy written for a qualified lead.
type Draft struct {
	ContactPersona  string   `json:"contact_persona"`
	ContactName     string   `json:"contact_name,omitempty"`
	ContactTitle    string   `json:"contact_title,omitempty"`
	ContactLinkedIn string   `json:"contact_linkedin,omitempty"`
	SubjectOptions  []string `json:"email_subject_options"`
	PrimaryEmail    string   `json:"email_body_primary"`
	Variant1        string   `json:"email_variant_1,omitempty"`
	Variant2        string   `json:"email_variant_2,omitempty"`
	LinkedInMessage string   `json:"linkedin_message"`
	FollowUpEmail   string   `json:"follow_up_email,omitempty"`
}

// Lead combines a candidate with the optional results of later stages.
// A lead may be scored without being drafted.
type Lead struct {
	Candidate
	Scoring *Scoring `json:"scoring,omitempty"`
	Draft   *Draft   `json:"draft,omitempty"`
}

// NewLead wraps a candidate with no scoring or draft.
func NewLead(c Candidate) Lead {
	return Lead{Candidate: c}
}

// IsScored reports whether ICP scoring has run for the lead.
func (l Lead) IsScored() bool { return l.Scoring != nil }

// IsQualified reports whether the lead was scored and qualified.
func (l Lead) IsQualified() bool { return l.Scoring != nil && l.Scoring.Qualified }

// IsDrafted reports whether outreach has been drafted for the lead.
func (l Lead) IsDrafted() bool { return l.Draft != nil }
