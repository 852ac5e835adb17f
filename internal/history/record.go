// Package history remembers every company a hunt has surfaced so later hunts
// report only new prospects.
package history

import (
	"slices"
	"time"

	"github.com/sells-group/pharmhunter/internal/model"
	"github.com/sells-group/pharmhunter/internal/names"
)

// Record is the durable identity of one company across hunts. NormalizedName
// is the unique key.
type Record struct {
	CompanyName      string    `json:"company_name"`
	NormalizedName   string    `json:"normalized_name"`
	Website          string    `json:"website,omitempty"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	TimesDiscovered  int       `json:"times_discovered"`
	HuntIDs          []string  `json:"hunt_ids"`
	TherapeuticAreas []string  `json:"therapeutic_areas"`
	ClinicalPhases   []string  `json:"clinical_phases"`
	ICPScores        []int     `json:"icp_scores"`
	BestScore        *int      `json:"best_score"`
	WasQualified     bool      `json:"was_qualified"`
	SourceURLs       []string  `json:"source_urls"`
}

// Encounter is what history learns from one sighting of a company. Every
// field except CompanyName is optional.
type Encounter struct {
	CompanyName     string
	HuntID          string
	Website         string
	TherapeuticArea string
	ClinicalPhase   string
	SourceURL       string
	ICPScore        *int
	Qualified       bool
}

// EncounterFrom projects a lead into an encounter. Scoring fields are set
// only when the lead was scored.
func EncounterFrom(l model.Lead, huntID string) Encounter {
	e := Encounter{
		CompanyName:     l.CompanyName,
		HuntID:          huntID,
		Website:         l.Website,
		TherapeuticArea: l.TherapeuticArea,
		ClinicalPhase:   l.ClinicalPhase,
		SourceURL:       l.SourceURL,
	}
	if e.SourceURL == "" && l.Provenance != nil {
		e.SourceURL = l.Provenance.SourceURL
	}
	if l.Scoring != nil {
		score := l.Scoring.ICPScore
		e.ICPScore = &score
		e.Qualified = l.Scoring.Qualified
	}
	return e
}

// NormalizedName is the history key the encounter belongs to.
func (e Encounter) NormalizedName() string {
	return names.Normalize(e.CompanyName)
}

// NewRecord creates the record for a first sighting.
func NewRecord(e Encounter, now time.Time) Record {
	r := Record{
		CompanyName:    e.CompanyName,
		NormalizedName: e.NormalizedName(),
		FirstSeen:      now,
		LastSeen:       now,
	}
	r.merge(e)
	r.TimesDiscovered = 1
	return r
}

// Apply merges a later sighting into the record. Lists only grow; the
// website is filled only when empty.
func (r *Record) Apply(e Encounter, now time.Time) {
	r.LastSeen = now
	r.TimesDiscovered++
	r.merge(e)
}

func (r *Record) merge(e Encounter) {
	r.HuntIDs = appendUnique(r.HuntIDs, e.HuntID)
	r.TherapeuticAreas = appendUnique(r.TherapeuticAreas, e.TherapeuticArea)
	r.ClinicalPhases = appendUnique(r.ClinicalPhases, e.ClinicalPhase)
	r.SourceURLs = appendUnique(r.SourceURLs, e.SourceURL)

	if e.ICPScore != nil {
		r.ICPScores = append(r.ICPScores, *e.ICPScore)
		if r.BestScore == nil || *e.ICPScore > *r.BestScore {
			best := *e.ICPScore
			r.BestScore = &best
		}
		if e.Qualified {
			r.WasQualified = true
		}
	}
	if r.Website == "" {
		r.Website = e.Website
	}
}

// Merge folds another record for the same company into r. It is
// idempotent, so importing the same file twice changes nothing.
func (r *Record) Merge(o Record) {
	if !o.FirstSeen.IsZero() && (r.FirstSeen.IsZero() || o.FirstSeen.Before(r.FirstSeen)) {
		r.FirstSeen = o.FirstSeen
	}
	if o.LastSeen.After(r.LastSeen) {
		r.LastSeen = o.LastSeen
	}
	r.TimesDiscovered = max(r.TimesDiscovered, o.TimesDiscovered)
	for _, v := range o.HuntIDs {
		r.HuntIDs = appendUnique(r.HuntIDs, v)
	}
	for _, v := range o.TherapeuticAreas {
		r.TherapeuticAreas = appendUnique(r.TherapeuticAreas, v)
	}
	for _, v := range o.ClinicalPhases {
		r.ClinicalPhases = appendUnique(r.ClinicalPhases, v)
	}
	for _, v := range o.SourceURLs {
		r.SourceURLs = appendUnique(r.SourceURLs, v)
	}
	if len(o.ICPScores) > len(r.ICPScores) {
		r.ICPScores = slices.Clone(o.ICPScores)
	}
	if o.BestScore != nil && (r.BestScore == nil || *o.BestScore > *r.BestScore) {
		best := *o.BestScore
		r.BestScore = &best
	}
	r.WasQualified = r.WasQualified || o.WasQualified
	if r.Website == "" {
		r.Website = o.Website
	}
}

func appendUnique(list []string, v string) []string {
	if v == "" || slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

// HuntSummary records the outcome of one hunt.
type HuntSummary struct {
	HuntID             string         `json:"hunt_id"`
	Timestamp          time.Time      `json:"timestamp"`
	CompaniesFound     int            `json:"companies_found"`
	NewCompanies       int            `json:"new_companies"`
	DuplicatesFiltered int            `json:"duplicates_filtered"`
	QualifiedCount     int            `json:"qualified_count"`
	Params             map[string]any `json:"params"`
}

// Statistics aggregates the whole history.
type Statistics struct {
	TotalCompanies        int            `json:"total_companies"`
	TotalHunts            int            `json:"total_hunts"`
	QualifiedCompanies    int            `json:"qualified_companies"`
	DisqualifiedCompanies int            `json:"disqualified_companies"`
	AverageBestScore      float64        `json:"average_best_score"`
	AreaDistribution      map[string]int `json:"therapeutic_area_distribution"`
}

// ComputeStatistics summarizes records and a hunt count.
func ComputeStatistics(records []Record, hunts int) Statistics {
	st := Statistics{
		TotalCompanies:   len(records),
		TotalHunts:       hunts,
		AreaDistribution: make(map[string]int),
	}
	var sum, scored int
	for _, r := range records {
		if r.WasQualified {
			st.QualifiedCompanies++
		}
		if r.BestScore != nil {
			sum += *r.BestScore
			scored++
		}
		for _, a := range r.TherapeuticAreas {
			st.AreaDistribution[a]++
		}
	}
	st.DisqualifiedCompanies = st.TotalCompanies - st.QualifiedCompanies
	if scored > 0 {
		avg := float64(sum) / float64(scored)
		st.AverageBestScore = float64(int(avg*10+0.5)) / 10
	}
	return st
}
