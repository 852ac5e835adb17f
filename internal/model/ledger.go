package model

import (
	"time"

	"github.com/google/uuid"
)

// Duplicate reasons reported by the resolver.
const (
	ReasonDuplicateInBatch = "duplicate_in_batch"
	ReasonFoundInHistory   = "found_in_history"
)

// BatchDuplicateName is the matched name reported for intra-batch duplicates.
const BatchDuplicateName = "batch duplicate"

// SourceRecord is one query execution against the search capability.
type SourceRecord struct {
	SourceName      string    `json:"source_name"`
	SourcePriority  int       `json:"source_priority"`
	QueryText       string    `json:"query_text"`
	QueryTimestamp  time.Time `json:"query_timestamp"`
	ResultsCount    int       `json:"results_count"`
	WasSuccessful   bool      `json:"was_successful"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	DomainsSearched []string  `json:"domains_searched"`
	Round           int       `json:"round"`
}

// DuplicateDetail describes a candidate rejected as a duplicate.
type DuplicateDetail struct {
	CandidateName   string     `json:"company_name"`
	Reason          string     `json:"reason"`
	MatchedName     string     `json:"matched_name"`
	MatchScore      int        `json:"match_score"`
	LastSeen        *time.Time `json:"last_seen,omitempty"`
	TimesDiscovered int        `json:"times_discovered,omitempty"`
}

// SearchLedger is the audit trail of a single discovery run.
type SearchLedger struct {
	SearchID           string            `json:"search_id"`
	Sources            []SourceRecord    `json:"sources_queried"`
	TotalQueries       int               `json:"total_queries"`
	TotalResultsFound  int               `json:"total_results_found"`
	UniqueResultsFound int               `json:"unique_results_found"`
	NewLeads           int               `json:"new_leads"`
	SearchRounds       int               `json:"search_rounds"`
	StartTime          time.Time         `json:"start_time"`
	EndTime            *time.Time        `json:"end_time,omitempty"`
	DuplicatesFiltered int               `json:"duplicates_filtered"`
	DuplicateDetails   []DuplicateDetail `json:"duplicate_details"`
	UnidentifiedNames  []string          `json:"unidentified_names,omitempty"`
	HistoryUnavailable bool              `json:"history_unavailable"`
	HistoryError       string            `json:"history_error,omitempty"`
	Message            string            `json:"message,omitempty"`
}

// NewSearchLedger starts a ledger with a fresh search id.
func NewSearchLedger(now time.Time) *SearchLedger {
	return &SearchLedger{
		SearchID:  uuid.New().String(),
		StartTime: now,
	}
}

// AddSource appends a source record and updates the running totals.
func (l *SearchLedger) AddSource(rec SourceRecord) {
	l.Sources = append(l.Sources, rec)
	l.TotalQueries++
	l.TotalResultsFound += rec.ResultsCount
}

// Finalize stamps the end time.
func (l *SearchLedger) Finalize(now time.Time) {
	l.EndTime = &now
}

// Duration reports how long the run took, or zero while it is still running.
func (l *SearchLedger) Duration() time.Duration {
	if l.EndTime == nil {
		return 0
	}
	return l.EndTime.Sub(l.StartTime)
}

// SourcesForRound returns the records issued in the given round.
func (l *SearchLedger) SourcesForRound(round int) []SourceRecord {
	var out []SourceRecord
	for _, s := range l.Sources {
		if s.Round == round {
			out = append(out, s)
		}
	}
	return out
}

// FailedQueries counts unsuccessful source records.
func (l *SearchLedger) FailedQueries() int {
	n := 0
	for _, s := range l.Sources {
		if !s.WasSuccessful {
			n++
		}
	}
	return n
}
