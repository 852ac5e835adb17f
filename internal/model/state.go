package model

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Pipeline stage names.
const (
	StageDiscovery = "discovery"
	StageScoring   = "scoring"
	StageDrafting  = "drafting"
	StagePersist   = "persist"
)

// StageRecord captures one pipeline stage's timing and throughput.
type StageRecord struct {
	Name        string         `json:"stage_name"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	InputCount  int            `json:"input_count"`
	OutputCount int            `json:"output_count"`
	Details     map[string]any `json:"details,omitempty"`
}

// Duration is zero until the stage completes.
func (s StageRecord) Duration() time.Duration {
	if s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// PipelineState is the explicit run state handed from stage to stage.
// It is safe for concurrent use; fan-out stages record errors from workers.
type PipelineState struct {
	mu sync.Mutex

	HuntID     string        `json:"hunt_id"`
	Params     HuntParams    `json:"hunt_params"`
	Ledger     *SearchLedger `json:"search_ledger,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`

	TopOfFunnelCount     int      `json:"top_of_funnel_count"`
	TopOfFunnelCompanies []string `json:"top_of_funnel_companies"`

	DuplicatesFiltered int               `json:"duplicates_filtered"`
	NewCompaniesFound  int               `json:"new_companies_found"`
	DuplicateDetails   []DuplicateDetail `json:"duplicate_details"`

	ScoredCount       int `json:"scored_count"`
	QualifiedCount    int `json:"qualified_count"`
	DisqualifiedCount int `json:"disqualified_count"`
	DraftedCount      int `json:"drafted_count"`

	Stages []StageRecord `json:"stage_data"`
	Errors []string      `json:"errors"`

	Leads []Lead `json:"leads"`

	now func() time.Time
}

// NewPipelineState creates state for a new hunt.
func NewPipelineState(params HuntParams) *PipelineState {
	s := &PipelineState{
		HuntID: uuid.New().String(),
		Params: params,
		now:    time.Now,
	}
	s.StartedAt = s.now()
	return s
}

// StartStage records a stage start. Starting a stage twice restarts it.
func (s *PipelineState) StartStage(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Stages {
		if s.Stages[i].Name == name {
			s.Stages[i] = StageRecord{Name: name, StartedAt: s.clock()}
			return
		}
	}
	s.Stages = append(s.Stages, StageRecord{Name: name, StartedAt: s.clock()})
}

// CompleteStage closes a stage with its counts. A stage that was never
// started is recorded with a zero duration.
func (s *PipelineState) CompleteStage(name string, in, out int, details map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	for i := range s.Stages {
		if s.Stages[i].Name == name {
			s.Stages[i].CompletedAt = &now
			s.Stages[i].InputCount = in
			s.Stages[i].OutputCount = out
			s.Stages[i].Details = details
			return
		}
	}
	s.Stages = append(s.Stages, StageRecord{
		Name: name, StartedAt: now, CompletedAt: &now,
		InputCount: in, OutputCount: out, Details: details,
	})
}

// Stage looks up a stage record by name.
func (s *PipelineState) Stage(name string) (StageRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.Stages {
		if st.Name == name {
			return st, true
		}
	}
	return StageRecord{}, false
}

// AddError records a timestamped, non-fatal error.
func (s *PipelineState) AddError(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	s.Errors = append(s.Errors, fmt.Sprintf("[%s] %s", s.clock().Format("15:04:05"), msg))
}

// ErrorList returns a copy of the recorded errors.
func (s *PipelineState) ErrorList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Errors...)
}

// Finish stamps the finish time.
func (s *PipelineState) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	s.FinishedAt = &now
}

func (s *PipelineState) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
