// Package planner holds the tiered source policy and turns hunt parameters
// into per-round search plans.
package planner

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Source tiers.
const (
	TierRegistry   = 1
	TierAggregator = 2
	TierExpanded   = 3
)

// Source describes a searchable web source.
type Source struct {
	Name        string   `yaml:"name" json:"name"`
	Domains     []string `yaml:"domains" json:"domains"`
	Tier        int      `yaml:"tier" json:"tier"`
	Weight      float64  `yaml:"weight" json:"weight"`
	Description string   `yaml:"description" json:"description,omitempty"`
}

// Adjacency maps a key (matched case-insensitively as a substring) to
// related terms used to broaden later rounds.
type Adjacency struct {
	Key     string   `yaml:"key" json:"key"`
	Related []string `yaml:"related" json:"related"`
}

// Policy is the static source and expansion configuration.
type Policy struct {
	Sources          []Source    `yaml:"sources"`
	AreaAdjacency    []Adjacency `yaml:"therapeutic_adjacency"`
	PhaseExpansion   []Adjacency `yaml:"phase_expansion"`
	UnknownWeight    float64     `yaml:"unknown_weight"`
	MaxExpandedAreas int         `yaml:"max_expanded_areas"`
	MaxExpandedPhase int         `yaml:"max_expanded_phases"`
}

// DefaultPolicy returns the built-in biopharma source policy.
func DefaultPolicy() Policy {
	return Policy{
		Sources: []Source{
			{Name: "ClinicalTrials.gov", Domains: []string{"clinicaltrials.gov"}, Tier: TierRegistry, Weight: 1.0,
				Description: "Official registry of clinical trials"},

			{Name: "FierceBiotech", Domains: []string{"fiercebiotech.com"}, Tier: TierAggregator, Weight: 0.85,
				Description: "Biotech industry news and analysis"},
			{Name: "BioSpace", Domains: []string{"biospace.com"}, Tier: TierAggregator, Weight: 0.80,
				Description: "Life sciences news and jobs"},
			{Name: "Endpoints News", Domains: []string{"endpts.com"}, Tier: TierAggregator, Weight: 0.80,
				Description: "Biopharma R&D news"},
			{Name: "GenEngNews", Domains: []string{"genengnews.com"}, Tier: TierAggregator, Weight: 0.75,
				Description: "Genetic engineering and biotech news"},
			{Name: "BioPharma Dive", Domains: []string{"biopharmadive.com"}, Tier: TierAggregator, Weight: 0.75,
				Description: "Biopharma business news"},

			{Name: "PitchBook", Domains: []string{"pitchbook.com"}, Tier: TierExpanded, Weight: 0.60,
				Description: "Private market funding data"},
			{Name: "Evaluate Pharma", Domains: []string{"evaluate.com"}, Tier: TierExpanded, Weight: 0.60,
				Description: "Pharma pipeline intelligence"},
			{Name: "SEC Filings", Domains: []string{"sec.gov"}, Tier: TierExpanded, Weight: 0.55,
				Description: "Public company filings"},
			{Name: "BusinessWire", Domains: []string{"businesswire.com"}, Tier: TierExpanded, Weight: 0.50,
				Description: "Press releases"},
			{Name: "PR Newswire", Domains: []string{"prnewswire.com"}, Tier: TierExpanded, Weight: 0.50,
				Description: "Press releases"},
		},
		AreaAdjacency: []Adjacency{
			{Key: "Oncology", Related: []string{"Immunotherapy", "Radiopharma", "Hematology", "Solid Tumors"}},
			{Key: "Radiopharma", Related: []string{"Oncology", "Nuclear Medicine", "Theranostics", "PET Imaging"}},
			{Key: "CNS", Related: []string{"Neurology", "Neurodegeneration", "Psychiatry", "Brain Imaging"}},
			{Key: "Immunotherapy", Related: []string{"Oncology", "Autoimmune", "Cell Therapy", "Biologics"}},
			{Key: "Cardiology", Related: []string{"Cardiovascular", "Heart Failure", "Cardiac Imaging"}},
		},
		PhaseExpansion: []Adjacency{
			{Key: "Phase 2", Related: []string{"Phase 1/2", "Phase 2/3", "Late Phase 1"}},
			{Key: "Phase 1", Related: []string{"Phase 1/2", "Preclinical", "IND-enabling"}},
			{Key: "Phase 3", Related: []string{"Phase 2/3", "Pivotal", "Registration"}},
		},
		UnknownWeight:    0.4,
		MaxExpandedAreas: 2,
		MaxExpandedPhase: 2,
	}
}

// LoadPolicy reads a YAML policy file. Fields left empty in the file keep the
// built-in defaults.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, eris.Wrapf(err, "planner: read policy %s", path)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes YAML policy bytes over the default policy.
func ParsePolicy(data []byte) (Policy, error) {
	var override Policy
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Policy{}, eris.Wrap(err, "planner: parse policy")
	}

	p := DefaultPolicy()
	if len(override.Sources) > 0 {
		p.Sources = override.Sources
	}
	if len(override.AreaAdjacency) > 0 {
		p.AreaAdjacency = override.AreaAdjacency
	}
	if len(override.PhaseExpansion) > 0 {
		p.PhaseExpansion = override.PhaseExpansion
	}
	if override.UnknownWeight > 0 {
		p.UnknownWeight = override.UnknownWeight
	}
	if override.MaxExpandedAreas > 0 {
		p.MaxExpandedAreas = override.MaxExpandedAreas
	}
	if override.MaxExpandedPhase > 0 {
		p.MaxExpandedPhase = override.MaxExpandedPhase
	}

	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks that every tier has at least one source.
func (p Policy) Validate() error {
	seen := map[int]bool{}
	for _, s := range p.Sources {
		if s.Name == "" {
			return eris.New("planner: source name is required")
		}
		if s.Tier < TierRegistry || s.Tier > TierExpanded {
			return eris.Errorf("planner: source %q has invalid tier %d", s.Name, s.Tier)
		}
		if s.Weight < 0 || s.Weight > 1 {
			return eris.Errorf("planner: source %q weight %.2f outside [0,1]", s.Name, s.Weight)
		}
		seen[s.Tier] = true
	}
	for tier := TierRegistry; tier <= TierExpanded; tier++ {
		if !seen[tier] {
			return eris.Errorf("planner: tier %d has no sources", tier)
		}
	}
	return nil
}
