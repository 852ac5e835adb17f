package planner

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sells-group/pharmhunter/internal/model"
)

// UnknownSource is the name attributed to results from unconfigured domains.
const UnknownSource = "Unknown"

// RoundPlan is everything the controller needs to run one search round.
type RoundPlan struct {
	Round   int      `json:"round"`
	Tier    int      `json:"tier"`
	Source  Source   `json:"source"`
	Domains []string `json:"domains"`
	Queries []string `json:"queries"`
}

// Planner turns a Policy into per-round plans. It is immutable and safe for
// concurrent use.
type Planner struct {
	policy Policy
}

// New creates a Planner for the given policy.
func New(p Policy) *Planner {
	return &Planner{policy: p}
}

// Default creates a Planner with the built-in policy.
func Default() *Planner {
	return New(DefaultPolicy())
}

// Policy returns the planner's policy.
func (p *Planner) Policy() Policy {
	return p.policy
}

// Sources returns the sources of exactly one tier, in policy order.
func (p *Planner) Sources(tier int) []Source {
	var out []Source
	for _, s := range p.policy.Sources {
		if s.Tier == tier {
			out = append(out, s)
		}
	}
	return out
}

// DomainsForTier returns the union of domains of every tier up to and
// including maxTier. Order follows tier then policy order; no duplicates.
func (p *Planner) DomainsForTier(maxTier int) []string {
	seen := make(map[string]bool)
	var out []string
	for tier := TierRegistry; tier <= maxTier && tier <= TierExpanded; tier++ {
		for _, s := range p.Sources(tier) {
			for _, d := range s.Domains {
				if !seen[d] {
					seen[d] = true
					out = append(out, d)
				}
			}
		}
	}
	return out
}

// SourceForDomain attributes a URL or bare domain to a configured source.
// Unmatched input yields a synthetic tier-3 "Unknown" source so every result
// is attributable.
func (p *Planner) SourceForDomain(raw string) Source {
	host := hostOf(raw)
	if host != "" {
		for _, s := range p.policy.Sources {
			for _, d := range s.Domains {
				if strings.Contains(host, strings.ToLower(d)) {
					return s
				}
			}
		}
	}
	return Source{
		Name:   UnknownSource,
		Tier:   TierExpanded,
		Weight: p.policy.UnknownWeight,
	}
}

func hostOf(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return raw
}

// TierForRound maps a round number to its source tier.
func TierForRound(round int) int {
	switch {
	case round <= 1:
		return TierRegistry
	case round == 2:
		return TierAggregator
	default:
		return TierExpanded
	}
}

// Round builds the plan for round r (1-based).
func (p *Planner) Round(r int, params model.HuntParams) RoundPlan {
	tier := TierForRound(r)
	plan := RoundPlan{
		Round:   r,
		Tier:    tier,
		Domains: p.DomainsForTier(tier),
	}
	if sources := p.Sources(tier); len(sources) > 0 {
		plan.Source = sources[0]
	} else {
		plan.Source = p.SourceForDomain("")
	}

	switch tier {
	case TierRegistry:
		plan.Queries = p.registryQueries(plan.Source, params)
	case TierAggregator:
		plan.Queries = aggregatorQueries(params)
	default:
		plan.Queries = p.expandedQueries(r, params)
	}
	return plan
}

func (p *Planner) registryQueries(src Source, params model.HuntParams) []string {
	site := "clinicaltrials.gov"
	if len(src.Domains) > 0 {
		site = src.Domains[0]
	}
	return []string{
		fmt.Sprintf("site:%s %s %s imaging RECIST", site, params.Focus, params.Phase),
		fmt.Sprintf("site:%s %s %s PET MRI endpoints", site, params.Focus, params.Phase),
		fmt.Sprintf("site:%s %s clinical trial imaging biomarker", site, params.Focus),
		fmt.Sprintf("site:%s %s %s central imaging read", site, params.Focus, params.Phase),
	}
}

func aggregatorQueries(params model.HuntParams) []string {
	return []string{
		fmt.Sprintf("%s biotech %s trial imaging endpoints", params.Focus, params.Phase),
		fmt.Sprintf("%s biopharma company initiates %s imaging", params.Focus, params.Phase),
		fmt.Sprintf("%s clinical trial imaging RECIST PET announcement", params.Focus),
		fmt.Sprintf("biopharma %s first patient dosed imaging trial", params.Focus),
	}
}

// expandedQueries broadens the search. Rounds past the third slide the
// adjacency window forward so each extra round asks something new.
func (p *Planner) expandedQueries(r int, params model.HuntParams) []string {
	offset := (r - TierExpanded) * p.policy.MaxExpandedAreas
	areas := window(p.AdjacentAreas(params.Focus), offset, p.policy.MaxExpandedAreas)

	offset = (r - TierExpanded) * p.policy.MaxExpandedPhase
	phases := window(p.ExpandedPhases(params.Phase), offset, p.policy.MaxExpandedPhase)

	var queries []string
	for _, area := range areas {
		queries = append(queries, fmt.Sprintf("%s biotech imaging clinical trial %s", area, params.Phase))
	}
	for _, ph := range phases {
		queries = append(queries, fmt.Sprintf("%s biopharma %s imaging endpoints", params.Focus, ph))
	}
	queries = append(queries,
		fmt.Sprintf("%s biotech Series B funding imaging trial", params.Focus),
		fmt.Sprintf("%s pharmaceutical company IPO clinical imaging", params.Focus),
	)
	return queries
}

// AdjacentAreas returns related therapeutic areas for the focus.
func (p *Planner) AdjacentAreas(focus string) []string {
	return lookup(p.policy.AreaAdjacency, focus)
}

// ExpandedPhases returns neighbouring clinical phases.
func (p *Planner) ExpandedPhases(phase string) []string {
	return lookup(p.policy.PhaseExpansion, phase)
}

// lookup returns the related terms of the first entry whose key appears in
// value, case-insensitively.
func lookup(table []Adjacency, value string) []string {
	v := strings.ToLower(value)
	for _, a := range table {
		if a.Key != "" && strings.Contains(v, strings.ToLower(a.Key)) {
			return append([]string(nil), a.Related...)
		}
	}
	return nil
}

// window takes n items starting at offset, wrapping around the list.
func window(items []string, offset, n int) []string {
	if len(items) == 0 || n <= 0 {
		return nil
	}
	if n > len(items) {
		n = len(items)
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, items[(offset+i)%len(items)])
	}
	return out
}
