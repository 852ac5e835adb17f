package history

import (
	"github.com/sells-group/pharmhunter/internal/model"
	"github.com/sells-group/pharmhunter/internal/names"
)

// DefaultMatchThreshold is the similarity at which a candidate is treated
// as a company already in history.
const DefaultMatchThreshold = 85

// Resolution is the outcome of resolving one batch.
type Resolution struct {
	Kept           []model.Candidate
	DuplicateCount int
	Details        []model.DuplicateDetail
	// Unidentified lists candidate names that normalize to nothing. They
	// are dropped without being counted as duplicates.
	Unidentified []string
}

// Resolver splits candidates into new companies and duplicates. It keeps no
// state between calls.
type Resolver struct {
	Threshold int
}

// NewResolver returns a resolver; a threshold outside 1-100 falls back to
// DefaultMatchThreshold.
func NewResolver(threshold int) Resolver {
	if threshold <= 0 || threshold > 100 {
		threshold = DefaultMatchThreshold
	}
	return Resolver{Threshold: threshold}
}

type indexed struct {
	rec        *Record
	normalized string
}

// Resolve processes candidates in order. A candidate whose normalized name
// was already kept earlier in the batch is a batch duplicate; otherwise the
// best history match at or above the threshold makes it a history duplicate.
// A name with no identity left after normalization matches nothing and is
// never kept.
func (r Resolver) Resolve(candidates []model.Candidate, snapshot []Record) Resolution {
	threshold := r.Threshold
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}

	index := make([]indexed, len(snapshot))
	byName := make(map[string]*Record, len(snapshot))
	for i := range snapshot {
		n := snapshot[i].NormalizedName
		if n == "" {
			n = names.Normalize(snapshot[i].CompanyName)
		}
		index[i] = indexed{rec: &snapshot[i], normalized: n}
		if _, ok := byName[n]; !ok {
			byName[n] = &snapshot[i]
		}
	}

	var res Resolution
	seen := make(map[string]bool)

	for _, c := range candidates {
		n := names.Normalize(c.CompanyName)
		if n == "" {
			res.Unidentified = append(res.Unidentified, c.CompanyName)
			continue
		}

		if seen[n] {
			res.Details = append(res.Details, model.DuplicateDetail{
				CandidateName: c.CompanyName,
				Reason:        model.ReasonDuplicateInBatch,
				MatchedName:   model.BatchDuplicateName,
				MatchScore:    100,
			})
			continue
		}

		if match, score := bestMatch(n, byName, index); match != nil && score >= threshold {
			lastSeen := match.LastSeen
			res.Details = append(res.Details, model.DuplicateDetail{
				CandidateName:   c.CompanyName,
				Reason:          model.ReasonFoundInHistory,
				MatchedName:     match.CompanyName,
				MatchScore:      score,
				LastSeen:        &lastSeen,
				TimesDiscovered: match.TimesDiscovered,
			})
			continue
		}

		res.Kept = append(res.Kept, c)
		seen[n] = true
	}

	res.DuplicateCount = len(res.Details)
	return res
}

func bestMatch(n string, byName map[string]*Record, index []indexed) (*Record, int) {
	if n == "" {
		return nil, 0
	}
	if rec, ok := byName[n]; ok {
		return rec, 100
	}
	var best *Record
	bestScore := 0
	for _, ix := range index {
		if s := names.ScoreNormalized(n, ix.normalized); s > bestScore {
			best, bestScore = ix.rec, s
		}
	}
	return best, bestScore
}
