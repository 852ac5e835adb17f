package history

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when a company or hunt does not exist.
var ErrNotFound = eris.New("history: not found")

// Filter narrows a history query. Zero values mean no constraint.
type Filter struct {
	Search        string `json:"search,omitempty"`
	Area          string `json:"area,omitempty"`
	QualifiedOnly bool   `json:"qualified_only,omitempty"`
	MinScore      int    `json:"min_score,omitempty"`
	SeenSince     time.Time
	Limit         int `json:"limit,omitempty"`
	Offset        int `json:"offset,omitempty"`
}

// Store persists company records and hunt summaries. Implementations make
// ApplyEncounter atomic per record; there is no transaction across records.
type Store interface {
	// Companies
	LoadAll(ctx context.Context) ([]Record, error)
	Get(ctx context.Context, normalizedName string) (*Record, error)
	Upsert(ctx context.Context, rec Record) error
	ApplyEncounter(ctx context.Context, e Encounter, now time.Time) (rec *Record, created bool, err error)
	Query(ctx context.Context, f Filter) ([]Record, error)

	// Hunts
	SaveHunt(ctx context.Context, h HuntSummary) error
	ListHunts(ctx context.Context, limit int) ([]HuntSummary, error)
	CountHunts(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Stats loads the history and aggregates it.
func Stats(ctx context.Context, s Store) (Statistics, error) {
	records, err := s.LoadAll(ctx)
	if err != nil {
		return Statistics{}, err
	}
	hunts, err := s.CountHunts(ctx)
	if err != nil {
		return Statistics{}, err
	}
	return ComputeStatistics(records, hunts), nil
}

const companyColumns = "company_name, normalized_name, website, first_seen, last_seen, times_discovered, " +
	"hunt_ids, therapeutic_areas, clinical_phases, icp_scores, best_score, was_qualified, source_urls"

var companyColumnList = strings.Split(strings.ReplaceAll(companyColumns, " ", ""), ",")

// queryBuilder renders a Filter as SQL. listText converts a JSON list
// column to lower-cased searchable text in the target dialect.
func queryBuilder(f Filter, ph sq.PlaceholderFormat, listText func(col string) string) sq.SelectBuilder {
	b := sq.Select(companyColumnList...).From("companies").PlaceholderFormat(ph)

	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		b = b.Where(sq.Or{
			sq.Like{"LOWER(company_name)": like},
			sq.Like{"normalized_name": like},
		})
	}
	if a := strings.TrimSpace(f.Area); a != "" {
		b = b.Where(sq.Like{listText("therapeutic_areas"): "%" + strings.ToLower(a) + "%"})
	}
	if f.QualifiedOnly {
		b = b.Where(sq.Eq{"was_qualified": true})
	}
	if f.MinScore > 0 {
		b = b.Where(sq.GtOrEq{"best_score": f.MinScore})
	}
	if !f.SeenSince.IsZero() {
		b = b.Where(sq.GtOrEq{"last_seen": f.SeenSince.UTC()})
	}

	b = b.OrderBy("last_seen DESC", "company_name")
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	b = b.Limit(uint64(limit))
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}
	return b
}

// listColumns marshals the JSON list columns of a record.
func listColumns(r Record) (hunts, areas, phases, scores, urls []byte, err error) {
	if hunts, err = marshalList(r.HuntIDs); err != nil {
		return
	}
	if areas, err = marshalList(r.TherapeuticAreas); err != nil {
		return
	}
	if phases, err = marshalList(r.ClinicalPhases); err != nil {
		return
	}
	if scores, err = marshalList(r.ICPScores); err != nil {
		return
	}
	urls, err = marshalList(r.SourceURLs)
	return
}

func marshalList[T any](v []T) ([]byte, error) {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	return b, eris.Wrap(err, "history: marshal list")
}

func unmarshalList[T any](data []byte, dst *[]T) error {
	if len(data) == 0 {
		*dst = nil
		return nil
	}
	return eris.Wrap(json.Unmarshal(data, dst), "history: unmarshal list")
}
