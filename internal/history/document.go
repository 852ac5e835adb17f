package history

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pharmhunter/internal/names"
)

// DocumentVersion is the schema version written by Export.
const DocumentVersion = "1.0"

// Document is the whole history as a single JSON file. It is also the
// format of legacy history files accepted by Import.
type Document struct {
	Version        string                 `json:"version"`
	CreatedAt      time.Time              `json:"created_at"`
	LastUpdated    time.Time              `json:"last_updated"`
	TotalCompanies int                    `json:"total_companies"`
	TotalHunts     int                    `json:"total_hunts"`
	Companies      []Record               `json:"companies"`
	HuntSummary    map[string]HuntSummary `json:"hunt_summary"`
}

// Export writes the full history to w as an indented Document.
func Export(ctx context.Context, s Store, w io.Writer) error {
	records, err := s.LoadAll(ctx)
	if err != nil {
		return err
	}
	hunts, err := s.ListHunts(ctx, 0)
	if err != nil {
		return err
	}

	doc := Document{
		Version:        DocumentVersion,
		TotalCompanies: len(records),
		TotalHunts:     len(hunts),
		Companies:      records,
		HuntSummary:    make(map[string]HuntSummary, len(hunts)),
	}
	if doc.Companies == nil {
		doc.Companies = []Record{}
	}
	for _, r := range records {
		if doc.CreatedAt.IsZero() || r.FirstSeen.Before(doc.CreatedAt) {
			doc.CreatedAt = r.FirstSeen
		}
		if r.LastSeen.After(doc.LastUpdated) {
			doc.LastUpdated = r.LastSeen
		}
	}
	for _, h := range hunts {
		doc.HuntSummary[h.HuntID] = h
		if h.Timestamp.After(doc.LastUpdated) {
			doc.LastUpdated = h.Timestamp
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(doc), "history: encode document")
}

// ImportResult counts what an import wrote.
type ImportResult struct {
	Companies int `json:"companies"`
	Merged    int `json:"merged"`
	Hunts     int `json:"hunts"`
}

// flexTime accepts RFC 3339 timestamps as well as the zone-less ISO 8601
// timestamps found in older history files, which are read as UTC.
type flexTime struct{ time.Time }

var flexLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func (t *flexTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	for _, layout := range flexLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v.UTC()
			return nil
		}
	}
	return eris.Errorf("history: unrecognised timestamp %q", s)
}

type importRecord struct {
	Record
	FirstSeen flexTime `json:"first_seen"`
	LastSeen  flexTime `json:"last_seen"`
}

type importHunt struct {
	HuntSummary
	Timestamp flexTime `json:"timestamp"`
}

type importDocument struct {
	Companies   []importRecord        `json:"companies"`
	HuntSummary map[string]importHunt `json:"hunt_summary"`
}

// bulkUpserter is implemented by stores that can write many records at once.
type bulkUpserter interface {
	UpsertMany(ctx context.Context, recs []Record) (int64, error)
}

// Import merges a Document into the store. Records that already exist are
// merged, never replaced, so importing the same file twice is harmless.
func Import(ctx context.Context, s Store, r io.Reader) (ImportResult, error) {
	var doc importDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return ImportResult{}, eris.Wrap(err, "history: decode document")
	}

	recs := make([]Record, 0, len(doc.Companies))
	for _, ir := range doc.Companies {
		rec := ir.Record
		rec.FirstSeen, rec.LastSeen = ir.FirstSeen.Time, ir.LastSeen.Time
		recs = append(recs, rec)
	}
	res, err := ImportRecords(ctx, s, recs)
	if err != nil {
		return res, err
	}

	ids := make([]string, 0, len(doc.HuntSummary))
	for id := range doc.HuntSummary {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		ih := doc.HuntSummary[id]
		h := ih.HuntSummary
		h.Timestamp = ih.Timestamp.Time
		if h.HuntID == "" {
			h.HuntID = id
		}
		if err := s.SaveHunt(ctx, h); err != nil {
			return res, err
		}
		res.Hunts++
	}
	return res, nil
}

// ImportRecords merges records into the store the same way Import does.
// Records missing a normalized name get one from the display name.
func ImportRecords(ctx context.Context, s Store, recs []Record) (ImportResult, error) {
	var res ImportResult
	byKey := make(map[string]*Record)
	var order []string
	for _, rec := range recs {
		if rec.NormalizedName == "" {
			rec.NormalizedName = names.Normalize(rec.CompanyName)
		}
		if rec.NormalizedName == "" {
			zap.L().Warn("history: skipping unnamed record in import")
			continue
		}
		if rec.TimesDiscovered <= 0 {
			rec.TimesDiscovered = 1
		}
		if prev, ok := byKey[rec.NormalizedName]; ok {
			prev.Merge(rec)
			continue
		}
		byKey[rec.NormalizedName] = &rec
		order = append(order, rec.NormalizedName)
	}

	merged := make([]Record, 0, len(order))
	for _, key := range order {
		rec := byKey[key]
		existing, err := s.Get(ctx, key)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return res, err
		default:
			existing.Merge(*rec)
			rec = existing
			res.Merged++
		}
		merged = append(merged, *rec)
	}

	if bu, ok := s.(bulkUpserter); ok && len(merged) > 0 {
		if _, err := bu.UpsertMany(ctx, merged); err != nil {
			return res, err
		}
	} else {
		for _, rec := range merged {
			if err := s.Upsert(ctx, rec); err != nil {
				return res, err
			}
		}
	}
	res.Companies = len(merged)
	return res, nil
}
