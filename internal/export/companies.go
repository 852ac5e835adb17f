package export

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pharmhunter/internal/history"
)

// CompanyRow is one history record flattened for a spreadsheet.
type CompanyRow struct {
	CompanyName      string `csv:"Company Name"`
	NormalizedName   string `csv:"Normalized Name"`
	Website          string `csv:"Website"`
	FirstSeen        string `csv:"First Seen"`
	LastSeen         string `csv:"Last Seen"`
	TimesDiscovered  int    `csv:"Times Discovered"`
	TherapeuticAreas string `csv:"Therapeutic Areas"`
	ClinicalPhases   string `csv:"Clinical Phases"`
	ICPScores        string `csv:"ICP Scores"`
	BestScore        *int   `csv:"Best Score"`
	WasQualified     bool   `csv:"Qualified"`
	HuntIDs          string `csv:"Hunt IDs"`
	SourceURLs       string `csv:"Source URLs"`
}

// CompanyRowFrom flattens a record.
func CompanyRowFrom(r history.Record) CompanyRow {
	scores := make([]string, len(r.ICPScores))
	for i, s := range r.ICPScores {
		scores[i] = strconv.Itoa(s)
	}
	return CompanyRow{
		CompanyName:      r.CompanyName,
		NormalizedName:   r.NormalizedName,
		Website:          r.Website,
		FirstSeen:        formatTime(r.FirstSeen),
		LastSeen:         formatTime(r.LastSeen),
		TimesDiscovered:  r.TimesDiscovered,
		TherapeuticAreas: joinList(r.TherapeuticAreas),
		ClinicalPhases:   joinList(r.ClinicalPhases),
		ICPScores:        joinList(scores),
		BestScore:        r.BestScore,
		WasQualified:     r.WasQualified,
		HuntIDs:          joinList(r.HuntIDs),
		SourceURLs:       joinList(r.SourceURLs),
	}
}

// Record rebuilds a history record from a row.
func (c CompanyRow) Record() (history.Record, error) {
	rec := history.Record{
		CompanyName:      c.CompanyName,
		NormalizedName:   c.NormalizedName,
		Website:          c.Website,
		TimesDiscovered:  c.TimesDiscovered,
		TherapeuticAreas: splitList(c.TherapeuticAreas),
		ClinicalPhases:   splitList(c.ClinicalPhases),
		BestScore:        c.BestScore,
		WasQualified:     c.WasQualified,
		HuntIDs:          splitList(c.HuntIDs),
		SourceURLs:       splitList(c.SourceURLs),
	}
	var err error
	if rec.FirstSeen, err = parseTime(c.FirstSeen); err != nil {
		return rec, eris.Wrapf(err, "export: first seen for %q", c.CompanyName)
	}
	if rec.LastSeen, err = parseTime(c.LastSeen); err != nil {
		return rec, eris.Wrapf(err, "export: last seen for %q", c.CompanyName)
	}
	for _, s := range splitList(c.ICPScores) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return rec, eris.Wrapf(err, "export: icp score for %q", c.CompanyName)
		}
		rec.ICPScores = append(rec.ICPScores, n)
	}
	return rec, nil
}

// Companies writes history records in the given format.
func Companies(w io.Writer, f Format, recs []history.Record) error {
	rows := make([]CompanyRow, len(recs))
	for i, r := range recs {
		rows[i] = CompanyRowFrom(r)
	}
	return write(w, f, "Companies", rows)
}

// ReadCompaniesCSV parses a file produced by Companies in CSV format.
// Columns may appear in any order; unknown columns are ignored.
func ReadCompaniesCSV(r io.Reader) ([]history.Record, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "export: read csv header")
	}

	var out []history.Record
	for {
		var row CompanyRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, eris.Wrapf(err, "export: decode row %d", len(out)+1)
		}
		rec, err := row.Record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
