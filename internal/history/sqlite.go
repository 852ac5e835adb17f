package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite file.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLite opens a SQLite database at path and configures WAL mode.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// One writer at a time keeps read-merge-write upserts serialized.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	normalized_name   TEXT PRIMARY KEY,
	company_name      TEXT NOT NULL,
	website           TEXT NOT NULL DEFAULT '',
	first_seen        DATETIME NOT NULL,
	last_seen         DATETIME NOT NULL,
	times_discovered  INTEGER NOT NULL DEFAULT 1,
	hunt_ids          TEXT NOT NULL DEFAULT '[]',
	therapeutic_areas TEXT NOT NULL DEFAULT '[]',
	clinical_phases   TEXT NOT NULL DEFAULT '[]',
	icp_scores        TEXT NOT NULL DEFAULT '[]',
	best_score        INTEGER,
	was_qualified     INTEGER NOT NULL DEFAULT 0,
	source_urls       TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS hunts (
	hunt_id             TEXT PRIMARY KEY,
	timestamp           DATETIME NOT NULL,
	companies_found     INTEGER NOT NULL DEFAULT 0,
	new_companies       INTEGER NOT NULL DEFAULT 0,
	duplicates_filtered INTEGER NOT NULL DEFAULT 0,
	qualified_count     INTEGER NOT NULL DEFAULT 0,
	params              TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_companies_last_seen ON companies(last_seen);
CREATE INDEX IF NOT EXISTS idx_hunts_timestamp ON hunts(timestamp);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteRecord struct {
	CompanyName      string        `db:"company_name"`
	NormalizedName   string        `db:"normalized_name"`
	Website          string        `db:"website"`
	FirstSeen        time.Time     `db:"first_seen"`
	LastSeen         time.Time     `db:"last_seen"`
	TimesDiscovered  int           `db:"times_discovered"`
	HuntIDs          string        `db:"hunt_ids"`
	TherapeuticAreas string        `db:"therapeutic_areas"`
	ClinicalPhases   string        `db:"clinical_phases"`
	ICPScores        string        `db:"icp_scores"`
	BestScore        sql.NullInt64 `db:"best_score"`
	WasQualified     bool          `db:"was_qualified"`
	SourceURLs       string        `db:"source_urls"`
}

func (row sqliteRecord) toRecord() (Record, error) {
	r := Record{
		CompanyName:     row.CompanyName,
		NormalizedName:  row.NormalizedName,
		Website:         row.Website,
		FirstSeen:       row.FirstSeen.UTC(),
		LastSeen:        row.LastSeen.UTC(),
		TimesDiscovered: row.TimesDiscovered,
		WasQualified:    row.WasQualified,
	}
	if row.BestScore.Valid {
		best := int(row.BestScore.Int64)
		r.BestScore = &best
	}
	for _, l := range []struct {
		data string
		dst  *[]string
	}{
		{row.HuntIDs, &r.HuntIDs},
		{row.TherapeuticAreas, &r.TherapeuticAreas},
		{row.ClinicalPhases, &r.ClinicalPhases},
		{row.SourceURLs, &r.SourceURLs},
	} {
		if err := unmarshalList([]byte(l.data), l.dst); err != nil {
			return Record{}, err
		}
	}
	if err := unmarshalList([]byte(row.ICPScores), &r.ICPScores); err != nil {
		return Record{}, err
	}
	return r, nil
}

func sqliteListText(col string) string { return "LOWER(" + col + ")" }

// LoadAll returns every company record.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]Record, error) {
	var rows []sqliteRecord
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+companyColumns+` FROM companies ORDER BY first_seen`); err != nil {
		return nil, eris.Wrap(err, "sqlite: load companies")
	}
	return toRecords(rows)
}

// Query returns records matching f.
func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]Record, error) {
	query, args, err := queryBuilder(f, sq.Question, sqliteListText).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build query")
	}
	var rows []sqliteRecord
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, eris.Wrap(err, "sqlite: query companies")
	}
	return toRecords(rows)
}

func toRecords(rows []sqliteRecord) ([]Record, error) {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		r, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Get returns the record with the given normalized name.
func (s *SQLiteStore) Get(ctx context.Context, normalizedName string) (*Record, error) {
	return s.get(ctx, s.db, normalizedName)
}

func (s *SQLiteStore) get(ctx context.Context, q sqlx.QueryerContext, normalizedName string) (*Record, error) {
	var row sqliteRecord
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+companyColumns+` FROM companies WHERE normalized_name = ?`, normalizedName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company %s", normalizedName)
	}
	r, err := row.toRecord()
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const sqliteUpsert = `INSERT INTO companies (` + companyColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(normalized_name) DO UPDATE SET
	company_name = excluded.company_name,
	website = excluded.website,
	first_seen = excluded.first_seen,
	last_seen = excluded.last_seen,
	times_discovered = excluded.times_discovered,
	hunt_ids = excluded.hunt_ids,
	therapeutic_areas = excluded.therapeutic_areas,
	clinical_phases = excluded.clinical_phases,
	icp_scores = excluded.icp_scores,
	best_score = excluded.best_score,
	was_qualified = excluded.was_qualified,
	source_urls = excluded.source_urls`

// Upsert writes rec, replacing any row with the same normalized name.
func (s *SQLiteStore) Upsert(ctx context.Context, rec Record) error {
	return s.upsert(ctx, s.db, rec)
}

func (s *SQLiteStore) upsert(ctx context.Context, x sqlx.ExecerContext, rec Record) error {
	if rec.NormalizedName == "" {
		return eris.New("sqlite: upsert: empty normalized name")
	}
	hunts, areas, phases, scores, urls, err := listColumns(rec)
	if err != nil {
		return err
	}
	var best any
	if rec.BestScore != nil {
		best = *rec.BestScore
	}
	_, err = x.ExecContext(ctx, sqliteUpsert,
		rec.CompanyName, rec.NormalizedName, rec.Website,
		rec.FirstSeen.UTC(), rec.LastSeen.UTC(), rec.TimesDiscovered,
		string(hunts), string(areas), string(phases), string(scores),
		best, rec.WasQualified, string(urls),
	)
	return eris.Wrapf(err, "sqlite: upsert company %s", rec.NormalizedName)
}

// ApplyEncounter merges e into its record inside one transaction, creating
// the record on first sighting.
func (s *SQLiteStore) ApplyEncounter(ctx context.Context, e Encounter, now time.Time) (*Record, bool, error) {
	key := e.NormalizedName()
	if key == "" {
		return nil, false, eris.Errorf("sqlite: encounter %q has no usable name", e.CompanyName)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	rec, err := s.get(ctx, tx, key)
	created := errors.Is(err, ErrNotFound)
	switch {
	case created:
		r := NewRecord(e, now)
		rec = &r
	case err != nil:
		return nil, false, err
	default:
		rec.Apply(e, now)
	}

	if err := s.upsert(ctx, tx, *rec); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, eris.Wrap(err, "sqlite: commit tx")
	}
	return rec, created, nil
}

type sqliteHunt struct {
	HuntID             string    `db:"hunt_id"`
	Timestamp          time.Time `db:"timestamp"`
	CompaniesFound     int       `db:"companies_found"`
	NewCompanies       int       `db:"new_companies"`
	DuplicatesFiltered int       `db:"duplicates_filtered"`
	QualifiedCount     int       `db:"qualified_count"`
	Params             string    `db:"params"`
}

// SaveHunt records or replaces a hunt summary.
func (s *SQLiteStore) SaveHunt(ctx context.Context, h HuntSummary) error {
	params, err := json.Marshal(h.Params)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal hunt params")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO hunts (hunt_id, timestamp, companies_found, new_companies, duplicates_filtered, qualified_count, params)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hunt_id) DO UPDATE SET
			timestamp = excluded.timestamp,
			companies_found = excluded.companies_found,
			new_companies = excluded.new_companies,
			duplicates_filtered = excluded.duplicates_filtered,
			qualified_count = excluded.qualified_count,
			params = excluded.params`,
		h.HuntID, h.Timestamp.UTC(), h.CompaniesFound, h.NewCompanies, h.DuplicatesFiltered, h.QualifiedCount, string(params),
	)
	return eris.Wrapf(err, "sqlite: save hunt %s", h.HuntID)
}

// ListHunts returns the most recent hunts first. limit <= 0 returns all.
func (s *SQLiteStore) ListHunts(ctx context.Context, limit int) ([]HuntSummary, error) {
	b := sq.Select("hunt_id", "timestamp", "companies_found", "new_companies",
		"duplicates_filtered", "qualified_count", "params").
		From("hunts").OrderBy("timestamp DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build hunts query")
	}

	var rows []sqliteHunt
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, eris.Wrap(err, "sqlite: list hunts")
	}
	out := make([]HuntSummary, 0, len(rows))
	for _, row := range rows {
		h := HuntSummary{
			HuntID:             row.HuntID,
			Timestamp:          row.Timestamp.UTC(),
			CompaniesFound:     row.CompaniesFound,
			NewCompanies:       row.NewCompanies,
			DuplicatesFiltered: row.DuplicatesFiltered,
			QualifiedCount:     row.QualifiedCount,
		}
		if err := json.Unmarshal([]byte(row.Params), &h.Params); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal hunt params")
		}
		out = append(out, h)
	}
	return out, nil
}

// CountHunts returns the number of recorded hunts.
func (s *SQLiteStore) CountHunts(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM hunts`)
	return n, eris.Wrap(err, "sqlite: count hunts")
}
