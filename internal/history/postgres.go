package history

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pharmhunter/internal/db"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres opens a pool for connString.
func NewPostgres(ctx context.Context, connString string, cfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.NewPool(ctx, connString, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	normalized_name   TEXT PRIMARY KEY,
	company_name      TEXT NOT NULL,
	website           TEXT NOT NULL DEFAULT '',
	first_seen        TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen         TIMESTAMPTZ NOT NULL DEFAULT now(),
	times_discovered  INTEGER NOT NULL DEFAULT 1,
	hunt_ids          JSONB NOT NULL DEFAULT '[]',
	therapeutic_areas JSONB NOT NULL DEFAULT '[]',
	clinical_phases   JSONB NOT NULL DEFAULT '[]',
	icp_scores        JSONB NOT NULL DEFAULT '[]',
	best_score        INTEGER,
	was_qualified     BOOLEAN NOT NULL DEFAULT false,
	source_urls       JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS hunts (
	hunt_id             TEXT PRIMARY KEY,
	timestamp           TIMESTAMPTZ NOT NULL DEFAULT now(),
	companies_found     INTEGER NOT NULL DEFAULT 0,
	new_companies       INTEGER NOT NULL DEFAULT 0,
	duplicates_filtered INTEGER NOT NULL DEFAULT 0,
	qualified_count     INTEGER NOT NULL DEFAULT 0,
	params              JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_companies_last_seen ON companies(last_seen DESC);
CREATE INDEX IF NOT EXISTS idx_hunts_timestamp ON hunts(timestamp DESC);
`

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	var hunts, areas, phases, scores, urls []byte
	var best pgtype.Int4

	err := row.Scan(&r.CompanyName, &r.NormalizedName, &r.Website, &r.FirstSeen, &r.LastSeen,
		&r.TimesDiscovered, &hunts, &areas, &phases, &scores, &best, &r.WasQualified, &urls)
	if err != nil {
		return nil, err
	}
	if best.Valid {
		b := int(best.Int32)
		r.BestScore = &b
	}
	for _, l := range []struct {
		data []byte
		dst  *[]string
	}{{hunts, &r.HuntIDs}, {areas, &r.TherapeuticAreas}, {phases, &r.ClinicalPhases}, {urls, &r.SourceURLs}} {
		if err := unmarshalList(l.data, l.dst); err != nil {
			return nil, err
		}
	}
	if err := unmarshalList(scores, &r.ICPScores); err != nil {
		return nil, err
	}
	r.FirstSeen = r.FirstSeen.UTC()
	r.LastSeen = r.LastSeen.UTC()
	return &r, nil
}

func (s *PostgresStore) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query companies")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate companies")
}

// LoadAll returns every company record.
func (s *PostgresStore) LoadAll(ctx context.Context) ([]Record, error) {
	return s.queryRecords(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY first_seen`)
}

func postgresListText(col string) string { return "LOWER(" + col + "::text)" }

// Query returns records matching f.
func (s *PostgresStore) Query(ctx context.Context, f Filter) ([]Record, error) {
	query, args, err := queryBuilder(f, sq.Dollar, postgresListText).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build query")
	}
	return s.queryRecords(ctx, query, args...)
}

// Get returns the record with the given normalized name.
func (s *PostgresStore) Get(ctx context.Context, normalizedName string) (*Record, error) {
	r, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE normalized_name = $1`, normalizedName))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company %s", normalizedName)
	}
	return r, nil
}

const postgresUpsert = `INSERT INTO companies (` + companyColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (normalized_name) DO UPDATE SET
	company_name = EXCLUDED.company_name,
	website = EXCLUDED.website,
	first_seen = EXCLUDED.first_seen,
	last_seen = EXCLUDED.last_seen,
	times_discovered = EXCLUDED.times_discovered,
	hunt_ids = EXCLUDED.hunt_ids,
	therapeutic_areas = EXCLUDED.therapeutic_areas,
	clinical_phases = EXCLUDED.clinical_phases,
	icp_scores = EXCLUDED.icp_scores,
	best_score = EXCLUDED.best_score,
	was_qualified = EXCLUDED.was_qualified,
	source_urls = EXCLUDED.source_urls`

// Upsert writes rec, replacing any row with the same normalized name.
func (s *PostgresStore) Upsert(ctx context.Context, rec Record) error {
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, postgresUpsert, args...)
	return eris.Wrapf(err, "postgres: upsert company %s", rec.NormalizedName)
}

func recordArgs(rec Record) ([]any, error) {
	if rec.NormalizedName == "" {
		return nil, eris.New("postgres: upsert: empty normalized name")
	}
	hunts, areas, phases, scores, urls, err := listColumns(rec)
	if err != nil {
		return nil, err
	}
	var best *int
	if rec.BestScore != nil {
		b := *rec.BestScore
		best = &b
	}
	return []any{
		rec.CompanyName, rec.NormalizedName, rec.Website,
		rec.FirstSeen.UTC(), rec.LastSeen.UTC(), rec.TimesDiscovered,
		hunts, areas, phases, scores, best, rec.WasQualified, urls,
	}, nil
}

// UpsertMany bulk-writes records through a temp table and COPY.
func (s *PostgresStore) UpsertMany(ctx context.Context, recs []Record) (int64, error) {
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		args, err := recordArgs(r)
		if err != nil {
			return 0, err
		}
		rows = append(rows, args)
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "companies",
		Columns:      companyColumnList,
		ConflictKeys: []string{"normalized_name"},
	}, rows)
	return n, eris.Wrap(err, "postgres: bulk upsert companies")
}

// ApplyEncounter merges e into its record. The row is locked for the
// duration of the read-merge-write.
func (s *PostgresStore) ApplyEncounter(ctx context.Context, e Encounter, now time.Time) (*Record, bool, error) {
	key := e.NormalizedName()
	if key == "" {
		return nil, false, eris.Errorf("postgres: encounter %q has no usable name", e.CompanyName)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rec, err := scanRecord(tx.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE normalized_name = $1 FOR UPDATE`, key))
	created := errors.Is(err, pgx.ErrNoRows)
	switch {
	case created:
		r := NewRecord(e, now)
		rec = &r
	case err != nil:
		return nil, false, eris.Wrapf(err, "postgres: lock company %s", key)
	default:
		rec.Apply(e, now)
	}

	args, err := recordArgs(*rec)
	if err != nil {
		return nil, false, err
	}
	if _, err := tx.Exec(ctx, postgresUpsert, args...); err != nil {
		return nil, false, eris.Wrapf(err, "postgres: upsert company %s", key)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, eris.Wrap(err, "postgres: commit tx")
	}
	return rec, created, nil
}

// SaveHunt records or replaces a hunt summary.
func (s *PostgresStore) SaveHunt(ctx context.Context, h HuntSummary) error {
	params, err := json.Marshal(h.Params)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal hunt params")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO hunts (hunt_id, timestamp, companies_found, new_companies, duplicates_filtered, qualified_count, params)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (hunt_id) DO UPDATE SET
			timestamp = EXCLUDED.timestamp,
			companies_found = EXCLUDED.companies_found,
			new_companies = EXCLUDED.new_companies,
			duplicates_filtered = EXCLUDED.duplicates_filtered,
			qualified_count = EXCLUDED.qualified_count,
			params = EXCLUDED.params`,
		h.HuntID, h.Timestamp.UTC(), h.CompaniesFound, h.NewCompanies, h.DuplicatesFiltered, h.QualifiedCount, params,
	)
	return eris.Wrapf(err, "postgres: save hunt %s", h.HuntID)
}

// ListHunts returns the most recent hunts first. limit <= 0 returns all.
func (s *PostgresStore) ListHunts(ctx context.Context, limit int) ([]HuntSummary, error) {
	b := sq.Select("hunt_id", "timestamp", "companies_found", "new_companies",
		"duplicates_filtered", "qualified_count", "params").
		From("hunts").OrderBy("timestamp DESC").PlaceholderFormat(sq.Dollar)
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build hunts query")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list hunts")
	}
	defer rows.Close()

	var out []HuntSummary
	for rows.Next() {
		var h HuntSummary
		var params []byte
		if err := rows.Scan(&h.HuntID, &h.Timestamp, &h.CompaniesFound, &h.NewCompanies,
			&h.DuplicatesFiltered, &h.QualifiedCount, &params); err != nil {
			return nil, eris.Wrap(err, "postgres: scan hunt")
		}
		if err := json.Unmarshal(params, &h.Params); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal hunt params")
		}
		h.Timestamp = h.Timestamp.UTC()
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate hunts")
}

// CountHunts returns the number of recorded hunts.
func (s *PostgresStore) CountHunts(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM hunts`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count hunts")
}
