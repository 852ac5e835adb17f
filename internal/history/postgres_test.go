package history

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresFromPool(mock), mock
}

func companyRows() *pgxmock.Rows {
	return pgxmock.NewRows(companyColumnList)
}

func addOrbit(rows *pgxmock.Rows) *pgxmock.Rows {
	return rows.AddRow("Orbit Therapeutics", "orbit", "https://orbit.bio", t0, t0, 2,
		[]byte(`["h1","h2"]`), []byte(`["Oncology"]`), []byte(`[]`), []byte(`[70,88]`),
		pgtype.Int4{Int32: 88, Valid: true}, true, []byte(`["https://a.com"]`))
}

func TestPostgres_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS companies`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Get(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`FROM companies WHERE normalized_name = \$1`).
		WithArgs("orbit").
		WillReturnRows(addOrbit(companyRows()))

	got, err := s.Get(context.Background(), "orbit")
	require.NoError(t, err)
	assert.Equal(t, "Orbit Therapeutics", got.CompanyName)
	assert.Equal(t, []string{"h1", "h2"}, got.HuntIDs)
	assert.Equal(t, []int{70, 88}, got.ICPScores)
	assert.Empty(t, got.ClinicalPhases)
	require.NotNil(t, got.BestScore)
	assert.Equal(t, 88, *got.BestScore)
	assert.True(t, got.WasQualified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`FROM companies WHERE normalized_name = \$1`).
		WithArgs("nobody").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LoadAll(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`SELECT .* FROM companies ORDER BY first_seen`).
		WillReturnRows(addOrbit(companyRows()))

	all, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "orbit", all[0].NormalizedName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Query(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`FROM companies WHERE LOWER\(therapeutic_areas::text\) LIKE \$1 AND was_qualified = \$2 ORDER BY last_seen DESC, company_name LIMIT 10`).
		WithArgs("%oncology%", true).
		WillReturnRows(addOrbit(companyRows()))

	got, err := s.Query(context.Background(), Filter{Area: "Oncology", QualifiedOnly: true, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ApplyEncounter_Creates(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE normalized_name = \$1 FOR UPDATE`).
		WithArgs("orbit").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO companies .* ON CONFLICT \(normalized_name\) DO UPDATE`).
		WithArgs("Orbit Inc", "orbit", "", pgxmock.AnyArg(), pgxmock.AnyArg(), 1,
			[]byte(`["h1"]`), []byte(`["Oncology"]`), []byte(`[]`), []byte(`[]`), pgxmock.AnyArg(), false, []byte(`[]`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	rec, created, err := s.ApplyEncounter(context.Background(),
		Encounter{CompanyName: "Orbit Inc", HuntID: "h1", TherapeuticArea: "Oncology"}, t0)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, rec.TimesDiscovered)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ApplyEncounter_Merges(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("orbit").
		WillReturnRows(addOrbit(companyRows()))
	mock.ExpectExec(`INSERT INTO companies`).
		WithArgs("Orbit Therapeutics", "orbit", "https://orbit.bio", pgxmock.AnyArg(), pgxmock.AnyArg(), 3,
			[]byte(`["h1","h2","h3"]`), []byte(`["Oncology","CNS"]`), []byte(`[]`), []byte(`[70,88,91]`),
			pgxmock.AnyArg(), true, []byte(`["https://a.com"]`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	rec, created, err := s.ApplyEncounter(context.Background(),
		Encounter{CompanyName: "ORBIT", HuntID: "h3", TherapeuticArea: "CNS", ICPScore: intPtr(91)}, t1)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 91, *rec.BestScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func anyArgs(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = pgxmock.AnyArg()
	}
	return out
}

func TestPostgres_ApplyEncounter_RollsBackOnWriteError(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("orbit").WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO companies`).
		WithArgs(anyArgs(13)...).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, _, err := s.ApplyEncounter(context.Background(), Encounter{CompanyName: "Orbit"}, t0)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "postgres: upsert company orbit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveHuntAndCount(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`INSERT INTO hunts .* ON CONFLICT \(hunt_id\)`).
		WithArgs("h1", pgxmock.AnyArg(), 5, 4, 1, 2, []byte(`{"therapeutic_focus":"Oncology"}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM hunts`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	ctx := context.Background()
	require.NoError(t, s.SaveHunt(ctx, HuntSummary{HuntID: "h1", Timestamp: t0, CompaniesFound: 5,
		NewCompanies: 4, DuplicatesFiltered: 1, QualifiedCount: 2, Params: map[string]any{"therapeutic_focus": "Oncology"}}))
	n, err := s.CountHunts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListHunts(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`FROM hunts ORDER BY timestamp DESC LIMIT 5`).
		WillReturnRows(pgxmock.NewRows([]string{"hunt_id", "timestamp", "companies_found", "new_companies",
			"duplicates_filtered", "qualified_count", "params"}).
			AddRow("h2", t1, 3, 3, 0, 1, []byte(`{}`)).
			AddRow("h1", t0, 5, 4, 1, 2, []byte(`{"clinical_phase":"Phase 2"}`)))

	hunts, err := s.ListHunts(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, hunts, 2)
	assert.Equal(t, "h2", hunts[0].HuntID)
	assert.Equal(t, "Phase 2", hunts[1].Params["clinical_phase"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertMany(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_companies"}, companyColumnList).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "companies"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.UpsertMany(context.Background(), []Record{
		NewRecord(Encounter{CompanyName: "Orbit"}, t0),
		NewRecord(Encounter{CompanyName: "Nimbus"}, t0),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
