package history

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pharmhunter/internal/config"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSQLite_GetNotFound(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_UpsertAndGet(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	rec := NewRecord(Encounter{
		CompanyName: "Orbit Therapeutics", HuntID: "h1", Website: "https://orbit.bio",
		TherapeuticArea: "Oncology", ClinicalPhase: "Phase 2", SourceURL: "https://a.com",
		ICPScore: intPtr(82), Qualified: true,
	}, t0)
	require.NoError(t, s.Upsert(ctx, rec))

	got, err := s.Get(ctx, "orbit")
	require.NoError(t, err)
	assert.Equal(t, rec.CompanyName, got.CompanyName)
	assert.Equal(t, rec.Website, got.Website)
	assert.True(t, t0.Equal(got.FirstSeen))
	assert.Equal(t, []string{"h1"}, got.HuntIDs)
	assert.Equal(t, []string{"Oncology"}, got.TherapeuticAreas)
	assert.Equal(t, []string{"Phase 2"}, got.ClinicalPhases)
	assert.Equal(t, []int{82}, got.ICPScores)
	require.NotNil(t, got.BestScore)
	assert.Equal(t, 82, *got.BestScore)
	assert.True(t, got.WasQualified)
	assert.Equal(t, []string{"https://a.com"}, got.SourceURLs)
}

func TestSQLite_UpsertRequiresKey(t *testing.T) {
	s := newTestSQLite(t)
	err := s.Upsert(context.Background(), Record{CompanyName: "!!!"})
	require.Error(t, err)
}

func TestSQLite_ApplyEncounter(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	rec, created, err := s.ApplyEncounter(ctx, Encounter{CompanyName: "Orbit Inc", HuntID: "h1", TherapeuticArea: "Oncology"}, t0)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, rec.TimesDiscovered)
	assert.Nil(t, rec.BestScore)

	rec, created, err = s.ApplyEncounter(ctx, Encounter{CompanyName: "ORBIT", HuntID: "h2", TherapeuticArea: "CNS", ICPScore: intPtr(77)}, t1)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 2, rec.TimesDiscovered)

	got, err := s.Get(ctx, "orbit")
	require.NoError(t, err)
	assert.Equal(t, "Orbit Inc", got.CompanyName)
	assert.Equal(t, []string{"h1", "h2"}, got.HuntIDs)
	assert.Equal(t, []string{"Oncology", "CNS"}, got.TherapeuticAreas)
	assert.Equal(t, 77, *got.BestScore)
	assert.True(t, t1.Equal(got.LastSeen))

	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLite_ApplyEncounterConcurrent(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.ApplyEncounter(ctx, Encounter{CompanyName: "Orbit", HuntID: "h"}, t0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "orbit")
	require.NoError(t, err)
	assert.Equal(t, 8, got.TimesDiscovered)
}

func TestSQLite_ApplyEncounterRejectsEmptyName(t *testing.T) {
	s := newTestSQLite(t)
	_, _, err := s.ApplyEncounter(context.Background(), Encounter{CompanyName: "  "}, t0)
	require.Error(t, err)
}

func TestSQLite_Query(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	seed := []Encounter{
		{CompanyName: "Orbit Therapeutics", TherapeuticArea: "Oncology", ICPScore: intPtr(90), Qualified: true},
		{CompanyName: "Nimbus Pharma", TherapeuticArea: "CNS", ICPScore: intPtr(60)},
		{CompanyName: "Radiant Bio", TherapeuticArea: "Radiopharma Oncology"},
	}
	for i, e := range seed {
		_, _, err := s.ApplyEncounter(ctx, e, t0.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}

	names := func(recs []Record) []string {
		var out []string
		for _, r := range recs {
			out = append(out, r.CompanyName)
		}
		return out
	}

	all, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Radiant Bio", "Nimbus Pharma", "Orbit Therapeutics"}, names(all))

	onc, err := s.Query(ctx, Filter{Area: "oncology"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Orbit Therapeutics", "Radiant Bio"}, names(onc))

	q, err := s.Query(ctx, Filter{QualifiedOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Orbit Therapeutics"}, names(q))

	scored, err := s.Query(ctx, Filter{MinScore: 50})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Orbit Therapeutics", "Nimbus Pharma"}, names(scored))

	search, err := s.Query(ctx, Filter{Search: "nimb"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Nimbus Pharma"}, names(search))

	page, err := s.Query(ctx, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Nimbus Pharma"}, names(page))
}

func TestSQLite_Hunts(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.SaveHunt(ctx, HuntSummary{HuntID: "h1", Timestamp: t0, CompaniesFound: 5,
		NewCompanies: 4, DuplicatesFiltered: 1, QualifiedCount: 2, Params: map[string]any{"therapeutic_focus": "Oncology"}}))
	require.NoError(t, s.SaveHunt(ctx, HuntSummary{HuntID: "h2", Timestamp: t1, CompaniesFound: 3}))
	require.NoError(t, s.SaveHunt(ctx, HuntSummary{HuntID: "h1", Timestamp: t0, CompaniesFound: 6,
		Params: map[string]any{"therapeutic_focus": "Oncology"}}))

	n, err := s.CountHunts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hunts, err := s.ListHunts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, hunts, 2)
	assert.Equal(t, "h2", hunts[0].HuntID)
	assert.Equal(t, 6, hunts[1].CompaniesFound)
	assert.Equal(t, "Oncology", hunts[1].Params["therapeutic_focus"])

	latest, err := s.ListHunts(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, latest, 1)
}

func TestStats(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, _, err := s.ApplyEncounter(ctx, Encounter{CompanyName: "Orbit", TherapeuticArea: "Oncology", ICPScore: intPtr(80), Qualified: true}, t0)
	require.NoError(t, err)
	_, _, err = s.ApplyEncounter(ctx, Encounter{CompanyName: "Nimbus", TherapeuticArea: "CNS"}, t0)
	require.NoError(t, err)
	require.NoError(t, s.SaveHunt(ctx, HuntSummary{HuntID: "h1", Timestamp: t0}))

	st, err := Stats(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalCompanies)
	assert.Equal(t, 1, st.TotalHunts)
	assert.Equal(t, 1, st.QualifiedCompanies)
	assert.InDelta(t, 80.0, st.AverageBestScore, 0.001)
}

func TestOpen_SQLiteMigrates(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "open.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	n, err := s.CountHunts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "mongo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}
