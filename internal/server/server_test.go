package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pharmhunter/internal/history"
	"github.com/sells-group/pharmhunter/internal/model"
)

var seenAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *history.SQLiteStore {
	t.Helper()
	s, err := history.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	score := 88
	_, _, err = s.ApplyEncounter(ctx, history.Encounter{
		CompanyName: "Orbit Therapeutics", HuntID: "h0", TherapeuticArea: "Oncology",
		ClinicalPhase: "Phase 2", ICPScore: &score, Qualified: true,
	}, seenAt)
	require.NoError(t, err)
	low := 40
	_, _, err = s.ApplyEncounter(ctx, history.Encounter{
		CompanyName: "Quasar Imaging", HuntID: "h0", TherapeuticArea: "Neurology", ICPScore: &low,
	}, seenAt)
	require.NoError(t, err)
	require.NoError(t, s.SaveHunt(ctx, history.HuntSummary{HuntID: "h0", Timestamp: seenAt, CompaniesFound: 2, NewCompanies: 2, QualifiedCount: 1}))
	return s
}

// fakeRunner fills the state the way the hunt runner would and reports
// each stage to the hook.
type fakeRunner struct {
	hook    func(huntID, stage string)
	err     error
	release chan struct{}
}

func (f *fakeRunner) RunState(_ context.Context, st *model.PipelineState) (*model.PipelineState, error) {
	if f.hook != nil {
		f.hook(st.HuntID, model.StageDiscovery)
	}
	if f.release != nil {
		<-f.release
	}
	defer st.Finish()
	if f.err != nil {
		return st, f.err
	}
	st.Ledger = model.NewSearchLedger(seenAt)
	st.NewCompaniesFound = 1
	st.Leads = []model.Lead{model.NewLead(model.Candidate{CompanyName: "Nova Bio", TherapeuticArea: st.Params.Focus})}
	return st, nil
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	h := New(newStore(t), nil, nil).Handler()
	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestListCompanies(t *testing.T) {
	h := New(newStore(t), nil, nil).Handler()

	rec := do(t, h, http.MethodGet, "/api/companies", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["count"])

	rec = do(t, h, http.MethodGet, "/api/companies?qualified=true", "")
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["count"])
	companies := body["companies"].([]any)
	assert.Equal(t, "Orbit Therapeutics", companies[0].(map[string]any)["company_name"])

	rec = do(t, h, http.MethodGet, "/api/companies?area=neuro", "")
	assert.EqualValues(t, 1, decode(t, rec)["count"])

	rec = do(t, h, http.MethodGet, "/api/companies?since=2026-04-01", "")
	assert.EqualValues(t, 0, decode(t, rec)["count"])

	rec = do(t, h, http.MethodGet, "/api/companies?since=April", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCompany(t *testing.T) {
	h := New(newStore(t), nil, nil).Handler()

	rec := do(t, h, http.MethodGet, "/api/companies/Orbit%20Therapeutics,%20Inc.", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Orbit Therapeutics", body["company_name"])
	assert.EqualValues(t, 88, body["best_score"])

	rec = do(t, h, http.MethodGet, "/api/companies/Unknown%20Labs", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	h := New(newStore(t), nil, nil).Handler()
	rec := do(t, h, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 2, body["total_companies"])
	assert.EqualValues(t, 1, body["total_hunts"])
	assert.EqualValues(t, 1, body["qualified_companies"])
}

func TestPlan(t *testing.T) {
	h := New(newStore(t), nil, nil, WithDefaults(model.HuntParams{Quota: 5, MaxRounds: 3})).Handler()

	rec := do(t, h, http.MethodGet, "/api/plan?therapeutic_focus=Oncology&clinical_phase=Phase%202", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	rounds := body["rounds"].([]any)
	require.Len(t, rounds, 3)
	assert.EqualValues(t, 1, rounds[0].(map[string]any)["tier"])
	assert.EqualValues(t, 3, rounds[2].(map[string]any)["tier"])

	rec = do(t, h, http.MethodGet, "/api/plan?clinical_phase=Phase%202", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartHunt_RunsInBackground(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	srv := New(newStore(t), runner, nil, WithDefaults(model.HuntParams{Quota: 5}))
	runner.hook = srv.StageHook
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/hunts", `{"therapeutic_focus":"Oncology","clinical_phase":"Phase 2"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode(t, rec)["hunt_id"].(string)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		v, _ := srv.view(id)
		return v.Stage == model.StageDiscovery
	}, time.Second, 5*time.Millisecond)

	rec = do(t, h, http.MethodGet, "/api/hunts/"+id, "")
	body := decode(t, rec)
	assert.Equal(t, StatusRunning, body["status"])
	assert.Nil(t, body["state"])

	rec = do(t, h, http.MethodGet, "/api/hunts/"+id+"/report", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/hunts", "")
	active := decode(t, rec)["active"].([]any)
	require.Len(t, active, 1)

	close(runner.release)
	srv.Wait()

	rec = do(t, h, http.MethodGet, "/api/hunts/"+id, "")
	body = decode(t, rec)
	assert.Equal(t, StatusCompleted, body["status"])
	state := body["state"].(map[string]any)
	assert.EqualValues(t, 5, state["hunt_params"].(map[string]any)["target_count"])
	assert.EqualValues(t, 1, state["new_companies_found"])

	rec = do(t, h, http.MethodGet, "/api/hunts/"+id+"/report?format=md", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# Hunt Report: Oncology Phase 2")

	rec = do(t, h, http.MethodGet, "/api/hunts/"+id+"/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Nova Bio")
}

func TestStartHunt_Failure(t *testing.T) {
	srv := New(newStore(t), &fakeRunner{err: errors.New("search down")}, nil)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/hunts", `{"target_count":3,"therapeutic_focus":"CNS","clinical_phase":"Phase 1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode(t, rec)["hunt_id"].(string)
	srv.Wait()

	body := decode(t, do(t, h, http.MethodGet, "/api/hunts/"+id, ""))
	assert.Equal(t, StatusFailed, body["status"])
	assert.Equal(t, "search down", body["error"])
}

func TestStartHunt_BadRequests(t *testing.T) {
	h := New(newStore(t), &fakeRunner{}, nil).Handler()

	rec := do(t, h, http.MethodPost, "/api/hunts", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/hunts", `{"therapeutic_focus":"Oncology","clinical_phase":"Phase 2"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "quota")
}

func TestStartHunt_Disabled(t *testing.T) {
	h := New(newStore(t), nil, nil).Handler()
	rec := do(t, h, http.MethodPost, "/api/hunts", `{"target_count":3}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownHunt(t *testing.T) {
	h := New(newStore(t), nil, nil).Handler()
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/hunts/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/hunts/nope/report", "").Code)
}

func TestListHunts_Completed(t *testing.T) {
	h := New(newStore(t), nil, nil).Handler()
	body := decode(t, do(t, h, http.MethodGet, "/api/hunts", ""))
	completed := body["completed"].([]any)
	require.Len(t, completed, 1)
	assert.Equal(t, "h0", completed[0].(map[string]any)["hunt_id"])
	assert.Empty(t, body["active"])
}

func TestCORSPreflight(t *testing.T) {
	h := New(newStore(t), nil, nil, WithCORSOrigins([]string{"https://app.example"})).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/companies", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
