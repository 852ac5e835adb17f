package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/pharmhunter/internal/history"
	"github.com/sells-group/pharmhunter/internal/model"
	"github.com/sells-group/pharmhunter/internal/names"
	"github.com/sells-group/pharmhunter/internal/report"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	defaultHunts    = 20
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.CountHunts(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := history.Filter{
		Search:        strings.TrimSpace(q.Get("search")),
		Area:          strings.TrimSpace(q.Get("area")),
		QualifiedOnly: q.Get("qualified") == "true",
		Limit:         parseInt(q.Get("limit"), defaultPageSize),
		Offset:        parseInt(q.Get("offset"), 0),
		MinScore:      parseInt(q.Get("min_score"), 0),
	}
	if f.Limit <= 0 || f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be YYYY-MM-DD")
			return
		}
		f.SeenSince = since
	}

	recs, err := s.store.Query(r.Context(), f)
	if err != nil {
		zap.L().Error("server: query companies", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if recs == nil {
		recs = []history.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"companies": recs,
		"count":     len(recs),
		"limit":     f.Limit,
		"offset":    f.Offset,
	})
}

// handleGetCompany accepts a display name or a normalized key.
func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	key := names.Normalize(chi.URLParam(r, "name"))
	if key == "" {
		writeError(w, http.StatusBadRequest, "company name is required")
		return
	}
	rec, err := s.store.Get(r.Context(), key)
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "company not found")
		return
	}
	if err != nil {
		zap.L().Error("server: get company", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := history.Stats(r.Context(), s.store)
	if err != nil {
		zap.L().Error("server: stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handlePlan previews the search plan for every round of a hunt.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := s.withDefaults(model.HuntParams{
		Quota:      parseInt(q.Get("target_count"), 0),
		Focus:      q.Get("therapeutic_focus"),
		Phase:      q.Get("clinical_phase"),
		Geography:  q.Get("geography"),
		Exclusions: q.Get("exclusions"),
		MaxRounds:  parseInt(q.Get("max_rounds"), 0),
	})
	if err := params.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rounds := make([]any, 0, params.MaxRounds)
	for i := 1; i <= params.MaxRounds; i++ {
		rounds = append(rounds, s.planner.Round(i, params))
	}
	writeJSON(w, http.StatusOK, map[string]any{"hunt_params": params, "rounds": rounds})
}

func (s *Server) handleListHunts(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), defaultHunts)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultHunts
	}
	hunts, err := s.store.ListHunts(r.Context(), limit)
	if err != nil {
		zap.L().Error("server: list hunts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list hunts failed")
		return
	}
	if hunts == nil {
		hunts = []history.HuntSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":    s.active(),
		"completed": hunts,
	})
}

func (s *Server) handleStartHunt(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "hunts are not enabled on this server")
		return
	}

	var params model.HuntParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	params = s.withDefaults(params)
	if err := params.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := s.start(params)
	zap.L().Info("server: hunt accepted", zap.String("hunt_id", id), zap.String("focus", params.Focus))
	writeJSON(w, http.StatusAccepted, map[string]string{"hunt_id": id, "status": StatusRunning})
}

func (s *Server) handleGetHunt(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "hunt not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleHuntReport(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "hunt not found")
		return
	}
	if v.State == nil {
		writeError(w, http.StatusConflict, "hunt is still running")
		return
	}

	if r.URL.Query().Get("format") == "md" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(report.Markdown(v.State)))
		return
	}
	page, err := report.HTML(v.State)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

// withDefaults fills unset fields from the server defaults, then applies
// the model defaults.
func (s *Server) withDefaults(p model.HuntParams) model.HuntParams {
	d := s.defaults
	if p.Quota == 0 {
		p.Quota = d.Quota
	}
	if p.Focus == "" {
		p.Focus = d.Focus
	}
	if p.Phase == "" {
		p.Phase = d.Phase
	}
	if p.Geography == "" {
		p.Geography = d.Geography
	}
	if p.MaxRounds == 0 {
		p.MaxRounds = d.MaxRounds
	}
	return p.WithDefaults()
}

func parseInt(value string, def int) int {
	if strings.TrimSpace(value) == "" {
		return def
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return v
}
