// Package server exposes company history and hunts over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/pharmhunter/internal/history"
	"github.com/sells-group/pharmhunter/internal/model"
	"github.com/sells-group/pharmhunter/internal/planner"
)

// Hunt statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// HuntRunner runs a hunt on a state created by the caller.
type HuntRunner interface {
	RunState(ctx context.Context, st *model.PipelineState) (*model.PipelineState, error)
}

type huntEntry struct {
	state  *model.PipelineState
	status string
	stage  string
	err    string
}

// Server serves the API. Hunts started over HTTP run in the background on
// the server's base context and are tracked in memory until restart.
type Server struct {
	store    history.Store
	runner   HuntRunner
	planner  *planner.Planner
	defaults model.HuntParams
	origins  []string
	baseCtx  context.Context

	mu    sync.RWMutex
	hunts map[string]*huntEntry
	order []string
	wg    sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithCORSOrigins sets the allowed CORS origins. Empty allows any origin.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithDefaults sets parameters applied to POST /api/hunts bodies that
// leave them unset.
func WithDefaults(p model.HuntParams) Option {
	return func(s *Server) { s.defaults = p }
}

// WithBaseContext sets the context background hunts run under.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) { s.baseCtx = ctx }
}

// New creates a Server. runner may be nil, in which case POST /api/hunts
// answers 503.
func New(store history.Store, runner HuntRunner, p *planner.Planner, opts ...Option) *Server {
	if p == nil {
		p = planner.Default()
	}
	s := &Server{
		store:   store,
		runner:  runner,
		planner: p,
		baseCtx: context.Background(),
		hunts:   make(map[string]*huntEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/companies", s.handleListCompanies)
		r.Get("/companies/{name}", s.handleGetCompany)
		r.Get("/stats", s.handleStats)
		r.Get("/plan", s.handlePlan)
		r.Get("/hunts", s.handleListHunts)
		r.Post("/hunts", s.handleStartHunt)
		r.Get("/hunts/{id}", s.handleGetHunt)
		r.Get("/hunts/{id}/report", s.handleHuntReport)
	})
	return r
}

// StageHook records stage transitions for hunts started by this server.
// Pass it to hunt.WithStageHook.
func (s *Server) StageHook(huntID, stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.hunts[huntID]; ok {
		e.stage = stage
	}
}

// Wait blocks until background hunts finish.
func (s *Server) Wait() { s.wg.Wait() }

func (s *Server) start(params model.HuntParams) string {
	st := model.NewPipelineState(params)
	s.mu.Lock()
	s.hunts[st.HuntID] = &huntEntry{state: st, status: StatusRunning}
	s.order = append(s.order, st.HuntID)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log := zap.L().With(zap.String("hunt_id", st.HuntID))
		_, err := s.runner.RunState(s.baseCtx, st)

		s.mu.Lock()
		defer s.mu.Unlock()
		e := s.hunts[st.HuntID]
		if err != nil {
			e.status = StatusFailed
			e.err = err.Error()
			log.Error("server: hunt failed", zap.Error(err))
			return
		}
		e.status = StatusCompleted
		log.Info("server: hunt complete",
			zap.Int("new_companies", st.NewCompaniesFound),
			zap.Int("qualified", st.QualifiedCount),
		)
	}()
	return st.HuntID
}

type huntView struct {
	HuntID    string               `json:"hunt_id"`
	Status    string               `json:"status"`
	Stage     string               `json:"stage,omitempty"`
	Error     string               `json:"error,omitempty"`
	Params    model.HuntParams     `json:"hunt_params"`
	StartedAt time.Time            `json:"started_at"`
	State     *model.PipelineState `json:"state,omitempty"`
}

// view snapshots an entry. The full state is only exposed once the hunt
// stops, since the runner mutates it while running.
func (s *Server) view(id string) (huntView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.hunts[id]
	if !ok {
		return huntView{}, false
	}
	v := huntView{
		HuntID:    id,
		Status:    e.status,
		Stage:     e.stage,
		Error:     e.err,
		Params:    e.state.Params,
		StartedAt: e.state.StartedAt,
	}
	if e.status != StatusRunning {
		v.State = e.state
	}
	return v, true
}

func (s *Server) active() []huntView {
	s.mu.RLock()
	ids := append([]string(nil), s.order...)
	s.mu.RUnlock()

	out := make([]huntView, 0, len(ids))
	for _, id := range ids {
		if v, ok := s.view(id); ok {
			v.State = nil
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
