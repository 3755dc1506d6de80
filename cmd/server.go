package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/collector"
	"github.com/sells-group/leadgen-cli/internal/cost"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/monitoring"
	"github.com/sells-group/leadgen-cli/internal/outreach"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
	"github.com/sells-group/leadgen-cli/internal/store"
)

// server serves the run API. Runs started over HTTP outlive their request
// and are bound to baseCtx instead.
type server struct {
	store     store.Store
	pipeline  *pipeline.Pipeline
	outbox    *outreach.Outbox
	collector *collector.Collector
	ledger    *cost.Ledger
	monitor   *monitoring.Collector
	alerter   *monitoring.Alerter
	gatherer  prometheus.Gatherer

	corsOrigins     []string
	lookbackHours   int
	requireApproval bool

	baseCtx context.Context
	wg      sync.WaitGroup
}

func newServer(ctx context.Context, env *appEnv) *server {
	return &server{
		store:           env.Store,
		pipeline:        env.Pipeline,
		outbox:          env.Outbox,
		collector:       env.Collector,
		ledger:          env.Ledger,
		monitor:         env.Monitor,
		alerter:         monitoring.NewAlerter(cfg.Monitoring),
		gatherer:        env.Prom,
		corsOrigins:     cfg.Server.CORSOrigins,
		lookbackHours:   cfg.Monitoring.LookbackWindowHours,
		requireApproval: cfg.Outreach.RequireApproval,
		baseCtx:         ctx,
	}
}

// wait blocks until runs started over HTTP have finished.
func (s *server) wait() { s.wg.Wait() }

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/providers", s.handleProviders)
	r.Get("/stats", s.handleStats)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", s.handleCreateRun)
		r.Get("/", s.handleListRuns)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetRun)
			r.Get("/leads", s.handleListLeads)
			r.Get("/drafts", s.handleListDrafts)
			r.Get("/logs", s.handleListLogs)
		})
	})
	r.Route("/drafts/{id}", func(r chi.Router) {
		r.Post("/approve", s.handleDraftAction(s.outbox.Approve))
		r.Post("/suppress", s.handleDraftAction(s.outbox.Suppress))
	})
	r.Post("/optouts", s.handleOptOut)
	return r
}

func (s *server) handleProviders(w http.ResponseWriter, r *http.Request) {
	report, err := s.ledger.Report(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, providerInfos(s.collector.Providers(), report))
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	hours := s.lookbackHours
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("hours must be a positive integer"))
			return
		}
		hours = n
	}
	snap, err := s.monitor.Collect(r.Context(), hours)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, statsReport{Snapshot: snap, Alerts: s.alerter.Evaluate(snap)})
}

// createRunBody lets a request leave require_approval unset and get the
// configured default.
type createRunBody struct {
	model.RunRequest
	RequireApproval *bool `json:"require_approval"`
}

func (s *server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var body createRunBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	req := body.RunRequest
	req.RequireApproval = s.requireApproval
	if body.RequireApproval != nil {
		req.RequireApproval = *body.RequireApproval
	}
	req.Location = strings.TrimSpace(req.Location)
	req.Category = strings.TrimSpace(req.Category)
	if req.Location == "" || req.Category == "" {
		writeError(w, http.StatusBadRequest, errors.New("location and category are required"))
		return
	}
	for id, n := range req.Limits {
		if n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit for "+id+" must not be negative"))
			return
		}
	}

	run, err := s.store.CreateRun(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		result, err := s.pipeline.Run(s.baseCtx, run)
		if err != nil {
			zap.L().Error("api run failed", zap.String("run_id", run.ID), zap.Error(err))
			return
		}
		zap.L().Info("api run complete",
			zap.String("run_id", run.ID),
			zap.Int("merged_leads", result.MergedLeads),
		)
	}()

	writeJSON(w, http.StatusAccepted, run)
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Status: model.RunStatus(q.Get("status"))}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := store.LeadFilter{HasEmail: q.Get("has_email") == "true"}
	filter.MinScore, _ = strconv.ParseFloat(q.Get("min_score"), 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	leads, err := s.store.ListLeads(r.Context(), run.ID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	writeJSON(w, http.StatusOK, leads)
}

func (s *server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	drafts, err := s.store.ListEmailDrafts(r.Context(), run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if drafts == nil {
		drafts = []model.EmailDraft{}
	}
	writeJSON(w, http.StatusOK, drafts)
}

func (s *server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	logs, err := s.store.ListLogs(r.Context(), run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if logs == nil {
		logs = []model.LogEntry{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// handleDraftAction runs an approve or suppress transition on the draft
// named in the path.
func (s *server) handleDraftAction(op func(context.Context, string) (*model.EmailDraft, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := op(r.Context(), chi.URLParam(r, "id"))
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, d)
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, errors.New("draft not found"))
		case errors.Is(err, outreach.ErrNotPending), errors.Is(err, outreach.ErrAlreadySent):
			writeError(w, http.StatusConflict, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
	}
}

func (s *server) handleOptOut(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	email := strings.TrimSpace(body.Email)
	if !strings.Contains(email, "@") {
		writeError(w, http.StatusBadRequest, errors.New("a valid email is required"))
		return
	}
	if err := s.store.AddOptOut(r.Context(), email); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"email": strings.ToLower(email)})
}

func (s *server) lookupRun(w http.ResponseWriter, r *http.Request) (*model.Run, bool) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, errors.New("run not found"))
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return nil, false
	}
	return run, true
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
