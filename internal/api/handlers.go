// Package api exposes assessments, strategies and the history library over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/YumeNoTenshi/ecoscan/internal/ecotags"
	"github.com/YumeNoTenshi/ecoscan/internal/events"
	"github.com/YumeNoTenshi/ecoscan/internal/history"
	"github.com/YumeNoTenshi/ecoscan/internal/importer"
	"github.com/YumeNoTenshi/ecoscan/internal/lca"
	"github.com/YumeNoTenshi/ecoscan/internal/metrics"
	"github.com/YumeNoTenshi/ecoscan/internal/models"
	"github.com/YumeNoTenshi/ecoscan/internal/planner"
	"github.com/YumeNoTenshi/ecoscan/internal/reference"
	"github.com/YumeNoTenshi/ecoscan/internal/report"
	"github.com/YumeNoTenshi/ecoscan/internal/session"
	"github.com/YumeNoTenshi/ecoscan/internal/strategy"
	"github.com/YumeNoTenshi/ecoscan/pkg/cloud"
	"github.com/YumeNoTenshi/ecoscan/pkg/ml"
)

// maxBodyBytes bounds every request body. Import documents are truncated
// further by the importer.
const maxBodyBytes = 1 << 20

var (
	errInvalidPayload    = errors.New("invalid request payload")
	errDiscoveryDisabled = errors.New("cloud discovery is not configured")
)

var tracer = otel.Tracer("github.com/YumeNoTenshi/ecoscan/internal/api")

// Deps are the collaborators of the server. Nil fields get in-memory or
// no-op defaults, except Provider which leaves discovery disabled.
type Deps struct {
	Sessions  *session.Manager
	History   history.Store
	Importer  *importer.Importer
	Tags      *ecotags.TagManager
	Planner   *planner.Planner
	Reports   *report.Builder
	Collector *metrics.Collector
	Analyzer  *metrics.Analyzer
	Predictor *ml.Predictor
	Publisher events.Publisher
	Provider  cloud.CloudProvider
	Auth      AuthConfig
	Logger    *slog.Logger
}

type Server struct {
	sessions  *session.Manager
	history   history.Store
	importer  *importer.Importer
	tags      *ecotags.TagManager
	planner   *planner.Planner
	reports   *report.Builder
	collector *metrics.Collector
	analyzer  *metrics.Analyzer
	predictor *ml.Predictor
	publisher events.Publisher
	provider  cloud.CloudProvider
	auth      AuthConfig
	logger    *slog.Logger
}

func NewServer(d Deps) *Server {
	s := &Server{
		sessions:  d.Sessions,
		history:   d.History,
		importer:  d.Importer,
		tags:      d.Tags,
		planner:   d.Planner,
		reports:   d.Reports,
		collector: d.Collector,
		analyzer:  d.Analyzer,
		predictor: d.Predictor,
		publisher: d.Publisher,
		provider:  d.Provider,
		auth:      d.Auth,
		logger:    d.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.sessions == nil {
		s.sessions = session.NewManager(session.ManagerConfig{}, s.logger)
	}
	if s.history == nil {
		s.history = history.NewMemoryStore()
	}
	if s.tags == nil {
		s.tags = ecotags.NewTagManager()
	}
	if s.importer == nil {
		s.importer = importer.New(nil, s.tags, s.logger)
	}
	if s.planner == nil {
		s.planner = planner.NewPlanner(planner.PlannerConfig{})
	}
	if s.reports == nil {
		s.reports = report.NewBuilder()
	}
	if s.collector == nil {
		s.collector = metrics.NewCollector()
	}
	if s.analyzer == nil {
		s.analyzer = metrics.NewAnalyzer(metrics.AnalyzerConfig{})
	}
	if s.predictor == nil {
		s.predictor = ml.NewPredictor(ml.PredictorConfig{})
	}
	if s.publisher == nil {
		s.publisher = events.NoopPublisher{}
	}
	if s.auth.DefaultRequester == "" {
		s.auth.DefaultRequester = "anonymous"
	}
	s.collector.TrackSessions(s.sessions.Len)
	return s
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.Use(LoggingMiddleware(s.logger))

	r.Handle("/metrics", s.collector.Handler()).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Everything except /health requires credentials when auth is configured
	protected := v1.NewRoute().Subrouter()
	protected.Use(AuthMiddleware(s.auth))

	protected.HandleFunc("/reference", s.handleReference).Methods("GET")
	protected.HandleFunc("/estimate", s.handleEstimate).Methods("POST")

	protected.HandleFunc("/assessments", s.handleStartAssessment).Methods("POST")
	protected.HandleFunc("/assessments/import", s.handleImport).Methods("POST")
	protected.HandleFunc("/assessments/discover", s.handleDiscover).Methods("POST")
	protected.HandleFunc("/assessments/{id}", s.handleGetAssessment).Methods("GET")
	protected.HandleFunc("/assessments/{id}", s.handleEndAssessment).Methods("DELETE")
	protected.HandleFunc("/assessments/{id}/config", s.handleSetConfig).Methods("PUT")
	protected.HandleFunc("/assessments/{id}/strategies", s.handleStrategies).Methods("GET")
	protected.HandleFunc("/assessments/{id}/strategies/{strategy}/toggle", s.handleToggle).Methods("POST")
	protected.HandleFunc("/assessments/{id}/plan", s.handlePlan).Methods("GET")
	protected.HandleFunc("/assessments/{id}/report", s.handleReport).Methods("GET")
	protected.HandleFunc("/assessments/{id}/save", s.handleSave).Methods("POST")

	protected.HandleFunc("/history", s.handleListHistory).Methods("GET")
	protected.HandleFunc("/history/{id}", s.handleGetHistory).Methods("GET")
	protected.HandleFunc("/history/{id}", s.handleRenameHistory).Methods("PATCH")
	protected.HandleFunc("/history/{id}/open", s.handleOpenHistory).Methods("POST")

	protected.HandleFunc("/portfolio", s.handlePortfolio).Methods("GET")

	return r
}

// Handler is the router wrapped with OpenTelemetry HTTP instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.Router(), "ecoscan")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReference(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, ReferenceResponse{
		Hardware:              reference.Hardware(),
		Regions:               reference.Regions(),
		EnergyPricePerKWh:     reference.EnergyPricePerKWh,
		HardwareLifespanYears: reference.HardwareLifespanYears,
	})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	cfg, _, err := decodeConfig(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	valid, subs := session.Validate(cfg)

	_, span := tracer.Start(r.Context(), "lca.Estimate")
	m := lca.Estimate(valid)
	span.SetAttributes(
		attribute.String("ecoscan.hardware", valid.HardwareModel),
		attribute.Int("ecoscan.gpu_count", valid.GPUCount),
		attribute.Float64("ecoscan.total_co2_kg", m.TotalCo2Kg),
		attribute.String("ecoscan.grade", string(m.Grade)),
	)
	span.End()
	s.collector.ObserveEstimate(m)

	respondWithJSON(w, http.StatusOK, EstimateResponse{Config: valid, Metrics: m, Substitutions: subs})
}

func (s *Server) handleStartAssessment(w http.ResponseWriter, r *http.Request) {
	cfg, provided, err := decodeConfig(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	source := session.SourceDefaults
	if provided {
		source = session.SourceManual
	}
	s.start(w, r, source, cfg, nil)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	doc, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.fail(w, fmt.Errorf("%w: %v", errInvalidPayload, err))
		return
	}
	defer r.Body.Close()

	res := s.importer.Import(r.Context(), doc)
	source := session.SourceImport
	if res.Fallback {
		source = session.SourceFallback
		s.collector.ImportFallback()
	}
	s.start(w, r, source, res.Config, func(resp *AssessmentResponse) {
		if res.Cause != nil {
			resp.ImportError = res.Cause.Error()
		}
	})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if s.provider == nil {
		s.fail(w, errDiscoveryDisabled)
		return
	}
	inv, err := s.provider.DiscoverGPUInstances(r.Context())
	if err != nil {
		s.logger.Error("cloud discovery failed", "provider", s.provider.Name(), "error", err)
		respondWithError(w, http.StatusBadGateway, err.Error())
		return
	}
	cfg, err := importer.FromInventory(inv, session.DefaultConfig())
	if err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.start(w, r, session.SourceDiscover, cfg, nil)
}

// start opens a session and responds with its initial state.
func (s *Server) start(w http.ResponseWriter, r *http.Request, source session.Source, cfg models.WorkloadConfig, decorate func(*AssessmentResponse)) {
	_, subs := session.Validate(cfg)
	id := s.sessions.Start(source, cfg)
	s.collector.AssessmentStarted(string(source))

	var resp AssessmentResponse
	err := s.sessions.With(id, func(sess *session.Session) error {
		resp = s.view(r.Context(), sess)
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.collector.ObserveEstimate(resp.Metrics.Baseline)

	resp.Substitutions = subs
	if decorate != nil {
		decorate(&resp)
	}
	respondWithJSON(w, http.StatusCreated, resp)
}

// view must only be called with exclusive access to sess.
func (s *Server) view(ctx context.Context, sess *session.Session) AssessmentResponse {
	_, span := tracer.Start(ctx, "assessment.evaluate")
	defer span.End()

	current := sess.Current()
	m := sess.Metrics()
	span.SetAttributes(
		attribute.String("ecoscan.session_id", sess.ID),
		attribute.Float64("ecoscan.baseline_co2_kg", m.Baseline.TotalCo2Kg),
		attribute.Float64("ecoscan.current_co2_kg", m.Current.TotalCo2Kg),
	)
	return AssessmentResponse{
		ID:         sess.ID,
		Source:     sess.Source,
		Baseline:   sess.Baseline(),
		Current:    current,
		Metrics:    m,
		Eco:        s.tags.Profile(current, m.Current),
		Strategies: sess.Strategies(),
	}
}

func (s *Server) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	var resp AssessmentResponse
	err := s.sessions.With(mux.Vars(r)["id"], func(sess *session.Session) error {
		resp = s.view(r.Context(), sess)
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEndAssessment(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.End(mux.Vars(r)["id"]); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	var resp AssessmentResponse
	err = s.sessions.With(mux.Vars(r)["id"], func(sess *session.Session) error {
		// fields missing from the body keep their current values
		cfg := sess.Current()
		if err := json.Unmarshal(body, &cfg); err != nil {
			return fmt.Errorf("%w: %v", errInvalidPayload, err)
		}
		subs := sess.SetCurrent(cfg)
		resp = s.view(r.Context(), sess)
		resp.Substitutions = subs
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	var evals []strategy.Evaluation
	err := s.sessions.With(mux.Vars(r)["id"], func(sess *session.Session) error {
		evals = sess.Strategies()
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, evals)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	strategyID := vars["strategy"]

	var resp ToggleResponse
	err := s.sessions.With(vars["id"], func(sess *session.Session) error {
		action, err := sess.Toggle(strategyID)
		if err != nil {
			return err
		}
		resp = ToggleResponse{
			Action:     action,
			Current:    sess.Current(),
			Metrics:    sess.Metrics(),
			Strategies: sess.Strategies(),
		}
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.collector.StrategyToggled(strategyID, string(resp.Action))
	respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var plan planner.Plan
	err := s.sessions.With(mux.Vars(r)["id"], func(sess *session.Session) error {
		plan = s.planner.Plan(sess.Current(), sess.Baseline())
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, plan)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	requester := RequesterFrom(r.Context())
	if requester == "" {
		requester = s.auth.DefaultRequester
	}

	var rep models.Report
	err := s.sessions.With(mux.Vars(r)["id"], func(sess *session.Session) error {
		rep = s.reports.Report(sess.Current(), sess.Metrics().Current, requester)
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, report.Filename(rep)))
	respondWithJSON(w, http.StatusOK, rep)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := decodeOptional(r, &req); err != nil {
		s.fail(w, err)
		return
	}

	var rec models.HistoryRecord
	err := s.sessions.With(mux.Vars(r)["id"], func(sess *session.Session) error {
		m := sess.Metrics()
		rec = s.reports.HistoryRecord(strings.TrimSpace(req.Name), sess.Current(), m.Baseline, m.Current)
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	if err := s.history.Save(r.Context(), rec); err != nil {
		s.fail(w, fmt.Errorf("save history record: %w", err))
		return
	}
	s.collector.HistorySaved()

	// publish failures are logged only, the record is stored
	if err := s.publisher.PublishHistorySaved(r.Context(), rec); err != nil {
		s.logger.Warn("history event not published", "record_id", rec.ID, "error", err)
	}
	respondWithJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.history.List(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	rec, err := s.history.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRenameHistory(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	rec, err := s.history.Rename(r.Context(), mux.Vars(r)["id"], req.Name)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

func (s *Server) handleOpenHistory(w http.ResponseWriter, r *http.Request) {
	rec, err := s.history.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.start(w, r, session.SourceHistory, rec.ConfigAtSave, nil)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	records, err := s.history.List(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	resp := PortfolioResponse{Summary: s.analyzer.Summarize(records)}
	forecast, err := s.predictor.Forecast(records)
	switch {
	case errors.Is(err, ml.ErrInsufficientData):
		resp.TrendStatus = err.Error()
	case err != nil:
		s.fail(w, err)
		return
	default:
		resp.Trend = &forecast
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// decodeConfig reads a WorkloadConfig body over the default configuration.
// An empty body yields the defaults and provided=false.
func decodeConfig(r *http.Request) (cfg models.WorkloadConfig, provided bool, err error) {
	cfg = session.DefaultConfig()
	body, err := readBody(r)
	if err != nil {
		return cfg, false, err
	}
	if len(body) == 0 {
		return cfg, false, nil
	}
	if err := json.Unmarshal(body, &cfg); err != nil {
		return cfg, false, fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	return cfg, true, nil
}

// decodeOptional decodes a JSON body into v, leaving v untouched when the
// body is empty.
func decodeOptional(r *http.Request, v any) error {
	body, err := readBody(r)
	if err != nil || len(body) == 0 {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	return bytes.TrimSpace(body), nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, history.ErrNotFound),
		errors.Is(err, strategy.ErrUnknown):
		return http.StatusNotFound
	case errors.Is(err, history.ErrEmptyName),
		errors.Is(err, errInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, errDiscoveryDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	respondWithError(w, code, err.Error())
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{
		Status:  "error",
		Message: message,
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"status":"error","message":"Error marshaling JSON"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
