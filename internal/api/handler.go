package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/facts"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/tadp"
)

// Deps are the collaborators the API serves. Cache, Bus and Metrics may be nil.
type Deps struct {
	Repo     domain.Repository
	Cache    domain.Cache
	Bus      domain.EventBus
	Pipeline *tadp.Pipeline
	Actions  *tadp.Actions
	Policy   *policy.Store
	Metrics  *metrics.Recorder
	Logger   *slog.Logger
	Version  string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	pipeline *tadp.Pipeline
	actions  *tadp.Actions
	policy   *policy.Store
	metrics  *metrics.Recorder
	validate *validator.Validate
	version  string
	now      func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		repo:     deps.Repo,
		cache:    deps.Cache,
		bus:      deps.Bus,
		pipeline: deps.Pipeline,
		actions:  deps.Actions,
		policy:   deps.Policy,
		metrics:  deps.Metrics,
		validate: newValidator(),
		version:  deps.Version,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CaseDetail is the response for GET /cases/{id}.
type CaseDetail struct {
	Case        *domain.Case             `json:"case"`
	Escalation  *domain.EscalationRecord `json:"escalation,omitempty"`
	Transitions []*domain.CaseTransition `json:"transitions"`
}

// FactsResponse is the response for GET /cases/{id}/facts.
type FactsResponse struct {
	CaseID              string         `json:"caseId"`
	Facts               domain.FactSet `json:"facts"`
	RevenueExposureBand string         `json:"revenueExposureBand,omitempty"`
}

// CaseEvaluationResponse is the response for POST /cases/{id}/evaluate.
type CaseEvaluationResponse struct {
	*domain.DecisionResponse
	CaseStatus       domain.CaseStatus `json:"caseStatus"`
	DefaultRationale string            `json:"defaultRationale"`
}

// EscalateRequest is the request body for POST /cases/{id}/escalate.
type EscalateRequest struct {
	Analyst   string `json:"analyst" validate:"required"`
	Rationale string `json:"rationale" validate:"required"`
}

// DismissRequest is the request body for POST /cases/{id}/dismiss.
type DismissRequest struct {
	Analyst string `json:"analyst" validate:"required"`
	Note    string `json:"note"`
}

// EvaluateRequest is the request body for POST /evaluate. Facts map trigger
// ids to numbers or booleans. Policy defaults to the stored policy.
type EvaluateRequest struct {
	Facts  map[string]any       `json:"facts" validate:"required,min=1"`
	Policy *domain.PolicyConfig `json:"policy"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
	Cache      *cache.Stats      `json:"cache,omitempty"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Health pings every configured component. A failing component degrades
// the status but the endpoint still answers 200.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := HealthResponse{
		Status:     "healthy",
		Version:    h.version,
		Components: make(map[string]string),
	}

	check := func(name string, p pinger) {
		if err := p.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Components[name] = err.Error()
			loggerFrom(ctx).Warn("health check failed", "component", name, "error", err)
			return
		}
		resp.Components[name] = "ok"
	}
	if h.repo != nil {
		check("repository", h.repo)
	}
	if h.cache != nil {
		check("cache", h.cache)
		if sc, ok := h.cache.(interface{ Stats() cache.Stats }); ok {
			stats := sc.Stats()
			resp.Cache = &stats
		}
	}
	if h.bus != nil {
		check("eventbus", h.bus)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil || h.pipeline == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListCases returns cases, optionally filtered by ?status=.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if err := h.validate.Var(status, "omitempty,case_status"); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unknown case status %q", status),
		})
		return
	}

	cases, err := h.repo.ListCases(r.Context(), domain.CaseStatus(status))
	if err != nil {
		writeError(w, r, "failed to list cases", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cases": cases,
		"count": len(cases),
	})
}

// CreateCase stores a case and submits it for asynchronous evaluation.
func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var c domain.Case
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if c.Status == "" {
		c.Status = domain.CaseOpen
	}

	if err := h.repo.SaveCase(ctx, &c); err != nil {
		writeError(w, r, "failed to save case", err)
		return
	}

	if h.bus != nil {
		payload, _ := json.Marshal(domain.CaseSubmitted{CaseID: c.ID, TraceID: TraceIDFrom(ctx)})
		if err := h.bus.Publish(ctx, domain.TopicCaseSubmitted, payload); err != nil {
			loggerFrom(ctx).Warn("failed to submit case", "case_id", c.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, c)
}

// GetCase returns a case with its escalation record and status history.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	c, err := h.repo.GetCase(ctx, caseID)
	if err != nil {
		writeError(w, r, "failed to load case", err)
		return
	}

	rec, err := h.repo.GetEscalation(ctx, caseID)
	if err != nil {
		writeError(w, r, "failed to load escalation", err)
		return
	}

	history, err := h.repo.ListTransitions(ctx, caseID)
	if err != nil {
		writeError(w, r, "failed to load history", err)
		return
	}

	writeJSON(w, http.StatusOK, CaseDetail{
		Case:        c,
		Escalation:  rec,
		Transitions: history,
	})
}

// GetCaseFacts returns the derived fact set of a case.
func (h *Handler) GetCaseFacts(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "id")

	c, fs, err := h.pipeline.CaseFacts(r.Context(), caseID)
	if err != nil {
		writeError(w, r, "failed to load case", err)
		return
	}

	resp := FactsResponse{CaseID: c.ID, Facts: fs}
	if pct, ok := fs[domain.FactRevenueExposurePct]; ok {
		resp.RevenueExposureBand = facts.RevenueExposureBand(pct.Value())
	}
	writeJSON(w, http.StatusOK, resp)
}

// EvaluateCase evaluates a stored case against the current policy.
func (h *Handler) EvaluateCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	ev, err := h.pipeline.EvaluateCase(ctx, caseID, TraceIDFrom(ctx))
	if err != nil {
		writeError(w, r, "failed to load case", err)
		return
	}

	writeJSON(w, http.StatusOK, CaseEvaluationResponse{
		DecisionResponse: ev.Decision.ToResponse(),
		CaseStatus:       ev.Case.Status,
		DefaultRationale: tadp.DefaultRationale(ev.Case, ev.Decision.Result),
	})
}

// EscalateCase re-evaluates a case under the current policy and locks an
// escalation record for it.
func (h *Handler) EscalateCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	var req EscalateRequest
	if !h.decode(w, r, &req) {
		return
	}

	// No decision is saved here. The escalation record carries the result.
	_, fs, err := h.pipeline.CaseFacts(ctx, caseID)
	if err != nil {
		writeError(w, r, "failed to load case", err)
		return
	}
	d := h.pipeline.EvaluateFacts(ctx, fs, nil, TraceIDFrom(ctx))

	rec, err := h.actions.Escalate(ctx, tadp.EscalateInput{
		CaseID:    caseID,
		Analyst:   req.Analyst,
		Rationale: req.Rationale,
		Result:    d.Result,
		Facts:     fs,
	})
	if err != nil {
		writeError(w, r, "escalation failed", err)
		return
	}

	h.metrics.RecordAction(ctx, domain.ActionEscalated)
	writeJSON(w, http.StatusCreated, rec)
}

// DismissCase closes a case.
func (h *Handler) DismissCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	var req DismissRequest
	if !h.decode(w, r, &req) {
		return
	}

	tr, err := h.actions.Dismiss(ctx, caseID, req.Analyst, req.Note)
	if err != nil {
		writeError(w, r, "dismissal failed", err)
		return
	}

	h.metrics.RecordAction(ctx, domain.ActionDismissed)
	writeJSON(w, http.StatusOK, tr)
}

// ListCaseDecisions returns the decisions recorded for a case, newest first.
func (h *Handler) ListCaseDecisions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	if _, err := h.repo.GetCase(ctx, caseID); err != nil {
		writeError(w, r, "failed to load case", err)
		return
	}

	decisions, err := h.repo.ListDecisions(ctx, caseID)
	if err != nil {
		writeError(w, r, "failed to list decisions", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"decisions": decisions,
		"count":     len(decisions),
	})
}

// GetDecision retrieves a decision by ID.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	decisionID := chi.URLParam(r, "id")

	d, err := h.repo.GetDecision(r.Context(), decisionID)
	if err != nil {
		writeError(w, r, "failed to load decision", err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// Evaluate evaluates an ad-hoc fact set without storing anything.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req EvaluateRequest
	if !h.decode(w, r, &req) {
		return
	}

	fs, err := toFactSet(req.Facts)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	d := h.pipeline.EvaluateFacts(ctx, fs, req.Policy, TraceIDFrom(ctx))
	writeJSON(w, http.StatusOK, d.ToResponse())
}

func toFactSet(raw map[string]any) (domain.FactSet, error) {
	fs := make(domain.FactSet, len(raw))
	for id, v := range raw {
		switch val := v.(type) {
		case float64:
			fs[id] = domain.NumberFact(val)
		case bool:
			fs[id] = domain.BoolFact(val)
		default:
			return nil, fmt.Errorf("fact %q must be a number or a boolean", id)
		}
	}
	return fs, nil
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": validationMessage(err),
		})
		return false
	}
	return true
}

// statusFor maps package sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, policy.ErrTriggerNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrInvalidInput),
		errors.Is(err, policy.ErrInvalidTrigger),
		errors.Is(err, policy.ErrInvalidMinimum),
		errors.Is(err, tadp.ErrRationaleMissing):
		return http.StatusBadRequest
	case errors.Is(err, policy.ErrPredefinedTrigger),
		errors.Is(err, tadp.ErrAlreadyEscalated),
		errors.Is(err, tadp.ErrAlreadyDecided):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err with the status statusFor picks. Internal errors are
// logged and reported with msg only.
func writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		loggerFrom(r.Context()).Error(msg, "error", err)
		writeJSON(w, status, map[string]string{"error": msg})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
