package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/policy"
)

// PolicyResponse is the policy as returned by the policy endpoints.
type PolicyResponse struct {
	domain.PolicyConfig
	RegularTriggerCount int    `json:"regularTriggerCount"`
	Key                 string `json:"key"`
}

// MinimumRequest is the request body for PUT /policy/minimum.
type MinimumRequest struct {
	Value int `json:"value" validate:"min=1"`
}

func (h *Handler) policyResponse(cfg domain.PolicyConfig) PolicyResponse {
	return PolicyResponse{
		PolicyConfig:        cfg,
		RegularTriggerCount: policy.RegularTriggerCount(cfg),
		Key:                 h.policy.Key(),
	}
}

// save stores cfg and announces the change.
func (h *Handler) save(ctx context.Context, cfg domain.PolicyConfig) domain.PolicyConfig {
	saved := h.policy.Save(ctx, cfg)
	h.metrics.RecordPolicySave(ctx)

	if h.bus != nil {
		payload, _ := json.Marshal(saved)
		if err := h.bus.Publish(ctx, domain.TopicPolicySaved, payload); err != nil {
			loggerFrom(ctx).Warn("failed to publish policy change", "error", err)
		}
	}
	return saved
}

// GetPolicy returns the current policy.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.policyResponse(h.policy.Load(r.Context())))
}

// PutPolicy replaces the whole policy.
func (h *Handler) PutPolicy(w http.ResponseWriter, r *http.Request) {
	var cfg domain.PolicyConfig
	if !h.decode(w, r, &cfg) {
		return
	}

	saved := h.save(r.Context(), cfg)
	writeJSON(w, http.StatusOK, h.policyResponse(saved))
}

// ResetPolicy restores the default policy.
func (h *Handler) ResetPolicy(w http.ResponseWriter, r *http.Request) {
	saved := h.save(r.Context(), policy.ResetToDefaults())
	writeJSON(w, http.StatusOK, h.policyResponse(saved))
}

// SetMinimum sets the number of regular triggers needed to escalate.
func (h *Handler) SetMinimum(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req MinimumRequest
	if !h.decode(w, r, &req) {
		return
	}

	cfg, err := policy.SetMinRegularTriggers(h.policy.Load(ctx), req.Value)
	if err != nil {
		writeError(w, r, "failed to set minimum", err)
		return
	}

	writeJSON(w, http.StatusOK, h.policyResponse(h.save(ctx, cfg)))
}

// AddTrigger appends a new custom trigger with default settings.
func (h *Handler) AddTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cfg, t := policy.AddCustomTrigger(h.policy.Load(ctx), h.now())
	h.save(ctx, cfg)

	writeJSON(w, http.StatusCreated, t)
}

// UpdateTrigger replaces a trigger. The id comes from the path. An omitted
// label, type or unit keeps the current value.
func (h *Handler) UpdateTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	triggerID := chi.URLParam(r, "id")

	var t domain.Trigger
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	cfg := h.policy.Load(ctx)
	existing, ok := cfg.Trigger(triggerID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": policy.ErrTriggerNotFound.Error() + ": " + triggerID,
		})
		return
	}

	t.ID = triggerID
	if t.Label == "" {
		t.Label = existing.Label
	}
	if t.Kind == "" {
		t.Kind = existing.Kind
	}
	if t.ThresholdUnit == "" {
		t.ThresholdUnit = existing.ThresholdUnit
	}
	if err := h.validate.Struct(t); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": validationMessage(err),
		})
		return
	}

	next, err := policy.UpdateTrigger(cfg, t)
	if err != nil {
		writeError(w, r, "failed to update trigger", err)
		return
	}
	h.save(ctx, next)

	updated, _ := next.Trigger(triggerID)
	writeJSON(w, http.StatusOK, updated)
}

// DeleteTrigger removes a custom trigger.
func (h *Handler) DeleteTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	triggerID := chi.URLParam(r, "id")

	next, err := policy.RemoveTrigger(h.policy.Load(ctx), triggerID)
	if err != nil {
		writeError(w, r, "failed to remove trigger", err)
		return
	}

	writeJSON(w, http.StatusOK, h.policyResponse(h.save(ctx, next)))
}
