package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/riftscan/sentinel/internal/apierr"
	"github.com/riftscan/sentinel/internal/domain"
	"github.com/riftscan/sentinel/internal/scheduler"
)

type scheduledHandlers struct {
	manager *scheduler.Manager
	log     *zap.Logger
}

type registerScheduledBody struct {
	Name           string   `json:"name"`
	TenantName     string   `json:"tenant_name"`
	Schedule       string   `json:"schedule"`
	RuleSetIDs     []string `json:"ruleset_ids"`
	PlatformID     string   `json:"platform_id"`
	JobLifetimeMin int      `json:"job_lifetime_min"`
}

func (h *scheduledHandlers) register(w http.ResponseWriter, r *http.Request) {
	var body registerScheduledBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.New(apierr.Validation, "malformed request body"))
		return
	}
	rulesets := make([]domain.RuleSetRef, 0, len(body.RuleSetIDs))
	for _, id := range body.RuleSetIDs {
		rulesets = append(rulesets, domain.RuleSetRef{ID: id})
	}
	sj, err := h.manager.Register(r.Context(), scheduler.RegisterInput{
		Name:           body.Name,
		TenantName:     body.TenantName,
		Customer:       CustomerFromContext(r.Context()),
		Schedule:       body.Schedule,
		RuleSets:       rulesets,
		PlatformID:     body.PlatformID,
		JobLifetimeMin: body.JobLifetimeMin,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sj)
}

func (h *scheduledHandlers) list(w http.ResponseWriter, r *http.Request) {
	customer := CustomerFromContext(r.Context())
	tenants := r.URL.Query()["tenant"]
	jobs, err := h.manager.List(r.Context(), customer, tenants)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *scheduledHandlers) get(w http.ResponseWriter, r *http.Request) {
	customer := CustomerFromContext(r.Context())
	tenants := r.URL.Query()["tenant"]
	sj, err := h.manager.Get(r.Context(), chi.URLParam(r, "name"), customer, tenants)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sj)
}

func (h *scheduledHandlers) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateScheduledBody struct {
	Enabled  *bool   `json:"enabled"`
	Schedule *string `json:"schedule"`
}

func (h *scheduledHandlers) update(w http.ResponseWriter, r *http.Request) {
	var body updateScheduledBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.New(apierr.Validation, "malformed request body"))
		return
	}
	if err := h.manager.Update(r.Context(), chi.URLParam(r, "name"), body.Enabled, body.Schedule); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
