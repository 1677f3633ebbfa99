package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/riftscan/sentinel/internal/apierr"
	"github.com/riftscan/sentinel/internal/submission"
)

type jobHandlers struct {
	controller *submission.Controller
	log        *zap.Logger
}

// submitJobBody is the shared wire shape for the standard/licensed job
// submission endpoints; the handlers fill the controller's typed
// request structs from the validated body.
type submitJobBody struct {
	TenantName  string            `json:"tenant_name"`
	Owner       string            `json:"owner"`
	Regions     []string          `json:"regions"`
	RuleSets    []string          `json:"rulesets"`
	RulesToScan []string          `json:"rules_to_scan"`
	Credentials map[string]string `json:"credentials"`
}

func (h *jobHandlers) submitStandard(w http.ResponseWriter, r *http.Request) {
	var body submitJobBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.New(apierr.Validation, "malformed request body"))
		return
	}
	job, err := h.controller.SubmitStandard(r.Context(), submission.StandardRequest{
		TenantName:   body.TenantName,
		Customer:     CustomerFromContext(r.Context()),
		Owner:        body.Owner,
		Regions:      body.Regions,
		RuleSetNames: body.RuleSets,
		Credentials:  body.Credentials,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (h *jobHandlers) submitLicensed(w http.ResponseWriter, r *http.Request) {
	var body submitJobBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.New(apierr.Validation, "malformed request body"))
		return
	}
	job, err := h.controller.SubmitLicensed(r.Context(), submission.LicensedRequest{
		StandardRequest: submission.StandardRequest{
			TenantName:   body.TenantName,
			Customer:     CustomerFromContext(r.Context()),
			Owner:        body.Owner,
			Regions:      body.Regions,
			RuleSetNames: body.RuleSets,
			Credentials:  body.Credentials,
		},
		RulesToScan: body.RulesToScan,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

type submitK8sBody struct {
	PlatformID  string   `json:"platform_id"`
	Owner       string   `json:"owner"`
	Token       string   `json:"token"`
	RuleSets    []string `json:"rulesets"`
	RulesToScan []string `json:"rules_to_scan"`
}

func (h *jobHandlers) submitK8s(w http.ResponseWriter, r *http.Request) {
	var body submitK8sBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.New(apierr.Validation, "malformed request body"))
		return
	}
	job, err := h.controller.SubmitK8s(r.Context(), submission.K8sRequest{
		PlatformID:   body.PlatformID,
		Customer:     CustomerFromContext(r.Context()),
		Owner:        body.Owner,
		Token:        body.Token,
		RuleSetNames: body.RuleSets,
		RulesToScan:  body.RulesToScan,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (h *jobHandlers) list(w http.ResponseWriter, r *http.Request) {
	customer := CustomerFromContext(r.Context())
	tenants := r.URL.Query()["tenant"]
	jobs, err := h.controller.List(r.Context(), customer, tenants)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *jobHandlers) get(w http.ResponseWriter, r *http.Request) {
	customer := CustomerFromContext(r.Context())
	tenants := r.URL.Query()["tenant"]
	job, err := h.controller.Get(r.Context(), customer, tenants, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *jobHandlers) terminate(w http.ResponseWriter, r *http.Request) {
	customer := CustomerFromContext(r.Context())
	tenants := r.URL.Query()["tenant"]
	requester := r.URL.Query().Get("requested_by")
	if err := h.controller.Terminate(r.Context(), customer, tenants, chi.URLParam(r, "id"), requester); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a controller error to its HTTP status, never echoing
// the wrapped internal cause back to the caller.
func writeError(w http.ResponseWriter, err error) {
	if apiErr, ok := apierr.As(err); ok {
		writeJSON(w, apierr.HTTPStatus(apiErr.Kind), map[string]string{"error": apiErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
