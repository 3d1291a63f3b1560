// Package handler exposes limits proposals and adoption over HTTP JSON.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"iqc-platform/internal/audit"
	auditdomain "iqc-platform/internal/audit/domain"
	"iqc-platform/internal/limits/domain"
	"iqc-platform/internal/limits/repository"
	"iqc-platform/internal/limits/service"
	qcrundomain "iqc-platform/internal/qcrun/domain"
	"iqc-platform/internal/security"
)

type Handler struct {
	svc   *service.Service
	repo  repository.Repository
	audit audit.Recorder // optional
}

func NewHandler(svc *service.Service, repo repository.Repository, recorder audit.Recorder) *Handler {
	return &Handler{svc: svc, repo: repo, audit: recorder}
}

// Register mounts the limits routes on the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/limits/proposal", h.handleProposal).Methods(http.MethodPost)
	r.HandleFunc("/limits/adopt", h.handleAdopt).Methods(http.MethodPost)
	r.HandleFunc("/limits/current", h.handleCurrent).Methods(http.MethodGet)
	r.HandleFunc("/limits/versions", h.handleVersions).Methods(http.MethodGet)
}

type groupRequest struct {
	DeviceCode string `json:"deviceCode"`
	TestCode   string `json:"testCode"`
	Level      string `json:"level"`
	LotCode    string `json:"lotCode"`
}

func (g groupRequest) group() qcrundomain.RunGroup {
	return qcrundomain.RunGroup{
		DeviceCode: g.DeviceCode,
		TestCode:   g.TestCode,
		Level:      g.Level,
		LotCode:    g.LotCode,
	}
}

type proposalRequest struct {
	groupRequest
	N int `json:"n,omitempty"`
}

type proposalResponse struct {
	domain.RollingProposal
	ShouldSuggest bool `json:"shouldSuggest"`
}

func (h *Handler) handleProposal(w http.ResponseWriter, r *http.Request) {
	var req proposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	proposal := h.svc.ComputeProposal(r.Context(), req.group(), req.N)
	writeJSON(w, http.StatusOK, proposalResponse{
		RollingProposal: proposal,
		ShouldSuggest:   service.ShouldSuggestProposal(proposal.CurrentLimits, proposal.Stats),
	})
}

type adoptRequest struct {
	groupRequest
	Mean   float64 `json:"mean"`
	SD     float64 `json:"sd"`
	CV     float64 `json:"cv"`
	Source string  `json:"source,omitempty"`
}

func (h *Handler) handleAdopt(w http.ResponseWriter, r *http.Request) {
	var req adoptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	source := req.Source
	if source == "" {
		source = "rolling"
	}
	actor := security.ActorFrom(r.Context())
	version := &domain.LimitsVersion{
		ID:         uuid.NewString(),
		DeviceCode: req.DeviceCode,
		TestCode:   req.TestCode,
		Level:      req.Level,
		LotCode:    req.LotCode,
		Mean:       req.Mean,
		SD:         req.SD,
		CV:         req.CV,
		Source:     source,
		CreatedBy:  actor,
	}
	if err := h.repo.InsertVersion(r.Context(), version); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	meta, _ := json.Marshal(map[string]interface{}{
		"mean": req.Mean, "sd": req.SD, "cv": req.CV, "version": version.Version,
	})
	audit.RecordAsync(h.audit, &auditdomain.AuditEvent{
		ID:       uuid.NewString(),
		Actor:    actor,
		Action:   auditdomain.ActionLimitsAdopted,
		Resource: "limits:" + req.DeviceCode + "/" + req.TestCode + "/" + req.Level + "/" + req.LotCode,
		Metadata: meta,
	})
	writeJSON(w, http.StatusCreated, version)
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	group, ok := groupFromQuery(w, r)
	if !ok {
		return
	}
	current, err := h.repo.CurrentLimits(r.Context(), group)
	if err != nil {
		http.Error(w, "failed to load limits", http.StatusInternalServerError)
		return
	}
	if current == nil {
		http.Error(w, "no current limits for group", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, current)
}

func (h *Handler) handleVersions(w http.ResponseWriter, r *http.Request) {
	group, ok := groupFromQuery(w, r)
	if !ok {
		return
	}
	versions, err := h.repo.ListVersions(r.Context(), group)
	if err != nil {
		http.Error(w, "failed to load limits versions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func groupFromQuery(w http.ResponseWriter, r *http.Request) (qcrundomain.RunGroup, bool) {
	q := r.URL.Query()
	group := qcrundomain.RunGroup{
		DeviceCode: q.Get("deviceCode"),
		TestCode:   q.Get("testCode"),
		Level:      q.Get("level"),
		LotCode:    q.Get("lotCode"),
	}
	if err := group.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return qcrundomain.RunGroup{}, false
	}
	return group, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
