// Package handler exposes profile and binding administration over HTTP JSON.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"iqc-platform/internal/audit"
	auditdomain "iqc-platform/internal/audit/domain"
	"iqc-platform/internal/profile"
	"iqc-platform/internal/profile/domain"
	"iqc-platform/internal/profile/repository"
	"iqc-platform/internal/security"
)

type Handler struct {
	repo     repository.Repository
	resolver *profile.Resolver
	audit    audit.Recorder // optional
}

func NewHandler(repo repository.Repository, resolver *profile.Resolver, recorder audit.Recorder) *Handler {
	return &Handler{repo: repo, resolver: resolver, audit: recorder}
}

// Register mounts the profile admin routes on the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/profiles", h.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/profiles", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/profiles/resolve", h.handleResolve).Methods(http.MethodGet)
	r.HandleFunc("/profiles/{id}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/profiles/{id}", h.handleUpdate).Methods(http.MethodPut)
	r.HandleFunc("/bindings", h.handleCreateBinding).Methods(http.MethodPost)
	r.HandleFunc("/bindings/{id}", h.handleDeleteBinding).Methods(http.MethodDelete)
}

type profileRequest struct {
	Name   string          `json:"name"`
	Config json.RawMessage `json:"config"`
}

type profileResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Config    json.RawMessage `json:"config"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func toResponse(p *domain.StoredProfile) profileResponse {
	return profileResponse{
		ID:        p.ID,
		Name:      p.Name,
		Config:    json.RawMessage(p.ConfigJSON),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	stored := &domain.StoredProfile{
		ID:         uuid.NewString(),
		Name:       req.Name,
		ConfigJSON: req.Config,
	}
	if err := stored.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.repo.CreateProfile(r.Context(), stored); err != nil {
		http.Error(w, "failed to store profile", http.StatusInternalServerError)
		return
	}
	h.recordAudit(r, auditdomain.ActionProfileSaved, "profile:"+stored.ID)
	writeJSON(w, http.StatusCreated, toResponse(stored))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	stored := &domain.StoredProfile{
		ID:         mux.Vars(r)["id"],
		Name:       req.Name,
		ConfigJSON: req.Config,
	}
	if err := stored.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.repo.UpdateProfile(r.Context(), stored); err != nil {
		http.Error(w, "profile not found", http.StatusNotFound)
		return
	}
	h.recordAudit(r, auditdomain.ActionProfileSaved, "profile:"+stored.ID)
	writeJSON(w, http.StatusOK, toResponse(stored))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	stored, err := h.repo.GetProfile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "failed to load profile", http.StatusInternalServerError)
		return
	}
	if stored == nil {
		http.Error(w, "profile not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(stored))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.repo.ListProfiles(r.Context())
	if err != nil {
		http.Error(w, "failed to list profiles", http.StatusInternalServerError)
		return
	}
	out := make([]profileResponse, len(profiles))
	for i, p := range profiles {
		out[i] = toResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleResolve previews which profile governs a device/test at a time.
func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	deviceID, testID := q.Get("deviceId"), q.Get("testId")
	at := time.Now().UTC()
	if raw := q.Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "at must be RFC3339", http.StatusBadRequest)
			return
		}
		at = parsed
	}
	resolved := h.resolver.Resolve(r.Context(), deviceID, testID, at)
	writeJSON(w, http.StatusOK, resolved)
}

type bindingRequest struct {
	ProfileID  string     `json:"profileId"`
	ScopeType  string     `json:"scopeType"`
	TestID     string     `json:"testId,omitempty"`
	DeviceID   string     `json:"deviceId,omitempty"`
	ActiveFrom *time.Time `json:"activeFrom,omitempty"`
	ActiveTo   *time.Time `json:"activeTo,omitempty"`
}

func (h *Handler) handleCreateBinding(w http.ResponseWriter, r *http.Request) {
	var req bindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	binding := domain.ProfileBinding{
		ID:         uuid.NewString(),
		ProfileID:  req.ProfileID,
		ScopeType:  domain.ScopeType(req.ScopeType),
		TestID:     req.TestID,
		DeviceID:   req.DeviceID,
		ActiveFrom: req.ActiveFrom,
		ActiveTo:   req.ActiveTo,
	}
	if err := validateBinding(binding); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if p, err := h.repo.GetProfile(r.Context(), binding.ProfileID); err != nil || p == nil {
		http.Error(w, "profile not found", http.StatusBadRequest)
		return
	}
	if err := h.repo.CreateBinding(r.Context(), &binding); err != nil {
		http.Error(w, "failed to store binding", http.StatusInternalServerError)
		return
	}
	h.recordAudit(r, auditdomain.ActionBindingSaved, "binding:"+binding.ID)
	writeJSON(w, http.StatusCreated, binding)
}

func (h *Handler) handleDeleteBinding(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteBinding(r.Context(), mux.Vars(r)["id"]); err != nil {
		http.Error(w, "binding not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validateBinding(b domain.ProfileBinding) error {
	if b.ProfileID == "" {
		return errors.New("profileId is required")
	}
	switch b.ScopeType {
	case domain.ScopeTypeGlobal:
	case domain.ScopeTypeTest:
		if b.TestID == "" {
			return errors.New("testId is required for test scope")
		}
	case domain.ScopeTypeDevice:
		if b.DeviceID == "" {
			return errors.New("deviceId is required for device scope")
		}
	case domain.ScopeTypeDeviceTest:
		if b.TestID == "" || b.DeviceID == "" {
			return errors.New("deviceId and testId are required for device_test scope")
		}
	default:
		return errors.New("unknown scope type")
	}
	if b.ActiveFrom != nil && b.ActiveTo != nil && !b.ActiveTo.After(*b.ActiveFrom) {
		return errors.New("activeTo must be after activeFrom")
	}
	return nil
}

func (h *Handler) recordAudit(r *http.Request, action, resource string) {
	actor := "anonymous"
	if a := security.ActorFrom(r.Context()); a != "" {
		actor = a
	}
	audit.RecordAsync(h.audit, &auditdomain.AuditEvent{
		ID:       uuid.NewString(),
		Actor:    actor,
		Action:   action,
		Resource: resource,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
