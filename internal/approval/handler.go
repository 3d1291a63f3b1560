package approval

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"iqc-platform/internal/security"
)

// Handler exposes the review endpoints over HTTP JSON.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the review routes on the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/runs/{id}/approve", h.handleApprove).Methods(http.MethodPost)
	r.HandleFunc("/runs/{id}/reject", h.handleReject).Methods(http.MethodPost)
	r.HandleFunc("/runs/bulk", h.handleBulk).Methods(http.MethodPost)
}

type reviewRequest struct {
	Note string `json:"note,omitempty"`
}

type bulkRequest struct {
	RunIDs  []string `json:"runIds"`
	Approve bool     `json:"approve"`
	Note    string   `json:"note,omitempty"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleReview(w, r, true)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.handleReview(w, r, false)
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request, approve bool) {
	id := mux.Vars(r)["id"]
	var req reviewRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}
	actor := actorOrAnonymous(r)

	var err error
	if approve {
		err = h.svc.Approve(r.Context(), id, actor, req.Note)
	} else {
		err = h.svc.Reject(r.Context(), id, actor, req.Note)
	}
	if err != nil {
		writeReviewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"runId": id, "status": statusName(approve)})
}

func (h *Handler) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(req.RunIDs) == 0 {
		http.Error(w, "runIds is required", http.StatusBadRequest)
		return
	}
	items, err := h.svc.Bulk(r.Context(), req.RunIDs, req.Approve, actorOrAnonymous(r), req.Note)
	if err != nil {
		writeReviewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func writeReviewError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRunNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrAlreadyTerminal):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrNoteRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "review failed", http.StatusInternalServerError)
	}
}

func statusName(approve bool) string {
	if approve {
		return "approved"
	}
	return "rejected"
}

func actorOrAnonymous(r *http.Request) string {
	if actor := security.ActorFrom(r.Context()); actor != "" {
		return actor
	}
	return "anonymous"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
