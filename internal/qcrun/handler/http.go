// Package handler exposes QC run ingestion and listing over HTTP JSON.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"iqc-platform/internal/qcrun/domain"
	"iqc-platform/internal/qcrun/repository"
	"iqc-platform/internal/qcrun/service"
)

type RunHandler struct {
	svc *service.Service
}

func NewRunHandler(svc *service.Service) *RunHandler {
	return &RunHandler{svc: svc}
}

// Register mounts the run routes on the router.
func (h *RunHandler) Register(r *mux.Router) {
	r.HandleFunc("/runs", h.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/runs", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}", h.handleGet).Methods(http.MethodGet)
}

type submitRequest struct {
	DeviceCode string    `json:"deviceCode"`
	TestCode   string    `json:"testCode"`
	Level      string    `json:"level"`
	LotCode    string    `json:"lotCode"`
	Value      float64   `json:"value"`
	MeasuredAt time.Time `json:"measuredAt,omitempty"`
}

type runResponse struct {
	ID         string          `json:"id"`
	DeviceCode string          `json:"deviceCode"`
	TestCode   string          `json:"testCode"`
	Level      string          `json:"level"`
	LotCode    string          `json:"lotCode"`
	Value      float64         `json:"value"`
	Z          *float64        `json:"z"`
	Side       string          `json:"side"`
	Status     string          `json:"status"`
	AutoResult string          `json:"autoResult"`
	Violations json.RawMessage `json:"violations"`
	Note       string          `json:"note,omitempty"`
	ReviewedBy string          `json:"reviewedBy,omitempty"`
	MeasuredAt time.Time       `json:"measuredAt"`
	CreatedAt  time.Time       `json:"createdAt"`
}

func toResponse(run *domain.QcRun) runResponse {
	violations := run.Violations
	if len(violations) == 0 {
		violations = []byte("[]")
	}
	return runResponse{
		ID:         run.ID,
		DeviceCode: run.Group.DeviceCode,
		TestCode:   run.Group.TestCode,
		Level:      run.Group.Level,
		LotCode:    run.Group.LotCode,
		Value:      run.Value,
		Z:          run.Z,
		Side:       string(run.Side),
		Status:     string(run.Status),
		AutoResult: string(run.AutoResult),
		Violations: json.RawMessage(violations),
		Note:       run.Note,
		ReviewedBy: run.ReviewedBy,
		MeasuredAt: run.MeasuredAt,
		CreatedAt:  run.CreatedAt,
	}
}

func (h *RunHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	run, err := h.svc.Submit(r.Context(), service.SubmitRequest{
		Group: domain.RunGroup{
			DeviceCode: req.DeviceCode,
			TestCode:   req.TestCode,
			Level:      req.Level,
			LotCode:    req.LotCode,
		},
		Value:      req.Value,
		MeasuredAt: req.MeasuredAt,
	})
	if err != nil {
		if errors.Is(err, service.ErrNoCurrentLimits) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(run))
}

func (h *RunHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	runs, err := h.svc.List(r.Context(), repository.ListFilter{
		DeviceCode: q.Get("deviceCode"),
		TestCode:   q.Get("testCode"),
		Level:      q.Get("level"),
		LotCode:    q.Get("lotCode"),
		Status:     q.Get("status"),
	})
	if err != nil {
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	out := make([]runResponse, len(runs))
	for i, run := range runs {
		out[i] = toResponse(run)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *RunHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, "failed to load run", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(run))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
