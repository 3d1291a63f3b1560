// Package server assembles the HTTP API: routing, authentication, and request
// metrics.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"iqc-platform/internal/approval"
	limitshandler "iqc-platform/internal/limits/handler"
	profilehandler "iqc-platform/internal/profile/handler"
	qcrunhandler "iqc-platform/internal/qcrun/handler"
	"iqc-platform/internal/security"
)

// Handlers bundles the feature handlers mounted under /api/v1.
type Handlers struct {
	Runs     *qcrunhandler.RunHandler
	Review   *approval.Handler
	Limits   *limitshandler.Handler
	Profiles *profilehandler.Handler
}

// NewRouter builds the router. verifier may be nil to disable authentication
// (local development).
func NewRouter(h Handlers, verifier *security.TokenVerifier) *mux.Router {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)
	r.Use(security.Middleware(verifier, map[string]bool{
		"/health":  true,
		"/metrics": true,
	}))

	r.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	r.Path("/metrics").Handler(promhttp.Handler())

	api := r.PathPrefix("/api/v1").Subrouter()
	h.Runs.Register(api)
	h.Review.Register(api)
	h.Limits.Register(api)
	h.Profiles.Register(api)
	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// NewHTTPServer wraps the router in an http.Server tuned for steady load.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:           addr,
		Handler:        handler,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}
