package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds the handlers mounted by NewRouter
type RouterConfig struct {
	Screener *ScreenerHandler
	Rules    *RuleHandler

	// WebSocket serves /api/v1/ws when set
	WebSocket http.Handler

	// Ready reports whether dependencies are reachable
	Ready func(ctx context.Context) error
}

// NewRouter builds the API routes
func NewRouter(cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	router.NotFoundHandler = http.HandlerFunc(notFound)

	// API v1 routes
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	v1.HandleFunc("/run", cfg.Screener.Run).Methods("POST")
	v1.HandleFunc("/compile", cfg.Screener.Compile).Methods("POST")
	v1.HandleFunc("/conditions", cfg.Screener.Conditions).Methods("GET")

	// Rule management endpoints
	v1.HandleFunc("/rules", cfg.Rules.ListRules).Methods("GET")
	v1.HandleFunc("/rules", cfg.Rules.CreateRule).Methods("POST")
	v1.HandleFunc("/rules/{id}", cfg.Rules.GetRule).Methods("GET")
	v1.HandleFunc("/rules/{id}", cfg.Rules.UpdateRule).Methods("PUT")
	v1.HandleFunc("/rules/{id}", cfg.Rules.DeleteRule).Methods("DELETE")
	v1.HandleFunc("/rules/{id}/run", cfg.Rules.RunRule).Methods("POST")

	if cfg.WebSocket != nil {
		v1.Handle("/ws", cfg.WebSocket).Methods("GET")
	}

	// Health check endpoints
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Ready(ctx); err != nil {
				respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "not ready",
					"error":  err.Error(),
				})
				return
			}
		}
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	router.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	return router
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func notFound(w http.ResponseWriter, r *http.Request) {
	respondWithError(w, http.StatusNotFound, "Not found")
}
