// Package rest exposes the admission API: registration, login, and the store
// lifecycle endpoints. Provisioning itself happens in the worker; these
// handlers only validate, persist and enqueue.
package rest

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/storeforge/storeforge-backend/internal/config"
	"github.com/storeforge/storeforge-backend/internal/k8s"
	"github.com/storeforge/storeforge-backend/internal/quota"
	"github.com/storeforge/storeforge-backend/internal/ratelimit"
	"github.com/storeforge/storeforge-backend/internal/repository"
)

// Enqueuer hands tasks to the worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, task, storeID string) error
}

// PodLister answers the per-store health endpoint.
type PodLister interface {
	PodStatuses(ctx context.Context, namespace, selector string) ([]k8s.PodStatus, error)
}

// Handler carries the handler dependencies.
type Handler struct {
	cfg      *config.Config
	repo     repository.Registry
	quota    *quota.Gate
	limiter  *ratelimit.Limiter
	enqueuer Enqueuer
	pods     PodLister

	// Store-creation rate limit; fields so tests can widen the window.
	RateLimit     int
	RateWindowSec int
}

func NewHandler(cfg *config.Config, repo repository.Registry, enqueuer Enqueuer, pods PodLister) *Handler {
	return &Handler{
		cfg:           cfg,
		repo:          repo,
		quota:         quota.NewGate(repo),
		limiter:       ratelimit.NewLimiter(repo),
		enqueuer:      enqueuer,
		pods:          pods,
		RateLimit:     1,
		RateWindowSec: 60,
	}
}

// SetupRoutes configures API routes.
func SetupRoutes(router *mux.Router, h *Handler) {
	router.HandleFunc("/api/v1/auth/register", h.Register).Methods("POST")
	router.HandleFunc("/api/v1/auth/login", h.Login).Methods("POST")

	router.HandleFunc("/api/v1/stores", h.CreateStore).Methods("POST")
	router.HandleFunc("/api/v1/stores", h.ListStores).Methods("GET")
	router.HandleFunc("/api/v1/stores/{storeId}", h.GetStore).Methods("GET")
	router.HandleFunc("/api/v1/stores/{storeId}", h.DeleteStore).Methods("DELETE")
	router.HandleFunc("/api/v1/stores/{storeId}/health", h.StoreHealth).Methods("GET")

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}).Methods("GET")
}
