package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/storeforge/storeforge-backend/internal/audit"
	"github.com/storeforge/storeforge-backend/internal/auth"
	"github.com/storeforge/storeforge-backend/internal/models"
	"github.com/storeforge/storeforge-backend/internal/queue"
	"github.com/storeforge/storeforge-backend/internal/repository"

	"github.com/google/uuid"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]{3,63}$`)

type createStoreRequest struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// CreateStore handles POST /api/v1/stores: admission-control the request and
// hand the actual provisioning to the worker.
func (h *Handler) CreateStore(w http.ResponseWriter, r *http.Request) {
	userID := auth.SubjectFromContext(r.Context())

	allowed, retryAfter, err := h.limiter.Allow(r.Context(), userID, "POST /stores", h.RateLimit, h.RateWindowSec)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Internal error", "")
		return
	}
	if !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		respondError(w, http.StatusTooManyRequests, "Rate limit exceeded",
			fmt.Sprintf("Try again in %d seconds", retryAfter))
		return
	}

	var req createStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if !slugPattern.MatchString(req.Name) {
		respondValidation(w, map[string][]string{
			"name": {"must be 3-63 characters of lowercase letters, digits and hyphens"},
		})
		return
	}

	canonical := fmt.Sprintf("%s.%s.%s", req.Name, h.cfg.PublicIP, h.cfg.BaseDomain)
	if req.Domain != "" && req.Domain != canonical {
		respondError(w, http.StatusBadRequest, "Invalid domain",
			fmt.Sprintf("Domain must be %s for nip.io routing", canonical))
		return
	}

	user, err := h.repo.FindUserByID(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Internal error", "")
		return
	}
	ok, err := h.quota.Allow(r.Context(), userID, user.StoreQuota)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Internal error", "")
		return
	}
	if !ok {
		respondError(w, http.StatusTooManyRequests, "Quota exceeded",
			fmt.Sprintf("Store quota of %d reached", user.StoreQuota))
		return
	}

	if _, err := h.repo.FindStoreByDomain(r.Context(), canonical); err == nil {
		respondError(w, http.StatusConflict, "Domain already in use", canonical)
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		respondError(w, http.StatusInternalServerError, "Internal error", "")
		return
	}

	store := &models.Store{
		ID:     uuid.New().String(),
		UserID: userID,
		Name:   req.Name,
		Domain: canonical,
		Status: models.StatusPending,
	}
	store.Namespace = models.CanonicalNamespace(store.ID)
	store.HelmReleaseName = store.Namespace

	if err := h.repo.InsertStore(r.Context(), store); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			respondError(w, http.StatusConflict, "Domain already in use", canonical)
			return
		}
		respondError(w, http.StatusInternalServerError, "Internal error", "")
		return
	}
	if err := h.enqueuer.Enqueue(r.Context(), queue.TaskProvision, store.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to schedule provisioning", "")
		return
	}
	audit.Record(r.Context(), h.repo, userID, "create_store", "store", store.ID, audit.ClientIP(r),
		map[string]interface{}{"domain": store.Domain, "name": store.Name})

	respondJSON(w, http.StatusAccepted, storeSummary(store))
}

// ListStores handles GET /api/v1/stores.
func (h *Handler) ListStores(w http.ResponseWriter, r *http.Request) {
	userID := auth.SubjectFromContext(r.Context())
	stores, err := h.repo.ListStoresForUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Internal error", "")
		return
	}
	out := make([]StoreSummary, 0, len(stores))
	for _, s := range stores {
		out = append(out, storeSummary(s))
	}
	respondJSON(w, http.StatusOK, out)
}

// loadOwnedStore resolves {storeId} for the caller, writing 404 for an absent
// store and 403 for someone else's.
func (h *Handler) loadOwnedStore(w http.ResponseWriter, r *http.Request) *models.Store {
	userID := auth.SubjectFromContext(r.Context())
	storeID := mux.Vars(r)["storeId"]

	store, err := h.repo.FindStoreOwned(r.Context(), storeID, userID)
	if err == nil {
		return store
	}
	if !errors.Is(err, repository.ErrNotFound) {
		respondError(w, http.StatusInternalServerError, "Internal error", "")
		return nil
	}
	if _, err := h.repo.FindStoreByID(r.Context(), storeID); err == nil {
		respondError(w, http.StatusForbidden, "Not authorized to access this store", "")
		return nil
	}
	respondError(w, http.StatusNotFound, "Store not found", "")
	return nil
}

// GetStore handles GET /api/v1/stores/{storeId}.
func (h *Handler) GetStore(w http.ResponseWriter, r *http.Request) {
	store := h.loadOwnedStore(w, r)
	if store == nil {
		return
	}
	respondJSON(w, http.StatusOK, storeDetails(store))
}

// DeleteStore handles DELETE /api/v1/stores/{storeId}: mark Deleting, hand
// the teardown to the worker.
func (h *Handler) DeleteStore(w http.ResponseWriter, r *http.Request) {
	store := h.loadOwnedStore(w, r)
	if store == nil {
		return
	}
	userID := auth.SubjectFromContext(r.Context())

	if err := h.repo.UpdateStoreFields(r.Context(), store.ID, map[string]interface{}{
		"status": models.StatusDeleting,
	}); err != nil {
		respondError(w, http.StatusInternalServerError, "Internal error", "")
		return
	}
	store.Status = models.StatusDeleting
	if err := h.enqueuer.Enqueue(r.Context(), queue.TaskDelete, store.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to schedule deletion", "")
		return
	}
	audit.Record(r.Context(), h.repo, userID, "delete_store", "store", store.ID, audit.ClientIP(r),
		map[string]interface{}{"domain": store.Domain})

	respondJSON(w, http.StatusAccepted, storeSummary(store))
}

type storeHealthResponse struct {
	Healthy        bool   `json:"healthy"`
	WordpressReady bool   `json:"wordpress_ready"`
	MysqlReady     bool   `json:"mysql_ready"`
	Details        string `json:"details,omitempty"`
}

// StoreHealth handles GET /api/v1/stores/{storeId}/health.
func (h *Handler) StoreHealth(w http.ResponseWriter, r *http.Request) {
	store := h.loadOwnedStore(w, r)
	if store == nil {
		return
	}
	namespace := store.Namespace
	if namespace == "" {
		namespace = models.CanonicalNamespace(store.ID)
	}

	wpReady, err := h.allPodsReady(r, namespace, "app=wordpress")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to query pods", "")
		return
	}
	dbReady, err := h.allPodsReady(r, namespace, "app=mysql")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to query pods", "")
		return
	}

	resp := storeHealthResponse{
		Healthy:        wpReady && dbReady,
		WordpressReady: wpReady,
		MysqlReady:     dbReady,
	}
	if !resp.Healthy {
		resp.Details = "One or more pods not ready"
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) allPodsReady(r *http.Request, namespace, selector string) (bool, error) {
	statuses, err := h.pods.PodStatuses(r.Context(), namespace, selector)
	if err != nil {
		return false, err
	}
	if len(statuses) == 0 {
		return false, nil
	}
	for _, s := range statuses {
		if !s.Ready {
			return false, nil
		}
	}
	return true, nil
}
