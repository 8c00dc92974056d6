package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/storeforge/storeforge-backend/internal/auth"
	"github.com/storeforge/storeforge-backend/internal/models"
	"github.com/storeforge/storeforge-backend/internal/repository"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func validateCredentials(req credentialsRequest) map[string][]string {
	fieldErrors := map[string][]string{}
	if _, err := mail.ParseAddress(req.Email); err != nil || strings.TrimSpace(req.Email) == "" {
		fieldErrors["email"] = append(fieldErrors["email"], "must be a valid email address")
	}
	if len(req.Password) < 8 {
		fieldErrors["password"] = append(fieldErrors["password"], "must be at least 8 characters")
	}
	if len(fieldErrors) == 0 {
		return nil
	}
	return fieldErrors
}

// Register handles POST /api/v1/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if fieldErrors := validateCredentials(req); fieldErrors != nil {
		respondValidation(w, fieldErrors)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Internal error", "")
		return
	}
	user := &models.User{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		StoreQuota:   models.DefaultStoreQuota,
	}
	if err := h.repo.InsertUser(r.Context(), user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			respondError(w, http.StatusConflict, "Email already registered", "")
			return
		}
		respondError(w, http.StatusInternalServerError, "Internal error", "")
		return
	}

	token, err := h.issueToken(user.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Internal error", "")
		return
	}
	respondJSON(w, http.StatusCreated, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	user, err := h.repo.FindUserByEmail(r.Context(), strings.TrimSpace(req.Email))
	if errors.Is(err, repository.ErrNotFound) {
		// Burn a verification anyway so the timing does not reveal
		// whether the email exists.
		auth.VerifyPassword(req.Password, decoyDigest)
		respondError(w, http.StatusUnauthorized, "Incorrect email or password", "")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Internal error", "")
		return
	}
	if !auth.VerifyPassword(req.Password, user.PasswordHash) {
		respondError(w, http.StatusUnauthorized, "Incorrect email or password", "")
		return
	}

	token, err := h.issueToken(user.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Internal error", "")
		return
	}
	respondJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// decoyDigest is a throwaway argon2 digest used to equalize login timing for
// unknown emails.
var decoyDigest = func() string {
	d, _ := auth.HashPassword(uuid.New().String())
	return d
}()

func (h *Handler) issueToken(userID string) (string, error) {
	ttl := time.Duration(h.cfg.JWTExpMinutes) * time.Minute
	return auth.IssueToken(h.cfg.JWTSecret, h.cfg.JWTAlgorithm, userID, ttl)
}
