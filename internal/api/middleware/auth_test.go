package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/storeforge/storeforge-backend/internal/auth"
)

const testSecret = "test-secret-at-least-32-bytes-long!!"

func protectedHandler(t *testing.T, gotSubject *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotSubject = auth.SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth_ValidToken(t *testing.T) {
	userID := uuid.New().String()
	token, err := auth.IssueToken(testSecret, "HS256", userID, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	var subject string
	h := Auth(testSecret)(protectedHandler(t, &subject))
	r := httptest.NewRequest("GET", "/api/v1/stores", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if subject != userID {
		t.Errorf("Subject not propagated: %q", subject)
	}
}

func TestAuth_MissingToken(t *testing.T) {
	var subject string
	h := Auth(testSecret)(protectedHandler(t, &subject))
	r := httptest.NewRequest("GET", "/api/v1/stores", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Error("WWW-Authenticate header missing")
	}
}

func TestAuth_MalformedHeader(t *testing.T) {
	var subject string
	h := Auth(testSecret)(protectedHandler(t, &subject))
	for _, header := range []string{"Basic abc", "Bearer", "bearer-token"} {
		r := httptest.NewRequest("GET", "/api/v1/stores", nil)
		r.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Header %q: expected 401, got %d", header, w.Code)
		}
	}
}

func TestAuth_PublicPathsSkipped(t *testing.T) {
	var subject string
	h := Auth(testSecret)(protectedHandler(t, &subject))
	for _, path := range []string{"/health", "/metrics", "/api/v1/auth/register", "/api/v1/auth/login"} {
		r := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Errorf("Path %s: expected 200 without a token, got %d", path, w.Code)
		}
	}
}

func TestRequestID_GeneratedAndEchoed(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	r := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Header().Get(ResponseRequestIDHeader) == "" {
		t.Error("Request ID should be generated")
	}

	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set(ResponseRequestIDHeader, "req-123")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Header().Get(ResponseRequestIDHeader) != "req-123" {
		t.Error("Incoming request ID should be preserved")
	}
}
