package rest

import (
	"fmt"
	"strings"
	"time"

	"github.com/storeforge/storeforge-backend/internal/models"
)

// TokenResponse carries a freshly issued bearer token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// StoreSummary is the list/create view of a store.
type StoreSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	URL       string    `json:"url,omitempty"`
}

// StoreDetails adds the admin surface, populated once the store is Ready.
type StoreDetails struct {
	StoreSummary
	ErrorMessage  string     `json:"error_message,omitempty"`
	ReadyAt       *time.Time `json:"ready_at,omitempty"`
	AdminURL      string     `json:"admin_url,omitempty"`
	AdminUsername string     `json:"admin_username,omitempty"`
	AdminPassword string     `json:"admin_password,omitempty"`
}

// localSchemeSuffixes get plain http URLs: no public CA will issue for them.
var localSchemeSuffixes = []string{".localtest.me", ".localhost", ".nip.io", ".sslip.io"}

func urlScheme(domain string) string {
	for _, suffix := range localSchemeSuffixes {
		if strings.HasSuffix(domain, suffix) {
			return "http"
		}
	}
	return "https"
}

func storeSummary(s *models.Store) StoreSummary {
	out := StoreSummary{
		ID:        s.ID,
		Name:      s.Name,
		Domain:    s.Domain,
		Status:    s.Status,
		CreatedAt: s.CreatedAt,
	}
	if s.Status == models.StatusReady {
		out.URL = fmt.Sprintf("%s://%s", urlScheme(s.Domain), s.Domain)
	}
	return out
}

func storeDetails(s *models.Store) StoreDetails {
	out := StoreDetails{StoreSummary: storeSummary(s), ReadyAt: s.ReadyAt}
	if s.ErrorMessage != nil {
		out.ErrorMessage = *s.ErrorMessage
	}
	if s.Status == models.StatusReady {
		out.AdminURL = fmt.Sprintf("%s://%s/wp-admin", urlScheme(s.Domain), s.Domain)
		if s.AdminUsername != nil {
			out.AdminUsername = *s.AdminUsername
		}
		if s.AdminPassword != nil {
			out.AdminPassword = *s.AdminPassword
		}
	}
	return out
}
