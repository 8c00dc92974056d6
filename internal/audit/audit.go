// Package audit records append-only audit entries for store mutations.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/storeforge/storeforge-backend/internal/models"
	"github.com/storeforge/storeforge-backend/internal/repository"
)

// Record writes an audit entry. Audit failures never fail the request.
func Record(ctx context.Context, repo repository.Registry, userID, action, resourceType, resourceID, ip string, details map[string]interface{}) {
	if repo == nil {
		return
	}
	entry := &models.AuditLogEntry{
		Action: action,
	}
	if userID != "" {
		entry.UserID = &userID
	}
	if resourceType != "" {
		entry.ResourceType = &resourceType
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if ip != "" {
		entry.IPAddress = &ip
	}
	if details != nil {
		if blob, err := json.Marshal(details); err == nil {
			entry.Details = blob
		}
	}
	if err := repo.InsertAudit(ctx, entry); err != nil {
		slog.Error("audit_insert_failed", "action", action, "resource_id", resourceID, "error", err)
	}
}

// ClientIP extracts the originating address, preferring the first
// X-Forwarded-For hop over the socket peer.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}
