package models

import "time"

// AuditLogEntry is a single audit record. Append-only: no UPDATE or DELETE.
type AuditLogEntry struct {
	ID           int64      `json:"id" db:"id"`
	UserID       *string    `json:"user_id,omitempty" db:"user_id"`
	Action       string     `json:"action" db:"action"`
	ResourceType *string    `json:"resource_type,omitempty" db:"resource_type"`
	ResourceID   *string    `json:"resource_id,omitempty" db:"resource_id"`
	Details      []byte     `json:"details,omitempty" db:"details"` // JSONB blob
	IPAddress    *string    `json:"ip_address,omitempty" db:"ip_address"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}
