package repository

import (
	"context"
	"time"

	"github.com/storeforge/storeforge-backend/internal/models"
)

// Registry is the single owner of all durable state. The API and the worker
// read and request writes exclusively through it; each method is atomic.
type Registry interface {
	// Users
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	InsertUser(ctx context.Context, user *models.User) error

	// Stores
	FindStoreByID(ctx context.Context, id string) (*models.Store, error)
	FindStoreOwned(ctx context.Context, id, userID string) (*models.Store, error)
	FindStoreByDomain(ctx context.Context, domain string) (*models.Store, error)
	ListStoresForUser(ctx context.Context, userID string) ([]*models.Store, error)
	CountStoresForUser(ctx context.Context, userID string) (int, error)
	InsertStore(ctx context.Context, store *models.Store) error
	UpdateStoreFields(ctx context.Context, id string, fields map[string]interface{}) error
	DeleteStore(ctx context.Context, id string) error

	// Audit (append-only)
	InsertAudit(ctx context.Context, entry *models.AuditLogEntry) error

	// Rate counters: atomically insert-or-increment the counter for
	// (userID, endpoint, windowStart) and return the post-increment count.
	IncrementRateCounter(ctx context.Context, userID, endpoint string, windowStart time.Time) (int, error)
}
