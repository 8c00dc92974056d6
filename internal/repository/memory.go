package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/storeforge/storeforge-backend/internal/models"
)

// MemoryRepository is an in-memory Registry used by tests and local
// development without a database. It mirrors the Postgres unique
// constraints on email, domain and namespace.
type MemoryRepository struct {
	mu       sync.Mutex
	users    map[string]*models.User
	stores   map[string]*models.Store
	audits   []*models.AuditLogEntry
	counters map[string]int
	nextID   int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:    make(map[string]*models.User),
		stores:   make(map[string]*models.Store),
		counters: make(map[string]int),
	}
}

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

func copyStore(s *models.Store) *models.Store {
	c := *s
	return &c
}

func (r *MemoryRepository) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) FindUserByID(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func (r *MemoryRepository) InsertUser(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrDuplicate
		}
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = copyUser(user)
	return nil
}

func (r *MemoryRepository) FindStoreByID(_ context.Context, id string) (*models.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyStore(s), nil
}

func (r *MemoryRepository) FindStoreOwned(_ context.Context, id, userID string) (*models.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[id]
	if !ok || s.UserID != userID {
		return nil, ErrNotFound
	}
	return copyStore(s), nil
}

func (r *MemoryRepository) FindStoreByDomain(_ context.Context, domain string) (*models.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.stores {
		if s.Domain == domain {
			return copyStore(s), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) ListStoresForUser(_ context.Context, userID string) ([]*models.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Store{}
	for _, s := range r.stores {
		if s.UserID == userID {
			out = append(out, copyStore(s))
		}
	}
	return out, nil
}

func (r *MemoryRepository) CountStoresForUser(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, s := range r.stores {
		if s.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) InsertStore(_ context.Context, store *models.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.stores {
		if s.Domain == store.Domain || s.Namespace == store.Namespace {
			return ErrDuplicate
		}
	}
	now := time.Now().UTC()
	store.CreatedAt = now
	store.UpdatedAt = now
	r.stores[store.ID] = copyStore(store)
	return nil
}

func (r *MemoryRepository) UpdateStoreFields(_ context.Context, id string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[id]
	if !ok {
		return ErrNotFound
	}
	for col, val := range fields {
		switch col {
		case "namespace":
			s.Namespace = val.(string)
		case "helm_release_name":
			s.HelmReleaseName = val.(string)
		case "status":
			s.Status = val.(string)
		case "admin_username":
			s.AdminUsername = toStringPtr(val)
		case "admin_password":
			s.AdminPassword = toStringPtr(val)
		case "error_message":
			s.ErrorMessage = toStringPtr(val)
		case "ready_at":
			s.ReadyAt = toTimePtr(val)
		default:
			return ErrNotFound
		}
	}
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func toStringPtr(val interface{}) *string {
	switch v := val.(type) {
	case nil:
		return nil
	case string:
		return &v
	case *string:
		return v
	}
	return nil
}

func toTimePtr(val interface{}) *time.Time {
	switch v := val.(type) {
	case nil:
		return nil
	case time.Time:
		return &v
	case *time.Time:
		return v
	}
	return nil
}

func (r *MemoryRepository) DeleteStore(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stores, id)
	return nil
}

func (r *MemoryRepository) InsertAudit(_ context.Context, entry *models.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	entry.ID = r.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	c := *entry
	r.audits = append(r.audits, &c)
	return nil
}

// SetUserQuota overwrites a user's store quota (test helper).
func (r *MemoryRepository) SetUserQuota(userID string, quota int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		u.StoreQuota = quota
	}
}

// AuditEntries returns a snapshot of recorded audit entries (test helper).
func (r *MemoryRepository) AuditEntries() []*models.AuditLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.AuditLogEntry, len(r.audits))
	copy(out, r.audits)
	return out
}

func (r *MemoryRepository) IncrementRateCounter(_ context.Context, userID, endpoint string, windowStart time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := userID + "|" + endpoint + "|" + windowStart.UTC().Format(time.RFC3339)
	r.counters[key]++
	return r.counters[key], nil
}

var _ Registry = (*MemoryRepository)(nil)
