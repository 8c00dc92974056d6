package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/storeforge/storeforge-backend/internal/models"
)

const pqUniqueViolation = "23505"

// PostgresRepository implements Registry on PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository connects to PostgreSQL and configures the pool.
func NewPostgresRepository(connectionString string) (*PostgresRepository, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &PostgresRepository{db: db}, nil
}

// Close closes the database connection.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// RunMigrations applies every *.sql file from the given filesystem in
// lexical order. All statements are idempotent (CREATE ... IF NOT EXISTS).
func (r *PostgresRepository) RunMigrations(migrationFS fs.FS) error {
	entries, err := fs.Glob(migrationFS, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(entries)
	for _, name := range entries {
		script, err := fs.ReadFile(migrationFS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := r.db.Exec(string(script)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return ErrDuplicate
	}
	return err
}

// Users

func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	query := `SELECT * FROM users WHERE lower(email) = lower($1)`
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}

func (r *PostgresRepository) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	query := `SELECT * FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}

func (r *PostgresRepository) InsertUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	query := `
		INSERT INTO users (id, email, hashed_password, store_quota, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.StoreQuota, user.CreatedAt, user.UpdatedAt)
	return translateError(err)
}

// Stores

func (r *PostgresRepository) FindStoreByID(ctx context.Context, id string) (*models.Store, error) {
	var store models.Store
	query := `SELECT * FROM stores WHERE id = $1`
	if err := r.db.GetContext(ctx, &store, query, id); err != nil {
		return nil, translateError(err)
	}
	return &store, nil
}

func (r *PostgresRepository) FindStoreOwned(ctx context.Context, id, userID string) (*models.Store, error) {
	var store models.Store
	query := `SELECT * FROM stores WHERE id = $1 AND user_id = $2`
	if err := r.db.GetContext(ctx, &store, query, id, userID); err != nil {
		return nil, translateError(err)
	}
	return &store, nil
}

func (r *PostgresRepository) FindStoreByDomain(ctx context.Context, domain string) (*models.Store, error) {
	var store models.Store
	query := `SELECT * FROM stores WHERE domain = $1`
	if err := r.db.GetContext(ctx, &store, query, domain); err != nil {
		return nil, translateError(err)
	}
	return &store, nil
}

func (r *PostgresRepository) ListStoresForUser(ctx context.Context, userID string) ([]*models.Store, error) {
	stores := []*models.Store{}
	query := `SELECT * FROM stores WHERE user_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &stores, query, userID); err != nil {
		return nil, translateError(err)
	}
	return stores, nil
}

func (r *PostgresRepository) CountStoresForUser(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT count(*) FROM stores WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, translateError(err)
	}
	return count, nil
}

func (r *PostgresRepository) InsertStore(ctx context.Context, store *models.Store) error {
	now := time.Now().UTC()
	store.CreatedAt = now
	store.UpdatedAt = now
	query := `
		INSERT INTO stores (id, user_id, name, domain, namespace, status, helm_release_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		store.ID, store.UserID, store.Name, store.Domain, store.Namespace,
		store.Status, store.HelmReleaseName, store.CreatedAt, store.UpdatedAt)
	return translateError(err)
}

// storeColumns whitelists the columns UpdateStoreFields may touch.
var storeColumns = map[string]bool{
	"namespace":         true,
	"helm_release_name": true,
	"status":            true,
	"admin_username":    true,
	"admin_password":    true,
	"error_message":     true,
	"ready_at":          true,
}

// UpdateStoreFields applies a partial update. Unknown columns are rejected.
func (r *PostgresRepository) UpdateStoreFields(ctx context.Context, id string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	sets := make([]string, 0, len(fields)+1)
	args := make([]interface{}, 0, len(fields)+2)
	// Deterministic order keeps the generated SQL stable for logs and tests.
	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	i := 1
	for _, col := range cols {
		if !storeColumns[col] {
			return fmt.Errorf("column %q is not updatable", col)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, fields[col])
		i++
	}
	sets = append(sets, fmt.Sprintf("updated_at = $%d", i))
	args = append(args, time.Now().UTC())
	i++
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE stores SET %s WHERE id = $%d`, strings.Join(sets, ", "), i)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return translateError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteStore(ctx context.Context, id string) error {
	query := `DELETE FROM stores WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return translateError(err)
}

// Audit

func (r *PostgresRepository) InsertAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	// JSONB must arrive as text; a []byte parameter would be sent as bytea
	// hex and rejected by the json cast.
	var details interface{}
	if len(entry.Details) > 0 {
		details = string(entry.Details)
	}
	query := `
		INSERT INTO audit_logs (user_id, action, resource_type, resource_id, details, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.UserID, entry.Action, entry.ResourceType, entry.ResourceID,
		details, entry.IPAddress, entry.CreatedAt)
	return translateError(err)
}

// Rate counters

// IncrementRateCounter upserts the (user, endpoint, window) counter and
// returns the post-increment count. A single statement keeps concurrent
// requests for the same triple race-free.
func (r *PostgresRepository) IncrementRateCounter(ctx context.Context, userID, endpoint string, windowStart time.Time) (int, error) {
	var count int
	query := `
		INSERT INTO rate_limits (user_id, endpoint, window_start, request_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (user_id, endpoint, window_start)
		DO UPDATE SET request_count = rate_limits.request_count + 1
		RETURNING request_count
	`
	if err := r.db.GetContext(ctx, &count, query, userID, endpoint, windowStart); err != nil {
		return 0, translateError(err)
	}
	return count, nil
}

var _ Registry = (*PostgresRepository)(nil)
